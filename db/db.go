package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/frostpeak/gatewarden/types"
)

const (
	databaseName   = "gatewarden"
	collectionName = "requests"
)

// ErrNotFound is returned when no pending request exists for the given id.
// Callers can not tell apart "never existed" from "already claimed".
var ErrNotFound = errors.New("whitelist request not found")

// Service deals with database level operations on pending whitelist requests.
type Service struct {
	db *mongo.Client
}

// NewService creates a new mongodb-backed request store.
func NewService(db *mongo.Client) *Service {
	return &Service{
		db: db,
	}
}

// Ping checks for db connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx, readpref.Primary())
}

func (s *Service) requests() *mongo.Collection {
	return s.db.Database(databaseName).Collection(collectionName)
}

// CreateRequest inserts a new pending whitelist request. The caller supplies
// a pre-generated unique id.
func (s *Service) CreateRequest(ctx context.Context, newRequest types.WhitelistRequest) (string, error) {
	newRequest.CreatedAt = time.Now().UTC()
	_, err := s.requests().InsertOne(ctx, newRequest)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	return newRequest.ID, nil
}

// GetRequest fetches a pending request by id without consuming it. Display
// use only; never a gate for deciding whether to act.
func (s *Service) GetRequest(ctx context.Context, id string) (types.WhitelistRequest, error) {
	var request types.WhitelistRequest
	err := s.requests().FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err == mongo.ErrNoDocuments {
		return types.WhitelistRequest{}, ErrNotFound
	}
	if err != nil {
		return types.WhitelistRequest{}, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// ClaimRequest atomically reads and deletes the pending request in a single
// storage operation. Exactly one of N concurrent claims for the same id
// succeeds; the rest observe ErrNotFound. This is the sole de-duplication
// primitive for decision handling.
func (s *Service) ClaimRequest(ctx context.Context, id string) (types.WhitelistRequest, error) {
	var request types.WhitelistRequest
	err := s.requests().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&request)
	if err == mongo.ErrNoDocuments {
		return types.WhitelistRequest{}, ErrNotFound
	}
	if err != nil {
		return types.WhitelistRequest{}, fmt.Errorf("claim request: %w", err)
	}
	return request, nil
}

// GetRequests queries pending requests, newest first.
func (s *Service) GetRequests(ctx context.Context, filter interface{}) ([]types.WhitelistRequest, error) {
	cur, err := s.requests().Find(ctx, filter, options.Find().SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, fmt.Errorf("get requests: %w", err)
	}
	defer cur.Close(ctx)

	requests := make([]types.WhitelistRequest, 0)
	for cur.Next(ctx) {
		var request types.WhitelistRequest
		if err := cur.Decode(&request); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, cur.Err()
}

// HasPendingRequest reports whether the player already has an open request
// for the given server. Used by the submission flow to reject duplicates.
func (s *Service) HasPendingRequest(ctx context.Context, serverID, username string) (bool, error) {
	count, err := s.requests().CountDocuments(ctx, bson.M{
		"serverId":          serverID,
		"minecraftUsername": username,
	})
	if err != nil {
		return false, fmt.Errorf("count requests: %w", err)
	}
	return count > 0, nil
}

// PendingCount returns the number of open requests. Feeds the stats cache
// initial sync.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.requests().CountDocuments(ctx, bson.M{})
}
