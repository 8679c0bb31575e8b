package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/types"
)

const (
	statsKey = "RealtimeStats"
	maxRetry = 5
)

// RealTimeStats are the counters exposed on the ops API: how many requests
// are open right now and how past decisions broke down. Lost approvals are
// tracked separately because each one needed manual follow-up.
type RealTimeStats struct {
	Pending           int64 `redis:"pending" json:"pending"`
	Approved          int64 `redis:"approved" json:"approved"`
	Denied            int64 `redis:"denied" json:"denied"`
	ServerUnavailable int64 `redis:"serverUnavailable" json:"serverUnavailable"`
	TargetNotRunning  int64 `redis:"targetNotRunning" json:"targetNotRunning"`
	ActionFailed      int64 `redis:"actionFailed" json:"actionFailed"`
}

var statusFields = map[types.Status]string{
	types.StatusApproved:          "approved",
	types.StatusDenied:            "denied",
	types.StatusServerUnavailable: "serverUnavailable",
	types.StatusTargetNotRunning:  "targetNotRunning",
	types.StatusActionFailed:      "actionFailed",
}

// Service keeps realtime whitelist stats in redis.
type Service struct {
	dbService *db.Service
	pool      *redis.Pool
	logger    *logrus.Logger
}

// NewService connects the stats cache and verifies the redis connection.
func NewService(dbService *db.Service, redisConnStr string, logger *logrus.Logger) (*Service, error) {
	pool := &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", redisConnStr)
		},
	}
	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Service{
		dbService: dbService,
		pool:      pool,
		logger:    logger,
	}, nil
}

// GetRealTimeStats reads the current counters.
func (svc *Service) GetRealTimeStats() (RealTimeStats, error) {
	conn := svc.pool.Get()
	defer conn.Close()
	values, err := redis.Values(conn.Do("HGETALL", statsKey))
	if err != nil {
		return RealTimeStats{}, err
	}
	var stats RealTimeStats
	if err := redis.ScanStruct(values, &stats); err != nil {
		return RealTimeStats{}, err
	}
	return stats, nil
}

// RecordSubmission bumps the pending counter for a newly created request.
func (svc *Service) RecordSubmission() error {
	conn := svc.pool.Get()
	defer conn.Close()
	_, err := conn.Do("HINCRBY", statsKey, "pending", 1)
	return err
}

// RecordResolution moves one request from pending into its terminal bucket.
// Outcomes that never consumed a row (unauthorized, duplicate clicks) are
// not stats events and are ignored.
func (svc *Service) RecordResolution(status types.Status) error {
	if !status.Consumed() {
		return nil
	}
	field, ok := statusFields[status]
	if !ok {
		return fmt.Errorf("no stats bucket for status %s", status)
	}
	for n := 1; n <= maxRetry; n++ {
		conn := svc.pool.Get()
		if _, err := conn.Do("WATCH", statsKey); err != nil {
			conn.Close()
			return err
		}
		pending, err := redis.Int64(conn.Do("HGET", statsKey, "pending"))
		if err != nil && err != redis.ErrNil {
			conn.Close()
			return err
		}
		if pending > 0 {
			pending--
		}
		if err := conn.Send("MULTI"); err != nil {
			conn.Close()
			return err
		}
		if err := conn.Send("HSET", statsKey, "pending", pending); err != nil {
			conn.Close()
			return err
		}
		if err := conn.Send("HINCRBY", statsKey, field, 1); err != nil {
			conn.Close()
			return err
		}
		_, err = redis.Values(conn.Do("EXEC"))
		conn.Close()
		if err == redis.ErrNil {
			// Another writer touched the hash between WATCH and EXEC.
			svc.logger.Debugf("Race detected during stats update. Retrying %d/%d", n, maxRetry)
			time.Sleep(time.Duration(n) * 100 * time.Millisecond)
			continue
		}
		return err
	}
	return errors.New("unable to update stats, gave up after retries")
}

// SyncStats aligns the pending counter with the store. Terminal counters are
// cumulative and survive restarts; resolved rows no longer exist in the
// store, so only pending can be recomputed. Run once during startup.
func (svc *Service) SyncStats(ctx context.Context) error {
	pending, err := svc.dbService.PendingCount(ctx)
	if err != nil {
		return err
	}
	conn := svc.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("HSET", statsKey, "pending", pending); err != nil {
		return err
	}
	svc.logger.WithFields(logrus.Fields{
		"pending": pending,
	}).Info("Initial stats sync completed")
	return nil
}

// Close releases the redis pool.
func (svc *Service) Close() error {
	return svc.pool.Close()
}
