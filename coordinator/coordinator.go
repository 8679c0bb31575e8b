// Package coordinator turns a stored pending whitelist request plus an
// asynchronous reviewer decision into exactly one terminal outcome. The
// ordering is fixed: authorization strictly precedes the store claim, the
// claim strictly precedes any external action, and notification strictly
// follows the action's outcome. Correctness under concurrent duplicate
// decisions rests entirely on the store claim being atomic; the coordinator
// holds no lock of its own.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/authz"
	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/types"
)

// Store is the slice of the request store the coordinator needs. ClaimRequest
// must atomically read and delete the row; it returns db.ErrNotFound when no
// pending row exists, without distinguishing why.
type Store interface {
	ClaimRequest(ctx context.Context, id string) (types.WhitelistRequest, error)
}

// Prober answers whether a server's container runtime is currently running.
type Prober interface {
	Running(ctx context.Context, containerID string) (bool, error)
}

// Dispatcher opens an authenticated session to a running server and issues
// one administrative command.
type Dispatcher interface {
	Dispatch(ctx context.Context, host string, port int, password, command string) (string, error)
}

// Notifier delivers the outcome to the requester. Best-effort: failures are
// logged by the coordinator and never change the resolution.
type Notifier interface {
	Notify(notification types.Notification) error
}

// Service orchestrates the whitelist request lifecycle.
type Service struct {
	store      Store
	prober     Prober
	dispatcher Dispatcher
	notifier   Notifier
	policy     authz.Policy
	servers    []config.Server
	logger     *logrus.Logger
}

// NewService wires a coordinator from its collaborators and the static
// server/policy configuration loaded at startup.
func NewService(store Store, prober Prober, dispatcher Dispatcher, notifier Notifier, policy authz.Policy, servers []config.Server, logger *logrus.Logger) *Service {
	return &Service{
		store:      store,
		prober:     prober,
		dispatcher: dispatcher,
		notifier:   notifier,
		policy:     policy,
		servers:    servers,
		logger:     logger,
	}
}

// Resolve runs one decision event to a terminal outcome. It is safe under
// arbitrary interleavings of concurrent calls for the same request id: at
// most one caller wins the claim, and the whitelist command is dispatched at
// most once per request.
//
// A non-nil error is returned only when the store was unavailable during the
// claim. The row's fate is then indeterminate and the actor should retry;
// every other outcome is terminal and carried in the Resolution.
func (s *Service) Resolve(ctx context.Context, event types.DecisionEvent) (types.Resolution, error) {
	log := s.logger.WithFields(logrus.Fields{
		"requestId": event.RequestID,
		"decision":  event.Decision.String(),
		"actor":     event.Actor.ID,
	})

	if !s.policy.Authorized(event.Actor) {
		log.Warn("Unauthorized decision attempt")
		return s.terminal(event, types.Resolution{Status: types.StatusUnauthorized}, nil)
	}

	request, err := s.store.ClaimRequest(ctx, event.RequestID)
	if errors.Is(err, db.ErrNotFound) {
		// Lost the race, or the request never existed. Either way no
		// further action is taken; the winning claim did the work.
		return s.terminal(event, types.Resolution{Status: types.StatusAlreadyResolved}, nil)
	}
	if err != nil {
		log.WithField("err", err.Error()).Error("Request store unavailable during claim")
		return types.Resolution{}, fmt.Errorf("claim %s: %w", event.RequestID, err)
	}

	if event.Decision == types.Deny {
		log.Info("Request denied")
		return s.terminal(event, types.Resolution{Status: types.StatusDenied, Request: &request}, nil)
	}

	// The row is consumed from here on. None of the failure paths below can
	// return it without reopening the duplicate-processing race, so a failed
	// approval is reported for manual follow-up instead.
	server, ok := s.findServer(request.ServerID)
	if !ok || server.CommandsDisabled {
		log.WithField("serverId", request.ServerID).Error("Approval lost: target server unknown or commands disabled")
		return s.terminal(event, types.Resolution{Status: types.StatusServerUnavailable, Request: &request}, server)
	}

	running, err := s.prober.Running(ctx, server.ContainerID)
	if err != nil {
		// Liveness unknown counts as not running: the dispatcher is only
		// ever invoked against a server confirmed to be up.
		log.WithField("err", err.Error()).Error("Approval lost: liveness probe failed")
		return s.terminal(event, types.Resolution{Status: types.StatusTargetNotRunning, Request: &request, Err: err}, server)
	}
	if !running {
		log.WithField("container", server.ContainerID).Warn("Approval lost: server container is not running")
		return s.terminal(event, types.Resolution{Status: types.StatusTargetNotRunning, Request: &request}, server)
	}

	command := fmt.Sprintf("whitelist add %s", request.MinecraftUsername)
	if _, err := s.dispatcher.Dispatch(ctx, server.Address, server.RconPort, server.RconPassword, command); err != nil {
		log.WithField("err", err.Error()).Error("Approval lost: whitelist command dispatch failed")
		return s.terminal(event, types.Resolution{Status: types.StatusActionFailed, Request: &request, Err: err}, server)
	}

	log.WithFields(logrus.Fields{
		"server":   server.ID,
		"username": request.MinecraftUsername,
	}).Info("Whitelist request approved and applied")
	return s.terminal(event, types.Resolution{Status: types.StatusApproved, Request: &request}, server)
}

func (s *Service) findServer(id string) (*config.Server, bool) {
	for i := range s.servers {
		if s.servers[i].ID == id {
			return &s.servers[i], true
		}
	}
	return nil, false
}

// terminal records metrics and fires the best-effort notification before
// handing the resolution back to the transport. Notifications are only sent
// for outcomes that consumed the row; a rejected or duplicate click has
// nothing to tell the requester.
func (s *Service) terminal(event types.DecisionEvent, resolution types.Resolution, server *config.Server) (types.Resolution, error) {
	resolutionsTotal.WithLabelValues(resolution.Status.String()).Inc()
	if !resolution.Status.Consumed() || resolution.Request == nil {
		return resolution, nil
	}

	notification := types.Notification{
		Status:            resolution.Status,
		Request:           *resolution.Request,
		ActorID:           event.Actor.ID,
		ResolvedTimestamp: time.Now().UTC(),
	}
	if server != nil {
		notification.ServerName = server.Name
	}
	if resolution.Err != nil {
		notification.Detail = resolution.Err.Error()
	}
	if err := s.notifier.Notify(notification); err != nil {
		// Never escalated: the authoritative state change already happened.
		s.logger.WithFields(logrus.Fields{
			"requestId": resolution.Request.ID,
			"err":       err.Error(),
		}).Error("Unable to publish resolution notification")
	}
	return resolution, nil
}
