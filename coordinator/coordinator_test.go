package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostpeak/gatewarden/authz"
	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/types"
)

// memStore mimics the store's row-level atomicity: a claim reads and deletes
// under one lock acquisition, so exactly one of N concurrent claims wins.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]types.WhitelistRequest
	claimErr error
}

func newMemStore(rows ...types.WhitelistRequest) *memStore {
	s := &memStore{rows: make(map[string]types.WhitelistRequest)}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) ClaimRequest(ctx context.Context, id string) (types.WhitelistRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return types.WhitelistRequest{}, s.claimErr
	}
	row, ok := s.rows[id]
	if !ok {
		return types.WhitelistRequest{}, db.ErrNotFound
	}
	delete(s.rows, id)
	return row, nil
}

func (s *memStore) fetch(id string) (types.WhitelistRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	return row, ok
}

type fakeProber struct {
	running map[string]bool
	err     error
}

func (p *fakeProber) Running(ctx context.Context, containerID string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.running[containerID], nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, host string, port int, password, command string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.commands = append(d.commands, command)
	return "", nil
}

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []types.Notification
	err           error
}

func (n *fakeNotifier) Notify(notification types.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) sent() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.notifications...)
}

var testServers = []config.Server{
	{ID: "s1", Name: "Survival", ContainerID: "c1", Address: "10.0.0.1", RconPort: 25575, RconPassword: "pw"},
	{ID: "s2", Name: "Creative", ContainerID: "c2", Address: "10.0.0.2", RconPort: 25575, RconPassword: "pw"},
	{ID: "s3", Name: "Museum", ContainerID: "c3", CommandsDisabled: true},
}

var testPolicy = authz.Policy{AllowedRoles: []string{"mods"}, AllowAdmin: true}

func reviewer() types.Actor {
	return types.Actor{ID: "reviewer", Roles: []string{"mods"}}
}

func testRequest(id, serverID, username string) types.WhitelistRequest {
	return types.WhitelistRequest{
		ID:                id,
		ServerID:          serverID,
		RequesterID:       "requester-" + id,
		MinecraftUsername: username,
		CreatedAt:         time.Now().UTC(),
	}
}

type fixture struct {
	store      *memStore
	prober     *fakeProber
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	svc        *Service
}

func newFixture(rows ...types.WhitelistRequest) *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	f := &fixture{
		store:      newMemStore(rows...),
		prober:     &fakeProber{running: map[string]bool{"c1": true, "c2": false}},
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
	}
	f.svc = NewService(f.store, f.prober, f.dispatcher, f.notifier, testPolicy, testServers, logger)
	return f
}

func TestApproveRunningServer(t *testing.T) {
	f := newFixture(testRequest("r1", "s1", "Notch"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r1",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, resolution.Status)
	require.NotNil(t, resolution.Request)
	assert.Equal(t, "Notch", resolution.Request.MinecraftUsername)

	assert.Equal(t, []string{"whitelist add Notch"}, f.dispatcher.dispatched())

	_, exists := f.store.fetch("r1")
	assert.False(t, exists, "row must be gone after a terminal outcome")

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.StatusApproved, sent[0].Status)
	assert.Equal(t, "Survival", sent[0].ServerName)
	assert.Equal(t, "reviewer", sent[0].ActorID)
}

func TestApproveTargetNotRunning(t *testing.T) {
	f := newFixture(testRequest("r2", "s2", "Herobrine"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r2",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusTargetNotRunning, resolution.Status)

	assert.Empty(t, f.dispatcher.dispatched(), "dispatcher must never run against a stopped server")

	_, exists := f.store.fetch("r2")
	assert.False(t, exists, "liveness gating still consumes the row")
}

func TestApproveUnknownServer(t *testing.T) {
	f := newFixture(testRequest("r4", "ghost", "Alex"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r4",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusServerUnavailable, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched())
}

func TestApproveCommandsDisabledServer(t *testing.T) {
	f := newFixture(testRequest("r5", "s3", "Alex"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r5",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusServerUnavailable, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched())
}

func TestApproveProbeError(t *testing.T) {
	f := newFixture(testRequest("r6", "s1", "Alex"))
	f.prober.err = errors.New("docker daemon unreachable")

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r6",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusTargetNotRunning, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched(), "unknown liveness must not dispatch")
}

func TestApproveDispatchFailure(t *testing.T) {
	f := newFixture(testRequest("r7", "s1", "Alex"))
	f.dispatcher.err = errors.New("connection refused")

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r7",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusActionFailed, resolution.Status)
	assert.Error(t, resolution.Err)

	// Documented trade-off: the row is gone even though the action failed.
	_, exists := f.store.fetch("r7")
	assert.False(t, exists)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "connection refused", sent[0].Detail)
}

func TestDeny(t *testing.T) {
	f := newFixture(testRequest("r8", "s1", "Notch"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r8",
		Decision:  types.Deny,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDenied, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched(), "deny takes no external action")

	_, exists := f.store.fetch("r8")
	assert.False(t, exists)
}

func TestUnauthorizedLeavesRowIntact(t *testing.T) {
	f := newFixture(testRequest("r9", "s1", "Notch"))

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r9",
		Decision:  types.Approve,
		Actor:     types.Actor{ID: "rando", Roles: []string{"members"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnauthorized, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched())
	assert.Empty(t, f.notifier.sent())

	// The row survives, so a later authorized decision still succeeds.
	_, exists := f.store.fetch("r9")
	assert.True(t, exists)

	resolution, err = f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r9",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, resolution.Status)
}

func TestMissingRequest(t *testing.T) {
	f := newFixture()

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "never-existed",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusAlreadyResolved, resolution.Status)
	assert.Empty(t, f.dispatcher.dispatched())
}

func TestClaimPersistenceFailure(t *testing.T) {
	f := newFixture(testRequest("r10", "s1", "Notch"))
	f.store.claimErr = errors.New("server selection timeout")

	_, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r10",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.Error(t, err, "store failure during claim must surface as retryable")
	assert.Empty(t, f.dispatcher.dispatched())
	assert.Empty(t, f.notifier.sent())
}

func TestNotificationFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(testRequest("r11", "s1", "Notch"))
	f.notifier.err = errors.New("broker gone")

	resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
		RequestID: "r11",
		Decision:  types.Approve,
		Actor:     reviewer(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, resolution.Status)
}

// Concurrent approvals for one request id: the dispatcher runs at most once
// and exactly one caller observes Approved, everyone else AlreadyResolved.
func TestConcurrentApprovalsAtMostOnce(t *testing.T) {
	const n = 32
	f := newFixture(testRequest("race", "s1", "Notch"))

	var wg sync.WaitGroup
	results := make([]types.Status, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
				RequestID: "race",
				Decision:  types.Approve,
				Actor:     reviewer(),
			})
			assert.NoError(t, err)
			results[i] = resolution.Status
		}(i)
	}
	close(start)
	wg.Wait()

	approved := 0
	for _, status := range results {
		switch status {
		case types.StatusApproved:
			approved++
		case types.StatusAlreadyResolved:
		default:
			t.Fatalf("unexpected status %v", status)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Len(t, f.dispatcher.dispatched(), 1, "whitelist command must be issued at most once")
}

func TestConcurrentDenyRace(t *testing.T) {
	f := newFixture(testRequest("deny-race", "s1", "Notch"))

	var wg sync.WaitGroup
	results := make([]types.Status, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
				RequestID: "deny-race",
				Decision:  types.Deny,
				Actor:     reviewer(),
			})
			assert.NoError(t, err)
			results[i] = resolution.Status
		}(i)
	}
	wg.Wait()

	statuses := map[types.Status]int{}
	for _, s := range results {
		statuses[s]++
	}
	assert.Equal(t, 1, statuses[types.StatusDenied])
	assert.Equal(t, 1, statuses[types.StatusAlreadyResolved])
	assert.Empty(t, f.dispatcher.dispatched())
}

// Mixed approve/deny clicks on one request: whichever wins the claim decides,
// and the dispatcher runs only if an approve won.
func TestConcurrentMixedDecisions(t *testing.T) {
	const n = 16
	f := newFixture(testRequest("mixed", "s1", "Notch"))

	var wg sync.WaitGroup
	results := make([]types.Status, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := types.Approve
			if i%2 == 1 {
				decision = types.Deny
			}
			resolution, err := f.svc.Resolve(context.Background(), types.DecisionEvent{
				RequestID: "mixed",
				Decision:  decision,
				Actor:     reviewer(),
			})
			assert.NoError(t, err)
			results[i] = resolution.Status
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, status := range results {
		if status == types.StatusApproved || status == types.StatusDenied {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.LessOrEqual(t, len(f.dispatcher.dispatched()), 1)
}
