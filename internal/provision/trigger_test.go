package provision

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// memStore is an in-memory PendingStore for tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]types.PendingDeployment
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]types.PendingDeployment{}}
}

func (s *memStore) Put(ctx context.Context, id string, r types.PendingDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = r
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (types.PendingDeployment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return types.PendingDeployment{}, false, s.getErr
	}
	r, ok := s.records[id]
	return r, ok, nil
}

func (s *memStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memStore) List(ctx context.Context) (map[string]types.PendingDeployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.PendingDeployment, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// fakeDeployer counts deploys and can be told to fail or block.
type fakeDeployer struct {
	mu        sync.Mutex
	deploys   atomic.Int32
	deletes   []string
	deployErr error
	deleteErr error
	block     chan struct{} // when non-nil, Deploy waits on it
}

func (d *fakeDeployer) Deploy(ctx context.Context, username, domain, email string) (*types.DeployResult, error) {
	d.deploys.Add(1)
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.deployErr != nil {
		return nil, d.deployErr
	}
	return &types.DeployResult{
		Username: username,
		Domain:   domain,
		URL:      "https://" + domain,
	}, nil
}

func (d *fakeDeployer) DeleteInstallation(ctx context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes = append(d.deletes, username)
	return d.deleteErr
}

func (d *fakeDeployer) ListInstallations(ctx context.Context) ([]types.Installation, error) {
	return nil, nil
}

func (d *fakeDeployer) GetInstallation(ctx context.Context, username string) (*types.Installation, error) {
	return nil, nil
}

func (d *fakeDeployer) Status(ctx context.Context, username string) (types.InstallationStatus, error) {
	return types.InstallationUnknown, nil
}

func (d *fakeDeployer) Restart(ctx context.Context, username string) error { return nil }

func (d *fakeDeployer) Logs(ctx context.Context, username string, lines int) (string, error) {
	return "", nil
}

func (d *fakeDeployer) Ping(ctx context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func pendingRecord(username string) types.PendingDeployment {
	return types.PendingDeployment{
		Username:  username,
		Domain:    username + ".example.com",
		Email:     username + "@example.com",
		CreatedAt: time.Now().UTC(),
	}
}

func TestTrigger_DeploysAndRemovesRecord(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{}
	trigger := NewTrigger(store, deployer, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cs_1", pendingRecord("alice")))

	err := trigger.HandleSessionCompleted(ctx, "cs_1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), deployer.deploys.Load())
	_, ok, _ := store.Get(ctx, "cs_1")
	assert.False(t, ok, "record should be removed after successful deploy")
}

func TestTrigger_AbsentSessionIsTerminal(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{}
	trigger := NewTrigger(store, deployer, time.Minute, testLogger())

	err := trigger.HandleSessionCompleted(context.Background(), "cs_unknown")
	require.NoError(t, err)
	assert.Zero(t, deployer.deploys.Load())
}

func TestTrigger_FailureKeepsRecord(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{deployErr: errors.New("docker exploded")}
	trigger := NewTrigger(store, deployer, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cs_1", pendingRecord("alice")))

	err := trigger.HandleSessionCompleted(ctx, "cs_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeProvisioningFailed, appErr.Code)

	_, ok, _ := store.Get(ctx, "cs_1")
	assert.True(t, ok, "record must survive a failed deploy")
}

func TestTrigger_StorageErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.getErr = types.NewAppError(types.ErrCodeStorageRead, "disk on fire", nil)
	trigger := NewTrigger(store, &fakeDeployer{}, time.Minute, testLogger())

	err := trigger.HandleSessionCompleted(context.Background(), "cs_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeStorageRead, appErr.Code)
}

func TestTrigger_ConcurrentDeliveriesCoalesce(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{block: make(chan struct{})}
	trigger := NewTrigger(store, deployer, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cs_1", pendingRecord("alice")))

	const deliveries = 5
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = trigger.HandleSessionCompleted(ctx, "cs_1")
		}(i)
	}

	// Let the goroutines pile up on the in-flight deploy, then release it.
	time.Sleep(50 * time.Millisecond)
	close(deployer.block)
	wg.Wait()

	assert.Equal(t, int32(1), deployer.deploys.Load(), "coalesced deliveries deploy once")
	for i, err := range errs {
		assert.NoError(t, err, "delivery %d", i)
	}
}

func TestTrigger_DeprovisionDeletesInstallation(t *testing.T) {
	deployer := &fakeDeployer{}
	trigger := NewTrigger(newMemStore(), deployer, time.Minute, testLogger())

	require.NoError(t, trigger.Deprovision(context.Background(), "alice"))
	assert.Equal(t, []string{"alice"}, deployer.deletes)
}

func TestTrigger_DeprovisionToleratesMissingInstallation(t *testing.T) {
	deployer := &fakeDeployer{
		deleteErr: types.NewAppError(types.ErrCodeNotFoundInstallation, "not found", nil),
	}
	trigger := NewTrigger(newMemStore(), deployer, time.Minute, testLogger())

	require.NoError(t, trigger.Deprovision(context.Background(), "ghost"))
}
