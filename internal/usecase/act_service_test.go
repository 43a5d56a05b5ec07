package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/internal/usecase"
	"github.com/pannpers/go-logging/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	acts        map[string]entity.Act
	getErr      map[string]error
	putErr      error
	probeErr    error
	puts        []entity.Act
	touchedIDs  [][]string
	probeCalled int
}

func newFakeStore() *fakeStore {
	return &fakeStore{acts: make(map[string]entity.Act), getErr: make(map[string]error)}
}

func (f *fakeStore) Get(ctx context.Context, id string) (*entity.Act, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.getErr[id]; ok {
		return nil, false, err
	}
	act, ok := f.acts[id]
	if !ok {
		return nil, false, nil
	}
	return &act, true, nil
}

func (f *fakeStore) Put(ctx context.Context, act *entity.Act) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, *act)
	f.acts[act.ID] = *act
	return nil
}

func (f *fakeStore) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalled++
	return f.probeErr
}

func (f *fakeStore) ListAllIds(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) ListAllWithMeta(ctx context.Context) ([]entity.ActMetaSummary, error) {
	return nil, nil
}
func (f *fakeStore) ListWithoutBandsintown(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) TouchLastRequested(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchedIDs = append(f.touchedIDs, ids)
	return nil
}

func (f *fakeStore) EvictInactive(ctx context.Context, threshold int) (int, error) { return 0, nil }
func (f *fakeStore) ClearAll(ctx context.Context) error                            { return nil }
func (f *fakeStore) LogError(ctx context.Context, e *entity.UpdateError) error     { return nil }
func (f *fakeStore) RecentErrors(ctx context.Context) ([]entity.UpdateError, error) {
	return nil, nil
}
func (f *fakeStore) EnsureErrorIndex(ctx context.Context) error { return nil }

type fakeEnricher struct {
	acts map[string]*entity.Act
	err  error
}

func (f *fakeEnricher) Enrich(ctx context.Context, id string, silent bool) (*entity.Act, error) {
	if f.err != nil {
		return nil, f.err
	}
	if act, ok := f.acts[id]; ok {
		return act, nil
	}
	return &entity.Act{ID: id, Name: id, Status: "active", UpdatedAt: "2026-07-31 12:00:00+02:00"}, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	added [][]string
}

func (f *fakeQueue) Add(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, ids)
}

func (f *fakeQueue) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ids := range f.added {
		out = append(out, ids...)
	}
	return out
}

func newLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New()
	require.NoError(t, err)
	return logger
}

func TestActService_FetchMany_AllCached(t *testing.T) {
	store := newFakeStore()
	store.acts["a1"] = entity.Act{ID: "a1", Name: "Alpha", UpdatedAt: "2026-07-31 12:00:00+02:00"}
	store.acts["b2"] = entity.Act{ID: "b2", Name: "Beta", UpdatedAt: "2026-07-31 12:00:00+02:00"}

	queue := &fakeQueue{}
	svc := usecase.New(store, &fakeEnricher{}, queue, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	acts, err := svc.FetchMany(context.Background(), []string{"b2", "a1"})
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "b2", acts[0].ID)
	assert.Equal(t, "a1", acts[1].ID)
}

func TestActService_FetchMany_StaleCachedIsQueued(t *testing.T) {
	store := newFakeStore()
	store.acts["stale1"] = entity.Act{ID: "stale1", Name: "Stale", UpdatedAt: "2020-01-01 00:00:00+02:00"}

	queue := &fakeQueue{}
	svc := usecase.New(store, &fakeEnricher{}, queue, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	acts, err := svc.FetchMany(context.Background(), []string{"stale1"})
	require.NoError(t, err)
	require.Len(t, acts, 1)

	assert.Eventually(t, func() bool {
		return len(queue.all()) == 1 && queue.all()[0] == "stale1"
	}, time.Second, 10*time.Millisecond)
}

func TestActService_FetchMany_SingleMissEnrichesInline(t *testing.T) {
	store := newFakeStore()
	enricher := &fakeEnricher{acts: map[string]*entity.Act{
		"new1": {ID: "new1", Name: "New Act", Status: "active", UpdatedAt: "2026-07-31 12:00:00+02:00"},
	}}
	queue := &fakeQueue{}
	svc := usecase.New(store, enricher, queue, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	acts, err := svc.FetchMany(context.Background(), []string{"new1"})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "New Act", acts[0].Name)

	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(context.Background(), "new1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestActService_FetchMany_BulkMissDefersToQueue(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := usecase.New(store, &fakeEnricher{}, queue, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	_, err := svc.FetchMany(context.Background(), []string{"m1", "m2", "m3"})
	require.Error(t, err)

	var partial *usecase.PartialCacheMissError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 3, partial.MissingCount)
	assert.Equal(t, 0, partial.CachedCount)

	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, queue.all())
}

func TestActService_FetchMany_EmptyIdsIsInvalid(t *testing.T) {
	store := newFakeStore()
	svc := usecase.New(store, &fakeEnricher{}, &fakeQueue{}, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	_, err := svc.FetchMany(context.Background(), nil)
	assert.Error(t, err)
}

func TestActService_FetchMany_HealthGateRecoversOnProbe(t *testing.T) {
	store := newFakeStore()
	store.getErr["down1"] = errors.New("connection refused")

	svc := usecase.New(store, &fakeEnricher{}, &fakeQueue{}, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	// Trip the health flag via a failed Get (treated as a miss, so it goes
	// through the single-miss inline path and succeeds despite the flag flip).
	_, err := svc.FetchMany(context.Background(), []string{"down1"})
	require.NoError(t, err)

	// A subsequent call must re-probe before proceeding, and recover since Probe succeeds.
	store.acts["ok1"] = entity.Act{ID: "ok1", Name: "OK", UpdatedAt: "2026-07-31 12:00:00+02:00"}
	acts, err := svc.FetchMany(context.Background(), []string{"ok1"})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.GreaterOrEqual(t, store.probeCalled, 1)
}

func TestActService_FetchMany_HealthGateFailsClosed(t *testing.T) {
	store := newFakeStore()
	store.getErr["down1"] = errors.New("connection refused")
	store.probeErr = errors.New("still unreachable")

	svc := usecase.New(store, &fakeEnricher{}, &fakeQueue{}, 500*time.Millisecond, 24*time.Hour, newLogger(t))

	_, err := svc.FetchMany(context.Background(), []string{"down1"})
	require.NoError(t, err) // single miss still resolves inline despite flag flip

	_, err = svc.FetchMany(context.Background(), []string{"down1"})
	assert.Error(t, err, "second call must fail the health gate since Probe keeps failing")
}
