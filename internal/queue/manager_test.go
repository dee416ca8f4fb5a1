package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	queueerrors "github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

const testTopic = "Derma+2025-01-10"

type recorder struct {
	mu      sync.Mutex
	changes []models.Change
}

func (r *recorder) HandleChanges(_ context.Context, changes []models.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
}

func (r *recorder) kinds() []models.ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return kinds(r.changes)
}

func newTestManager(t *testing.T, cache repository.CacheStore) *Manager {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	m, err := NewManager(testTopic, cache, clk, ManagerConfig{}, logger.InitializeTestZapLogger())
	require.NoError(t, err)
	t.Cleanup(m.Dispose)
	return m
}

func cachedBoard(t *testing.T, cache repository.CacheStore) Board {
	t.Helper()
	var b Board
	_, err := repository.GetJSON(context.Background(), cache, "boardCache."+testTopic+".board", &b)
	require.NoError(t, err)
	return b
}

func TestNewManagerRequiresTopic(t *testing.T) {
	_, err := NewManager(" ", nil, nil, ManagerConfig{}, logger.InitializeTestZapLogger())
	assert.Equal(t, queueerrors.ErrEmptyTopic, err)
}

func TestManagerCallThenComplete(t *testing.T) {
	ctx := context.Background()
	cache := repository.NewMemoryCacheStore()
	m := newTestManager(t, cache)

	rec := &recorder{}
	m.Subscribe(rec)
	m.Start(ctx)

	require.NoError(t, m.Submit(models.Envelope{Event: models.PatientCall{Entry: entry(12, models.EntryStatusCalled)}}))
	require.NoError(t, m.Submit(models.Envelope{Event: models.CallCompleted{}}))

	require.Eventually(t, func() bool {
		return len(rec.kinds()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.ChangeKind{models.ChangeCallStarted, models.ChangeCallCompleted}, rec.kinds())

	b, err := m.Board(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, b.CurrentCall)

	cached := cachedBoard(t, cache)
	require.Len(t, cached.Entries, 1)
	assert.Equal(t, 12, cached.Entries[0].Number)
	assert.Equal(t, models.EntryStatusCompleted, cached.Entries[0].Status)
	assert.Equal(t, testTopic, cached.Topic)
}

func TestManagerHydratesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := repository.NewMemoryCacheStore()
	stored := Board{
		Topic:       testTopic,
		Entries:     []models.QueueEntry{entry(3, models.EntryStatusCompleted), entry(4, models.EntryStatusCalled)},
		CurrentCall: 4,
		Snapshot:    &models.QueueSnapshot{LastTicket: 4, Waiting: 0, Serving: 1, Done: 1},
	}
	require.NoError(t, repository.PutJSON(ctx, cache, "boardCache."+testTopic+".board", stored, time.Now()))

	m := newTestManager(t, cache)
	rec := &recorder{}
	m.Subscribe(rec)
	m.Start(ctx)

	require.Equal(t, []models.ChangeKind{models.ChangeHydrated}, rec.kinds())
	assert.True(t, rec.changes[0].Stale)
	require.NotNil(t, rec.changes[0].Entry)
	assert.Equal(t, 4, rec.changes[0].Entry.Number)

	b, err := m.Board(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, b.CurrentCall)
	assert.Equal(t, stored.Snapshot, b.Snapshot)
}

func TestManagerIgnoresUnusableCache(t *testing.T) {
	ctx := context.Background()
	cache := repository.NewMemoryCacheStore()
	require.NoError(t, cache.Put(ctx, "boardCache."+testTopic+".board", []byte(`{"schema_version":99,"data":{}}`)))

	m := newTestManager(t, cache)
	rec := &recorder{}
	m.Subscribe(rec)
	m.Start(ctx)

	assert.Empty(t, rec.kinds())
	b, err := m.Board(ctx)
	require.NoError(t, err)
	assert.Empty(t, b.Entries)
}

func TestManagerSubscriberPanicIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	m.Subscribe(SubscriberFunc(func(context.Context, []models.Change) {
		panic("boom")
	}))
	rec := &recorder{}
	m.Subscribe(rec)
	m.Start(ctx)

	require.NoError(t, m.Submit(models.Envelope{Event: models.EntryCreated{Entry: entry(1, models.EntryStatusWaiting)}}))
	require.NoError(t, m.Submit(models.Envelope{Event: models.EntryCreated{Entry: entry(2, models.EntryStatusWaiting)}}))

	require.Eventually(t, func() bool {
		return len(rec.kinds()) == 2
	}, time.Second, 5*time.Millisecond)

	b, err := m.Board(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, numbers(b.Entries))
}

func TestManagerDispose(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	m.Start(ctx)

	m.Dispose()
	m.Dispose()

	assert.Equal(t, queueerrors.ErrManagerDisposed, m.Submit(models.Envelope{Event: models.Heartbeat{}}))
	_, err := m.Board(ctx)
	assert.Equal(t, queueerrors.ErrManagerDisposed, err)
}

func TestManagerDisposeWithoutStart(t *testing.T) {
	m := newTestManager(t, nil)

	done := make(chan struct{})
	go func() {
		m.Dispose()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispose blocked on a manager that never started")
	}
}
