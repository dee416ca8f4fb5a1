package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	queueerrors "github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "boardCache.Derma+2025-01-10", Key("boardCache", "Derma+2025-01-10"))
	assert.Equal(t, "boardCache.board-1.stats", Key("boardCache", "board-1", ResourceStats))
}

func TestRedisCacheStore(t *testing.T) {
	ctx := context.Background()
	cli, mock := redismock.NewClientMock()
	store := NewRedisCacheStore(cli, logger.InitializeTestZapLogger())

	mock.ExpectSet("boardCache.board-1.stats", []byte(`{"a":1}`), 0).SetVal("OK")
	require.NoError(t, store.Put(ctx, "boardCache.board-1.stats", []byte(`{"a":1}`)))

	mock.ExpectGet("boardCache.board-1.stats").SetVal(`{"a":1}`)
	data, err := store.Get(ctx, "boardCache.board-1.stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	mock.ExpectGet("boardCache.board-1.state").RedisNil()
	_, err = store.Get(ctx, "boardCache.board-1.state")
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)

	mock.ExpectDel("boardCache.board-1.stats").SetVal(1)
	require.NoError(t, store.Remove(ctx, "boardCache.board-1.stats"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBestEffortCacheSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	cli, mock := redismock.NewClientMock()
	store := NewBestEffortCache(NewRedisCacheStore(cli, logger.InitializeTestZapLogger()), logger.InitializeTestZapLogger())

	mock.ExpectGet("k").SetErr(errors.New("connection refused"))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)

	mock.ExpectSet("k", []byte("v"), 0).SetErr(errors.New("OOM command not allowed"))
	assert.NoError(t, store.Put(ctx, "k", []byte("v")))

	mock.ExpectDel("k").SetErr(errors.New("READONLY"))
	assert.NoError(t, store.Remove(ctx, "k"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

type panickingStore struct{}

func (panickingStore) Get(context.Context, string) ([]byte, error) { panic("quota exceeded") }
func (panickingStore) Put(context.Context, string, []byte) error   { panic("quota exceeded") }
func (panickingStore) Remove(context.Context, string) error        { panic("quota exceeded") }

func TestBestEffortCacheRecoversPanics(t *testing.T) {
	ctx := context.Background()
	store := NewBestEffortCache(panickingStore{}, logger.InitializeTestZapLogger())

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)
	assert.NoError(t, store.Put(ctx, "k", nil))
	assert.NoError(t, store.Remove(ctx, "k"))

	nilStore := NewBestEffortCache(nil, logger.InitializeTestZapLogger())
	_, err = nilStore.Get(ctx, "k")
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)
}

func TestJSONRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCacheStore()
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	key := Key("boardCache", "Derma+2025-01-10", ResourceStats)

	snapshot := models.QueueSnapshot{LastTicket: 7, Waiting: 3, Serving: 1, Done: 6}
	require.NoError(t, PutJSON(ctx, store, key, snapshot, now))

	var got models.QueueSnapshot
	storedAt, err := GetJSON(ctx, store, key, &got)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
	assert.True(t, now.Equal(storedAt))

	_, err = GetJSON(ctx, store, Key("boardCache", "other"), &got)
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)
}

func TestJSONRecordSchemaVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCacheStore()

	legacy, err := json.Marshal(map[string]any{"last_ticket": 7})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "legacy", legacy))

	var got models.QueueSnapshot
	_, err = GetJSON(ctx, store, "legacy", &got)
	assert.ErrorIs(t, err, queueerrors.ErrSchemaVersion)
}

func TestMemoryCacheStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCacheStore()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, store.Remove(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, queueerrors.ErrCacheMiss)
}
