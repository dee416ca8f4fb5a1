package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
)

// SchemaVersion is written into every cached record. Records with another
// version read as a miss.
const SchemaVersion = 1

// Cached resource names.
const (
	ResourceBoard   = "board"
	ResourceStats   = "stats"
	ResourceState   = "state"
	ResourceWindows = "windows"
)

type CacheStore interface {
	// Get returns errors.ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type Record struct {
	SchemaVersion int             `json:"schema_version"`
	StoredAt      time.Time       `json:"stored_at"`
	Data          json.RawMessage `json:"data"`
}

// Key builds "<prefix>.<topicKey>[.<resource>]".
func Key(prefix, topicKey string, resource ...string) string {
	parts := append([]string{prefix, topicKey}, resource...)
	return strings.Join(parts, ".")
}

func PutJSON(ctx context.Context, store CacheStore, key string, v any, now time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	raw, err := json.Marshal(Record{SchemaVersion: SchemaVersion, StoredAt: now, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	return store.Put(ctx, key, raw)
}

// GetJSON decodes the cached value into v and returns when it was stored.
func GetJSON(ctx context.Context, store CacheStore, key string, v any) (time.Time, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errors.ErrCacheMiss, err)
	}
	if rec.SchemaVersion != SchemaVersion {
		return time.Time{}, fmt.Errorf("%w: got %d", errors.ErrSchemaVersion, rec.SchemaVersion)
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errors.ErrCacheMiss, err)
	}

	return rec.StoredAt, nil
}
