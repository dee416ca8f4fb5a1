package errors

import "errors"

var (
	ErrCacheMiss       = errors.New("cache miss")
	ErrSchemaVersion   = errors.New("cached record schema version mismatch")
	ErrManagerDisposed = errors.New("board manager disposed")
)
