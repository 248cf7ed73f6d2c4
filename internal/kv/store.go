// Package kv provides the small key-value layer that lecture sessions are
// persisted into.
//
// A [Store] maps string keys to opaque byte values. Four drivers are
// available: an in-process map ([NewMemoryStore]), Redis ([NewRedisStore]),
// PostgreSQL ([NewPostgresStore]) and SQLite ([OpenSQLite]). [NewStore] picks
// one by [Driver] name. Values are usually JSON documents written through
// [PutJSON] and read back through [GetJSON].
//
// Stores are safe for concurrent use. None of them offers durability beyond
// what the backend itself guarantees.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kv: store closed")
)

// Store is a string-keyed byte store.
type Store interface {
	// Get returns the value stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}

// GetJSON reads key and decodes the JSON value into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return v, nil
}

// PutJSON encodes v as JSON and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
