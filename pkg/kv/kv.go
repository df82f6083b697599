// Package kv defines the persistent key-value contract the device caches are
// built on. Every backend (embedded engine, remote daemon, redis, sealed
// wrapper) satisfies Store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Get when the key was never set or was removed.
var ErrKeyNotFound = errors.New("key not found")

// --- Functional Interfaces (Interface Segregation) ---

// Getter reads a single value.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
}

// Setter writes a single value.
type Setter interface {
	Set(ctx context.Context, key, val string) error
}

// Remover deletes a single key. Removing an absent key is not an error.
type Remover interface {
	Remove(ctx context.Context, key string) error
}

// Store is the asynchronous, string-keyed, string-valued store.
// Get must return exactly the last successfully set value for a key, or
// ErrKeyNotFound.
type Store interface {
	Getter
	Setter
	Remover
}

// Lookup is Get with absence folded into ok=false.
func Lookup(ctx context.Context, s Getter, key string) (string, bool, error) {
	val, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// --- Generics Support ---

// GetJSON reads key and decodes its JSON value into T.
func GetJSON[T any](ctx context.Context, s Getter, key string) (T, error) {
	var target T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return target, err
	}
	if err := json.Unmarshal([]byte(raw), &target); err != nil {
		return target, fmt.Errorf("decode %s: %w", key, err)
	}
	return target, nil
}

// SetJSON encodes val as JSON and stores it under key.
func SetJSON[T any](ctx context.Context, s Setter, key string, val T) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
