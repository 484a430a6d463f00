// Package store provides the two storage backends used by the admission
// and session layers: a Redis-backed shared store and an in-process local
// fallback, plus the Selector that decides per operation which one serves
// a request.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a key is absent. It is an authoritative answer,
// not a backend failure, and never triggers a fallback.
var ErrNotFound = errors.New("not found")

// Key prefixes keep admission and session data in distinct namespaces.
const (
	// RatePrefix namespaces sliding-window rate records.
	RatePrefix = "ratelimit:"

	// SessionPrefix namespaces serialized session records.
	SessionPrefix = "session:"
)

// Store is the operation surface both backends implement.
type Store interface {
	// Slide atomically removes events with timestamps at or before
	// windowStart, records an event at now, and returns the number of
	// events remaining in the window (including the one just recorded).
	// The key is given a TTL of ttl so idle identities expire entirely.
	Slide(ctx context.Context, key string, windowStart, now time.Time, ttl time.Duration) (int64, error)

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
