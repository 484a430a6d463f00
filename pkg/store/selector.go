package store

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Mode is the backend selector state.
type Mode int32

const (
	// ModeProbing is the initial state before the startup probe completes.
	ModeProbing Mode = iota

	// ModeHealthy routes operations to the shared store first.
	ModeHealthy

	// ModeDegraded routes all operations to the local store for the rest
	// of the process lifetime. There is no automatic re-promotion.
	ModeDegraded
)

// String returns the mode as a human-readable string.
func (m Mode) String() string {
	switch m {
	case ModeHealthy:
		return "healthy"
	case ModeDegraded:
		return "degraded"
	default:
		return "probing"
	}
}

// FallbackRecorder receives one event per operation that fell back to the
// local store after a shared-store error.
type FallbackRecorder interface {
	RecordFallback(op string)
}

const defaultOpTimeout = 500 * time.Millisecond

// Selector routes each operation to the shared store while healthy and
// retries against the local store when a shared-store call fails. A
// runtime error affects only the operation it occurred in; demotion to
// permanent local-only mode happens only when the startup probe fails.
type Selector struct {
	shared  Store
	local   *Local
	mode    atomic.Int32
	timeout time.Duration
	rec     FallbackRecorder
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithTimeout sets the per-operation deadline for shared-store calls.
func WithTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) { s.timeout = d }
}

// WithFallbackRecorder injects a metrics recorder for fallback events.
func WithFallbackRecorder(rec FallbackRecorder) SelectorOption {
	return func(s *Selector) { s.rec = rec }
}

// NewSelector creates a Selector and issues the one-time connectivity
// probe. A nil shared store or a failed probe leaves the selector in
// degraded (local-only) mode; recovery requires a process restart.
func NewSelector(ctx context.Context, shared Store, local *Local, opts ...SelectorOption) *Selector {
	s := &Selector{
		shared:  shared,
		local:   local,
		timeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if shared == nil {
		s.mode.Store(int32(ModeDegraded))
		slog.Warn("store: no shared store configured, running local-only")
		return s
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := shared.Ping(probeCtx); err != nil {
		s.mode.Store(int32(ModeDegraded))
		slog.Warn("store: startup probe failed, demoting to local-only", "error", err)
		return s
	}

	s.mode.Store(int32(ModeHealthy))
	slog.Info("store: shared store healthy")
	return s
}

// Mode returns the current selector state.
func (s *Selector) Mode() Mode {
	return Mode(s.mode.Load())
}

// Slide runs the sliding-window check, preferring the shared store.
func (s *Selector) Slide(ctx context.Context, key string, windowStart, now time.Time, ttl time.Duration) (int64, error) {
	if s.Mode() == ModeHealthy {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		count, err := s.shared.Slide(opCtx, key, windowStart, now, ttl)
		cancel()
		if err == nil {
			return count, nil
		}
		s.warn("slide", key, err)
	}
	return s.local.Slide(ctx, key, windowStart, now, ttl)
}

// Get reads a value, preferring the shared store. A shared-store
// ErrNotFound is authoritative and does not trigger a fallback read.
func (s *Selector) Get(ctx context.Context, key string) ([]byte, error) {
	if s.Mode() == ModeHealthy {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		data, err := s.shared.Get(opCtx, key)
		cancel()
		if err == nil || errors.Is(err, ErrNotFound) {
			return data, err
		}
		s.warn("get", key, err)
	}
	return s.local.Get(ctx, key)
}

// Set writes a value, preferring the shared store.
func (s *Selector) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.Mode() == ModeHealthy {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.shared.Set(opCtx, key, value, ttl)
		cancel()
		if err == nil {
			return nil
		}
		s.warn("set", key, err)
	}
	return s.local.Set(ctx, key, value, ttl)
}

// Delete removes a key from whichever backend currently serves it. While
// healthy it deletes from both so a fallback write cannot resurrect.
func (s *Selector) Delete(ctx context.Context, key string) error {
	if s.Mode() == ModeHealthy {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.shared.Delete(opCtx, key)
		cancel()
		if err != nil {
			s.warn("delete", key, err)
		}
	}
	return s.local.Delete(ctx, key)
}

func (s *Selector) warn(op, key string, err error) {
	slog.Warn("store: shared store error, using local fallback",
		"op", op, "key", key, "error", err)
	if s.rec != nil {
		s.rec.RecordFallback(op)
	}
}
