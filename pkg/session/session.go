// Package session manages short-lived per-caller session records with
// rolling expiration. Records are serialized whole under one key per
// session, so reads and writes are single-key operations against
// whichever backend the store selector picks.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/txn2/gatekit/pkg/metrics"
	"github.com/txn2/gatekit/pkg/store"
)

// idBytes is the number of random bytes in a generated session ID.
const idBytes = 16

// Record is the full session state.
type Record struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session expires if not touched again. It is
	// recomputed from the last touch on every successful update.
	ExpiresAt time.Time `json:"expires_at"`

	// LastActiveAt is the most recent activity timestamp.
	LastActiveAt time.Time `json:"last_active_at"`

	// UserAgent, Platform, and Language describe the caller.
	UserAgent string `json:"user_agent,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Language  string `json:"language,omitempty"`

	// Accessibility holds per-feature accessibility flags.
	Accessibility map[string]bool `json:"accessibility,omitempty"`

	// Preferences holds free-form client preferences.
	Preferences map[string]any `json:"preferences,omitempty"`

	// RequestCount and GestureCount are monotonically non-decreasing
	// activity counters.
	RequestCount int64 `json:"request_count"`
	GestureCount int64 `json:"gesture_count"`
}

// Metadata is the optional client metadata supplied when starting a
// session.
type Metadata struct {
	UserAgent     string
	Platform      string
	Language      string
	Accessibility map[string]bool
	Preferences   map[string]any
}

// Update is a partial session update. Nil fields are left untouched.
type Update struct {
	// Accessibility entries are merged key-by-key into the record.
	Accessibility map[string]bool

	// Preferences replace the stored map wholesale when non-nil.
	Preferences map[string]any

	// LastActiveAt overrides the activity timestamp; defaults to now.
	LastActiveAt *time.Time

	// AddRequests and AddGestures increment the activity counters.
	// Negative values are ignored so the counters never decrease.
	AddRequests int64
	AddGestures int64
}

// Manager creates, reads, and updates session records.
type Manager struct {
	store   *store.Selector
	timeout time.Duration
	rec     metrics.Recorder
	now     func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder injects a metrics recorder.
func WithRecorder(rec metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.rec = rec }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager with the given idle timeout.
func NewManager(sel *store.Selector, timeout time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   sel,
		timeout: timeout,
		rec:     metrics.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a new session. It fails only when both backends fail,
// which is fatal for this call.
func (m *Manager) Start(ctx context.Context, meta Metadata) (*Record, error) {
	id, err := generateID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := m.now()
	rec := &Record{
		ID:            id,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.timeout),
		LastActiveAt:  now,
		UserAgent:     meta.UserAgent,
		Platform:      meta.Platform,
		Language:      meta.Language,
		Accessibility: meta.Accessibility,
		Preferences:   meta.Preferences,
	}

	if err := m.persist(ctx, rec); err != nil {
		return nil, err
	}

	m.rec.RecordSession("started")
	return rec, nil
}

// Get retrieves a session by ID. Returns nil, nil uniformly when the
// session does not exist or has logically expired; callers cannot
// distinguish the two. The expiry check runs regardless of which backend
// served the read, since the local store has no native expiration and
// the shared store's TTL may lag the logical deadline.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	data, err := m.store.Get(ctx, store.SessionPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil //nolint:nilnil // absent and expired must be indistinguishable
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	if m.now().After(rec.ExpiresAt) {
		return nil, nil //nolint:nilnil // absent and expired must be indistinguishable
	}
	return &rec, nil
}

// Update merges the partial update into the session, slides its expiry
// forward, and re-persists it. Returns nil, nil when the session was not
// found (including expired).
func (m *Manager) Update(ctx context.Context, id string, up Update) (*Record, error) {
	rec, err := m.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}

	now := m.now()

	if up.Accessibility != nil {
		if rec.Accessibility == nil {
			rec.Accessibility = make(map[string]bool, len(up.Accessibility))
		}
		maps.Copy(rec.Accessibility, up.Accessibility)
	}
	if up.Preferences != nil {
		rec.Preferences = up.Preferences
	}

	touch := now
	if up.LastActiveAt != nil {
		touch = *up.LastActiveAt
	}
	rec.LastActiveAt = touch
	rec.ExpiresAt = touch.Add(m.timeout)

	if up.AddRequests > 0 {
		rec.RequestCount += up.AddRequests
	}
	if up.AddGestures > 0 {
		rec.GestureCount += up.AddGestures
	}

	if err := m.persist(ctx, rec); err != nil {
		return nil, err
	}

	m.rec.RecordSession("updated")
	return rec, nil
}

// End terminates a session early. Expiry alone is sufficient for
// correctness; this is an explicit opt-out path.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, store.SessionPrefix+id); err != nil {
		return err
	}
	m.rec.RecordSession("ended")
	return nil
}

// persist writes the record with the store's physical TTL reset to the
// full timeout. The physical TTL is a second eviction mechanism on top of
// the logical check in Get and may lag it.
func (m *Manager) persist(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.ID, err)
	}
	if err := m.store.Set(ctx, store.SessionPrefix+rec.ID, data, m.timeout); err != nil {
		return fmt.Errorf("storing session %s: %w", rec.ID, err)
	}
	return nil
}

func generateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
