package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// kvShardCount is the number of shards for the key-value map. Sharding
// keeps a degraded backend from becoming a global lock bottleneck.
const kvShardCount = 32

// Local is the in-process fallback store. It is per-instance and
// non-durable: state is neither shared across replicas nor preserved
// across restarts. Rate records use an identity-scoped mutex held across
// the whole purge-record-count sequence; key-value records live in
// fnv-sharded maps with per-shard locks.
type Local struct {
	mu    sync.RWMutex
	rates map[string]*rateEntry
	kv    [kvShardCount]kvShard

	cancel context.CancelFunc
	done   chan struct{}
}

// rateEntry holds the ordered multiset of event timestamps for one
// identity. Duplicate timestamps are kept so bursts within one tick are
// never under-counted.
type rateEntry struct {
	mu       sync.Mutex
	events   []int64 // unix microseconds, append order
	deadline time.Time
}

type kvShard struct {
	mu    sync.RWMutex
	items map[string]kvItem
}

type kvItem struct {
	data     []byte
	deadline time.Time
}

// NewLocal creates a local fallback store.
func NewLocal() *Local {
	l := &Local{rates: make(map[string]*rateEntry)}
	for i := range l.kv {
		l.kv[i].items = make(map[string]kvItem)
	}
	return l
}

// Slide implements the sliding-window check against process-local state.
// The per-identity mutex gives the same serializability the shared store
// gets from its pipeline, without serializing unrelated identities.
func (l *Local) Slide(_ context.Context, key string, windowStart, now time.Time, ttl time.Duration) (int64, error) {
	ent := l.rateEntry(key)

	startMicro := windowStart.UnixMicro()
	nowMicro := now.UnixMicro()

	ent.mu.Lock()
	defer ent.mu.Unlock()

	// Purge precedes count on every check. Events are appended in call
	// order, so expired entries cluster at the front.
	keep := 0
	for keep < len(ent.events) && ent.events[keep] <= startMicro {
		keep++
	}
	if keep > 0 {
		ent.events = append(ent.events[:0], ent.events[keep:]...)
	}

	ent.events = append(ent.events, nowMicro)
	ent.deadline = now.Add(ttl)
	return int64(len(ent.events)), nil
}

func (l *Local) rateEntry(key string) *rateEntry {
	l.mu.RLock()
	ent, ok := l.rates[key]
	l.mu.RUnlock()
	if ok {
		return ent
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ent, ok = l.rates[key]; ok {
		return ent
	}
	ent = &rateEntry{}
	l.rates[key] = ent
	return ent
}

// Get returns the value stored under key, or ErrNotFound. Values past
// their deadline read as absent even before the janitor evicts them.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	shard := l.shard(key)

	shard.mu.RLock()
	item, ok := shard.items[key]
	shard.mu.RUnlock()

	if !ok || time.Now().After(item.deadline) {
		return nil, ErrNotFound
	}
	return item.data, nil
}

// Set stores value under key with the given TTL.
func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	shard := l.shard(key)

	shard.mu.Lock()
	shard.items[key] = kvItem{data: value, deadline: time.Now().Add(ttl)}
	shard.mu.Unlock()
	return nil
}

// Delete removes key.
func (l *Local) Delete(_ context.Context, key string) error {
	shard := l.shard(key)

	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
	return nil
}

// Ping always succeeds; the local store has no remote dependency.
func (l *Local) Ping(_ context.Context) error {
	return nil
}

func (l *Local) shard(key string) *kvShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.kv[h.Sum32()%kvShardCount]
}

// Cleanup evicts idle rate entries and expired key-value items.
func (l *Local) Cleanup() {
	now := time.Now()

	l.mu.Lock()
	for key, ent := range l.rates {
		ent.mu.Lock()
		idle := now.After(ent.deadline)
		ent.mu.Unlock()
		if idle {
			delete(l.rates, key)
		}
	}
	l.mu.Unlock()

	for i := range l.kv {
		shard := &l.kv[i]
		shard.mu.Lock()
		for key, item := range shard.items {
			if now.After(item.deadline) {
				delete(shard.items, key)
			}
		}
		shard.mu.Unlock()
	}
}

// StartJanitor starts a background goroutine that periodically evicts
// expired state. The goroutine is stopped when Close is called.
func (l *Local) StartJanitor(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Close stops the janitor and waits for it to exit. It is safe to call
// Close even if StartJanitor was never called.
func (l *Local) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*Local)(nil)
