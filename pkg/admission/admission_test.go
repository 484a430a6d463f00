package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/gatekit/pkg/store"
)

const (
	admTestIdentity = "ip:10.0.0.1"
	admTestLimit    = 5
	admTestWindow   = 60 * time.Second
)

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestController(limit int, clock *testClock) *Controller {
	sel := store.NewSelector(context.Background(), nil, store.NewLocal())
	rules := NewRuleTable(limit, nil)
	return NewController(sel, rules, admTestWindow, WithClock(clock.Now))
}

func TestController_LimitPlusOneDenied(t *testing.T) {
	base := time.Unix(0, 0)
	clock := newTestClock(base)
	ctrl := newTestController(admTestLimit, clock)
	ctx := context.Background()

	// limit=5, window=60s: checks at t=0..4 allowed with remaining
	// 4,3,2,1,0; the sixth at t=5 denied with reset at t=65.
	for i := 0; i < admTestLimit; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		dec, err := ctrl.Admit(ctx, admTestIdentity, "/v1/anything")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "check %d should be allowed", i+1)
		assert.Equal(t, admTestLimit, dec.Limit)
		assert.Equal(t, admTestLimit-i-1, dec.Remaining)
	}

	clock.Set(base.Add(5 * time.Second))
	dec, err := ctrl.Admit(ctx, admTestIdentity, "/v1/anything")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.Equal(t, base.Add(65*time.Second), dec.ResetAt)
	assert.Equal(t, admTestWindow, dec.RetryAfter)
}

func TestController_SlidingWindowExpiry(t *testing.T) {
	base := time.Unix(0, 0)
	clock := newTestClock(base)
	ctrl := newTestController(1, clock)
	ctx := context.Background()

	dec, err := ctrl.Admit(ctx, admTestIdentity, "/")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	// Still inside the window: denied.
	clock.Set(base.Add(30 * time.Second))
	dec, err = ctrl.Admit(ctx, admTestIdentity, "/")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	// After the window has elapsed the old events no longer count.
	clock.Set(base.Add(admTestWindow + 31*time.Second))
	dec, err = ctrl.Admit(ctx, admTestIdentity, "/")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestController_QuotaPerRouteClass(t *testing.T) {
	base := time.Unix(0, 0)
	clock := newTestClock(base)
	sel := store.NewSelector(context.Background(), nil, store.NewLocal())
	rules := NewRuleTable(4, DefaultRules(4))
	ctrl := NewController(sel, rules, admTestWindow, WithClock(clock.Now))

	dec, err := ctrl.Admit(context.Background(), admTestIdentity, "/v1/ai/ask")
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Limit)

	dec, err = ctrl.Admit(context.Background(), admTestIdentity, "/v1/gestures/recognize")
	require.NoError(t, err)
	assert.Equal(t, 8, dec.Limit)
}

func TestController_IdentitiesIndependent(t *testing.T) {
	clock := newTestClock(time.Unix(0, 0))
	ctrl := newTestController(1, clock)
	ctx := context.Background()

	dec, err := ctrl.Admit(ctx, "ip:10.0.0.1", "/")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = ctrl.Admit(ctx, "ip:10.0.0.1", "/")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	dec, err = ctrl.Admit(ctx, "ip:10.0.0.2", "/")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "another identity must not be affected")
}

func TestController_ConcurrentNeverOverAdmits(t *testing.T) {
	clock := newTestClock(time.Unix(0, 0))
	const limit = 20
	const callers = 100
	ctrl := newTestController(limit, clock)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := ctrl.Admit(context.Background(), admTestIdentity, "/")
			assert.NoError(t, err)
			if dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load(),
		"exactly limit callers may pass regardless of interleaving")
}

func TestController_SharedFailureStillDecidesCorrectly(t *testing.T) {
	// A shared store that fails every call: decisions come from the
	// local fallback with no error surfaced.
	clock := newTestClock(time.Unix(0, 0))
	sel := store.NewSelector(context.Background(), failingProbeOK{}, store.NewLocal())
	ctrl := NewController(sel, NewRuleTable(1, nil), admTestWindow, WithClock(clock.Now))

	dec, err := ctrl.Admit(context.Background(), admTestIdentity, "/")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	dec, err = ctrl.Admit(context.Background(), admTestIdentity, "/")
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "fallback decisions still enforce the quota")
}

// failingProbeOK passes the startup probe but fails every operation.
type failingProbeOK struct{}

func (failingProbeOK) Slide(context.Context, string, time.Time, time.Time, time.Duration) (int64, error) {
	return 0, assert.AnError
}
func (failingProbeOK) Get(context.Context, string) ([]byte, error)           { return nil, assert.AnError }
func (failingProbeOK) Set(context.Context, string, []byte, time.Duration) error { return assert.AnError }
func (failingProbeOK) Delete(context.Context, string) error                  { return assert.AnError }
func (failingProbeOK) Ping(context.Context) error                            { return nil }
