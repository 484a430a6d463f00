// Package admission decides, for every inbound request, whether the
// caller may proceed. Quotas are enforced with a sliding time window per
// caller identity, computed against the shared store when healthy and the
// local fallback otherwise.
package admission

import (
	"context"
	"time"

	"github.com/txn2/gatekit/pkg/metrics"
	"github.com/txn2/gatekit/pkg/store"
)

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the resolved per-window quota for the route.
	Limit int

	// Remaining is the number of requests left in the window; 0 on denial.
	Remaining int

	// ResetAt is when the current window rolls over.
	ResetAt time.Time

	// RetryAfter is the configured window length, returned as a retry
	// hint on denial.
	RetryAfter time.Duration
}

// Controller computes admission decisions.
type Controller struct {
	store  *store.Selector
	rules  *RuleTable
	window time.Duration
	rec    metrics.Recorder
	now    func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRecorder injects a metrics recorder.
func WithRecorder(rec metrics.Recorder) ControllerOption {
	return func(c *Controller) { c.rec = rec }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController creates an admission controller.
func NewController(sel *store.Selector, rules *RuleTable, window time.Duration, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  sel,
		rules:  rules,
		window: window,
		rec:    metrics.Noop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit runs one sliding-window check for the identity against the quota
// resolved from routePath. The event is recorded before counting, so a
// denied request still consumes its place in the window. An error is
// returned only when both backends fail, which is fatal for this check.
func (c *Controller) Admit(ctx context.Context, identity, routePath string) (Decision, error) {
	limit, class := c.rules.Resolve(routePath)
	now := c.now()
	windowStart := now.Add(-c.window)

	count, err := c.store.Slide(ctx, store.RatePrefix+identity, windowStart, now, c.window)
	if err != nil {
		return Decision{}, err
	}

	dec := Decision{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		ResetAt:    now.Add(c.window),
		RetryAfter: c.window,
	}
	if remaining := limit - int(count); dec.Allowed && remaining > 0 {
		dec.Remaining = remaining
	}

	c.rec.RecordAdmission(class, dec.Allowed)
	return dec, nil
}

// Window returns the configured window length.
func (c *Controller) Window() time.Duration {
	return c.window
}
