// Package gate enforces entry limits on the intake flow: a short per-chat
// message throttle and a long resubmission cooldown after a completed intake.
package gate

import (
	"context"
	"sync"
	"time"
)

// Default limits. The cooldown matches the program's one-application-per-month
// rule; the throttle absorbs button mashing without punishing normal typing.
const (
	DefaultCooldown      = 720 * time.Hour
	DefaultThrottleLimit = 20
	DefaultThrottleSpan  = 10 * time.Second
)

// Decision is the outcome of an entry check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // populated when a cooldown denies entry
}

// Gate guards the start of a new intake and rate-limits inbound traffic.
type Gate interface {
	// MayStart reports whether the chat may begin a new intake now.
	MayStart(ctx context.Context, chatID int64) (Decision, error)
	// Throttle reports whether an inbound event should be processed; a
	// false result means the event is dropped.
	Throttle(ctx context.Context, chatID int64) (bool, error)
	// RecordSubmission marks a completed intake, starting the cooldown.
	RecordSubmission(ctx context.Context, chatID int64, at time.Time) error
}

// Opts holds configuration shared by gate implementations.
type Opts struct {
	Cooldown      time.Duration
	ThrottleLimit int
	ThrottleSpan  time.Duration
}

// Option configures a gate.
type Option func(*Opts)

// WithCooldown overrides the resubmission cooldown.
func WithCooldown(d time.Duration) Option {
	return func(o *Opts) { o.Cooldown = d }
}

// WithThrottle overrides the inbound message throttle window.
func WithThrottle(limit int, span time.Duration) Option {
	return func(o *Opts) {
		o.ThrottleLimit = limit
		o.ThrottleSpan = span
	}
}

func buildOpts(opts []Option) Opts {
	o := Opts{
		Cooldown:      DefaultCooldown,
		ThrottleLimit: DefaultThrottleLimit,
		ThrottleSpan:  DefaultThrottleSpan,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryGate is a map-backed Gate for single-node runs and tests.
type MemoryGate struct {
	opts Opts
	now  func() time.Time

	mu        sync.Mutex
	submitted map[int64]time.Time
	windows   map[int64]*window
}

type window struct {
	start time.Time
	count int
}

// NewMemoryGate creates an in-process gate.
func NewMemoryGate(opts ...Option) *MemoryGate {
	return &MemoryGate{
		opts:      buildOpts(opts),
		now:       time.Now,
		submitted: make(map[int64]time.Time),
		windows:   make(map[int64]*window),
	}
}

func (g *MemoryGate) MayStart(ctx context.Context, chatID int64) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.submitted[chatID]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	elapsed := g.now().Sub(last)
	if elapsed >= g.opts.Cooldown {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: g.opts.Cooldown - elapsed}, nil
}

func (g *MemoryGate) Throttle(ctx context.Context, chatID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	w := g.windows[chatID]
	if w == nil || now.Sub(w.start) >= g.opts.ThrottleSpan {
		g.windows[chatID] = &window{start: now, count: 1}
		return true, nil
	}
	w.count++
	return w.count <= g.opts.ThrottleLimit, nil
}

func (g *MemoryGate) RecordSubmission(ctx context.Context, chatID int64, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted[chatID] = at
	return nil
}
