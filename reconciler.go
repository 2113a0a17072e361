package creditsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultReconcileDelay is the debounce window used when none is configured.
const DefaultReconcileDelay = time.Second

// ReconcileState is the debounce state of a Reconciler.
type ReconcileState int

const (
	ReconcileIdle ReconcileState = iota
	ReconcilePending
)

func (s ReconcileState) String() string {
	switch s {
	case ReconcileIdle:
		return "idle"
	case ReconcilePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Reconciler replaces the cached balance with the server's value. Scheduled reads are
// debounced on the trailing edge: only the last Schedule call within the delay window
// fires, timed from that call.
type Reconciler struct {
	store   *Store
	fetcher BalanceFetcher
	clock   Clock
	meter   Meter
	logger  *slog.Logger
	delay   time.Duration

	mu         sync.Mutex
	state      ReconcileState
	timer      Timer
	generation uint64
	requestID  string
	closed     bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcileDelay sets the default debounce window.
func WithReconcileDelay(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.delay = d }
}

// WithReconcileClock sets the clock used for debounce timers.
func WithReconcileClock(c Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = c }
}

// WithReconcileMeter sets the meter.
func WithReconcileMeter(m Meter) ReconcilerOption {
	return func(r *Reconciler) { r.meter = m }
}

// WithReconcileLogger sets the logger.
func WithReconcileLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a Reconciler that writes fetched balances into store.
func NewReconciler(store *Store, fetcher BalanceFetcher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:   store,
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.delay <= 0 {
		r.delay = DefaultReconcileDelay
	}
	if r.clock == nil {
		r.clock = realClock{}
	}
	if r.meter == nil {
		r.meter = noopMeter{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Delay returns the default debounce window.
func (r *Reconciler) Delay() time.Duration { return r.delay }

// State returns the current debounce state.
func (r *Reconciler) State() ReconcileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PendingRequestID returns the id of the pending request, or "" when idle.
func (r *Reconciler) PendingRequestID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestID
}

// Schedule requests a reconciliation after delay, superseding any pending one.
// A non-positive delay uses the default window.
func (r *Reconciler) Schedule(delay time.Duration) {
	if delay <= 0 {
		delay = r.delay
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}

	r.generation++
	gen := r.generation
	id := uuid.New().String()

	r.state = ReconcilePending
	r.requestID = id
	r.timer = r.clock.AfterFunc(delay, func() { r.fire(gen, id) })
}

// Force reads the balance now, bypassing the debounce. A pending scheduled request is
// left in place, so two reads may be in flight; whichever completes last wins.
func (r *Reconciler) Force(ctx context.Context) (Balance, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Balance{}, ErrClosed
	}
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	return r.reconcile(ctx, uuid.New().String(), true)
}

// Close cancels any pending request and waits for in-flight reads to finish.
// Reads that complete after Close do not write to the store.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.state = ReconcileIdle
	r.requestID = ""
	r.mu.Unlock()

	r.cancel()
	r.inflight.Wait()
}

// fire runs a scheduled request unless it was superseded.
func (r *Reconciler) fire(gen uint64, id string) {
	r.mu.Lock()
	if r.closed || gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.state = ReconcileIdle
	r.timer = nil
	r.requestID = ""
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	_, _ = r.reconcile(r.ctx, id, false)
}

func (r *Reconciler) reconcile(ctx context.Context, id string, forced bool) (Balance, error) {
	start := r.clock.Now()
	b, err := r.fetcher.FetchBalance(ctx)
	duration := r.clock.Now().Sub(start)

	if err == nil && r.ctx.Err() != nil {
		err = ErrClosed
	}

	if err != nil {
		r.logger.Warn("balance reconciliation failed",
			"request_id", id,
			"forced", forced,
			"error", err,
		)
		r.meter.OnReconcile(ReconcileEvent{
			RequestID: id,
			Forced:    forced,
			Duration:  duration,
			Error:     err,
		})
		return Balance{}, err
	}

	b = b.clamp()
	r.store.Write(b)

	r.logger.Debug("balance reconciled",
		"request_id", id,
		"forced", forced,
		"remaining", b.Remaining,
		"tier", b.Tier,
	)
	r.meter.OnReconcile(ReconcileEvent{
		RequestID: id,
		Forced:    forced,
		Success:   true,
		Duration:  duration,
		Balance:   b,
	})
	return b, nil
}
