package creditsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Session owns the credit cache of one signed-in user. Create it at login and Close
// it at logout; nothing survives a Close.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger
	meter  Meter
	clock  Clock
	prefs  PreferenceStore

	confirmer Confirmer
	prompter  UpgradePrompter

	store      *Store
	reconciler *Reconciler
	ledger     *Ledger
	gate       *Gate

	mu     sync.RWMutex
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithPreferenceStore sets the durable preference store.
func WithPreferenceStore(p PreferenceStore) Option {
	return func(s *Session) { s.prefs = p }
}

// WithConfirmer sets the spend confirmation surface.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) { s.confirmer = c }
}

// WithUpgradePrompter sets the upgrade prompt surface.
func WithUpgradePrompter(p UpgradePrompter) Option {
	return func(s *Session) { s.prompter = p }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(s *Session) { s.meter = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock sets the clock used for reconciliation timers.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// NewSession creates a Session that reads the authoritative balance through fetcher.
// Defaults (in-memory preferences, a confirmer that always declines, no upgrade
// prompt, no-op meter, slog.Default) are used unless overridden via options.
func NewSession(fetcher BalanceFetcher, opts ...Option) (*Session, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("creditsync: a balance fetcher is required")
	}

	s := &Session{
		id:  uuid.New().String(),
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults after options.
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id)
	if s.meter == nil {
		s.meter = noopMeter{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.prefs == nil {
		s.prefs = &memoryPreferences{}
	}
	if s.confirmer == nil {
		s.confirmer = declineConfirmer{}
	}
	if s.prompter == nil {
		s.prompter = noopPrompter{}
	}

	s.store = NewStore()
	s.reconciler = NewReconciler(s.store, fetcher,
		WithReconcileDelay(s.cfg.ReconcileDelay),
		WithReconcileClock(s.clock),
		WithReconcileMeter(s.meter),
		WithReconcileLogger(s.logger),
	)
	s.ledger = NewLedger(s.store, s.reconciler, s.meter, s.logger)
	s.gate = &Gate{
		store:      s.store,
		ledger:     s.ledger,
		reconciler: s.reconciler,
		prefs:      s.prefs,
		confirmer:  s.confirmer,
		prompter:   s.prompter,
		meter:      s.meter,
		logger:     s.logger,
	}

	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Store returns the balance cache.
func (s *Session) Store() *Store { return s.store }

// Reconciler returns the session's reconciler.
func (s *Session) Reconciler() *Reconciler { return s.reconciler }

// Gate returns the session's entitlement gate.
func (s *Session) Gate() *Gate { return s.gate }

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Load populates the cache from the server. Call it once after login.
func (s *Session) Load(ctx context.Context) (Balance, error) {
	return s.ForceReconciliation(ctx)
}

// Read returns the cached balance, or false if none is loaded.
func (s *Session) Read() (Balance, bool) {
	return s.store.Read()
}

// Subscribe observes balance changes.
func (s *Session) Subscribe(fn func(b Balance, ok bool)) *Subscription {
	return s.store.Subscribe(fn)
}

// ApplyLocalDeduction records that a paid action just succeeded for amount credits.
func (s *Session) ApplyLocalDeduction(amount int64) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.ledger.ApplyLocalDeduction(amount)
}

// ForceReconciliation reads the authoritative balance immediately.
func (s *Session) ForceReconciliation(ctx context.Context) (Balance, error) {
	if s.isClosed() {
		return Balance{}, ErrClosed
	}
	return s.reconciler.Force(ctx)
}

// ConfirmSpend runs the pre-flight confirmation for an action costing cost credits.
func (s *Session) ConfirmSpend(ctx context.Context, cost int64, featureLabel string) (Decision, error) {
	if s.isClosed() {
		return DecisionCancel, ErrClosed
	}
	return s.gate.ConfirmSpend(ctx, cost, featureLabel)
}

// ConfirmFeature estimates the cost of running feature over units items from the
// configured cost table and confirms it.
func (s *Session) ConfirmFeature(ctx context.Context, feature string, units int64) (Decision, error) {
	cost, err := s.cfg.Costs.Estimate(feature, units)
	if err != nil {
		return DecisionCancel, err
	}
	return s.ConfirmSpend(ctx, cost, feature)
}

// Spend confirms and runs a paid action.
func (s *Session) Spend(ctx context.Context, cost int64, featureLabel string, action SpendFunc) (SpendResult, error) {
	if s.isClosed() {
		return SpendResult{}, ErrClosed
	}
	return s.gate.Spend(ctx, cost, featureLabel, action)
}

// ClassifyLimitError interprets a failed request as a plan-limit refusal.
func (s *Session) ClassifyLimitError(statusCode int, message string) (Classification, bool) {
	return ClassifyLimitError(statusCode, message)
}

// HandleError offers err to the upgrade prompt. It returns true if err was a plan-limit
// refusal and has been shown to the user.
func (s *Session) HandleError(err error) bool {
	if s.isClosed() {
		return false
	}
	se, ok := AsStatusError(err)
	if !ok {
		return false
	}
	return s.gate.Absorb(se.StatusCode, se.Message)
}

// Close ends the session: pending reconciliation is canceled, in-flight reads are
// awaited and the cache is cleared.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.reconciler.Close()
	s.store.Clear()
	s.logger.Debug("session closed")
}
