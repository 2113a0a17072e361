package creditsync

import (
	"fmt"
	"log/slog"
	"time"
)

// Ledger applies optimistic deductions to the Store as soon as a paid action is known
// to have succeeded, then asks the Reconciler to correct any drift.
//
// The Ledger never raises the cached balance; only a reconciliation can.
type Ledger struct {
	store      *Store
	reconciler *Reconciler
	meter      Meter
	logger     *slog.Logger
	delay      time.Duration
}

// NewLedger creates a Ledger. A nil meter or logger falls back to a no-op meter and
// slog.Default().
func NewLedger(store *Store, reconciler *Reconciler, meter Meter, logger *slog.Logger) *Ledger {
	if meter == nil {
		meter = noopMeter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:      store,
		reconciler: reconciler,
		meter:      meter,
		logger:     logger,
		delay:      reconciler.Delay(),
	}
}

// ApplyLocalDeduction lowers the cached balance by amount, clamped at zero, and
// schedules a reconciliation. It does nothing when no balance is cached yet.
func (l *Ledger) ApplyLocalDeduction(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	var before Balance
	after, ok := l.store.Update(func(b Balance) Balance {
		before = b
		return b.Deduct(amount)
	})
	if !ok {
		l.logger.Debug("deduction skipped, balance not loaded", "amount", amount)
		return nil
	}

	l.meter.OnDeduct(DeductEvent{Amount: amount, Before: before, After: after})
	l.reconciler.Schedule(l.delay)
	return nil
}
