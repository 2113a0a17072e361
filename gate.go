package creditsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Decision is the outcome of a spend confirmation.
type Decision int

const (
	// DecisionCancel means the user declined.
	DecisionCancel Decision = iota
	// DecisionProceed means the action may run.
	DecisionProceed
	// DecisionInsufficient means the cached balance cannot cover the cost.
	DecisionInsufficient
	// DecisionUnavailable means no balance could be loaded to check against.
	DecisionUnavailable
)

func (d Decision) String() string {
	switch d {
	case DecisionCancel:
		return "cancel"
	case DecisionProceed:
		return "proceed"
	case DecisionInsufficient:
		return "insufficient"
	case DecisionUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Quote is what the confirmation surface shows the user.
type Quote struct {
	FeatureLabel string
	Cost         int64
	Remaining    int64
	Tier         Tier
}

// After returns the balance the user would have left after paying.
func (q Quote) After() int64 { return q.Remaining - q.Cost }

// Answer is the user's response to a Quote.
type Answer struct {
	Confirmed     bool
	DontShowAgain bool
}

// Confirmer presents a spend confirmation and waits for the user.
type Confirmer interface {
	Confirm(ctx context.Context, q Quote) (Answer, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, q Quote) (Answer, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, q Quote) (Answer, error) { return f(ctx, q) }

// UpgradePrompter shows an upgrade prompt for a plan-limit refusal.
type UpgradePrompter interface {
	PromptUpgrade(c Classification)
}

// UpgradePrompterFunc adapts a function to UpgradePrompter.
type UpgradePrompterFunc func(c Classification)

func (f UpgradePrompterFunc) PromptUpgrade(c Classification) { f(c) }

// SpendFunc runs a paid action and reports how many credits the server charged.
// Returning 0 charged means "the quoted cost".
type SpendFunc func(ctx context.Context) (charged int64, err error)

// SpendResult describes a Gate.Spend call.
type SpendResult struct {
	Decision Decision
	Charged  int64
	// Absorbed is true if the action's failure was shown as an upgrade prompt.
	Absorbed bool
}

// Gate checks actions against the cached balance before they run and turns
// plan-limit refusals into upgrade prompts. The cached balance may be stale; the
// server still has the final say.
type Gate struct {
	store      *Store
	ledger     *Ledger
	reconciler *Reconciler
	prefs      PreferenceStore
	confirmer  Confirmer
	prompter   UpgradePrompter
	meter      Meter
	logger     *slog.Logger
}

// ConfirmSpend checks cost against the cached balance and, unless the user has
// suppressed confirmations, asks the Confirmer.
func (g *Gate) ConfirmSpend(ctx context.Context, cost int64, featureLabel string) (Decision, error) {
	if cost < 0 {
		return DecisionCancel, fmt.Errorf("%w: cost %d", ErrInvalidAmount, cost)
	}

	b, ok := g.store.Read()
	if !ok {
		var err error
		b, err = g.reconciler.Force(ctx)
		if err != nil {
			return DecisionUnavailable, fmt.Errorf("%w: %w", ErrBalanceUnknown, err)
		}
	}

	if !b.Covers(cost) {
		g.logger.Debug("spend blocked, insufficient credits",
			"feature", featureLabel,
			"cost", cost,
			"remaining", b.Remaining,
		)
		return DecisionInsufficient, nil
	}

	suppress, err := g.prefs.SuppressConfirmations(ctx)
	if err != nil {
		g.logger.Warn("read confirmation preference", "error", err)
		suppress = false
	}
	if suppress {
		return DecisionProceed, nil
	}

	ans, err := g.confirmer.Confirm(ctx, Quote{
		FeatureLabel: featureLabel,
		Cost:         cost,
		Remaining:    b.Remaining,
		Tier:         b.Tier,
	})
	if err != nil {
		return DecisionCancel, fmt.Errorf("creditsync: confirm spend: %w", err)
	}
	if !ans.Confirmed {
		return DecisionCancel, nil
	}

	if ans.DontShowAgain {
		if err := g.prefs.SetSuppressConfirmations(ctx, true); err != nil {
			g.logger.Warn("save confirmation preference", "error", err)
		}
	}
	return DecisionProceed, nil
}

// Spend confirms the cost and runs action. On success the charge is applied to the
// cache optimistically. On failure a plan-limit refusal is handed to the upgrade
// prompt and the balance is reconciled right away.
func (g *Gate) Spend(ctx context.Context, cost int64, featureLabel string, action SpendFunc) (SpendResult, error) {
	decision, err := g.ConfirmSpend(ctx, cost, featureLabel)
	if err != nil || decision != DecisionProceed {
		return SpendResult{Decision: decision}, err
	}

	charged, err := action(ctx)
	if err != nil {
		res := SpendResult{Decision: decision}
		if se, ok := AsStatusError(err); ok {
			res.Absorbed = g.Absorb(se.StatusCode, se.Message)
		}
		// The action may have failed because ctx was canceled; the read must still run.
		if _, ferr := g.reconciler.Force(context.WithoutCancel(ctx)); ferr != nil && !errors.Is(ferr, ErrClosed) {
			g.logger.Debug("reconcile after failed spend", "error", ferr)
		}
		return res, err
	}

	if charged <= 0 {
		charged = cost
	}
	if charged > 0 {
		if err := g.ledger.ApplyLocalDeduction(charged); err != nil {
			return SpendResult{Decision: decision}, err
		}
	}
	return SpendResult{Decision: decision, Charged: charged}, nil
}

// Absorb classifies a failure and, if it is a plan-limit refusal, shows the upgrade
// prompt. It returns true when the caller should skip its generic error handling.
func (g *Gate) Absorb(statusCode int, message string) bool {
	c, ok := ClassifyLimitError(statusCode, message)
	g.meter.OnClassify(ClassifyEvent{StatusCode: statusCode, Matched: ok, Kind: c.Kind})
	if !ok {
		return false
	}

	g.logger.Info("plan limit reached",
		"kind", c.Kind,
		"current", derefCount(c.Current),
		"max", derefCount(c.Max),
	)
	g.prompter.PromptUpgrade(c)
	return true
}

func derefCount(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// declineConfirmer is used when no confirmation surface is wired; it never lets an
// action run unconfirmed.
type declineConfirmer struct{}

func (declineConfirmer) Confirm(context.Context, Quote) (Answer, error) { return Answer{}, nil }

type noopPrompter struct{}

func (noopPrompter) PromptUpgrade(Classification) {}
