package creditsync

import "time"

// Meter observes accounting events for monitoring/logging.
type Meter interface {
	// OnDeduct is called after an optimistic deduction was applied to the cache.
	OnDeduct(event DeductEvent)

	// OnReconcile is called when an authoritative balance read completes.
	OnReconcile(event ReconcileEvent)

	// OnClassify is called for every failure offered to the limit classifier.
	OnClassify(event ClassifyEvent)
}

// DeductEvent describes an optimistic deduction.
type DeductEvent struct {
	Amount int64
	Before Balance
	After  Balance
}

// ReconcileEvent describes the outcome of a balance read.
type ReconcileEvent struct {
	RequestID string
	Forced    bool
	Success   bool
	Duration  time.Duration
	Balance   Balance
	Error     error
}

// ClassifyEvent describes a limit-classification attempt.
type ClassifyEvent struct {
	StatusCode int
	Matched    bool
	Kind       LimitKind
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnDeduct(DeductEvent)       {}
func (noopMeter) OnReconcile(ReconcileEvent) {}
func (noopMeter) OnClassify(ClassifyEvent)   {}
