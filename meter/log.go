package meter

import (
	"log/slog"

	"github.com/ineyio/creditsync"
)

// LogMeter logs credit accounting events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ creditsync.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnDeduct(e creditsync.DeductEvent) {
	m.Logger.Info("deduct",
		"amount", e.Amount,
		"before", e.Before.Remaining,
		"after", e.After.Remaining,
		"tier", e.After.Tier,
	)
}

func (m *LogMeter) OnReconcile(e creditsync.ReconcileEvent) {
	if e.Success {
		m.Logger.Info("reconcile",
			"request_id", e.RequestID,
			"forced", e.Forced,
			"duration_ms", e.Duration.Milliseconds(),
			"remaining", e.Balance.Remaining,
			"tier", e.Balance.Tier,
		)
	} else {
		m.Logger.Warn("reconcile_error",
			"request_id", e.RequestID,
			"forced", e.Forced,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnClassify(e creditsync.ClassifyEvent) {
	if !e.Matched {
		m.Logger.Debug("classify_miss", "status", e.StatusCode)
		return
	}
	m.Logger.Info("classify",
		"status", e.StatusCode,
		"kind", e.Kind,
	)
}
