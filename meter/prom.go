package meter

import (
	"strconv"

	"github.com/ineyio/creditsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMeter exports credit accounting events as Prometheus metrics.
type PromMeter struct {
	deductions      prometheus.Counter
	creditsDeducted prometheus.Counter
	remaining       prometheus.Gauge
	reconciles      *prometheus.CounterVec
	reconcileTime   *prometheus.HistogramVec
	classifications *prometheus.CounterVec
}

var _ creditsync.Meter = (*PromMeter)(nil)

// NewPromMeter registers the creditsync collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMeter{
		deductions: factory.NewCounter(prometheus.CounterOpts{
			Name: "creditsync_deductions_total",
			Help: "Total number of optimistic deductions applied to the cache",
		}),
		creditsDeducted: factory.NewCounter(prometheus.CounterOpts{
			Name: "creditsync_credits_deducted_total",
			Help: "Total number of credits deducted optimistically",
		}),
		remaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "creditsync_remaining_credits",
			Help: "Last known remaining credit balance",
		}),
		reconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditsync_reconciliations_total",
				Help: "Total number of authoritative balance reads",
			},
			[]string{"result", "forced"},
		),
		reconcileTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditsync_reconcile_duration_seconds",
				Help:    "Duration of authoritative balance reads in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"result"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditsync_limit_classifications_total",
				Help: "Total number of failures offered to the plan-limit classifier",
			},
			[]string{"kind"},
		),
	}
}

func (m *PromMeter) OnDeduct(e creditsync.DeductEvent) {
	m.deductions.Inc()
	m.creditsDeducted.Add(float64(e.Before.Remaining - e.After.Remaining))
	m.remaining.Set(float64(e.After.Remaining))
}

func (m *PromMeter) OnReconcile(e creditsync.ReconcileEvent) {
	result := "success"
	if !e.Success {
		result = "error"
	}
	m.reconciles.WithLabelValues(result, strconv.FormatBool(e.Forced)).Inc()
	m.reconcileTime.WithLabelValues(result).Observe(e.Duration.Seconds())
	if e.Success {
		m.remaining.Set(float64(e.Balance.Remaining))
	}
}

func (m *PromMeter) OnClassify(e creditsync.ClassifyEvent) {
	kind := string(e.Kind)
	if !e.Matched {
		kind = "none"
	}
	m.classifications.WithLabelValues(kind).Inc()
}
