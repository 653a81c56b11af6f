package observability

import (
	"context"

	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors.
type Metrics struct {
	Conversions *prometheus.CounterVec
	Duration    prometheus.Histogram
	InFlight    prometheus.Gauge
	SweepRemove prometheus.Counter
	OutputFiles prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xrkconv_conversions_total",
				Help: "Conversions by final outcome",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xrkconv_conversion_duration_seconds",
			Help:    "Wall-clock time of converter executions",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xrkconv_sessions_in_flight",
			Help: "Sessions currently holding a workspace",
		}),
		SweepRemove: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xrkconv_sweep_removed_total",
			Help: "Stale workspaces and archives removed by sweeps",
		}),
		OutputFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xrkconv_output_files",
			Help:    "Files produced per successful conversion",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
	}

	for _, c := range []prometheus.Collector{m.Conversions, m.Duration, m.InFlight, m.SweepRemove, m.OutputFiles} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, _ *domain.SessionEvent) {
			m.InFlight.Inc()
		},
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) {
			m.InFlight.Dec()
			m.Conversions.WithLabelValues(outcomeLabel(e)).Inc()
			if e.Outcome != "" {
				m.Duration.Observe(e.Duration.Seconds())
			}
			if e.Status == domain.StatusSucceeded {
				m.OutputFiles.Observe(float64(e.OutputFiles))
			}
		},
		OnSweep: func(_ context.Context, e *domain.SweepEvent) {
			m.SweepRemove.Add(float64(e.Removed))
		},
	}
}

// outcomeLabel folds the terminal state into a small label set.
func outcomeLabel(e *domain.SessionEvent) string {
	switch e.State {
	case domain.StateDelivered:
		return "delivered"
	case domain.StateRejected:
		return "rejected"
	case domain.StateStagingFailed:
		return "staging_failed"
	case domain.StateOutputMissing:
		return "output_missing"
	case domain.StateExecutionFailed:
		switch e.Outcome {
		case domain.OutcomeTimedOut:
			return "timed_out"
		case domain.OutcomeCanceled:
			return "canceled"
		}
		return "execution_failed"
	}
	return "error"
}

// Combine fans each hook out to every set that defines it.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.SessionEvent) {
			for _, h := range sets {
				if h.OnSessionStart != nil {
					h.OnSessionStart(ctx, e)
				}
			}
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			for _, h := range sets {
				if h.OnSessionEnd != nil {
					h.OnSessionEnd(ctx, e)
				}
			}
		},
		OnSweep: func(ctx context.Context, e *domain.SweepEvent) {
			for _, h := range sets {
				if h.OnSweep != nil {
					h.OnSweep(ctx, e)
				}
			}
		},
	}
}
