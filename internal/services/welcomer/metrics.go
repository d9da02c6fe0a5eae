package welcomer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "welcomer_events_total",
		Help: "Membership events received, by kind.",
	}, []string{"kind"})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "welcomer_events_dropped_total",
		Help: "Membership events refused because the handler was shutting down.",
	})
	mDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "welcomer_cards_delivered_total",
		Help: "Cards posted to the target channel, by kind.",
	}, []string{"kind"})
	mErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "welcomer_pipeline_errors_total",
		Help: "Failed pipeline runs, by stage.",
	}, []string{"stage"})
	mReleaseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "welcomer_asset_release_errors_total",
		Help: "Artifacts that could not be deleted.",
	})
	mRenderDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "welcomer_render_duration_seconds",
		Help:    "Time from session launch to artifact written.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 30},
	})
	mRendersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "welcomer_renders_in_flight",
		Help: "Rendering sessions currently open.",
	})
	mSettleFallback = promauto.NewCounter(prometheus.CounterOpts{
		Name: "welcomer_settle_fallback_total",
		Help: "Captures taken after the settle cap expired with images still loading.",
	})
)
