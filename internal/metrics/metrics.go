package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_lines_read_total",
		Help: "Total log lines read, labelled by source.",
	}, []string{"source"})

	LinesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_lines_dropped_total",
		Help: "Total unparseable or filtered log lines, labelled by source and reason.",
	}, []string{"source", "reason"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_events_processed_total",
		Help: "Total events run through the processing pipeline, labelled by event type.",
	}, []string{"event_type"})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_classifications_total",
		Help: "Total classification attempts, labelled by outcome (classified, skipped, failed).",
	}, []string{"outcome"})

	OracleHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decoynet_oracle_healthy",
		Help: "Whether the scoring oracle currently passes its health probe (0/1).",
	})

	AdaptationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_adaptation_actions_total",
		Help: "Total adaptation actions attempted, labelled by action type and status.",
	}, []string{"action", "status"})

	AdaptationsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decoynet_adaptations_skipped_total",
		Help: "Total adaptation triggers suppressed by the cooldown gate.",
	})

	CampaignsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoynet_campaigns_detected_total",
		Help: "Total campaign upserts, labelled by campaign type.",
	}, []string{"type"})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decoynet_event_processing_duration_ms",
		Help:    "End-to-end event processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)

// Serve exposes /metrics on the given address. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
