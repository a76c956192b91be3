// Package metrics provides Prometheus metrics for the RF mesh node.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ol_rf_mesh"
)

// Metrics contains all Prometheus metrics for the node. The mesh and
// transport layers mirror their process-lifetime counters here so an
// operator can scrape them.
type Metrics struct {
	// Routing metrics
	ParentChanges prometheus.Counter
	BlacklistHits prometheus.Counter
	TTLDrops      prometheus.Counter
	RoutesActive  prometheus.Gauge

	// Transport metrics
	FramesSent       prometheus.Counter
	SendFailures     prometheus.Counter
	FragmentsSent    prometheus.Counter
	FragmentsDropped prometheus.Counter
	RetryDrops       prometheus.Counter
	QueueDepth       prometheus.Gauge
	QueueRejects     prometheus.Counter
	EnvelopeBytes    prometheus.Histogram

	// Receive metrics
	FramesReceived  prometheus.Counter
	FramesForwarded prometheus.Counter
	DecodeErrors    prometheus.Counter
	AuthFailures    prometheus.Counter
	ReplayDrops     prometheus.Counter

	// Fault metrics
	WatchdogResets prometheus.Counter
	OtaFailures    prometheus.Counter
	TamperEvents   prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered on the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ParentChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parent_changes_total",
			Help:      "Times the selected best parent changed",
		}),
		BlacklistHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_hits_total",
			Help:      "Strikes recorded against misbehaving neighbors",
		}),
		TTLDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ttl_drops_total",
			Help:      "Frames rejected by the TTL/hop guard",
		}),
		RoutesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes_active",
			Help:      "Entries currently in the routing table",
		}),

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Envelopes handed to the radio successfully",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Radio send attempts that returned failure",
		}),
		FragmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_sent_total",
			Help:      "MTU-sized fragments used by multi-fragment sends",
		}),
		FragmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_dropped_total",
			Help:      "Sends rejected by the fragmentation guard",
		}),
		RetryDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_drops_total",
			Help:      "Frames dropped after exhausting transport retries",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_queue_depth",
			Help:      "Frames waiting in the transport queue",
		}),
		QueueRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_queue_rejects_total",
			Help:      "Pushes rejected because the transport queue was full",
		}),
		EnvelopeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "envelope_bytes",
			Help:      "Size distribution of encrypted envelopes on the air",
			Buckets:   []float64{32, 64, 96, 128, 160, 192, 224, 256, 288},
		}),

		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Envelopes decrypted and decoded successfully",
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Frames re-sent on behalf of other nodes",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames dropped as malformed after decrypt",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Envelopes dropped on authenticator mismatch",
		}),
		ReplayDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_drops_total",
			Help:      "Frames dropped by the replay window",
		}),

		WatchdogResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_resets_total",
			Help:      "Tasks that missed their watchdog budget",
		}),
		OtaFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ota_failures_total",
			Help:      "OTA verify or apply failures",
		}),
		TamperEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tamper_events_total",
			Help:      "Tamper detections reported by the health sensor",
		}),
	}
}
