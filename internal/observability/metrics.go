package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FarmLedger.
type Metrics struct {
	// --- Engine ---
	ActionsApplied  *prometheus.CounterVec
	ActionsRejected *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	SubOpsExecuted  *prometheus.CounterVec
	Sequence        prometheus.Gauge
	TotalBondUnits  prometheus.Gauge
	TotalDebtUnits  prometheus.Gauge
	OpenPositions   prometheus.Gauge
	Liquidations    prometheus.Counter
	Harvests        prometheus.Counter

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten    prometheus.Counter
	PersistSnapshotsWritten prometheus.Counter
	PersistBatchDur         prometheus.Histogram
	PersistErrors           *prometheus.CounterVec
	PersistRetry            prometheus.Counter
	PersistLastSequence     prometheus.Gauge

	// --- Outbound publishing ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once per
// process; promauto registers on the default registry.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		ActionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_actions_applied_total",
			Help: "Actions successfully applied by the engine",
		}, []string{"action"}),

		ActionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_actions_rejected_total",
			Help: "Actions rejected and rolled back",
		}, []string{"action", "reason"}),

		ActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farm_action_duration_seconds",
			Help:    "Time to run one action pipeline",
			Buckets: latencyBuckets,
		}, []string{"action"}),

		SubOpsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_sub_ops_executed_total",
			Help: "Sub-operations executed inside action pipelines",
		}, []string{"kind"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "farm_engine_sequence",
			Help: "Current action sequence number",
		}),

		TotalBondUnits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "farm_total_bond_units",
			Help: "Aggregate bond units across all positions",
		}),

		TotalDebtUnits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "farm_total_debt_units",
			Help: "Aggregate debt units across all positions",
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "farm_open_positions",
			Help: "Number of stored positions",
		}),

		Liquidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_liquidations_total",
			Help: "Positions closed out by liquidators",
		}),

		Harvests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_harvests_total",
			Help: "Reward harvests reinvested",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "farm_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "farm_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "farm_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_persist_events_written_total",
			Help: "Event rows written to Postgres",
		}),

		PersistSnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_persist_snapshots_written_total",
			Help: "Position snapshot rows written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "farm_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "farm_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_events_published_total",
			Help: "Events published to NATS",
		}, []string{"event_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "farm_publish_errors_total",
			Help: "NATS publish failures",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farm_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farm_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
