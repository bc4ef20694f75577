package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Curve ---
	AmmBaseReserve  *prometheus.GaugeVec
	AmmQuoteReserve *prometheus.GaugeVec
	AmmSqrtK        *prometheus.GaugeVec
	AmmMarkPrice    *prometheus.GaugeVec
	AmmLpShares     *prometheus.GaugeVec
	AmmFeePool      *prometheus.GaugeVec
	AmmNetBase      *prometheus.GaugeVec
	LpSettlements   *prometheus.CounterVec

	// --- Funding & Insurance ---
	FundingUpdates        *prometheus.CounterVec
	FundingRate           *prometheus.GaugeVec
	InsuranceVaultBalance prometheus.Gauge

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Query API & Stream ---
	QueryRequests    *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	StreamClients    prometheus.Gauge
	StreamBroadcasts prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in the service and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_core_events_applied_total",
			Help: "Events successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, error code)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamm_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_core_sequence",
			Help: "Current global sequence number",
		}),

		// Latency
		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamm_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"event_type"}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamm_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		EventSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_event_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition"}),

		EventOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_event_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition"}),

		// Curve
		AmmBaseReserve: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_base_asset_reserve",
			Help: "Base reserve (reserve precision)",
		}, []string{"market"}),

		AmmQuoteReserve: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_quote_asset_reserve",
			Help: "Quote reserve (reserve precision)",
		}, []string{"market"}),

		AmmSqrtK: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_sqrt_k",
			Help: "Curve depth",
		}, []string{"market"}),

		AmmMarkPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_mark_price",
			Help: "Mark price (decimal)",
		}, []string{"market"}),

		AmmLpShares: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_user_lp_shares",
			Help: "Outstanding LP shares",
		}, []string{"market"}),

		AmmFeePool: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_total_fee_minus_distributions",
			Help: "Fee pool available for funding and curve adjustments (quote precision)",
		}, []string{"market"}),

		AmmNetBase: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_amm_net_base_asset_amount",
			Help: "Net trader base routed through the curve",
		}, []string{"market"}),

		LpSettlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_lp_settlements_total",
			Help: "LP settlements that moved base or quote",
		}, []string{"market"}),

		// Funding & Insurance
		FundingUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_funding_updates_total",
			Help: "Funding periods applied",
		}, []string{"market", "capped"}),

		FundingRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_funding_rate",
			Help: "Last funding rate (funding rate precision)",
		}, []string{"market"}),

		InsuranceVaultBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_insurance_vault_balance",
			Help: "Current insurance vault balance (quote precision)",
		}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_replay_events_total",
			Help: "Events replayed on startup",
		}),

		// Query API & Stream
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamm_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "vamm_stream_clients",
			Help: "Connected websocket clients",
		}),

		StreamBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "vamm_stream_broadcasts_total",
			Help: "Market snapshots pushed to websocket clients",
		}),
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
