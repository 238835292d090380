package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document tree metrics
	DocumentKeysTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_document_keys_total",
			Help: "Total number of top-level keys in the document tree",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgindb_commands_total",
			Help: "Total number of commands processed by verb and status",
		},
		[]string{"verb", "status"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mgindb_command_duration_seconds",
			Help:    "Command processing duration in seconds by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Query engine metrics
	QueryPlanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgindb_query_plan_total",
			Help: "Total number of query condition evaluations by plan mode",
		},
		[]string{"mode"},
	)

	QueryCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mgindb_query_cache_hits_total",
			Help: "Total number of query cache hits",
		},
	)

	QueryCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mgindb_query_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// Index engine metrics
	IndicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_indices_total",
			Help: "Total number of registered secondary indices",
		},
	)

	// Session / pub-sub metrics
	SessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_sessions_total",
			Help: "Total number of live WebSocket sessions",
		},
	)

	SubscriptionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_subscriptions_total",
			Help: "Total number of active key subscriptions across all sessions",
		},
	)

	NotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mgindb_notifications_total",
			Help: "Total number of pub/sub notifications delivered",
		},
	)

	// Scheduler metrics
	ScheduledTasksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_scheduled_tasks_total",
			Help: "Total number of registered scheduled tasks",
		},
	)

	ScheduledTaskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgindb_scheduled_task_runs_total",
			Help: "Total number of scheduled task executions by status",
		},
		[]string{"status"},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mgindb_snapshot_duration_seconds",
			Help:    "Time taken to write a data/indices snapshot to disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sharding / replication metrics
	ShardProxiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgindb_shard_proxied_total",
			Help: "Total number of commands proxied to a remote shard",
		},
		[]string{"shard", "status"},
	)

	ReshardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mgindb_reshard_duration_seconds",
			Help:    "Time taken to complete a reshard operation",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplicationLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_replication_lag_seconds",
			Help: "Seconds since the slave last received a replicated mutation",
		},
	)

	ReplicatedCommandsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mgindb_replicated_commands_total",
			Help: "Total number of commands broadcast to replication slaves",
		},
	)

	// Blockchain metrics
	BlocksMinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mgindb_blocks_mined_total",
			Help: "Total number of blocks mined",
		},
	)

	BlockMiningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mgindb_block_mining_duration_seconds",
			Help:    "Time taken to mine a block",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingTransactionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgindb_pending_transactions_total",
			Help: "Total number of pending blockchain transactions",
		},
	)
)

func init() {
	prometheus.MustRegister(DocumentKeysTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(QueryPlanTotal)
	prometheus.MustRegister(QueryCacheHitsTotal)
	prometheus.MustRegister(QueryCacheMissesTotal)
	prometheus.MustRegister(IndicesTotal)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SubscriptionsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ScheduledTasksTotal)
	prometheus.MustRegister(ScheduledTaskRunsTotal)
	prometheus.MustRegister(SnapshotDuration)
	prometheus.MustRegister(ShardProxiedTotal)
	prometheus.MustRegister(ReshardDuration)
	prometheus.MustRegister(ReplicationLagSeconds)
	prometheus.MustRegister(ReplicatedCommandsTotal)
	prometheus.MustRegister(BlocksMinedTotal)
	prometheus.MustRegister(BlockMiningDuration)
	prometheus.MustRegister(PendingTransactionsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
