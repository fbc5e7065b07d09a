// Package metrics registers the Prometheus gauges, histograms, and counters
// for the observability surface (§4.10 SPEC_FULL addition): pool occupancy,
// acquire-wait latency, per-operation query duration, façade retries, lock
// contention, and handshake failures, all on a single Database's own
// Registry with no tenant dimension (see DESIGN.md's internal/router
// deletion entry).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric one Database instance publishes. Safe to
// construct more than once (e.g. one per Database, or one per test) since
// each Collector owns an independent prometheus.Registry.
type Collector struct {
	Registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsIdle    prometheus.Gauge
	sessionsTotal   prometheus.Gauge
	sessionsWaiting prometheus.Gauge
	poolExhausted   prometheus.Counter

	acquireDuration prometheus.Histogram
	queryDuration   *prometheus.HistogramVec

	operationRetries  *prometheus.CounterVec
	lockContention    *prometheus.CounterVec
	handshakeFailures prometheus.Counter
	transactionsTotal *prometheus.CounterVec
}

// New creates and registers every metric on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mariadbclient_sessions_active",
			Help: "Number of sessions currently checked out of the pool.",
		}),
		sessionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mariadbclient_sessions_idle",
			Help: "Number of authenticated sessions sitting idle in the pool.",
		}),
		sessionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mariadbclient_sessions_total",
			Help: "Total live sessions (idle + active), bounded by max_sessions.",
		}),
		sessionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mariadbclient_sessions_waiting",
			Help: "Number of callers currently blocked in Pool.Acquire.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mariadbclient_pool_exhausted_total",
			Help: "Number of Acquire calls that timed out waiting for capacity.",
		}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mariadbclient_acquire_duration_seconds",
			Help:    "Time spent in Pool.Acquire, including any capacity wait.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mariadbclient_query_duration_seconds",
			Help:    "Duration of one façade operation's dispatch round trip, by operation name.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"operation"}),
		operationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mariadbclient_operation_retries_total",
			Help: "Façade operations retried once after ConnectionLost/ProtocolError (§7).",
		}, []string{"operation"}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mariadbclient_lock_contention_total",
			Help: "Lock acquisitions that had to block on an already-held key.",
		}, []string{"kind"}), // kind = "table" | "record"
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mariadbclient_handshake_failures_total",
			Help: "Connection attempts that failed during handshake or login.",
		}),
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mariadbclient_transactions_total",
			Help: "Completed transactions by outcome.",
		}, []string{"outcome"}), // outcome = "commit" | "rollback"
	}

	reg.MustRegister(
		c.sessionsActive,
		c.sessionsIdle,
		c.sessionsTotal,
		c.sessionsWaiting,
		c.poolExhausted,
		c.acquireDuration,
		c.queryDuration,
		c.operationRetries,
		c.lockContention,
		c.handshakeFailures,
		c.transactionsTotal,
	)
	return c
}

// SetPoolStats updates the four occupancy gauges from a point-in-time
// snapshot, called after every Acquire/release/destroy.
func (c *Collector) SetPoolStats(active, idle, total, waiting int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(active))
	c.sessionsIdle.Set(float64(idle))
	c.sessionsTotal.Set(float64(total))
	c.sessionsWaiting.Set(float64(waiting))
}

// PoolExhausted increments the Acquire-timeout counter.
func (c *Collector) PoolExhausted() {
	if c == nil {
		return
	}
	c.poolExhausted.Inc()
}

// AcquireDuration observes one Acquire call's total latency in seconds.
func (c *Collector) AcquireDuration(seconds float64) {
	if c == nil {
		return
	}
	c.acquireDuration.Observe(seconds)
}

// QueryDuration observes one dispatch round trip for the named façade
// operation.
func (c *Collector) QueryDuration(operation string, seconds float64) {
	if c == nil {
		return
	}
	c.queryDuration.WithLabelValues(operation).Observe(seconds)
}

// OperationRetried increments the retry counter for the named operation.
func (c *Collector) OperationRetried(operation string) {
	if c == nil {
		return
	}
	c.operationRetries.WithLabelValues(operation).Inc()
}

// LockContended increments the contention counter for "table" or "record"
// locks, called whenever an acquirer had to block at least once.
func (c *Collector) LockContended(kind string) {
	if c == nil {
		return
	}
	c.lockContention.WithLabelValues(kind).Inc()
}

// HandshakeFailed increments the handshake-failure counter.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Inc()
}

// TransactionCompleted increments the transaction counter for "commit" or
// "rollback".
func (c *Collector) TransactionCompleted(outcome string) {
	if c == nil {
		return
	}
	c.transactionsTotal.WithLabelValues(outcome).Inc()
}
