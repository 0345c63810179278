package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking command metrics
	BookingCommandsTotal   *prometheus.CounterVec
	BookingCommandDuration *prometheus.HistogramVec
	ExpiredHoldsDeleted    prometheus.Counter

	// Transaction metrics
	TxRetries        prometheus.Counter
	TxRetryExhausted prometheus.Counter
	TxSlow           prometheus.Counter
	TxDuration       prometheus.Histogram

	// Outbox metrics
	OutboxEnqueued  *prometheus.CounterVec
	OutboxDelivered *prometheus.CounterVec
	OutboxBatchSize prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		BookingCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_commands_total",
				Help:      "Total number of booking commands by command and result",
			},
			[]string{"command", "result"},
		),
		BookingCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "booking_command_duration_seconds",
				Help:      "Booking command duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		ExpiredHoldsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_holds_deleted_total",
				Help:      "Total number of expired holds removed by the sweeper",
			},
		),
		TxRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_retries_total",
				Help:      "Total number of transaction retries after serialization conflicts",
			},
		),
		TxRetryExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_retry_exhausted_total",
				Help:      "Total number of transactions that ran out of retries",
			},
		),
		TxSlow: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_slow_total",
				Help:      "Total number of committed transactions slower than the threshold",
			},
		),
		TxDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tx_duration_seconds",
				Help:      "Committed transaction duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		OutboxEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_enqueued_total",
				Help:      "Total number of outbox messages enqueued by topic",
			},
			[]string{"topic"},
		),
		OutboxDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_delivery_total",
				Help:      "Total number of outbox delivery attempts by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		OutboxBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbox_batch_size",
				Help:      "Number of messages picked per outbox poll",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.BookingCommandsTotal,
		m.BookingCommandDuration,
		m.ExpiredHoldsDeleted,
		m.TxRetries,
		m.TxRetryExhausted,
		m.TxSlow,
		m.TxDuration,
		m.OutboxEnqueued,
		m.OutboxDelivered,
		m.OutboxBatchSize,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
	)

	return m
}
