package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Treasury metrics
	TreasuriesCreated  prometheus.Counter
	TreasuryLifecycle  *prometheus.CounterVec
	TreasuryOperations *prometheus.CounterVec

	// Posting metrics
	TransactionsPosted *prometheus.CounterVec
	PostingDuration    prometheus.Histogram
	PostingAmount      prometheus.Histogram
	PostingErrors      *prometheus.CounterVec

	// Transfer metrics
	TransfersCompleted prometheus.Counter
	TransferDuration   prometheus.Histogram
	TransferErrors     *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationRuns       *prometheus.CounterVec
	ReconciliationMismatches prometheus.Counter

	// Stats cache metrics
	StatsCache *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBRetries *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished prometheus.Counter
	OutboxErrors    prometheus.Counter

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates all Prometheus metrics and registers them with reg.
// A nil reg registers with the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Treasury metrics
		TreasuriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_treasuries_created_total",
			Help: "Total number of treasuries created",
		}),
		TreasuryLifecycle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_lifecycle_changes_total",
				Help: "Treasury lifecycle changes by action",
			},
			[]string{"action"},
		),
		TreasuryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_operations_total",
				Help: "Treasury balance operations by treasury type",
			},
			[]string{"treasury_type"},
		),

		// Posting metrics
		TransactionsPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_transactions_posted_total",
				Help: "Total number of transactions posted",
			},
			[]string{"type", "source"},
		),
		PostingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "treasury_posting_duration_seconds",
			Help:    "Duration of posting operations",
			Buckets: prometheus.DefBuckets,
		}),
		PostingAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "treasury_posting_amount",
			Help:    "Posted amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		PostingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_posting_errors_total",
				Help: "Total number of posting errors by kind",
			},
			[]string{"error_type"},
		),

		// Transfer metrics
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_transfers_completed_total",
			Help: "Total number of transfers completed",
		}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "treasury_transfer_duration_seconds",
			Help:    "Duration of transfer operations",
			Buckets: prometheus.DefBuckets,
		}),
		TransferErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_transfer_errors_total",
				Help: "Total number of transfer errors by kind",
			},
			[]string{"error_type"},
		),

		// Reconciliation metrics
		ReconciliationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_reconciliation_runs_total",
				Help: "Reconciliation runs by result",
			},
			[]string{"result"},
		),
		ReconciliationMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_reconciliation_mismatches_total",
			Help: "Treasuries whose cached balance disagreed with the log",
		}),

		// Stats cache metrics
		StatsCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_stats_cache_total",
				Help: "Stats cache lookups by result",
			},
			[]string{"result"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treasury_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_db_retries_total",
				Help: "Retried database transactions by error code",
			},
			[]string{"code"},
		),

		// Outbox metrics
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_outbox_published_total",
			Help: "Total outbox events published",
		}),
		OutboxErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_outbox_errors_total",
			Help: "Total outbox publish failures",
		}),

		// Authentication metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}
