package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hh"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of response times",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Matches counts matcher outcomes: assigned, existing, waiting, error.
	Matches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Receiver matching attempts by outcome",
		},
		[]string{"level", "outcome"},
	)

	// ReserveConflicts counts reservations lost to a receiver filling up concurrently.
	ReserveConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reserve_conflicts_total",
		Help:      "Reservations retried because the receiver became full",
	})

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Confirmed helps",
		},
		[]string{"level"},
	)

	SettledAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_amount_total",
			Help:      "Confirmed help volume in rupees",
		},
		[]string{"level"},
	)

	HelpsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "helps_closed_total",
			Help:      "Helps moved to EXPIRED or CANCELLED",
		},
		[]string{"status"},
	)

	EpinsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "epins_generated_total",
		Help:      "E-PINs issued",
	})

	EpinsUsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "epins_used_total",
		Help:      "E-PINs used for activation",
	})

	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_messages_total",
		Help:      "Chat messages stored",
	})

	IntegrityViolations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "integrity_violations",
		Help:      "Violations found by the last integrity audit",
	})

	DBConnPool = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool",
			Help:      "Database connection pool statistics",
		},
		[]string{"stat"},
	)
)

// RecordDBStats samples the pool every interval until stop is closed.
func RecordDBStats(db *sql.DB, interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := db.Stats()
		DBConnPool.WithLabelValues("open").Set(float64(s.OpenConnections))
		DBConnPool.WithLabelValues("in_use").Set(float64(s.InUse))
		DBConnPool.WithLabelValues("idle").Set(float64(s.Idle))
		DBConnPool.WithLabelValues("wait_count").Set(float64(s.WaitCount))
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}
