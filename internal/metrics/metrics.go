package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skolar"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes by result (completed, not_authenticated, auth_failure, busy, error).",
		},
		[]string{"result"},
	)

	syncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_items_total",
			Help:      "Pending bookings processed by sync, by outcome.",
		},
		[]string{"outcome"},
	)

	pendingBookings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_bookings",
			Help:      "Bookings waiting in the offline queue.",
		},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests to the remote booking API by operation and status class.",
		},
		[]string{"operation", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncPasses, syncItems, pendingBookings, remoteRequests)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSyncPass(result string) {
	syncPasses.WithLabelValues(result).Inc()
}

func IncSyncItem(outcome string) {
	syncItems.WithLabelValues(outcome).Inc()
}

func SetPending(n int) {
	pendingBookings.Set(float64(n))
}

func IncRemote(operation, status string) {
	remoteRequests.WithLabelValues(operation, status).Inc()
}
