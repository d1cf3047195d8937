package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "restobook"

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

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Booking requests by outcome and capacity tier.",
		},
		[]string{"outcome", "tier"},
	)

	findDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "find_booking_duration_seconds",
			Help:      "Time spent searching the time graph, lock wait included.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	lockTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_lock_timeouts_total",
			Help:      "Day guard acquisitions that gave up.",
		},
	)

	releasedSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_slots_total",
			Help:      "Slots returned to the pool by reason.",
		},
		[]string{"reason"},
	)

	brokerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_messages_total",
			Help:      "Broker commands handled by type and result.",
		},
		[]string{"command", "result"},
	)

	graphRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_rebuilds_total",
			Help:      "Full time graph rebuilds by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			allocations,
			findDuration,
			lockTimeouts,
			releasedSlots,
			brokerMessages,
			graphRebuilds,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAllocation(outcome string, tier int) {
	allocations.WithLabelValues(outcome, strconv.Itoa(tier)).Inc()
}

func ObserveFind(d time.Duration) {
	findDuration.Observe(d.Seconds())
}

func IncLockTimeout() {
	lockTimeouts.Inc()
}

func AddReleased(reason string, n int) {
	if n <= 0 {
		return
	}
	releasedSlots.WithLabelValues(reason).Add(float64(n))
}

func IncBroker(command, result string) {
	brokerMessages.WithLabelValues(command, result).Inc()
}

func IncRebuild(result string) {
	graphRebuilds.WithLabelValues(result).Inc()
}
