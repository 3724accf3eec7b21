package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

type Metrics struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	cartMutations   *prometheus.CounterVec
}

// New registers the storefront collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend API calls by operation and HTTP status (0 on transport failure).",
		}, []string{"operation", "code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout submissions by outcome.",
		}, []string{"outcome"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and result.",
		}, []string{"operation", "result"}),
	}

	for _, c := range []prometheus.Collector{m.backendRequests, m.backendLatency, m.checkouts, m.cartMutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveBackend matches api.RequestObserver.
func (m *Metrics) ObserveBackend(operation string, statusCode int, elapsed time.Duration) {
	m.backendRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CartMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cartMutations.WithLabelValues(operation, result).Inc()
}
