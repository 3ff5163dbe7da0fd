package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Checkouts        *prometheus.CounterVec
	CheckoutRetries  prometheus.Counter
	CheckoutDuration prometheus.Histogram
	CacheLookups     *prometheus.CounterVec
	RelayEvents      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "checkout_total",
			Help:      "Checkout attempts by final outcome.",
		}, []string{"outcome"}),
		CheckoutRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "checkout_retries_total",
			Help:      "Whole-transaction retries after transient store failures.",
		}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ordersvc",
			Name:      "checkout_duration_seconds",
			Help:      "PlaceOrder latency including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "order_cache_lookups_total",
			Help:      "Order cache lookups by result.",
		}, []string{"result"}),
		RelayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "relay_events_total",
			Help:      "Order events handled by the relay, by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(m.Checkouts, m.CheckoutRetries, m.CheckoutDuration, m.CacheLookups, m.RelayEvents, m.HTTPRequests)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCheckout(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
	m.CheckoutDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncCheckoutRetry() {
	if m == nil {
		return
	}
	m.CheckoutRetries.Inc()
}

func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRelay(result string) {
	if m == nil {
		return
	}
	m.RelayEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) IncHTTP(method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
}
