// Package metrics exposes the engine's Prometheus collectors. Grounded
// on r3e-network-neo-miniapps-platform/internal/app/metrics: a package
// registry, an HTTP instrumentation wrapper, and plain Record* helpers
// for domain events, rather than scattering prometheus calls through
// the business logic.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "options_engine",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "options_engine",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "options_engine",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"method", "path"})

	contractsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "options_engine",
		Subsystem: "underwriting",
		Name:      "contracts_accepted_total",
		Help:      "Total number of contracts accepted by the underwriting gate.",
	})

	contractsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "options_engine",
		Subsystem: "underwriting",
		Name:      "contracts_rejected_total",
		Help:      "Total number of contract submissions rejected, by reason.",
	}, []string{"reason"})

	quotesServed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "options_engine",
		Subsystem: "pricing",
		Name:      "quotes_served_total",
		Help:      "Total number of option grid quotes served.",
	})

	pricingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "options_engine",
		Subsystem: "pricing",
		Name:      "grid_build_duration_seconds",
		Help:      "Duration of full 110-cell grid construction.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	availableCollateral = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "options_engine",
		Subsystem: "risk",
		Name:      "available_collateral_usd",
		Help:      "Available collateral in USD at last computation.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		contractsAccepted,
		contractsRejected,
		quotesServed,
		pricingDuration,
		availableCollateral,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, r.URL.Path).Observe(duration.Seconds())
	})
}

func RecordContractAccepted() {
	contractsAccepted.Inc()
}

func RecordContractRejected(reason string) {
	contractsRejected.WithLabelValues(reason).Inc()
}

func RecordQuoteServed(duration time.Duration) {
	quotesServed.Inc()
	pricingDuration.Observe(duration.Seconds())
}

func SetAvailableCollateral(usd float64) {
	availableCollateral.Set(usd)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
