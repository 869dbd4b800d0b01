// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// Solves counts finished solves by solver and status.
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tsp_solves_total", Help: "Finished solves by solver and status."},
		[]string{"solver", "status"},
	)
	// SolveDuration records solve durations in seconds.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsp_solve_duration_seconds",
			Help:    "Solve duration in seconds.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"solver"},
	)
	// SolveWeight is the weight of the most recent solve per solver.
	SolveWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "tsp_solve_weight", Help: "Total weight of the latest solve."},
		[]string{"solver"},
	)
	// Improvements counts intermediate results reported by solvers.
	Improvements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tsp_improvements_total", Help: "Intermediate results reported by solvers."},
		[]string{"solver"},
	)
	// JobsRunning is the number of solve jobs currently executing.
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tsp_jobs_running", Help: "Solve jobs currently executing."},
	)

	// HTTPRequests counts requests by method, route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. It is safe to call
// more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Solves, SolveDuration, SolveWeight, Improvements, JobsRunning)
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SolveRecorder records solver outcomes on the package collectors.
type SolveRecorder struct{}

// ObserveSolve records a finished solve.
func (SolveRecorder) ObserveSolve(solver, status string, duration time.Duration, weight float64) {
	Solves.WithLabelValues(solver, status).Inc()
	SolveDuration.WithLabelValues(solver).Observe(duration.Seconds())
	if status != "failed" {
		SolveWeight.WithLabelValues(solver).Set(weight)
	}
}

// ObserveImprovement counts one intermediate result.
func (SolveRecorder) ObserveImprovement(solver string) {
	Improvements.WithLabelValues(solver).Inc()
}

// Middleware records request counts and latencies labelled by the matched
// chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		HTTPRequests.WithLabelValues(labels...).Inc()
		HTTPDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
