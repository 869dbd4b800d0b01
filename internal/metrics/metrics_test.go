package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveRecorder(t *testing.T) {
	var rec SolveRecorder
	before := testutil.ToFloat64(Solves.WithLabelValues("tsp-test", "completed"))

	rec.ObserveSolve("tsp-test", "completed", 20*time.Millisecond, 80)
	rec.ObserveSolve("tsp-test", "failed", time.Millisecond, 0)
	rec.ObserveImprovement("tsp-test")

	assert.Equal(t, before+1, testutil.ToFloat64(Solves.WithLabelValues("tsp-test", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Solves.WithLabelValues("tsp-test", "failed")))
	// Failed solves leave the weight gauge alone
	assert.Equal(t, 80.0, testutil.ToFloat64(SolveWeight.WithLabelValues("tsp-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Improvements.WithLabelValues("tsp-test")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/v1/jobs/{id}", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	JobsRunning.Set(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tsp_jobs_running"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
