package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(p.Middleware)
	r.Get("/api/medical-cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/medical-cards/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(p.RequestsTotal.WithLabelValues("GET", "/api/medical-cards/{id}", "404"))
	assert.Equal(t, float64(3), got)
	assert.Equal(t, float64(0), testutil.ToFloat64(p.InFlight.WithLabelValues("GET")))
}

func TestObservers(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveLLMCall("openrouter", "ok", 2*time.Second)
	p.ObserveGenerationBatch("prompt", "ok", 7)
	p.ObserveGenerationBatch("prompt", "unparseable", 0)
	p.ObserveScopeFiltered(3)
	p.ObserveJob("generation:cards", "done", time.Minute)

	assert.Equal(t, float64(1), testutil.ToFloat64(p.LLMCallsTotal.WithLabelValues("openrouter", "ok")))
	assert.Equal(t, float64(7), testutil.ToFloat64(p.CardsAccepted.WithLabelValues("prompt")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.BatchesTotal.WithLabelValues("prompt", "unparseable")))
	assert.Equal(t, float64(3), testutil.ToFloat64(p.ScopeDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.JobResults.WithLabelValues("generation:cards", "done")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())
	p.ObserveScopeFiltered(1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "medpocket_generation_scope_filtered_total 1"))
}
