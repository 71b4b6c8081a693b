package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradeflow/internal/grader"
	"gradeflow/internal/observability"
)

func newTestServer() *Server {
	registry := prometheus.NewRegistry()
	observability.New(registry)
	return New(registry)
}

func TestHealth(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSummary(t *testing.T) {
	s := newTestServer()

	t.Run("NoRunYet", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/summary", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("AfterRun", func(t *testing.T) {
		s.SetSummary(grader.Summary{
			RunID:     "run-1",
			Exam:      "biology-midterm",
			Items:     4,
			CacheHits: 2,
			Computed:  2,
		})

		req := httptest.NewRequest(http.MethodGet, "/summary", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got grader.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, 2, got.CacheHits)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)
	s := New(registry)

	metrics.CacheHit("grade_answer")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gradeflow_cache_hits_total")
}
