package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_total", "test counter")
	g := r.NewGauge("test_active", "test gauge")

	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter = %v, want 3", c.Value())
	}

	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Errorf("gauge = %v, want 1", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_duration_seconds", "test histogram", []float64{0.1, 1, 10})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	if h.count != 4 {
		t.Errorf("count = %d, want 4", h.count)
	}
	// Cumulative per bucket: le=0.1 -> 1, le=1 -> 2, le=10 -> 3.
	if h.counts[0] != 1 || h.counts[1] != 1 || h.counts[2] != 1 {
		t.Errorf("bucket counts = %v", h.counts)
	}
}

func TestPrometheusExposition(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("app_requests_total", "Total requests")
	c.Add(7)
	h := r.NewHistogram("app_latency_seconds", "Latency", []float64{0.5, 1})
	h.Observe(0.3)
	h.Observe(2)

	var sb strings.Builder
	r.WritePrometheus(&sb)
	out := sb.String()

	for _, want := range []string{
		"# HELP app_requests_total Total requests",
		"# TYPE app_requests_total counter",
		"app_requests_total 7",
		"# TYPE app_latency_seconds histogram",
		`app_latency_seconds_bucket{le="0.5"} 1`,
		`app_latency_seconds_bucket{le="1"} 1`,
		`app_latency_seconds_bucket{le="+Inf"} 2`,
		"app_latency_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q in:\n%s", want, out)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewChatMetrics()
	m.ChatRequestsTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "shopclerk_chat_requests_total 1") {
		t.Errorf("body missing chat counter:\n%s", rec.Body.String())
	}
}

func TestRecordChat(t *testing.T) {
	m := NewChatMetrics()

	m.RecordChat(10*time.Millisecond, 3, false)
	m.RecordChat(10*time.Millisecond, 0, false)
	m.RecordChat(10*time.Millisecond, 0, true)

	if m.ChatRequestsTotal.Value() != 3 {
		t.Errorf("requests = %v", m.ChatRequestsTotal.Value())
	}
	if m.RetrievalHitsTotal.Value() != 1 {
		t.Errorf("hits = %v", m.RetrievalHitsTotal.Value())
	}
	if m.ChatErrorsTotal.Value() != 1 {
		t.Errorf("errors = %v", m.ChatErrorsTotal.Value())
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewChatMetrics()

	m.RecordLLMRequest(time.Second, 120, nil)
	m.RecordLLMRequest(time.Second, 0, errors.New("boom"))

	if m.LLMRequestsTotal.Value() != 2 {
		t.Errorf("llm requests = %v", m.LLMRequestsTotal.Value())
	}
	if m.LLMTokensTotal.Value() != 120 {
		t.Errorf("tokens = %v", m.LLMTokensTotal.Value())
	}
	if m.LLMErrorsTotal.Value() != 1 {
		t.Errorf("llm errors = %v", m.LLMErrorsTotal.Value())
	}
}
