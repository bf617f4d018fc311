package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram. Counts are kept per bucket;
// the exposition writer cumulates them.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records the elapsed time since start in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler exposing metrics in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics in Prometheus text format, sorted by
// name for stable output.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.value)
		c.mu.Unlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.value)
		g.mu.Unlock()
	}

	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w io.Writer, name, metricType, help string, value float64) {
	io.WriteString(w, "# HELP "+name+" "+help+"\n")
	io.WriteString(w, "# TYPE "+name+" "+metricType+"\n")
	io.WriteString(w, name+" "+formatFloat(value)+"\n")
}

func writeHistogram(w io.Writer, h *Histogram) {
	io.WriteString(w, "# HELP "+h.name+" "+h.help+"\n")
	io.WriteString(w, "# TYPE "+h.name+" histogram\n")

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		io.WriteString(w, h.name+`_bucket{le="`+formatFloat(bound)+`"} `+strconv.FormatUint(cumulative, 10)+"\n")
	}
	io.WriteString(w, h.name+`_bucket{le="+Inf"} `+strconv.FormatUint(h.count, 10)+"\n")
	io.WriteString(w, h.name+"_sum "+formatFloat(h.sum)+"\n")
	io.WriteString(w, h.name+"_count "+strconv.FormatUint(h.count, 10)+"\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ChatMetrics bundles the assistant's operational metrics. Wire one instance
// through the server and pipeline; there is no global registry.
type ChatMetrics struct {
	Registry *MetricsRegistry

	// Chat
	ChatRequestsTotal  *Counter
	ChatErrorsTotal    *Counter
	ChatDuration       *Histogram
	GreetingsTotal     *Counter
	FallbacksTotal     *Counter
	RetrievalHitsTotal *Counter

	// LLM
	LLMRequestsTotal *Counter
	LLMErrorsTotal   *Counter
	LLMTokensTotal   *Counter
	LLMDuration      *Histogram

	// Vector store
	SearchesTotal  *Counter
	SearchDuration *Histogram

	// Ingestion
	IngestVectorsTotal *Counter

	// Streaming
	ActiveStreams *Gauge

	// Sessions
	SessionsCreatedTotal *Counter
}

// NewChatMetrics creates the assistant's metric set on a fresh registry.
func NewChatMetrics() *ChatMetrics {
	r := NewMetricsRegistry()

	return &ChatMetrics{
		Registry: r,

		ChatRequestsTotal:  r.NewCounter("shopclerk_chat_requests_total", "Total chat requests"),
		ChatErrorsTotal:    r.NewCounter("shopclerk_chat_errors_total", "Chat requests answered degraded"),
		ChatDuration:       r.NewHistogram("shopclerk_chat_duration_seconds", "Chat request duration", nil),
		GreetingsTotal:     r.NewCounter("shopclerk_greetings_total", "Queries answered by the greeting branch"),
		FallbacksTotal:     r.NewCounter("shopclerk_fallbacks_total", "Queries answered by the fallback branch"),
		RetrievalHitsTotal: r.NewCounter("shopclerk_retrieval_hits_total", "Queries answered with retrieved context"),

		LLMRequestsTotal: r.NewCounter("shopclerk_llm_requests_total", "Total LLM API requests"),
		LLMErrorsTotal:   r.NewCounter("shopclerk_llm_errors_total", "Total LLM errors"),
		LLMTokensTotal:   r.NewCounter("shopclerk_llm_tokens_total", "Total tokens used"),
		LLMDuration:      r.NewHistogram("shopclerk_llm_request_duration_seconds", "LLM request duration", nil),

		SearchesTotal:  r.NewCounter("shopclerk_vector_searches_total", "Total similarity searches"),
		SearchDuration: r.NewHistogram("shopclerk_vector_search_duration_seconds", "Similarity search duration", nil),

		IngestVectorsTotal: r.NewCounter("shopclerk_ingest_vectors_total", "Vectors written during ingestion"),

		ActiveStreams: r.NewGauge("shopclerk_active_streams", "Open streaming chat connections"),

		SessionsCreatedTotal: r.NewCounter("shopclerk_sessions_created_total", "Chat sessions created"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *ChatMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordChat records one chat request outcome.
func (m *ChatMetrics) RecordChat(duration time.Duration, sourceCount int, degraded bool) {
	m.ChatRequestsTotal.Inc()
	m.ChatDuration.Observe(duration.Seconds())
	if degraded {
		m.ChatErrorsTotal.Inc()
		return
	}
	if sourceCount > 0 {
		m.RetrievalHitsTotal.Inc()
	}
}

// RecordLLMRequest records one model call.
func (m *ChatMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordSearch records one similarity search.
func (m *ChatMetrics) RecordSearch(duration time.Duration) {
	m.SearchesTotal.Inc()
	m.SearchDuration.Observe(duration.Seconds())
}
