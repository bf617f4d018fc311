package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Report collects statistics for one ingestion run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Rows       int           `json:"rows"`
	Chunks     int           `json:"chunks"`
	Batches    int           `json:"batches"`
	Vectors    int           `json:"vectors"`
}

// NewReport starts tracking an ingestion run.
func NewReport() *Report {
	return &Report{StartedAt: time.Now()}
}

// Finish marks the run as complete.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          INGESTION REPORT            ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Rows:        %-23d ║\n", r.Rows)
	fmt.Fprintf(w, "║ Chunks:      %-23d ║\n", r.Chunks)
	fmt.Fprintf(w, "║ Batches:     %-23d ║\n", r.Batches)
	fmt.Fprintf(w, "║ Vectors:     %-23d ║\n", r.Vectors)
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
