package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopclerk/shopclerk/internal/observability"
)

func TestReadCSV(t *testing.T) {
	input := `Question,Answer,Category
How do I return an item?,Start a return from your orders page.,Returns
Where is my order?,Check the tracking link in your confirmation email.,Shipping
,missing question,Returns
No category here,Answer without category,
`
	rows, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (blank-question row skipped)", len(rows))
	}
	if rows[0].Category != "Returns" {
		t.Errorf("category = %q", rows[0].Category)
	}
	if rows[2].Category != "General" {
		t.Errorf("empty category should default to General, got %q", rows[2].Category)
	}
	want := "Question: How do I return an item?\nAnswer: Start a return from your orders page."
	if rows[0].Text() != want {
		t.Errorf("Text() = %q, want %q", rows[0].Text(), want)
	}
}

func TestReadCSVHeaderVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"lowercase_header", "question,answer\nq,a\n", false},
		{"extra_columns", "ID,Question,Answer,Notes\n1,q,a,n\n", false},
		{"no_category", "Question,Answer\nq,a\n", false},
		{"missing_answer_column", "Question,Category\nq,c\n", true},
		{"missing_question_column", "Answer\na\n", true},
		{"empty_file", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkerShortTextSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	row := Row{Question: "short?", Answer: "yes", Category: "Misc"}

	chunks := c.Split(row)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	meta := chunks[0].Metadata
	if meta["category"] != "Misc" || meta["original_question"] != "short?" {
		t.Errorf("metadata = %v", meta)
	}
	if meta["chunk_num"] != 1 || meta["total_chunks"] != 1 {
		t.Errorf("chunk indices = %v/%v", meta["chunk_num"], meta["total_chunks"])
	}
}

func TestChunkerLongTextOverlaps(t *testing.T) {
	c := NewChunker(100, 20)
	row := Row{
		Question: "long",
		Answer:   strings.Repeat("word and more detail here ", 40),
		Category: "Misc",
	}

	chunks := c.Split(row)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) > 100 {
			t.Errorf("chunk %d is %d chars, exceeds size", i, len(ch.Text))
		}
		if ch.Metadata["chunk_num"] != i+1 {
			t.Errorf("chunk %d numbered %v", i, ch.Metadata["chunk_num"])
		}
		if ch.Metadata["total_chunks"] != len(chunks) {
			t.Errorf("chunk %d total = %v, want %d", i, ch.Metadata["total_chunks"], len(chunks))
		}
	}
	// Consecutive chunks must share text where the overlap applies.
	tail := chunks[0].Text[len(chunks[0].Text)-10:]
	if !strings.Contains(chunks[1].Text, tail) {
		t.Errorf("chunk 1 does not overlap chunk 0's tail %q", tail)
	}
}

func TestChunkerNeverStalls(t *testing.T) {
	// Overlap near the chunk size must still advance the window.
	c := NewChunker(50, 45)
	row := Row{Question: "q", Answer: strings.Repeat("x", 500), Category: "Misc"}

	chunks := c.Split(row)
	if len(chunks) == 0 || len(chunks) > 100 {
		t.Fatalf("suspicious chunk count %d", len(chunks))
	}
}

func TestChunkerKeepsRunesIntact(t *testing.T) {
	// Multi-byte text must never be cut mid-rune at a window boundary.
	c := NewChunker(50, 10)
	row := Row{
		Question: "iade",
		Answer:   strings.Repeat("ürün iade politikası çok önemli 退货政策 ", 20),
		Category: "Returns",
	}

	chunks := c.Split(row)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, ch.Text)
		}
	}
}

func TestChunkerTinyWindowOnWideRunes(t *testing.T) {
	// A window smaller than one rune still advances, one rune at a time.
	c := &Chunker{Size: 2, Overlap: 0}
	pieces := c.split("日本語")
	if len(pieces) != 3 {
		t.Fatalf("pieces = %d, want 3", len(pieces))
	}
	for _, p := range pieces {
		if !utf8.ValidString(p) || utf8.RuneCountInString(p) != 1 {
			t.Errorf("piece %q should be a single rune", p)
		}
	}
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.5}
	}
	return vecs, nil
}

type fakeUploader struct {
	uploaded  int
	metadatas []map[string]any
	err       error
}

func (f *fakeUploader) Upload(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, batchSize int) error {
	if f.err != nil {
		return f.err
	}
	f.uploaded += len(texts)
	f.metadatas = append(f.metadatas, metadatas...)
	return nil
}

func TestIngestEndToEnd(t *testing.T) {
	input := "Question,Answer,Category\n"
	for i := 0; i < 5; i++ {
		input += "how?,because.,Help\n"
	}

	embedder := &fakeEmbedder{}
	uploader := &fakeUploader{}
	ing := New(embedder, uploader)
	ing.BatchSize = 2

	report, err := ing.Ingest(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Rows != 5 || report.Chunks != 5 || report.Vectors != 5 {
		t.Errorf("report = %+v", report)
	}
	if report.Batches != 3 {
		t.Errorf("batches = %d, want 3 for 5 chunks at batch size 2", report.Batches)
	}
	if embedder.calls != 3 {
		t.Errorf("embedder called %d times, want 3", embedder.calls)
	}
	if uploader.uploaded != 5 {
		t.Errorf("uploaded %d vectors, want 5", uploader.uploaded)
	}
	if uploader.metadatas[0]["category"] != "Help" {
		t.Errorf("metadata lost: %v", uploader.metadatas[0])
	}
}

func TestIngestEmptyCSV(t *testing.T) {
	ing := New(&fakeEmbedder{}, &fakeUploader{})
	report, err := ing.Ingest(context.Background(), strings.NewReader("Question,Answer\n"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Rows != 0 || report.Batches != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngestAbortsOnEmbedError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exhausted")}
	ing := New(embedder, &fakeUploader{})

	report, err := ing.Ingest(context.Background(), strings.NewReader("Question,Answer\nq,a\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if report == nil || report.Vectors != 0 {
		t.Errorf("partial report = %+v", report)
	}
}

func TestIngestWritesAuditEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := observability.NewAuditLogger(&observability.AuditConfig{Enabled: true, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}

	input := "Question,Answer,Category\n"
	for i := 0; i < 5; i++ {
		input += "how?,because.,Help\n"
	}

	ing := New(&fakeEmbedder{}, &fakeUploader{}).WithObservability("ecom_faq", audit)
	ing.BatchSize = 2
	if _, err := ing.Ingest(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	audit.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if got := strings.Count(out, `"ingest.batch"`); got != 3 {
		t.Errorf("ingest.batch events = %d, want 3:\n%s", got, out)
	}
	if !strings.Contains(out, `"ingest.complete"`) {
		t.Errorf("audit missing ingest.complete:\n%s", out)
	}
}

func TestReportSummary(t *testing.T) {
	r := NewReport()
	r.Rows, r.Chunks, r.Batches, r.Vectors = 10, 12, 2, 12
	r.Finish()

	var sb strings.Builder
	r.PrintSummary(&sb)
	out := sb.String()
	for _, want := range []string{"INGESTION REPORT", "Rows:", "Vectors:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(string(data), `"rows": 10`) {
		t.Errorf("json = %s", data)
	}
}
