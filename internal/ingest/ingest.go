// Package ingest loads the knowledge-base CSV into the vector index: parse
// rows, split them into overlapping chunks, embed chunk texts in batches,
// and upload vectors with their metadata.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shopclerk/shopclerk/internal/observability"
)

// Embedder turns chunk texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Uploader writes embedded chunks to the index.
type Uploader interface {
	Upload(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, batchSize int) error
}

// Ingestor runs the CSV-to-index load.
type Ingestor struct {
	embedder   Embedder
	uploader   Uploader
	chunker    *Chunker
	collection string
	audit      *observability.AuditLogger

	// BatchSize bounds both the embedding request size and the upload batch.
	BatchSize int
}

// New builds an Ingestor with default chunking and batching.
func New(embedder Embedder, uploader Uploader) *Ingestor {
	return &Ingestor{
		embedder:  embedder,
		uploader:  uploader,
		chunker:   NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		BatchSize: 100,
	}
}

// WithChunker replaces the default chunker.
func (ing *Ingestor) WithChunker(c *Chunker) *Ingestor {
	ing.chunker = c
	return ing
}

// WithObservability names the target collection for the ingest span and
// attaches audit logging. The audit logger may be nil.
func (ing *Ingestor) WithObservability(collection string, a *observability.AuditLogger) *Ingestor {
	ing.collection = collection
	ing.audit = a
	return ing
}

// IngestFile loads one CSV file.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ing.Ingest(ctx, f)
}

// Ingest parses, chunks, embeds, and uploads. Embedding happens in batches
// of BatchSize; a failed batch aborts the run, leaving earlier batches in
// the index.
func (ing *Ingestor) Ingest(ctx context.Context, r io.Reader) (*Report, error) {
	ctx, span := observability.StartIngestSpan(ctx, ing.collection)
	defer span.End()

	report := NewReport()

	rows, err := ReadCSV(r)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	report.Rows = len(rows)
	if len(rows) == 0 {
		report.Finish()
		return report, nil
	}

	var chunks []Chunk
	for _, row := range rows {
		chunks = append(chunks, ing.chunker.Split(row)...)
	}
	report.Chunks = len(chunks)

	for start := 0; start < len(chunks); start += ing.BatchSize {
		end := start + ing.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		metadatas := make([]map[string]any, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
			metadatas[i] = ch.Metadata
		}

		vectors, err := ing.embedder.Embed(ctx, texts)
		if err != nil {
			report.Finish()
			observability.RecordError(span, err)
			return report, fmt.Errorf("embed batch %d: %w", report.Batches+1, err)
		}
		if err := ing.uploader.Upload(ctx, texts, vectors, metadatas, ing.BatchSize); err != nil {
			report.Finish()
			observability.RecordError(span, err)
			return report, fmt.Errorf("upload batch %d: %w", report.Batches+1, err)
		}

		report.Batches++
		report.Vectors += len(batch)
		if ing.audit != nil {
			ing.audit.LogIngestBatch(ctx, report.Batches, len(batch))
		}
		slog.Info("indexed batch",
			"batch", report.Batches,
			"vectors", report.Vectors,
			"total", len(chunks))
	}

	report.Finish()
	observability.RecordIngestResult(span, report.Rows, report.Chunks, report.Vectors)
	if ing.audit != nil {
		ing.audit.LogIngestComplete(ctx, report.Rows, report.Chunks, report.Vectors, report.Duration)
	}
	return report, nil
}
