package temporal

import (
	"context"
	"fmt"
	"os"

	"github.com/shopclerk/shopclerk/internal/ingest"
)

// ChunkPlan is the serializable chunking result passed between activities.
type ChunkPlan struct {
	Rows   int
	Chunks []ingest.Chunk
}

// BatchInput is one embed-and-upload unit of work.
type BatchInput struct {
	Chunks    []ingest.Chunk
	BatchSize int
}

// VectorStore is the slice of the index client the activities need.
type VectorStore interface {
	CreateCollection(ctx context.Context, vectorSize uint64) error
	Upload(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, batchSize int) error
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Embedder ingest.Embedder
	Store    VectorStore
	Chunker  *ingest.Chunker
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// RecreateCollectionActivity drops and recreates the collection.
func RecreateCollectionActivity(ctx context.Context, vectorSize uint64) error {
	return deps.Store.CreateCollection(ctx, vectorSize)
}

// LoadChunksActivity parses and chunks the CSV. The plan is returned whole;
// batching happens in the workflow so each batch is independently retryable.
func LoadChunksActivity(ctx context.Context, csvPath string) (ChunkPlan, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("open %s: %w", csvPath, err)
	}
	defer f.Close()

	rows, err := ingest.ReadCSV(f)
	if err != nil {
		return ChunkPlan{}, err
	}

	chunker := deps.Chunker
	if chunker == nil {
		chunker = ingest.NewChunker(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap)
	}

	plan := ChunkPlan{Rows: len(rows)}
	for _, row := range rows {
		plan.Chunks = append(plan.Chunks, chunker.Split(row)...)
	}
	return plan, nil
}

// IndexBatchActivity embeds and uploads one batch of chunks, returning the
// number of vectors written.
func IndexBatchActivity(ctx context.Context, input BatchInput) (int, error) {
	if len(input.Chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(input.Chunks))
	metadatas := make([]map[string]any, len(input.Chunks))
	for i, ch := range input.Chunks {
		texts[i] = ch.Text
		metadatas[i] = ch.Metadata
	}

	vectors, err := deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if err := deps.Store.Upload(ctx, texts, vectors, metadatas, input.BatchSize); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	return len(input.Chunks), nil
}
