// Package temporal runs the knowledge-base reindex as a durable workflow:
// recreate the collection, then embed and upload the CSV in resumable
// batches.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// ReindexInput holds the workflow parameters.
type ReindexInput struct {
	CSVPath string

	// RecreateCollection drops and recreates the collection before
	// indexing. Leaving it false appends to the existing index.
	RecreateCollection bool
	VectorSize         uint64

	// BatchSize bounds each embed-and-upload activity. Zero uses the
	// ingestor default.
	BatchSize int
}

// ReindexOutput holds the workflow result.
type ReindexOutput struct {
	Rows     int
	Chunks   int
	Batches  int
	Vectors  int
	Duration time.Duration
}

// ReindexWorkflow rebuilds the vector index from a knowledge-base CSV. Each
// batch is its own activity so a crash resumes at the failed batch instead
// of restarting the load.
func ReindexWorkflow(ctx workflow.Context, input ReindexInput) (*ReindexOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	start := workflow.Now(ctx)

	if input.RecreateCollection {
		if err := workflow.ExecuteActivity(ctx, RecreateCollectionActivity, input.VectorSize).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("recreate collection: %w", err)
		}
	}

	var plan ChunkPlan
	if err := workflow.ExecuteActivity(ctx, LoadChunksActivity, input.CSVPath).Get(ctx, &plan); err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	output := &ReindexOutput{
		Rows:   plan.Rows,
		Chunks: len(plan.Chunks),
	}

	for offset := 0; offset < len(plan.Chunks); offset += batchSize {
		end := offset + batchSize
		if end > len(plan.Chunks) {
			end = len(plan.Chunks)
		}

		var indexed int
		batch := BatchInput{Chunks: plan.Chunks[offset:end], BatchSize: batchSize}
		if err := workflow.ExecuteActivity(ctx, IndexBatchActivity, batch).Get(ctx, &indexed); err != nil {
			return nil, fmt.Errorf("index batch %d: %w", output.Batches+1, err)
		}

		output.Batches++
		output.Vectors += indexed
	}

	output.Duration = workflow.Now(ctx).Sub(start)
	return output, nil
}
