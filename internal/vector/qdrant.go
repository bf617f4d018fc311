package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shopclerk/shopclerk/internal/observability"
)

// Client is a Qdrant-backed index over one named collection.
type Client struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	nextID      uint64

	metrics *observability.ChatMetrics
	audit   *observability.AuditLogger
}

// NewClient connects to Qdrant and scopes all operations to collection.
func NewClient(ctx context.Context, host string, port int, collection string) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}
	return &Client{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Collection returns the collection name this client is scoped to.
func (c *Client) Collection() string { return c.collection }

// WithObservability attaches search metrics and audit logging. Either may
// be nil.
func (c *Client) WithObservability(m *observability.ChatMetrics, a *observability.AuditLogger) *Client {
	c.metrics = m
	c.audit = a
	return c
}

// CollectionExists probes for the collection. Any error, whether network,
// auth, or genuinely missing, reads as "does not exist"; the probe never fails.
// Callers that need to distinguish outage from absence must not use this.
func (c *Client) CollectionExists(ctx context.Context) bool {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: c.collection,
	})
	if err != nil {
		slog.Debug("collection existence probe failed", "collection", c.collection, "err", err)
		return false
	}
	return true
}

// CreateCollection creates the collection with cosine distance, DESTROYING
// any existing collection of the same name along with all its points.
// Calling this on a populated collection loses data; probe with
// CollectionExists first unless a rebuild is intended.
func (c *Client) CreateCollection(ctx context.Context, vectorSize uint64) error {
	// Delete-then-create keeps the call idempotent; a failed delete just
	// means there was nothing to remove.
	_, _ = c.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: c.collection})

	threshold := uint64(20000)
	_, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		OptimizersConfig: &pb.OptimizersConfigDiff{
			IndexingThreshold: &threshold,
			MemmapThreshold:   &threshold,
		},
	})
	if err != nil {
		return &StoreError{Op: "create collection", Err: err}
	}
	c.nextID = 0
	return nil
}

// Upload indexes texts with their vectors and metadata, assigning sequential
// integer ids from the client's running offset and writing in fixed-size
// batches. A failed batch surfaces its error after logging the batch index
// and a sample point; earlier batches are NOT rolled back, so a failed
// upload leaves the collection partially written.
func (c *Client) Upload(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, batchSize int) error {
	if len(texts) != len(vectors) || len(texts) != len(metadatas) {
		return &StoreError{
			Op:  "upload",
			Err: fmt.Errorf("length mismatch: %d texts, %d vectors, %d metadatas", len(texts), len(vectors), len(metadatas)),
		}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	wait := true
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &pb.PointStruct{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: c.nextID + uint64(i)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				}},
				Payload: toPayload(texts[i], metadatas[i]),
			})
		}

		_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: c.collection,
			Wait:           &wait,
			Points:         batch,
		})
		if err != nil {
			slog.Error("batch upload failed",
				"collection", c.collection,
				"batch", start/batchSize,
				"sample_id", batch[0].Id.GetNum(),
				"sample_text", texts[start],
				"err", err)
			return &StoreError{Op: fmt.Sprintf("upload batch %d", start/batchSize), Err: err}
		}
	}

	c.nextID += uint64(len(texts))
	return nil
}

// Search executes a similarity query in the requested mode.
//
// Semantic: fetch limit×overfetch candidates, keep those scoring at or above
// the threshold, return at most limit in store order (score-descending; ties
// arrive in arbitrary order). May return fewer than limit, including none.
//
// Hybrid: delegates ranking to the store with a full-text condition on the
// chunk text and an optional exact category filter; no threshold cut.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	ctx, span := observability.StartSearchSpan(ctx, c.collection, string(req.Mode))
	defer span.End()
	start := time.Now()

	results, err := c.search(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	var topScore float32
	if len(results) > 0 {
		topScore = results[0].Score
	}
	observability.RecordSearchResult(span, len(results), topScore)
	if c.metrics != nil {
		c.metrics.RecordSearch(time.Since(start))
	}
	if c.audit != nil {
		c.audit.LogRetrievalSearch(ctx, "", string(req.Mode), len(results), topScore)
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	switch req.Mode {
	case ModeSemantic:
		return c.semanticSearch(ctx, req)
	case ModeHybrid:
		if req.QueryText == "" {
			return nil, ErrQueryTextRequired
		}
		return c.hybridSearch(ctx, req)
	default:
		return nil, &InvalidModeError{Mode: req.Mode}
	}
}

func (c *Client) semanticSearch(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	threshold, limit, overfetch := searchPolicy(req)

	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.collection,
		Vector:         req.Vector,
		Limit:          uint64(limit * overfetch),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, &StoreError{Op: "semantic search", Err: err}
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, pt := range resp.Result {
		results = append(results, resultFromPoint(pt))
	}
	return filterByScore(results, threshold, limit), nil
}

// searchPolicy resolves a request's unset knobs to the adapter defaults. A
// non-positive threshold gets DefaultThreshold; callers wanting every
// candidate back must pass an explicit small positive value.
func searchPolicy(req SearchRequest) (threshold float32, limit, overfetch int) {
	threshold = req.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	limit = req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	overfetch = req.OverfetchFactor
	if overfetch <= 0 {
		overfetch = defaultOverfetch
	}
	return threshold, limit, overfetch
}

func (c *Client) hybridSearch(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	conditions := []*pb.Condition{
		{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   "text",
			Match: &pb.Match{MatchValue: &pb.Match_Text{Text: req.QueryText}},
		}}},
	}
	if req.CategoryFilter != "" {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   "category",
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: req.CategoryFilter}},
			}},
		})
	}

	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.collection,
		Vector:         req.Vector,
		Limit:          uint64(limit),
		Filter:         &pb.Filter{Must: conditions},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, &StoreError{Op: "hybrid search", Err: err}
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, pt := range resp.Result {
		results = append(results, resultFromPoint(pt))
	}
	return results, nil
}

// filterByScore keeps results scoring at or above threshold, preserving
// order, capped at limit. Input is already score-descending from the store.
func filterByScore(results []SearchResult, threshold float32, limit int) []SearchResult {
	kept := make([]SearchResult, 0, limit)
	for _, r := range results {
		if r.Score < threshold {
			continue
		}
		kept = append(kept, r)
		if len(kept) >= limit {
			break
		}
	}
	return kept
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
