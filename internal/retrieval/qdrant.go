package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/leadline-ai/leadline/internal/convo"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements MessageStore backed by a Qdrant collection. One
// point per corpus message; the vector is the message's context-window
// embedding and the payload carries every field reranking and pair
// extraction need, so reads never go back to another datastore.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use MessageStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or updates a batch of messages with their embeddings.
// Each message must have its Embedding and EmbeddingVersion populated;
// this method does not call the Embedder.
func (s *QdrantStore) Upsert(ctx context.Context, msgs []convo.Message) error {
	points := make([]*qdrant.PointStruct, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Embedding) == 0 {
			return fmt.Errorf("qdrant: message %s has no embedding", m.ID)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(m.ID),
			Vectors: qdrant.NewVectors(m.Embedding...),
			Payload: qdrant.NewValueMap(messagePayload(m)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// SearchNearest performs a cosine similarity search, restricted to points
// whose stored embedding version matches and, when opts.ThreadID is set, to
// that single conversation thread.
func (s *QdrantStore) SearchNearest(ctx context.Context, vector []float32, version string, limit int, opts SearchOptions) ([]ScoredMessage, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("embedding_version", version),
	}
	if opts.ThreadID != "" {
		must = append(must, qdrant.NewMatch("thread_id", opts.ThreadID))
	}

	lim := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	scored := make([]ScoredMessage, 0, len(results))
	for _, r := range results {
		msg, err := messageFromPayload(r.Id.GetUuid(), r.Payload)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredMessage{Message: msg, Similarity: r.Score})
	}

	return scored, nil
}

// FetchByTurn looks up a single message by its (thread, turn index) position.
// Returns (nil, nil) when no such message exists.
func (s *QdrantStore) FetchByTurn(ctx context.Context, threadID string, turnIndex int) (*convo.Message, error) {
	one := uint32(1)
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("thread_id", threadID),
			qdrant.NewMatchInt("turn_index", int64(turnIndex)),
		}},
		Limit:       &one,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: fetch by turn failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	msg, err := messageFromPayload(results[0].Id.GetUuid(), results[0].Payload)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Scan walks every point in the collection in batches, invoking fn with each
// batch of rebuilt messages. Used by corpus re-embedding, which must visit
// messages regardless of their stored embedding version.
func (s *QdrantStore) Scan(ctx context.Context, batchSize int, fn func(msgs []convo.Message) error) error {
	if batchSize <= 0 {
		batchSize = 256
	}
	limit := uint32(batchSize)

	// The scroll offset is inclusive and the client does not surface the
	// next-page cursor, so each page after the first starts at the last
	// point of the previous page, which we skip.
	var offset *qdrant.PointId
	var lastID string
	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: scan failed: %w", err)
		}

		msgs := make([]convo.Message, 0, len(results))
		for _, r := range results {
			id := r.Id.GetUuid()
			if offset != nil && id == lastID {
				continue
			}
			msg, err := messageFromPayload(id, r.Payload)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := fn(msgs); err != nil {
			return err
		}
		if len(results) < batchSize {
			return nil
		}
		last := results[len(results)-1].Id
		offset, lastID = last, last.GetUuid()
	}
}

// Delete removes messages from the collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Ping checks that the Qdrant instance is reachable. Used by readiness
// probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// messagePayload flattens a message into the Qdrant point payload.
// The embedding itself lives in the point vector, not the payload.
func messagePayload(m convo.Message) map[string]any {
	return map[string]any{
		"thread_id":         m.ThreadID,
		"turn_index":        int64(m.TurnIndex),
		"role":              string(m.Role),
		"text":              m.Text,
		"clean_text":        m.CleanText,
		"stage":             m.Stage,
		"timestamp":         m.Timestamp.UTC().Format(time.RFC3339Nano),
		"context_text":      m.ContextText,
		"embedding_version": m.EmbeddingVersion,
		"partition":         string(m.Partition),
	}
}

// messageFromPayload rebuilds a message from a point's payload.
func messageFromPayload(id string, payload map[string]*qdrant.Value) (convo.Message, error) {
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	msg := convo.Message{
		ID:               id,
		ThreadID:         str("thread_id"),
		TurnIndex:        int(payload["turn_index"].GetIntegerValue()),
		Role:             convo.Role(str("role")),
		Text:             str("text"),
		CleanText:        str("clean_text"),
		Stage:            str("stage"),
		ContextText:      str("context_text"),
		EmbeddingVersion: str("embedding_version"),
		Partition:        convo.Partition(str("partition")),
	}

	if raw := str("timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return convo.Message{}, fmt.Errorf("qdrant: point %s has a malformed timestamp %q: %w", id, raw, err)
		}
		msg.Timestamp = ts
	}

	return msg, nil
}
