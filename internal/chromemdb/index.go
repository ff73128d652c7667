package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"edital-assistant/internal/embedding"
	"edital-assistant/internal/helper"
	"edital-assistant/internal/models"
)

const collectionName = "editais"

var ErrEmptyIndex = errors.New("no chunks to index")

// Index is an in-memory chromem-go collection of the chunks of one
// processing batch. It is never persisted.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Build embeds chunks in a single batch and adds them to a fresh collection.
func Build(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}

	vectors, err := embedding.GenerateEmbedding(ctx, embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, nil, embedFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        helper.ChunkID(ch.Index),
			Content:   ch.Content,
			Metadata:  createMetadata(ch),
			Embedding: vectors[i],
		}
	}
	// concurrency 1: documents are added in source order
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	if c.Count() != len(chunks) {
		return nil, fmt.Errorf("collection holds %d documents, expected %d", c.Count(), len(chunks))
	}

	log.Info().Int("chunks", len(chunks)).Msg("Built vector index")
	return &Index{db: db, collection: c}, nil
}

func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Search returns up to k chunks ordered by decreasing cosine similarity.
func (ix *Index) Search(ctx context.Context, vector []float32, k int) ([]models.Chunk, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	n := min(k, ix.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	chunks := make([]models.Chunk, len(results))
	for i, r := range results {
		ch, err := chunkFromResult(r)
		if err != nil {
			return nil, err
		}
		chunks[i] = ch
		log.Debug().Str("id", r.ID).Float32("similarity", r.Similarity).Msg("Retrieved chunk")
	}
	return chunks, nil
}

// embedFunc lets chromem embed on its own if a document or query arrives
// without a vector; it uses the same embedder as the index.
func embedFunc(e embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

func createMetadata(ch models.Chunk) map[string]string {
	return map[string]string{
		"index": strconv.Itoa(ch.Index),
		"start": strconv.Itoa(ch.Start),
		"end":   strconv.Itoa(ch.End),
	}
}

func chunkFromResult(r chromem.Result) (models.Chunk, error) {
	ch := models.Chunk{Content: r.Content}
	for key, dst := range map[string]*int{"index": &ch.Index, "start": &ch.Start, "end": &ch.End} {
		v, err := strconv.Atoi(r.Metadata[key])
		if err != nil {
			return models.Chunk{}, fmt.Errorf("document %s: bad %s metadata: %w", r.ID, key, err)
		}
		*dst = v
	}
	return ch, nil
}
