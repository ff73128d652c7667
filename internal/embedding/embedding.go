package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"edital-assistant/internal/config"
	"edital-assistant/internal/models"
	"edital-assistant/internal/provider"
)

// New builds the embedder named by cfg.Provider, wrapped in the provider
// guard. The same embedder must serve both indexing and queries.
func New(cfg *config.LLMConfig, policy provider.Policy) (embeddings.Embedder, error) {
	var (
		e   embeddings.Embedder
		err error
	)
	switch cfg.Provider {
	case "ollama":
		e, err = NewOllamaEmbedder(cfg)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewGuarded(e, cfg.Provider, policy), nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOpenAIEmbedder works with any OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// Guarded applies a provider.Policy to every embedding call.
type Guarded struct {
	embedder embeddings.Embedder
	name     string
	policy   provider.Policy
}

func NewGuarded(e embeddings.Embedder, name string, policy provider.Policy) *Guarded {
	return &Guarded{embedder: e, name: name, policy: policy}
}

func (g *Guarded) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return provider.Call(ctx, g.policy, g.name, "embed documents", func(ctx context.Context) ([][]float32, error) {
		return g.embedder.EmbedDocuments(ctx, texts)
	})
}

func (g *Guarded) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return provider.Call(ctx, g.policy, g.name, "embed query", func(ctx context.Context) ([]float32, error) {
		return g.embedder.EmbedQuery(ctx, text)
	})
}

// GenerateEmbedding embeds all chunks in one batch and checks that every
// chunk got a vector of the same dimension.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("chunk %d: embedding has dimension %d, want %d", i, len(v), dim)
		}
	}
	log.Debug().Int("chunks", len(chunks)).Int("dimension", dim).Msg("Generated embeddings")
	return vectors, nil
}
