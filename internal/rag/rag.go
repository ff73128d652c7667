package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"edital-assistant/internal/config"
	"edital-assistant/internal/llmservice"
	"edital-assistant/internal/models"
)

// ErrNotReady is returned when a question arrives before any document has
// been processed.
var ErrNotReady = errors.New("no documents have been processed yet")

// Index is a searchable vector index of chunks.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]models.Chunk, error)
	Count() int
}

type RAG struct {
	llm      *llmservice.Client
	embedder embeddings.Embedder
	topK     int
	dontKnow string
}

func NewRAG(llm *llmservice.Client, embedder embeddings.Embedder, cfg *config.RAGConfig) *RAG {
	return &RAG{
		llm:      llm,
		embedder: embedder,
		topK:     cfg.TopK,
		dontKnow: cfg.DontKnowAnswer,
	}
}

// Query answers question from the chunks of index, taking the prior turns
// into account both for retrieval and for the answer.
func (r *RAG) Query(ctx context.Context, index Index, question string, history []models.Turn) (*models.Answer, error) {
	if index == nil {
		return nil, ErrNotReady
	}

	query, err := r.Rewrite(ctx, question, history)
	if err != nil {
		return nil, err
	}
	sources, err := r.Retrieve(ctx, index, query)
	if err != nil {
		return nil, err
	}
	content, err := r.Answer(ctx, question, sources, history)
	if err != nil {
		return nil, err
	}
	return &models.Answer{Question: question, Query: query, Content: content, Sources: sources}, nil
}

// Rewrite turns a follow-up question into a standalone query. Without
// history the question is already standalone and the model is not called.
func (r *RAG) Rewrite(ctx context.Context, question string, history []models.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	msgs, err := historyMessages(history)
	if err != nil {
		return "", err
	}
	messages := make([]llms.MessageContent, 0, len(msgs)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, models.ContextualizePrompt))
	messages = append(messages, msgs...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))

	query, err := r.llm.GenerateContent(ctx, "rewrite", messages)
	if err != nil {
		return "", fmt.Errorf("rewrite question: %w", err)
	}
	if query == "" {
		log.Warn().Str("question", question).Msg("Empty rewrite, using the question as is")
		return question, nil
	}
	log.Debug().Str("question", question).Str("query", query).Msg("Rewrote question")
	return query, nil
}

// Retrieve returns the top-K chunks closest to query.
func (r *RAG) Retrieve(ctx context.Context, index Index, query string) ([]models.Chunk, error) {
	if index == nil {
		return nil, ErrNotReady
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := index.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	log.Debug().Int("chunks", len(chunks)).Msg("Retrieved context")
	return chunks, nil
}

// Answer asks the model once, with the grounding instruction and the
// retrieved chunks as the system message.
func (r *RAG) Answer(ctx context.Context, question string, sources []models.Chunk, history []models.Turn) (string, error) {
	msgs, err := historyMessages(history)
	if err != nil {
		return "", err
	}
	messages := make([]llms.MessageContent, 0, len(msgs)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, r.systemPrompt(sources)))
	messages = append(messages, msgs...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))

	answer, err := r.llm.GenerateContent(ctx, "answer", messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

func (r *RAG) systemPrompt(sources []models.Chunk) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = s.Content
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, r.dontKnow, strings.Join(parts, models.ContextSeparator))
}

func historyMessages(history []models.Turn) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(history))
	for i, t := range history {
		switch t.Role {
		case models.RoleHuman:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, t.Content))
		case models.RoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, t.Content))
		default:
			return nil, fmt.Errorf("turn %d: unknown role %v", i, t.Role)
		}
	}
	return out, nil
}
