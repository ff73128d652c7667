// Package session holds the state of one user's conversation: the turns
// exchanged so far and the vector index of the last processed batch.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"edital-assistant/internal/chromemdb"
	"edital-assistant/internal/chunker"
	"edital-assistant/internal/helper"
	"edital-assistant/internal/models"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/rag"
)

var ErrEmptyQuestion = errors.New("empty question")

// Recorder archives completed exchanges.
type Recorder interface {
	Record(ctx context.Context, sessionID string, ans *models.Answer) error
}

type Deps struct {
	Parser   *parser.Parser
	Embedder embeddings.Embedder
	RAG      *rag.RAG
	Recorder Recorder // optional
}

type ProcessReport struct {
	Documents  int
	Pages      int
	Characters int
	Chunks     int
}

// Session runs one interaction at a time; concurrent calls wait. Turns and
// Ready never wait for an interaction in flight.
type Session struct {
	run sync.Mutex // serializes Process, Ask and Reset

	mu    sync.RWMutex // guards turns and index
	turns []models.Turn
	index rag.Index

	id       string
	deps     Deps
	chunking chunker.Options
}

func New(deps Deps, chunking chunker.Options) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Session{id: id, deps: deps, chunking: chunking}, nil
}

func (s *Session) ID() string { return s.id }

// Chunk extracts and splits the sources without touching the index.
func (s *Session) Chunk(ctx context.Context, sources []parser.Source) ([]models.Chunk, parser.Result, error) {
	res, err := s.deps.Parser.ExtractText(ctx, sources)
	if err != nil {
		return nil, parser.Result{}, err
	}
	chunks, err := chunker.Split(res.Text, s.chunking)
	if err != nil {
		return nil, parser.Result{}, err
	}
	return chunks, res, nil
}

// Process replaces the index with one built from sources. On failure the
// previous index, if any, stays in place.
func (s *Session) Process(ctx context.Context, sources []parser.Source) (*ProcessReport, error) {
	s.run.Lock()
	defer s.run.Unlock()

	chunks, res, err := s.Chunk(ctx, sources)
	if err != nil {
		return nil, err
	}
	index, err := chromemdb.Build(ctx, s.deps.Embedder, chunks)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	report := &ProcessReport{
		Documents:  res.Documents,
		Pages:      res.Pages,
		Characters: len([]rune(res.Text)),
		Chunks:     index.Count(),
	}
	log.Info().Str("session", s.id).Int("documents", report.Documents).Int("chunks", report.Chunks).Msg("Processed documents")
	return report, nil
}

// Ask answers question and, on success, appends the human and assistant
// turns together.
func (s *Session) Ask(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	s.run.Lock()
	defer s.run.Unlock()

	s.mu.RLock()
	index := s.index
	history := append([]models.Turn(nil), s.turns...)
	s.mu.RUnlock()

	if index == nil {
		return nil, rag.ErrNotReady
	}
	ans, err := s.deps.RAG.Query(ctx, index, question, history)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	s.mu.Lock()
	s.turns = append(s.turns, models.HumanTurn(question), models.AssistantTurn(ans.Content))
	s.mu.Unlock()

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Record(ctx, s.id, ans); err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("Failed to archive exchange")
		}
	}
	return ans, nil
}

// Reset forgets the conversation and the index.
func (s *Session) Reset() {
	s.run.Lock()
	defer s.run.Unlock()
	s.mu.Lock()
	s.turns = nil
	s.index = nil
	s.mu.Unlock()
	log.Info().Str("session", s.id).Msg("Session reset")
}

func (s *Session) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.turns...)
}

func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}
