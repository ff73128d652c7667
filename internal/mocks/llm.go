package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"edital-assistant/internal/models"
)

// MockChatModel answers with Respond, or "mocked answer" when Respond is nil.
type MockChatModel struct {
	Respond func(messages []llms.MessageContent) (string, error)

	mu        sync.Mutex
	calls     [][]llms.MessageContent
	failCalls int
}

func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

func (m *MockChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	fail := m.failCalls > 0
	if fail {
		m.failCalls--
	}
	m.mu.Unlock()

	if fail {
		return nil, ErrMockUnavailable
	}
	answer := "mocked answer"
	if m.Respond != nil {
		var err error
		if answer, err = m.Respond(messages); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (m *MockChatModel) SetFailNext(n int) {
	m.mu.Lock()
	m.failCalls = n
	m.mu.Unlock()
}

// Calls returns the messages of every GenerateContent call.
func (m *MockChatModel) Calls() [][]llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MessageText joins the text parts of a message.
func MessageText(msg llms.MessageContent) string {
	var parts []string
	for _, p := range msg.Parts {
		if t, ok := p.(llms.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "")
}

// NewGroundedChatModel follows the assistant's prompts: rewrite calls echo
// the question with a "standalone: " prefix, and answer calls reply with
// dontKnow unless the last word of the question appears in the context.
func NewGroundedChatModel(dontKnow string) *MockChatModel {
	m := NewMockChatModel()
	m.Respond = func(msgs []llms.MessageContent) (string, error) {
		system := MessageText(msgs[0])
		question := MessageText(msgs[len(msgs)-1])
		if system == models.ContextualizePrompt {
			return "standalone: " + question, nil
		}

		start := strings.Index(system, "<contexto>")
		end := strings.Index(system, "</contexto>")
		if start < 0 || end < start {
			return dontKnow, nil
		}
		words := strings.Fields(question)
		if len(words) == 0 {
			return dontKnow, nil
		}
		term := strings.TrimRight(words[len(words)-1], "?")
		if !strings.Contains(system[start:end], term) {
			return dontKnow, nil
		}
		return "Segundo o edital, " + term + ".", nil
	}
	return m
}
