package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edital-assistant/internal/models"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/provider"
	"edital-assistant/internal/rag"
	"edital-assistant/internal/session"
)

type fakeAssistant struct {
	processed [][]parser.Source
	asked     []string
	resets    int
	turns     []models.Turn
	askErr    error
}

func (f *fakeAssistant) Process(ctx context.Context, sources []parser.Source) (*session.ProcessReport, error) {
	f.processed = append(f.processed, sources)
	return &session.ProcessReport{Documents: len(sources), Pages: 3, Chunks: 7}, nil
}

func (f *fakeAssistant) Ask(ctx context.Context, question string) (*models.Answer, error) {
	f.asked = append(f.asked, question)
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.turns = append(f.turns, models.HumanTurn(question), models.AssistantTurn("Segundo o edital, sim."))
	return &models.Answer{Question: question, Content: "Segundo o edital, sim."}, nil
}

func (f *fakeAssistant) Reset() {
	f.resets++
	f.turns = nil
}

func (f *fakeAssistant) Turns() []models.Turn { return f.turns }

func newModel(f *fakeAssistant) Model {
	m := New(context.Background(), f)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func enter(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

// drain runs cmd, expanding batches, and feeds the interaction results back
// into the model.
func drain(m Model, cmd tea.Cmd) Model {
	for _, msg := range run(cmd) {
		switch msg.(type) {
		case processedMsg, answeredMsg:
			updated, _ := m.Update(msg)
			m = updated.(Model)
		}
	}
	return m
}

func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestView_BeforeSize(t *testing.T) {
	m := New(context.Background(), &fakeAssistant{})
	assert.Equal(t, "Carregando...", m.View())
}

func TestView_ShowsGreeting(t *testing.T) {
	m := newModel(&fakeAssistant{})
	assert.Contains(t, m.viewport.View(), "Olá!")
}

func TestProcessCommand(t *testing.T) {
	f := &fakeAssistant{}
	m, cmd := enter(t, newModel(f), "/process a.pdf b.docx")
	assert.True(t, m.busy)

	m = drain(m, cmd)
	assert.False(t, m.busy)
	require.Len(t, f.processed, 1)
	require.Len(t, f.processed[0], 2)
	assert.Equal(t, "a.pdf", f.processed[0][0].Name())
	assert.Contains(t, m.status, "2 edital(is) processado(s)")
	assert.False(t, m.failed)
}

func TestAsk(t *testing.T) {
	f := &fakeAssistant{}
	m, cmd := enter(t, newModel(f), "  qual o prazo?  ")
	assert.True(t, m.busy)
	assert.Equal(t, "", m.input.Value())

	m = drain(m, cmd)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"qual o prazo?"}, f.asked)
	assert.Contains(t, m.viewport.View(), "Segundo o edital, sim.")
}

func TestAsk_ErrorsAreDescribed(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not ready", rag.ErrNotReady, "Carregue e processe"},
		{"provider", &provider.Error{Provider: "ollama", Op: "answer", Attempts: 2, Err: errors.New("refused")}, "ollama"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeAssistant{askErr: tc.err}
			m, cmd := enter(t, newModel(f), "qual o prazo?")
			m = drain(m, cmd)
			assert.True(t, m.failed)
			assert.Contains(t, m.status, tc.want)
			assert.Empty(t, f.turns)
		})
	}
}

func TestEmptyLine(t *testing.T) {
	f := &fakeAssistant{}
	m, cmd := enter(t, newModel(f), "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.True(t, m.failed)
	assert.Empty(t, f.asked)
}

func TestInputIgnoredWhileBusy(t *testing.T) {
	f := &fakeAssistant{}
	m, _ := enter(t, newModel(f), "qual o prazo?")
	require.True(t, m.busy)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, "", m.input.Value())

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, updated.(Model).busy)
}

func TestReset(t *testing.T) {
	f := &fakeAssistant{turns: []models.Turn{models.HumanTurn("oi"), models.AssistantTurn("olá")}}
	m, cmd := enter(t, newModel(f), "/reset")
	assert.Nil(t, cmd)
	assert.Equal(t, 1, f.resets)
	assert.Contains(t, m.status, "Conversa reiniciada")
	assert.NotContains(t, m.viewport.View(), "olá")
}

func TestQuit(t *testing.T) {
	_, cmd := enter(t, newModel(&fakeAssistant{}), "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = newModel(&fakeAssistant{}).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTranscript_UnknownRole(t *testing.T) {
	m := newModel(&fakeAssistant{turns: []models.Turn{{Role: models.Role(9), Content: "x"}}})
	_, err := m.transcript()
	require.Error(t, err)
}
