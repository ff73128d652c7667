// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"edital-assistant/internal/models"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/session"
)

// Assistant is the TUI-facing subset of a session.
type Assistant interface {
	Process(ctx context.Context, sources []parser.Source) (*session.ProcessReport, error)
	Ask(ctx context.Context, question string) (*models.Answer, error)
	Reset()
	Turns() []models.Turn
}

type processedMsg struct {
	report *session.ProcessReport
	err    error
}

type answeredMsg struct {
	err error
}

type Model struct {
	ctx       context.Context
	assistant Assistant

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	status string
	failed bool
	busy   bool
	ready  bool
}

func New(ctx context.Context, assistant Assistant) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Pergunte, ou use /process <arquivos>, /reset, /quit"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		ctx:       ctx,
		assistant: assistant,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		status:    "Carregue seus editais com /process para começar.",
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, assistant Assistant) error {
	p := tea.NewProgram(New(ctx, assistant), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case processedMsg:
		m.busy = false
		if msg.err != nil {
			m.fail(msg.err)
		} else {
			m.setStatus(fmt.Sprintf("%d edital(is) processado(s): %d página(s), %d trecho(s) indexado(s).",
				msg.report.Documents, msg.report.Pages, msg.report.Chunks))
		}
		m.refresh()
		return m, nil

	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.fail(msg.err)
		} else {
			m.setStatus("")
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0:
		m.fail(session.ErrEmptyQuestion)
		return m, nil
	case fields[0] == "/quit":
		return m, tea.Quit
	case fields[0] == "/reset":
		m.assistant.Reset()
		m.setStatus("Conversa reiniciada. Carregue novos editais para continuar.")
		m.refresh()
		return m, nil
	case fields[0] == "/process":
		sources := make([]parser.Source, 0, len(fields)-1)
		for _, path := range fields[1:] {
			sources = append(sources, parser.FileSource(path))
		}
		m.busy = true
		m.setStatus("Processando editais...")
		return m, tea.Batch(m.spinner.Tick, m.process(sources))
	default:
		m.busy = true
		m.setStatus("Consultando os editais...")
		return m, tea.Batch(m.spinner.Tick, m.ask(line))
	}
}

func (m Model) process(sources []parser.Source) tea.Cmd {
	ctx, assistant := m.ctx, m.assistant
	return func() tea.Msg {
		report, err := assistant.Process(ctx, sources)
		return processedMsg{report: report, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	ctx, assistant := m.ctx, m.assistant
	return func() tea.Msg {
		_, err := assistant.Ask(ctx, question)
		return answeredMsg{err: err}
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.failed = false
}

func (m *Model) fail(err error) {
	_, msg := session.Describe(err)
	m.status = msg
	m.failed = true
}

func (m *Model) refresh() {
	content, err := m.transcript()
	if err != nil {
		content = err.Error()
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// transcript renders the greeting followed by every turn.
func (m Model) transcript() (string, error) {
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	b.WriteString(assistantLabel.Render("A.L.E.") + "\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(models.Greeting) + "\n\n")

	for _, t := range m.assistant.Turns() {
		switch t.Role {
		case models.RoleHuman:
			b.WriteString(humanLabel.Render("Você") + "\n")
		case models.RoleAssistant:
			b.WriteString(assistantLabel.Render("A.L.E.") + "\n")
		default:
			return "", fmt.Errorf("unknown role %s", t.Role)
		}
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.Content) + "\n\n")
	}
	return b.String(), nil
}

func (m Model) View() string {
	if !m.ready {
		return "Carregando..."
	}
	header := headerStyle.Render("Assistente de Leitura de Editais (A.L.E.)")

	status := statusStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}
	if m.busy {
		status = m.spinner.View() + " " + status
	}

	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	humanLabel      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
