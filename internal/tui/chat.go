// Package tui holds the terminal front-ends: an interactive chat over the
// highlights and a styled highlight listing.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"headlines/internal/core"
)

// Answerer answers one question from the indexed highlights
type Answerer interface {
	Answer(ctx context.Context, question string) (*core.Answer, error)
}

// ChatMessage represents a single message in the chat history
type ChatMessage struct {
	Role      string // "user", "assistant" or "error"
	Content   string
	Sources   []core.Source
	Timestamp time.Time
}

type answerMsg struct {
	answer *core.Answer
	err    error
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle    = lipgloss.NewStyle().Faint(true)
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

// ChatModel is the bubbletea model of a chat session
type ChatModel struct {
	ctx      context.Context
	answerer Answerer
	input    []rune
	history  []ChatMessage
	waiting  bool
	width    int
	quitting bool
}

// NewChatModel returns a chat session that asks the given answerer
func NewChatModel(ctx context.Context, answerer Answerer) ChatModel {
	return ChatModel{ctx: ctx, answerer: answerer}
}

// History returns the messages exchanged so far
func (m ChatModel) History() []ChatMessage {
	return m.history
}

// Init is the first command that will be run. We don't need any.
func (m ChatModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.history = append(m.history, ChatMessage{Role: "error", Content: msg.err.Error(), Timestamp: time.Now()})
			break
		}
		m.history = append(m.history, ChatMessage{
			Role:      "assistant",
			Content:   msg.answer.Answer,
			Sources:   msg.answer.Sources,
			Timestamp: time.Now(),
		})

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case "ctrl+u":
			m.input = nil
		default:
			if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
				m.input = append(m.input, msg.Runes...)
			}
		}
	}

	return m, nil
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(string(m.input))
	if question == "" || m.waiting {
		return m, nil
	}
	m.input = nil

	switch strings.ToLower(question) {
	case "/quit", "/exit", "quit", "exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.history = nil
		return m, nil
	}

	m.history = append(m.history, ChatMessage{Role: "user", Content: question, Timestamp: time.Now()})
	m.waiting = true
	return m, m.ask(question)
}

func (m ChatModel) ask(question string) tea.Cmd {
	ctx, answerer := m.ctx, m.answerer
	return func() tea.Msg {
		answer, err := answerer.Answer(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

// View renders the TUI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Today's headlines chat"))
	b.WriteString("\n\n")

	for _, msg := range m.history {
		switch msg.Role {
		case "user":
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(msg.Content)
		case "assistant":
			b.WriteString(assistantStyle.Render("Assistant: "))
			b.WriteString(msg.Content)
			for _, src := range msg.Sources {
				b.WriteString("\n")
				b.WriteString(sourceStyle.Render(fmt.Sprintf("  - %s [%s]", src.Title, src.Category)))
			}
		case "error":
			b.WriteString(errorStyle.Render("Error: " + msg.Content))
		}
		b.WriteString("\n\n")
	}

	if m.waiting {
		b.WriteString(helpStyle.Render("Thinking..."))
		b.WriteString("\n")
	}
	b.WriteString("> " + string(m.input))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("[enter] Ask | [ctrl+u] Clear input | /clear History | [esc] Quit"))
	b.WriteString("\n")

	return b.String()
}

// RunChat starts an interactive chat session on the terminal
func RunChat(ctx context.Context, answerer Answerer) error {
	p := tea.NewProgram(NewChatModel(ctx, answerer), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat session failed: %w", err)
	}
	return nil
}
