// Package ui renders long-running tool steps in the terminal.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type tickMsg struct{}

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	started time.Time
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(frames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancel()
		}
	}
	return m, nil
}

func (m model) View() string {
	return Render(m.title, m.frame, m.done, time.Since(m.started), m.details, m.err)
}

// Render draws one frame of a running or finished step.
func Render(title string, frame int, done bool, elapsed time.Duration, details []string, err error) string {
	var b strings.Builder
	switch {
	case !done:
		fmt.Fprintf(&b, "%s %s %s\n", frames[frame%len(frames)], titleStyle.Render(title), detailStyle.Render(elapsed.Round(100*time.Millisecond).String()))
	case err != nil:
		fmt.Fprintf(&b, "%s %s\n", failStyle.Render("✗"), titleStyle.Render(title))
	default:
		fmt.Fprintf(&b, "%s %s\n", okStyle.Render("✓"), titleStyle.Render(title))
	}
	for _, d := range details {
		b.WriteString(detailStyle.Render(d))
		b.WriteString("\n")
	}
	if done && err != nil {
		b.WriteString(failStyle.Render("  error: " + err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// Run executes fn behind a spinner and returns its result.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(model{title: title, started: time.Now(), cancel: cancel})
	result := make(chan doneMsg, 1)
	go func() {
		details, err := fn(ctx)
		result <- doneMsg{details: details, err: err}
		p.Send(doneMsg{details: details, err: err})
	}()
	if _, err := p.Run(); err != nil {
		cancel()
		res := <-result
		return res.details, res.err
	}
	res := <-result
	return res.details, res.err
}
