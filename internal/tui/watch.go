// Package tui implements the live event-stream viewer behind
// `edgesync watch`: a scrolling log of every create/update/patch/remove
// the Engine emits, local or remote-confirmed, rendered with a spinner
// while idle.
package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/record"
)

const maxLogLines = 200

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	localStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	remoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// eventMsg carries one Engine emission into the bubbletea update loop.
type eventMsg struct {
	last  engine.LastEvent
	total int
}

// Model is the bubbletea model for `edgesync watch`.
type Model struct {
	eng     *engine.Engine
	spinner spinner.Model
	lines   []string
	sub     chan eventMsg
	off     func()
	quitting bool
}

// New builds a watch Model over eng's event stream. The model subscribes
// in Init and unsubscribes itself on quit (q, ctrl+c or esc). Call Run
// to start the program.
func New(eng *engine.Engine) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = mutedStyle

	return &Model{
		eng:     eng,
		spinner: s,
		sub:     make(chan eventMsg, 64),
	}
}

func (m *Model) Init() tea.Cmd {
	m.off = m.eng.Events().On("events", func(args ...any) {
		if len(args) < 2 {
			return
		}
		records, _ := args[0].([]record.Record)
		last, _ := args[1].(engine.LastEvent)
		select {
		case m.sub <- eventMsg{last: last, total: len(records)}:
		default:
		}
	})
	return tea.Batch(m.spinner.Tick, waitForEvent(m.sub))
}

func waitForEvent(sub chan eventMsg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.lines = append(m.lines, formatEvent(msg))
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		return m, waitForEvent(m.sub)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.off != nil {
				m.off()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("edgesync watch") + "  " + mutedStyle.Render("press q to quit") + "\n\n")

	if len(m.lines) == 0 {
		b.WriteString(m.spinner.View() + " " + mutedStyle.Render("waiting for activity...") + "\n")
	} else {
		for _, line := range m.lines {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func formatEvent(msg eventMsg) string {
	style := remoteStyle
	origin := "remote"
	if msg.last.Source == engine.SourceLocal {
		style = localStyle
		origin = "local"
	}
	rid, _ := msg.last.Record.ID()
	return fmt.Sprintf("%s  %s  %s  id=%v  (%d records)",
		mutedStyle.Render(time.Now().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-7s", origin)),
		msg.last.Action,
		rid,
		msg.total,
	)
}

// Run launches the watch program against eng, blocking until the user
// quits.
func Run(eng *engine.Engine) error {
	p := tea.NewProgram(New(eng), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
