// Package ui renders replay progress as an interactive terminal view.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mason/internal/eval"
)

type progressModel struct {
	title      string
	events     <-chan eval.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []pieceItem
	index      map[string]int
	stageLabel string
	width      int
	done       bool
}

type pieceItem struct {
	name   string
	status string
	stage  eval.Stage
}

type eventMsg eval.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders per-piece
// replay progress. pieces lists the canonical piece names in display
// order; events delivers the driver's progress stream and must be
// closed to end the program.
func NewProgressModel(title string, pieces []string, events <-chan eval.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]pieceItem, 0, len(pieces))
	index := make(map[string]int, len(pieces))
	for i, name := range pieces {
		items = append(items, pieceItem{name: name, status: "queued", stage: eval.StageLoad})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(eval.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progModel, cmd := m.prog.Update(msg)
		m.prog = progModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		name := truncate(item.name, nameWidth)
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		b.WriteString(fmt.Sprintf("  %s %s", statusStyled, name))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev eval.Event) tea.Cmd {
	label := statusLabel(ev.Stage, ev.Status)
	if ev.Piece == "" {
		if label != "" {
			m.stageLabel = label
		}
		return nil
	}
	idx, ok := m.index[ev.Piece]
	if !ok {
		return nil
	}
	if label != "" {
		m.items[idx].status = label
		m.items[idx].stage = ev.Stage
	}

	totalProgress := 0.0
	for _, item := range m.items {
		switch item.status {
		case "done", "error", "cached":
			totalProgress += 1.0
		default:
			totalProgress += progressFromStage(item.stage)
		}
	}
	return m.prog.SetPercent(totalProgress / float64(len(m.items)))
}

func progressFromStage(stage eval.Stage) float64 {
	switch stage {
	case eval.StageLoad:
		return 0.1
	case eval.StageEvaluate:
		return 0.4
	case eval.StageExpand:
		return 0.7
	case eval.StageFinalize:
		return 0.9
	case eval.StageCache:
		return 0.95
	default:
		return 0.0
	}
}

func statusLabel(stage eval.Stage, status eval.Status) string {
	switch status {
	case eval.StatusQueued:
		return "queued"
	case eval.StatusDone:
		return "done"
	case eval.StatusError:
		return "error"
	case eval.StatusCached:
		return "cached"
	case eval.StatusWorking:
		return stageLabel(stage)
	default:
		return ""
	}
}

func stageLabel(stage eval.Stage) string {
	switch stage {
	case eval.StageLoad:
		return "loading"
	case eval.StageEvaluate:
		return "evaluating"
	case eval.StageExpand:
		return "expanding"
	case eval.StageFinalize:
		return "finalizing"
	case eval.StageCache:
		return "caching"
	default:
		return ""
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done", "cached":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "loading", "evaluating", "expanding", "finalizing", "caching":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
