// Package ui renders batch build progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"sierra2mlir/internal/buildpipeline"
	"sierra2mlir/internal/observ"
)

// stageWeight is the share of a file's work finished when its stage starts.
var stageWeight = map[buildpipeline.Stage]float64{
	buildpipeline.StageRead:   0.05,
	buildpipeline.StageCache:  0.05,
	buildpipeline.StageParse:  0.1,
	buildpipeline.StageLower:  0.3,
	buildpipeline.StagePasses: 0.6,
	buildpipeline.StageVerify: 0.75,
	buildpipeline.StageEmit:   0.85,
	buildpipeline.StageWrite:  0.95,
}

var stageVerb = map[buildpipeline.Stage]string{
	buildpipeline.StageRead:   "reading",
	buildpipeline.StageCache:  "cache",
	buildpipeline.StageParse:  "parsing",
	buildpipeline.StageLower:  "lowering",
	buildpipeline.StagePasses: "converting",
	buildpipeline.StageVerify: "verifying",
	buildpipeline.StageEmit:   "writing",
	buildpipeline.StageWrite:  "writing",
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	noteStyle    = lipgloss.NewStyle().Faint(true)
)

const statusWidth = 12

type row struct {
	file    string
	stage   buildpipeline.Stage
	status  buildpipeline.Status
	elapsed time.Duration
	err     error
}

func (r row) label() string {
	switch r.status {
	case buildpipeline.StatusDone:
		return "done"
	case buildpipeline.StatusError:
		return "error"
	case buildpipeline.StatusWorking:
		if verb, ok := stageVerb[r.stage]; ok {
			return verb
		}
	}
	return "queued"
}

func (r row) fraction() float64 {
	switch r.status {
	case buildpipeline.StatusDone, buildpipeline.StatusError:
		return 1
	case buildpipeline.StatusWorking:
		return stageWeight[r.stage]
	}
	return 0
}

// progressModel shows one row per input plus an overall bar.
type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []row
	index   map[string]int
	batch   string
	width   int
	done    bool
}

type eventMsg buildpipeline.Event
type closedMsg struct{}

// NewProgressModel returns a Bubble Tea model fed by events. It quits once
// events is closed.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(workingStyle))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(76))
	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		rows:    make([]row, len(files)),
		index:   make(map[string]int, len(files)),
		width:   80,
	}
	for i, f := range files {
		m.rows[i] = row{file: f, status: buildpipeline.StatusQueued}
		m.index[f] = i
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.next())
	case closedMsg:
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
			m.bar.Width = max(msg.Width-4, 10)
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// apply records ev. Events without a file describe the whole batch.
func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	if ev.File == "" {
		m.batch = row{stage: ev.Stage, status: ev.Status}.label()
		return nil
	}
	i, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	r := &m.rows[i]
	r.stage, r.status = ev.Stage, ev.Status
	if ev.Elapsed > 0 {
		r.elapsed = ev.Elapsed
	}
	if ev.Err != nil {
		r.err = ev.Err
	}
	total := 0.0
	for _, r := range m.rows {
		total += r.fraction()
	}
	return m.bar.SetPercent(total / float64(len(m.rows)))
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	header := m.title
	if m.batch != "" && m.batch != "queued" {
		header += " (" + m.batch + ")"
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-statusWidth-16, 20)
	finished, failed := 0, 0
	for _, r := range m.rows {
		label := r.label()
		fmt.Fprintf(&b, "  %s %s", statusStyle(r).Render(fmt.Sprintf("%*s", statusWidth, label)), truncate(r.file, nameWidth))
		switch r.status {
		case buildpipeline.StatusDone:
			finished++
			b.WriteString(noteStyle.Render(fmt.Sprintf("  %.1f ms", observ.Millis(r.elapsed))))
		case buildpipeline.StatusError:
			failed++
			if r.err != nil {
				b.WriteString("\n" + strings.Repeat(" ", statusWidth+3) + errorStyle.Render(truncate(r.err.Error(), nameWidth)))
			}
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	fmt.Fprintf(&b, "\n%d/%d built", finished, len(m.rows))
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	b.WriteByte('\n')
	return b.String()
}

func statusStyle(r row) lipgloss.Style {
	switch r.status {
	case buildpipeline.StatusDone:
		return doneStyle
	case buildpipeline.StatusError:
		return errorStyle
	case buildpipeline.StatusWorking:
		return workingStyle
	}
	return idleStyle
}

// truncate shortens value to width terminal cells, ending in "..." when
// there is room for it.
func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
