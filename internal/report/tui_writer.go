package report

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// scenarioMsg announces the scenario that is about to run.
type scenarioMsg struct {
	nodes int
	flows int
}

// resultMsg carries a finished sweep point.
type resultMsg struct{ metrics.ScenarioResult }

// summaryMsg marks the end of the sweep.
type summaryMsg struct{ total time.Duration }

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUIWriter renders sweep progress using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process so a running sweep is cancelled.
func NewTUIWriter(title string, planned []int) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title, planned), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteScenario implements ScenarioWriter.
func (w *TUIWriter) WriteScenario(sc scenario.Scenario) error {
	w.program.Send(scenarioMsg{nodes: sc.NodeCount, flows: len(sc.Traffic)})
	w.program.Send(logMsg{line: fmt.Sprintf("%d nodes on a %dx%d grid, %d flows", sc.NodeCount, sc.GridSize, sc.GridSize, len(sc.Traffic))})
	return nil
}

// WriteResult implements ResultWriter.
func (w *TUIWriter) WriteResult(r metrics.ScenarioResult) error {
	for _, s := range r.Samples {
		rec := s.Record
		w.program.Send(logMsg{line: fmt.Sprintf("  flow %d (%s -> %s) tx=%d rx=%d throughput=%s Kbps delay=%s ms loss=%s",
			rec.ID, rec.Source, rec.Destination, rec.TxPackets, rec.RxPackets,
			formatFloat(s.ThroughputKbps), formatFloat(s.DelayMs), formatFloat(s.LossRatio))})
	}
	if r.Degenerate {
		w.program.Send(logMsg{line: fmt.Sprintf("%d nodes: no valid flows detected", r.Nodes)})
	}
	w.program.Send(resultMsg{r})
	return nil
}

// WriteSummary implements SummaryWriter.
func (w *TUIWriter) WriteSummary(total time.Duration) error {
	w.program.Send(summaryMsg{total: total})
	return nil
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	title      string
	planned    []int
	table      table.Model
	vp         viewport.Model
	logs       []string
	completed  int
	running    int
	flows      int
	total      time.Duration
	finished   bool
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string, planned []int) tuiModel {
	cols := []table.Column{
		{Title: "Nodes", Width: 6},
		{Title: "Flows", Width: 6},
		{Title: "Valid", Width: 6},
		{Title: "Kbps", Width: 10},
		{Title: "Delay ms", Width: 10},
		{Title: "Loss", Width: 8},
		{Title: "p95 ms", Width: 10},
		{Title: "Elapsed", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(planned)+1))
	return tuiModel{
		title:      title,
		planned:    planned,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case scenarioMsg:
		m.running = msg.nodes
		m.flows = msg.flows
	case resultMsg:
		m.completed++
		m.running = 0
		rows := append(m.table.Rows(), resultRow(msg.ScenarioResult))
		m.table.SetRows(rows)
	case logMsg:
		m.logs = append(m.logs, msg.line)
		m.refreshViewport()
	case summaryMsg:
		m.finished = true
		m.total = msg.total
	}
	return m, nil
}

func resultRow(r metrics.ScenarioResult) table.Row {
	return table.Row{
		fmt.Sprintf("%d", r.Nodes),
		fmt.Sprintf("%d", r.TotalFlows),
		fmt.Sprintf("%d", r.ValidFlows),
		formatFloat(r.AvgThroughputKbps),
		formatFloat(r.AvgDelayMs),
		formatFloat(r.AvgLossRatio),
		formatFloat(r.DelayP95Ms),
		r.WallClock.Round(time.Millisecond).String(),
	}
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.table.View()) - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	status := fmt.Sprintf("%d/%d scenarios", m.completed, len(m.planned))
	switch {
	case m.finished:
		status += fmt.Sprintf(", done in %s", m.total.Round(time.Millisecond))
	case m.running > 0:
		status += fmt.Sprintf(", running %d nodes (%d flows)", m.running, m.flows)
	}
	return titleStyle.Render(m.title) + "\n" + status
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	help := helpStyle.Render("q quit • w wrap • s autoscroll • ↑/↓ scroll")
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		help,
	}, "\n")
}
