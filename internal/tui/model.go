// Package tui is a terminal viewer for a running simulation.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"marketsim/internal/marketdata/series"
	"marketsim/internal/markethours"
	"marketsim/internal/model"
)

const (
	minSpeed = 10 * time.Millisecond
	maxSpeed = time.Minute
)

// Engine is the part of *engine.Engine the viewer drives.
type Engine interface {
	Summaries() []model.Instrument
	Instrument(id int) (model.Instrument, error)
	Config() model.SimulationConfig
	MarketStatus() string
	Calendar() *markethours.Calendar
	Start()
	Stop()
	SetSpeed(d time.Duration) error
}

var (
	keyQuit   = key.NewBinding(key.WithKeys("ctrl+c", "q"))
	keyToggle = key.NewBinding(key.WithKeys("s", " "))
	keyFaster = key.NewBinding(key.WithKeys("+", "="))
	keySlower = key.NewBinding(key.WithKeys("-", "_"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyDay    = key.NewBinding(key.WithKeys("1"))
	keyWeek   = key.NewBinding(key.WithKeys("2"))
	keyMonth  = key.NewBinding(key.WithKeys("3"))
)

// updateMsg carries one engine update into the program loop.
type updateMsg struct {
	Update model.Update
}

// Model is the main TUI application model.
type Model struct {
	eng     Engine
	updates <-chan model.Update

	instruments []model.Instrument
	selected    int
	detail      model.Instrument
	bars        []model.Bar
	timeframe   series.Timeframe
	cfg         model.SimulationConfig
	status      string
	spikes      map[string]bool

	width  int
	height int

	statusMsg string
	ready     bool
}

// NewModel creates a viewer over eng. updates is usually a subscription
// from eng.Subscribe.
func NewModel(eng Engine, updates <-chan model.Update) *Model {
	m := &Model{
		eng:       eng,
		updates:   updates,
		timeframe: series.Day,
		spikes:    make(map[string]bool),
	}
	m.refresh()
	return m
}

// Init starts listening for engine updates.
func (m *Model) Init() tea.Cmd {
	return m.listenUpdates()
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case updateMsg:
		for _, iu := range msg.Update.Instruments {
			m.spikes[iu.Ticker] = iu.Spike
		}
		if !msg.Update.Generated {
			m.statusMsg = "market closed, clock moved to " + msg.Update.CurrentDate.Format("Mon Jan 2 15:04")
		}
		m.refresh()
		return m, m.listenUpdates()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keyQuit):
		return tea.Quit

	case key.Matches(msg, keyToggle):
		if m.cfg.IsRunning {
			m.eng.Stop()
			m.statusMsg = "stopped"
		} else {
			m.eng.Start()
			m.statusMsg = "started"
		}

	case key.Matches(msg, keyFaster):
		m.changeSpeed(m.cfg.Speed / 2)
	case key.Matches(msg, keySlower):
		m.changeSpeed(m.cfg.Speed * 2)

	case key.Matches(msg, keyUp):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, keyDown):
		if m.selected < len(m.instruments)-1 {
			m.selected++
		}

	case key.Matches(msg, keyDay):
		m.timeframe = series.Day
	case key.Matches(msg, keyWeek):
		m.timeframe = series.Week
	case key.Matches(msg, keyMonth):
		m.timeframe = series.Month
	default:
		return nil
	}
	m.refresh()
	return nil
}

func (m *Model) changeSpeed(d time.Duration) {
	if d < minSpeed {
		d = minSpeed
	}
	if d > maxSpeed {
		d = maxSpeed
	}
	if err := m.eng.SetSpeed(d); err != nil {
		m.statusMsg = "speed: " + err.Error()
		return
	}
	m.statusMsg = fmt.Sprintf("speed %s per tick", d)
}

// refresh re-reads engine state for the list, the selected instrument and
// its series.
func (m *Model) refresh() {
	m.cfg = m.eng.Config()
	m.status = m.eng.MarketStatus()
	m.instruments = m.eng.Summaries()
	if len(m.instruments) == 0 {
		return
	}
	if m.selected >= len(m.instruments) {
		m.selected = len(m.instruments) - 1
	}
	inst, err := m.eng.Instrument(m.instruments[m.selected].ID)
	if err != nil {
		m.statusMsg = err.Error()
		return
	}
	m.detail = inst
	m.bars = series.Build(inst.Ticker, inst.PriceHistory, m.timeframe, m.eng.Calendar())
}

func (m *Model) listenUpdates() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return nil
		}
		return updateMsg{Update: u}
	}
}

// Selected returns the ticker of the highlighted instrument.
func (m *Model) Selected() string {
	if m.selected < len(m.instruments) {
		return m.instruments[m.selected].Ticker
	}
	return ""
}

// Timeframe returns the chart window in use.
func (m *Model) Timeframe() series.Timeframe { return m.timeframe }

// View renders the UI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	leftWidth := m.width / 3
	rightWidth := m.width - leftWidth
	height := m.height - 1

	left := m.renderList(leftWidth, height)
	right := m.renderDetail(rightWidth, height)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.renderStatusBar(),
	)
}

func (m *Model) renderList(width, height int) string {
	var content strings.Builder
	content.WriteString(HeaderStyle.Render(fmt.Sprintf("%-6s %10s %8s", "Ticker", "Price", "Mom")))
	for i, inst := range m.instruments {
		content.WriteString("\n")
		row := fmt.Sprintf("%-6s %10.2f %+8.4f", inst.Ticker, inst.CurrentPrice, inst.Momentum)
		style := changeStyle(inst.Momentum)
		if i == m.selected {
			style = SelectedRowStyle
		}
		content.WriteString(style.Render(row))
		if m.spikes[inst.Ticker] {
			content.WriteString(SpikeStyle.Render(" ⚡"))
		}
	}

	panel := lipgloss.JoinVertical(lipgloss.Left, RenderTitle("Instruments", true), content.String())
	return FocusedPanelStyle.Width(max(width-2, 10)).Height(max(height-2, 3)).Render(panel)
}

func (m *Model) renderDetail(width, height int) string {
	inst := m.detail
	inner := max(width-6, 10)

	var content strings.Builder
	content.WriteString(fmt.Sprintf("%s (%s)  %.2f\n", inst.Name, inst.Ticker, inst.CurrentPrice))

	content.WriteString(HeaderStyle.Render(fmt.Sprintf("Chart %s, %d bars", m.timeframe, len(m.bars))))
	content.WriteString("\n")
	if len(m.bars) == 0 {
		content.WriteString(MutedStyle.Render("no data yet"))
	} else {
		content.WriteString(ChartStyle.Render(Sparkline(closes(m.bars), inner)))
	}
	content.WriteString("\n\n")

	bar := max(inner-32, 5)
	content.WriteString(HeaderStyle.Render("Indicators"))
	for _, ind := range inst.Indicators {
		content.WriteString(fmt.Sprintf("\n%-26s %6.1f %s", ind.Name, ind.Value, gauge(ind.Value, ind.Min, ind.Max, bar)))
	}
	if len(inst.Technicals) > 0 {
		content.WriteString("\n\n")
		content.WriteString(HeaderStyle.Render("Technicals"))
		for _, tr := range inst.Technicals {
			val := fmt.Sprintf("%6.1f", tr.Value)
			if !tr.Ready {
				val = MutedStyle.Render(val)
			}
			content.WriteString(fmt.Sprintf("\n%-26s %s %s", tr.Name, val, gauge(tr.Value, 0, 100, bar)))
		}
	}
	if len(inst.Fundamentals) > 0 {
		content.WriteString("\n\n")
		content.WriteString(HeaderStyle.Render("Fundamentals"))
		for _, f := range inst.Fundamentals {
			content.WriteString(fmt.Sprintf("\n%-26s %8.2f", f.Name, f.Value))
		}
	}

	panel := lipgloss.JoinVertical(lipgloss.Left, RenderTitle("Detail", false), content.String())
	return PanelStyle.Width(max(width-2, 10)).Height(max(height-2, 3)).Render(panel)
}

func (m *Model) renderStatusBar() string {
	state := StoppedStyle.Render("STOPPED")
	if m.cfg.IsRunning {
		state = RunningStyle.Render("RUNNING")
	}
	help := []string{
		StatusBarKeyStyle.Render("s") + StatusBarDescStyle.Render(" start/stop"),
		StatusBarKeyStyle.Render("+/-") + StatusBarDescStyle.Render(" speed"),
		StatusBarKeyStyle.Render("1/2/3") + StatusBarDescStyle.Render(" 1D/1W/1M"),
		StatusBarKeyStyle.Render("q") + StatusBarDescStyle.Render(" quit"),
	}
	line := fmt.Sprintf("%s │ %s │ %s │ %s%s │ %s",
		state,
		m.cfg.CurrentDate.Format("Mon 2006-01-02 15:04"),
		m.cfg.Speed,
		m.status,
		sessionProgress(m.eng.Calendar(), m.cfg.CurrentDate),
		strings.Join(help, " "),
	)
	if m.statusMsg != "" {
		line += " │ " + m.statusMsg
	}
	return StatusBarStyle.Width(m.width).Render(line)
}

// sessionProgress renders how far through today's session t is, or
// nothing while the market is closed.
func sessionProgress(cal *markethours.Calendar, t time.Time) string {
	left := cal.TimeUntilClose(t)
	if left == 0 {
		return ""
	}
	total := cal.SessionLength()
	return fmt.Sprintf(", session %.0f%%", float64(total-left)/float64(total)*100)
}
