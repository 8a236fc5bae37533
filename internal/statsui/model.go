// Package statsui provides the Bubble Tea stats interface.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/model"
	"github.com/verte-zerg/eardrill/internal/stats"
)

const (
	tabOverview = iota
	tabLevels
	tabCalibration
)

const (
	plotHeight   = 8
	defaultWidth = 80
)

var (
	tabOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#5FAFD7"))
	tabOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9AA0AA")).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#3A3F4B"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#3A3F4B"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
)

// Model implements the Bubble Tea stats UI.
type Model struct {
	src   stats.Source
	cfg   model.StatsConfig
	calib adaptive.Config

	report stats.Report
	errMsg string

	tabs       []string
	activeTab  int
	viewports  []viewport.Model
	levelTable table.Model

	width  int
	height int

	editingLast  bool
	lastInput    textinput.Model
	lastInputErr string
}

// NewModel constructs a stats UI model. calib lays out the bins used to
// refit persisted calibration curves.
func NewModel(src stats.Source, cfg model.StatsConfig, calib adaptive.Config) *Model {
	m := &Model{
		src:   src,
		cfg:   cfg,
		calib: calib,
		tabs:  []string{"Overview", "Levels", "Calibration"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.levelTable = table.New(table.WithColumns(levelColumns()), table.WithHeight(1))
	m.levelTable.SetStyles(levelTableStyles())
	m.lastInput = textinput.New()
	m.lastInput.Prompt = "Last bouts (0 = all): "
	m.lastInput.CharLimit = 6
	m.reload()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTabs()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.editingLast {
			return m.updateLastInput(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.cycleTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.cycleTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.reload()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.reload()
			return m, nil
		case "/":
			m.editingLast = true
			m.lastInputErr = ""
			if m.cfg.Last > 0 {
				m.lastInput.SetValue(strconv.Itoa(m.cfg.Last))
			} else {
				m.lastInput.SetValue("")
			}
			return m, m.lastInput.Focus()
		}
		if m.activeTab == tabLevels {
			var cmd tea.Cmd
			m.levelTable, cmd = m.levelTable.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateLastInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editingLast = false
		m.lastInput.Blur()
		return m, nil
	case tea.KeyEnter:
		raw := strings.TrimSpace(m.lastInput.Value())
		last := 0
		if raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				m.lastInputErr = fmt.Sprintf("invalid bout count %q", raw)
				return m, nil
			}
			last = n
		}
		m.cfg.Last = last
		m.editingLast = false
		m.lastInput.Blur()
		m.reload()
		return m, nil
	}
	var cmd tea.Cmd
	m.lastInput, cmd = m.lastInput.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.regionHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) regionHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = max(lipgloss.Height(tabOnStyle.Render("X")), 1) + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.regionHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.levelTable.SetWidth(m.width)
	m.levelTable.SetHeight(max(bodyHeight-1, 1))
	m.lastInput.Width = max(m.width-lipgloss.Width(m.lastInput.Prompt)-2, 10)
}

func (m *Model) cycleTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabLevels {
		m.levelTable.Focus()
	} else {
		m.levelTable.Blur()
	}
}

func (m *Model) renderHeader() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, tabOnStyle.Render(tab))
		} else {
			parts = append(parts, tabOffStyle.Render(tab))
		}
	}
	tabs := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	summary := fmt.Sprintf("Settings: since=%s  last=%s  window=%d", since, last, m.cfg.CurveWindow)
	return tabs + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	if m.editingLast {
		return headerStyle.Render("enter: apply  esc: cancel")
	}
	help := headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Filter: /  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody() string {
	if m.editingLast {
		lines := []string{"Filter (enter to apply, esc to cancel)", m.lastInput.View()}
		if m.lastInputErr != "" {
			lines = append(lines, errorStyle.Render(m.lastInputErr))
		}
		return strings.Join(lines, "\n")
	}
	if m.activeTab == tabLevels {
		if len(m.report.LevelsAll) == 0 {
			return "No trials found."
		}
		return m.levelTable.View()
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) reload() {
	report, err := stats.BuildReport(context.Background(), m.src, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.renderTabs()
		return
	}
	m.errMsg = ""
	m.report = report
	m.levelTable.SetRows(levelRows(report.LevelsAll))
	m.resize()
	m.renderTabs()
}

func (m *Model) renderTabs() {
	if m.errMsg != "" {
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load stats.")
		}
		return
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.viewports[tabCalibration].SetContent(renderCalibration(m.report.Calibration, m.calib, width))
}

func renderOverview(report stats.Report, window, width int) string {
	if len(report.Bouts) == 0 {
		return "No bouts found."
	}
	var items, correct int
	var score float64
	for _, b := range report.Bouts {
		items += b.Items
		correct += b.Correct
		score += b.CumulativeScore
	}
	avg, acc := stats.BoutMetrics(items, correct, score)
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		metricCard("Bouts", strconv.Itoa(len(report.Bouts))),
		metricCard("Items", strconv.Itoa(items)),
		metricCard("Avg Score", fmt.Sprintf("%.3f", avg)),
		metricCard("Accuracy", fmt.Sprintf("%.1f%%", acc*100)),
	)
	if weak := stats.WeakestLevels(report.LevelsWindow, 3); len(weak) > 0 {
		labels := make([]string, len(weak))
		for i, n := range weak {
			labels[i] = strconv.Itoa(n)
		}
		cards += "\n" + headerStyle.Render("Weakest levels (window): "+strings.Join(labels, ", "))
	}
	var buf bytes.Buffer
	if err := stats.RenderScoreCurve(&buf, report.Bouts, window, width, plotHeight, true); err != nil {
		return cards + "\n\nFailed to render curve: " + err.Error()
	}
	return strings.TrimRight(cards+"\n\n"+buf.String(), "\n")
}

func renderCalibration(bins map[int][]adaptive.Bin, calib adaptive.Config, width int) string {
	fitted, err := stats.FitCurves(calib, bins)
	if err != nil {
		return fmt.Sprintf("Failed to fit calibration: %v", err)
	}
	var buf bytes.Buffer
	if err := stats.RenderCalibration(&buf, fitted, stats.ObservationCounts(bins), width, true); err != nil {
		return fmt.Sprintf("Failed to render calibration: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func metricCard(label, value string) string {
	return cardStyle.Render(cardTitleStyle.Render(label) + "\n" + cardValueStyle.Render(value))
}

func levelColumns() []table.Column {
	widths := []int{5, 6, 9, 10, 9, 9, 8}
	cols := make([]table.Column, len(stats.LevelHeaders))
	for i, title := range stats.LevelHeaders {
		cols[i] = table.Column{Title: title, Width: widths[i]}
	}
	return cols
}

func levelRows(aggs []model.LevelAggregate) []table.Row {
	rows := make([]table.Row, 0, len(aggs))
	for _, agg := range aggs {
		rows = append(rows, table.Row(stats.LevelRow(agg)))
	}
	return rows
}

func levelTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#3A3F4B")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		PaddingLeft(0)
	styles.Cell = styles.Cell.PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
