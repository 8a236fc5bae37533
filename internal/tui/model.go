// Package tui provides the Bubble Tea drill interface.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/generator"
	"github.com/verte-zerg/eardrill/internal/model"
)

type phase int

const (
	phaseCountdown phase = iota
	phasePlaying
	phaseAnswering
	phaseFeedback
)

const (
	countdownBeats = 2
	feedbackDelay  = 1200 * time.Millisecond
)

type beatMsg struct{ seq int }

type feedbackDoneMsg struct{ seq int }

// Saver persists finished bouts and calibration state.
type Saver interface {
	InsertBout(ctx context.Context, bout model.BoutRecord, trials []model.TrialRecord) (int64, error)
	SaveCalibration(ctx context.Context, bins map[int][]adaptive.Bin) error
}

// Options configures a drill Model.
type Options struct {
	Items   int  // items per bout
	Persist bool // save calibration bins after every bout
	Logger  *zap.Logger
	Now     func() time.Time
}

// Model implements the Bubble Tea drill UI.
type Model struct {
	sched   *adaptive.Scheduler
	gen     *generator.Generator
	saver   Saver
	items   int
	persist bool
	logger  *zap.Logger
	now     func() time.Time

	width  int
	height int

	// seq invalidates ticks scheduled for an earlier item.
	seq       int
	phase     phase
	countdown int
	playPos   int

	current     adaptive.Candidate
	degrees     []int
	input       []rune
	playbackEnd time.Time

	boutStarted time.Time
	trials      []model.TrialRecord
	last        *model.TrialRecord

	boutsDone   int
	lastBoutAvg float64
	hasLastBout bool
}

var (
	degreeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	hiddenStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	correctStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	incorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs a drill TUI model and prepares the first item.
func NewModel(sched *adaptive.Scheduler, gen *generator.Generator, saver Saver, opts Options) *Model {
	m := &Model{
		sched:   sched,
		gen:     gen,
		saver:   saver,
		items:   max(opts.Items, 1),
		persist: opts.Persist,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.boutStarted = m.now()
	m.prepareItem()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.beat()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case beatMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		return m, m.advance()
	case feedbackDoneMsg:
		if msg.seq != m.seq || m.phase != phaseFeedback {
			return m, nil
		}
		return m, m.nextItem()
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.Finish()
		return tea.Quit
	case tea.KeyEnter:
		switch m.phase {
		case phaseAnswering:
			return m.submit()
		case phaseFeedback:
			return m.nextItem()
		}
	case tea.KeyBackspace, tea.KeyDelete:
		if m.phase == phaseAnswering && len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeyRunes:
		if string(msg.Runes) == "q" && m.phase != phaseAnswering {
			m.Finish()
			return tea.Quit
		}
		if m.phase == phaseAnswering {
			for _, r := range msg.Runes {
				if r >= '1' && r <= '7' {
					m.input = append(m.input, r)
				}
			}
		}
	}
	return nil
}

// prepareItem asks the scheduler for the next candidate and starts the
// countdown.
func (m *Model) prepareItem() {
	m.seq++
	m.current = m.sched.Next()
	m.degrees = m.gen.Sequence(m.current.Level)
	m.input = nil
	m.phase = phaseCountdown
	m.countdown = countdownBeats
	m.playPos = 0
}

func (m *Model) beatDuration() time.Duration {
	return time.Duration(float64(time.Minute) / float64(max(m.current.Tempo, 1)))
}

func (m *Model) beat() tea.Cmd {
	seq := m.seq
	return tea.Tick(m.beatDuration(), func(time.Time) tea.Msg {
		return beatMsg{seq: seq}
	})
}

// advance moves one beat through countdown and playback.
func (m *Model) advance() tea.Cmd {
	switch m.phase {
	case phaseCountdown:
		m.countdown--
		if m.countdown <= 0 {
			m.phase = phasePlaying
			m.playPos = 0
		}
		return m.beat()
	case phasePlaying:
		m.playPos++
		if m.playPos >= len(m.degrees) {
			m.phase = phaseAnswering
			m.playbackEnd = m.now()
			return nil
		}
		return m.beat()
	default:
		return nil
	}
}

// submit scores the typed answer and feeds it back to the scheduler.
func (m *Model) submit() tea.Cmd {
	observed := m.now().Sub(m.playbackEnd).Seconds()
	answer := generator.ParseDegrees(string(m.input))
	correct := slices.Equal(answer, m.degrees)
	score := m.sched.ItemScore(correct, observed)
	m.sched.Feedback(correct, observed)

	trial := model.TrialRecord{
		Index:                len(m.trials),
		Level:                m.current.Level,
		Tempo:                m.current.Tempo,
		PredictedSeconds:     m.current.PredictedSeconds,
		ExpectedFitness:      m.current.ExpectedFitness,
		StructuralDifficulty: m.current.StructuralDifficulty,
		Correct:              correct,
		ObservedSeconds:      observed,
		Score:                score,
		Degrees:              generator.FormatDegrees(m.degrees),
	}
	m.trials = append(m.trials, trial)
	m.last = &trial
	m.phase = phaseFeedback
	if len(m.trials) >= m.items {
		m.saveBout()
	}
	seq := m.seq
	return tea.Tick(feedbackDelay, func(time.Time) tea.Msg {
		return feedbackDoneMsg{seq: seq}
	})
}

func (m *Model) nextItem() tea.Cmd {
	if len(m.trials) == 0 && m.last != nil {
		m.sched.NewBout()
		m.boutStarted = m.now()
	}
	m.last = nil
	m.prepareItem()
	return m.beat()
}

// Finish saves a partially completed bout. It is safe to call repeatedly.
func (m *Model) Finish() {
	if len(m.trials) > 0 {
		m.saveBout()
	}
}

func (m *Model) saveBout() {
	stats := m.sched.Update()
	bout := model.BoutRecord{
		UUID:            uuid.NewString(),
		StartedAt:       m.boutStarted,
		EndedAt:         m.now(),
		TargetFitness:   m.sched.Target(),
		Items:           stats.Items,
		CumulativeScore: stats.CumulativeScore,
	}
	ctx := context.Background()
	if _, err := m.saver.InsertBout(ctx, bout, m.trials); err != nil {
		m.logger.Error("failed to save bout", zap.String("bout", bout.UUID), zap.Error(err))
	} else {
		m.logger.Info("bout saved",
			zap.String("bout", bout.UUID),
			zap.Int("items", bout.Items),
			zap.Float64("avg_score", stats.AverageScore()),
		)
	}
	if m.persist {
		if err := m.saver.SaveCalibration(ctx, m.sched.CalibrationSnapshot()); err != nil {
			m.logger.Error("failed to save calibration", zap.Error(err))
		}
	}
	m.boutsDone++
	m.lastBoutAvg = stats.AverageScore()
	m.hasLastBout = true
	m.trials = nil
}

// View implements tea.Model.
func (m *Model) View() string {
	content := m.renderContent()
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	footer := m.renderFooter()
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderContent() string {
	switch m.phase {
	case phaseCountdown:
		return promptStyle.Render(fmt.Sprintf("Listen… %d", m.countdown))
	case phasePlaying:
		parts := make([]string, len(m.degrees))
		for i, d := range m.degrees {
			if i == m.playPos {
				parts[i] = degreeStyle.Render(fmt.Sprint(d))
			} else {
				parts[i] = hiddenStyle.Render("·")
			}
		}
		return strings.Join(parts, " ")
	case phaseAnswering:
		typed := make([]string, len(m.input))
		for i, r := range m.input {
			typed[i] = string(r)
		}
		return promptStyle.Render("Degrees: ") + degreeStyle.Render(strings.Join(typed, " ")+"_")
	case phaseFeedback:
		if m.last == nil {
			return ""
		}
		if m.last.Correct {
			return correctStyle.Render(fmt.Sprintf("✓ %.2fs · score %.2f", m.last.ObservedSeconds, m.last.Score))
		}
		return incorrectStyle.Render(fmt.Sprintf("✗ answer was %s", m.last.Degrees))
	default:
		return ""
	}
}

func (m *Model) renderFooter() string {
	stats := m.sched.Update()
	segments := []string{
		fmt.Sprintf("N=%d", m.current.Level),
		fmt.Sprintf("%d BPM", m.current.Tempo),
		fmt.Sprintf("Pred %.2fs", m.current.PredictedSeconds),
		fmt.Sprintf("Item %d/%d", min(len(m.trials)+1, m.items), m.items),
		fmt.Sprintf("Avg %.3f", stats.AverageScore()),
	}
	if m.hasLastBout {
		segments = append(segments, fmt.Sprintf("Last bout %.3f", m.lastBoutAvg))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}
