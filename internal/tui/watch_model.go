package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"flowbar/backend/internal/client"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/surface"
)

const progressWidth = 30

// Controller is the part of the daemon client the watch view drives.
type Controller interface {
	Timer(ctx context.Context) (*client.ControlResult, error)
	Control(ctx context.Context, action string) (*client.ControlResult, error)
}

type keyMap struct {
	Toggle key.Binding
	Reset  key.Binding
	Stop   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Reset, k.Stop, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var watchKeys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "space", "t"), key.WithHelp("space", "toggle")),
	Reset:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// WatchModel renders a live countdown of the daemon's timer.
type WatchModel struct {
	width int
	help  help.Model

	controller Controller
	effects    <-chan surface.Effect
	now        func() time.Time

	info    model.TimerInfo
	loaded  bool
	summary *model.DomainSummary
	notice  string
	err     error
}

type tickMsg time.Time

type effectMsg surface.Effect

type infoMsg struct {
	info model.TimerInfo
}

type errMsg struct {
	err error
}

func NewWatchModel(controller Controller, effects <-chan surface.Effect) WatchModel {
	return WatchModel{
		help:       help.New(),
		controller: controller,
		effects:    effects,
		now:        time.Now,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.fetch(), m.waitForEffect())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		result, err := m.controller.Timer(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return infoMsg{info: result.TimerInfo}
	}
}

func (m WatchModel) control(action string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.controller.Control(context.Background(), action)
		if err != nil {
			return errMsg{err: err}
		}
		return infoMsg{info: result.TimerInfo}
	}
}

func (m WatchModel) waitForEffect() tea.Cmd {
	if m.effects == nil {
		return nil
	}
	return func() tea.Msg {
		effect, ok := <-m.effects
		if !ok {
			return nil
		}
		return effectMsg(effect)
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case infoMsg:
		m.info = msg.info
		m.loaded = true
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case effectMsg:
		effect := surface.Effect(msg)
		switch effect.Kind {
		case surface.KindTitle:
			m.summary = effect.Summary
			return m, m.waitForEffect()
		case surface.KindPhase:
			m.notice = phaseNotice(effect)
		case surface.KindBadge:
			return m, m.waitForEffect()
		}
		return m, tea.Batch(m.fetch(), m.waitForEffect())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Toggle):
			return m, m.control("toggle")
		case key.Matches(msg, watchKeys.Reset):
			return m, m.control("reset")
		case key.Matches(msg, watchKeys.Stop):
			return m, m.control("stop")
		case key.Matches(msg, watchKeys.Quit):
			return m, tea.Quit
		}
	}

	return m, nil
}

// Remaining counts down from endTime for running phases so the view moves
// between daemon updates.
func (m WatchModel) Remaining() int {
	if m.info.TimerState.IsRunning() && m.info.EndTime != nil {
		left := time.UnixMilli(*m.info.EndTime).Sub(m.now())
		if left <= 0 {
			return 0
		}
		return int((left + time.Second - 1) / time.Second)
	}
	return m.info.TimeLeft
}

func (m WatchModel) View() string {
	if !m.loaded {
		if m.err != nil {
			return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("flowbar: "+m.err.Error()) + "\n"
		}
		return "Connecting to flowbar..."
	}

	var lines []string
	state := m.info.TimerState
	label := strings.ToUpper(string(state))
	if state == model.StatePaused && m.info.OriginalTimerType != nil {
		label = fmt.Sprintf("PAUSED (%s)", *m.info.OriginalTimerType)
	}
	lines = append(lines, phaseStyle(state).Render(label))

	remaining := m.Remaining()
	clockStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Bold(true)
	lines = append(lines, clockStyle.Render(model.FormatClock(remaining)))
	lines = append(lines, progressBar(m.info.TotalDuration, remaining))

	secondary := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	if m.summary != nil && m.summary.Domain != "" {
		lines = append(lines, secondary.Render(fmt.Sprintf("[%s] %s", m.summary.Grade, m.summary.Summary)))
	}
	if m.notice != "" {
		lines = append(lines, secondary.Italic(true).Render(m.notice))
	}
	if m.err != nil {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render(m.err.Error()))
	}

	lines = append(lines, "", m.help.View(watchKeys))

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func progressBar(total, remaining int) string {
	if total <= 0 {
		return strings.Repeat("░", progressWidth)
	}
	done := (total - remaining) * progressWidth / total
	if done < 0 {
		done = 0
	}
	if done > progressWidth {
		done = progressWidth
	}
	return strings.Repeat("█", done) + strings.Repeat("░", progressWidth-done)
}

func phaseNotice(effect surface.Effect) string {
	switch {
	case effect.Previous == model.StateFocus && effect.State == model.StateBreak:
		return "Focus session complete, take a break."
	case effect.Previous == model.StateBreak && effect.State == model.StateFocus:
		return "Break is over, back to focus."
	case effect.State == model.StateStopped:
		return "Timer stopped."
	}
	return fmt.Sprintf("Now %s.", effect.State)
}

// RunWatch shows the live view until the user quits or ctx is done.
func RunWatch(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	effects := make(chan surface.Effect, 16)
	go func() {
		defer close(effects)
		_ = c.Effects(ctx, effects)
	}()

	program := tea.NewProgram(NewWatchModel(c, effects), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
