// Package tui is a terminal front end for the measurement controller.
package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

const (
	refreshInterval = 500 * time.Millisecond
	maxEvents       = 5
)

// Controller is the part of the measurement controller the TUI drives.
type Controller interface {
	Start(countdown time.Duration) error
	Stop() error
	Select(name string) error
	SetActive(name string, active bool) error
	Snapshot(name string) (stats.Snapshot, error)
	Sensors() []measurement.Status
	Selected() string
	Info() measurement.Info
}

type (
	refreshMsg time.Time
	startedMsg struct{ err error }
	stoppedMsg struct{ err error }
	actionMsg  struct{ err error }
)

// Model is the bubbletea model. Controller calls that wait on samplers run
// as commands so observer events keep flowing while they block.
type Model struct {
	ctrl      Controller
	countdown time.Duration

	keys     keyMap
	help     help.Model
	progress progress.Model
	width    int

	sensors  []measurement.Status
	cursor   int
	selected string
	snap     stats.Snapshot
	snapOf   string
	info     measurement.Info
	tick     measurement.Tick
	busy     bool
	status   string
	events   []string
}

// NewModel creates a model over ctrl. A positive countdown is used for
// every measurement started from the TUI.
func NewModel(ctrl Controller, countdown time.Duration) Model {
	m := Model{
		ctrl:      ctrl,
		countdown: countdown,
		keys:      defaultKeys,
		help:      help.New(),
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:     80,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return refreshCmd()
}

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// refresh pulls the sensor list and run state from the controller.
func (m *Model) refresh() {
	m.sensors = m.ctrl.Sensors()
	m.info = m.ctrl.Info()
	m.selected = m.ctrl.Selected()
	if m.cursor >= len(m.sensors) {
		m.cursor = max(len(m.sensors)-1, 0)
	}
	// While running, readings arrive as events for the selected sensor.
	if m.selected != "" && (m.snapOf != m.selected || !m.info.Running) {
		if snap, err := m.ctrl.Snapshot(m.selected); err == nil {
			m.snap = snap
			m.snapOf = m.selected
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = max(msg.Width-20, 10)

	case refreshMsg:
		m.refresh()
		return m, refreshCmd()

	case readingMsg:
		if msg.sensor == m.selected {
			m.snap = msg.snap
			m.snapOf = msg.sensor
		}

	case tickMsg:
		m.tick = measurement.Tick(msg)

	case finishedMsg:
		m.status = "measurement finished"
		m.refresh()

	case warningMsg:
		m.addEvent("warning: " + msg.err.Error())

	case faultMsg:
		m.addEvent(fmt.Sprintf("fault: %s: %v", msg.sensor, msg.err))

	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "cannot start: " + msg.err.Error()
		} else {
			m.status = "measurement running"
			m.tick = measurement.Tick{}
		}
		m.refresh()

	case stoppedMsg:
		m.busy = false
		m.status = "measurement stopped"
		if msg.err != nil {
			m.addEvent("stop: " + msg.err.Error())
		}
		m.refresh()

	case actionMsg:
		switch {
		case errors.Is(msg.err, measurement.ErrSensorInactive):
			m.status = "enable the sensor before showing it"
		case msg.err != nil:
			m.status = msg.err.Error()
		}
		m.refresh()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.sensors)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Select):
		name, ok := m.cursorSensor()
		if !ok {
			break
		}
		return m, m.action(func(c Controller) error { return c.Select(name) })

	case key.Matches(msg, m.keys.Toggle):
		if m.info.Running {
			m.status = "sensors cannot be changed while measuring"
			break
		}
		st, ok := m.cursorStatus()
		if !ok {
			break
		}
		active := !st.Descriptor.Active
		return m, m.action(func(c Controller) error { return c.SetActive(st.Descriptor.Name, active) })

	case key.Matches(msg, m.keys.Run):
		if m.busy {
			break
		}
		m.busy = true
		ctrl := m.ctrl
		if m.info.Running {
			m.status = "stopping..."
			return m, func() tea.Msg { return stoppedMsg{err: ctrl.Stop()} }
		}
		m.status = "starting..."
		countdown := m.countdown
		return m, func() tea.Msg { return startedMsg{err: ctrl.Start(countdown)} }
	}
	return m, nil
}

func (m Model) action(fn func(Controller) error) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return actionMsg{err: fn(ctrl)}
	}
}

func (m Model) cursorStatus() (measurement.Status, bool) {
	if m.cursor < 0 || m.cursor >= len(m.sensors) {
		return measurement.Status{}, false
	}
	return m.sensors[m.cursor], true
}

func (m Model) cursorSensor() (string, bool) {
	st, ok := m.cursorStatus()
	return st.Descriptor.Name, ok
}

func (m *Model) addEvent(s string) {
	m.events = append(m.events, time.Now().Format(time.TimeOnly)+" "+s)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}
