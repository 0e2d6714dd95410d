package tui

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

type fakeController struct {
	mu        sync.Mutex
	sensors   []measurement.Status
	selected  string
	running   bool
	startErr  error
	countdown time.Duration
	calls     []string
}

func newFakeController() *fakeController {
	return &fakeController{
		selected: "Distance",
		sensors: []measurement.Status{
			{Descriptor: sensor.Descriptor{Name: "Distance", Kind: sensor.KindSimulated, Channels: 1, Units: []string{"cm"}, Active: true}, Selected: true},
			{Descriptor: sensor.Descriptor{Name: "Weather", Kind: sensor.KindSimulated, Channels: 3, Active: true}},
			{Descriptor: sensor.Descriptor{Name: "Spare", Kind: sensor.KindSimulated, Channels: 1}},
		},
	}
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) Start(countdown time.Duration) error {
	f.record("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.countdown = countdown
	return nil
}

func (f *fakeController) Stop() error {
	f.record("stop")
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Select(name string) error {
	f.record("select " + name)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, st := range f.sensors {
		if st.Descriptor.Name == name {
			if !st.Descriptor.Active {
				return measurement.ErrSensorInactive
			}
			f.selected = name
			for j := range f.sensors {
				f.sensors[j].Selected = j == i
			}
			return nil
		}
	}
	return measurement.ErrUnknownSensor
}

func (f *fakeController) SetActive(name string, active bool) error {
	f.record("active " + name)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sensors {
		if f.sensors[i].Descriptor.Name == name {
			f.sensors[i].Descriptor.Active = active
			return nil
		}
	}
	return measurement.ErrUnknownSensor
}

func (f *fakeController) Snapshot(name string) (stats.Snapshot, error) {
	return stats.New(1, 10).Snapshot(), nil
}

func (f *fakeController) Sensors() []measurement.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]measurement.Status(nil), f.sensors...)
}

func (f *fakeController) Selected() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

func (f *fakeController) Info() measurement.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return measurement.Info{Running: f.running, RunID: "run-1"}
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keySpace = tea.KeyMsg{Type: tea.KeySpace}
	keyRun   = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")}
	keyQuit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
)

func TestModel_CursorBounds(t *testing.T) {
	m := NewModel(newFakeController(), 0)

	m, _ = press(t, m, keyUp)
	assert.Equal(t, 0, m.cursor)

	for range 5 {
		m, _ = press(t, m, keyDown)
	}
	assert.Equal(t, 2, m.cursor)
}

func TestModel_Select(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, 0)

	m, _ = press(t, m, keyDown)
	m, cmd := press(t, m, keyEnter)
	m = run(t, m, cmd)
	assert.Equal(t, "Weather", m.selected)

	m, _ = press(t, m, keyDown)
	m, cmd = press(t, m, keyEnter)
	m = run(t, m, cmd)
	assert.Equal(t, "Weather", m.selected)
	assert.Equal(t, "enable the sensor before showing it", m.status)
}

func TestModel_Toggle(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, 0)

	m, cmd := press(t, m, keySpace)
	m = run(t, m, cmd)
	assert.False(t, m.sensors[0].Descriptor.Active)
	assert.Contains(t, ctrl.calls, "active Distance")
}

func TestModel_ToggleRejectedWhileRunning(t *testing.T) {
	ctrl := newFakeController()
	ctrl.running = true
	m := NewModel(ctrl, 0)

	m, cmd := press(t, m, keySpace)
	assert.Nil(t, cmd)
	assert.Equal(t, "sensors cannot be changed while measuring", m.status)
	assert.Empty(t, ctrl.calls)
}

func TestModel_StartStop(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, time.Minute)

	m, cmd := press(t, m, keyRun)
	assert.True(t, m.busy)

	_, again := press(t, m, keyRun)
	assert.Nil(t, again, "no second command while busy")

	m = run(t, m, cmd)
	assert.False(t, m.busy)
	assert.True(t, m.info.Running)
	assert.Equal(t, time.Minute, ctrl.countdown)
	assert.Equal(t, "measurement running", m.status)

	m, cmd = press(t, m, keyRun)
	m = run(t, m, cmd)
	assert.False(t, m.info.Running)
	assert.Equal(t, []string{"start", "stop"}, ctrl.calls)
}

func TestModel_StartError(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = measurement.ErrNoActiveSensors
	m := NewModel(ctrl, 0)

	m, cmd := press(t, m, keyRun)
	m = run(t, m, cmd)
	assert.False(t, m.info.Running)
	assert.Contains(t, m.status, "cannot start")
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(newFakeController(), 0)
	_, cmd := press(t, m, keyQuit)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_Events(t *testing.T) {
	m := NewModel(newFakeController(), 0)

	agg := stats.New(1, 10)
	require.NoError(t, agg.Add([]float64{42}, time.Now()))

	next, _ := m.Update(readingMsg{sensor: "Weather", snap: agg.Snapshot()})
	m = next.(Model)
	assert.True(t, m.snap.Empty(), "readings of other sensors are ignored")

	next, _ = m.Update(readingMsg{sensor: "Distance", snap: agg.Snapshot()})
	m = next.(Model)
	assert.Equal(t, 1, m.snap.Count)

	for range maxEvents + 2 {
		next, _ = m.Update(warningMsg{err: errors.New("disk full")})
		m = next.(Model)
	}
	assert.Len(t, m.events, maxEvents)

	next, _ = m.Update(tickMsg(measurement.Tick{Elapsed: 3 * time.Second, Remaining: 7 * time.Second, Countdown: true}))
	m = next.(Model)
	assert.Equal(t, 7*time.Second, m.tick.Remaining)
}

func TestModel_View(t *testing.T) {
	m := NewModel(newFakeController(), 0)
	view := m.View()

	for _, name := range []string{"Distance", "Weather", "Spare", "waiting for readings"} {
		assert.Contains(t, view, name)
	}
	assert.Contains(t, view, "idle")
}

func TestBridge_DetachedDiscards(t *testing.T) {
	b := NewBridge()
	assert.NotPanics(t, func() {
		b.OnTick(measurement.Tick{})
		b.OnFinished()
		b.OnWarning(errors.New("x"))
		b.OnFault("Distance", errors.New("x"))
		b.OnReading("Distance", stats.Snapshot{})
	})
}

func TestBridge_Deliver(t *testing.T) {
	var got []tea.Msg
	b := &Bridge{send: func(msg tea.Msg) { got = append(got, msg) }}

	b.OnFinished()
	b.OnFault("Distance", errors.New("gone"))

	require.Len(t, got, 2)
	assert.Equal(t, finishedMsg{}, got[0])
	assert.Equal(t, "Distance", got[1].(faultMsg).sensor)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁▄█", sparkline([]float64{0, 5, 10}))
	assert.Equal(t, "▅▅", sparkline([]float64{3, 3}))
	assert.Equal(t, "▁ █", sparkline([]float64{1, math.NaN(), 2}))
	assert.Equal(t, "-", formatValue(math.Inf(1)))
	assert.Equal(t, "1.50", formatValue(1.5))
}
