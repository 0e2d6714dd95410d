package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

type (
	readingMsg struct {
		sensor string
		snap   stats.Snapshot
	}
	tickMsg     measurement.Tick
	finishedMsg struct{}
	warningMsg  struct{ err error }
	faultMsg    struct {
		sensor string
		err    error
	}
)

// Bridge forwards measurement events to a running program. Events sent
// before Attach or after the program exits are discarded.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge returns a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes events to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.send = p.Send
	b.mu.Unlock()
}

func (b *Bridge) deliver(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()

	if send != nil {
		send(msg)
	}
}

func (b *Bridge) OnReading(name string, snap stats.Snapshot) {
	b.deliver(readingMsg{sensor: name, snap: snap})
}

func (b *Bridge) OnTick(t measurement.Tick) { b.deliver(tickMsg(t)) }
func (b *Bridge) OnFinished()               { b.deliver(finishedMsg{}) }
func (b *Bridge) OnWarning(err error)       { b.deliver(warningMsg{err: err}) }

func (b *Bridge) OnFault(name string, err error) {
	b.deliver(faultMsg{sensor: name, err: err})
}

var _ measurement.Observer = (*Bridge)(nil)
