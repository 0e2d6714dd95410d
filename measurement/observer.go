// Package measurement coordinates samplers, the persistence writer and the
// elapsed time emitter over the lifetime of one measurement run.
package measurement

import (
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// Observer receives measurement events. Calls come from sampler, writer and
// emitter goroutines; implementations must be safe for concurrent use and
// must not block.
type Observer interface {
	// OnReading is called for readings of the selected sensor only.
	OnReading(sensor string, snap stats.Snapshot)
	OnTick(t Tick)
	// OnFinished is called once when a countdown ends the measurement.
	OnFinished()
	OnWarning(err error)
	// OnFault is called when a sampler stops because of err.
	OnFault(sensor string, err error)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// ignored.
type ObserverFuncs struct {
	Reading  func(sensor string, snap stats.Snapshot)
	Tick     func(t Tick)
	Finished func()
	Warning  func(err error)
	Fault    func(sensor string, err error)
}

func (f ObserverFuncs) OnReading(name string, snap stats.Snapshot) {
	if f.Reading != nil {
		f.Reading(name, snap)
	}
}

func (f ObserverFuncs) OnTick(t Tick) {
	if f.Tick != nil {
		f.Tick(t)
	}
}

func (f ObserverFuncs) OnFinished() {
	if f.Finished != nil {
		f.Finished()
	}
}

func (f ObserverFuncs) OnWarning(err error) {
	if f.Warning != nil {
		f.Warning(err)
	}
}

func (f ObserverFuncs) OnFault(name string, err error) {
	if f.Fault != nil {
		f.Fault(name, err)
	}
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (o Observers) OnReading(name string, snap stats.Snapshot) {
	for _, obs := range o {
		obs.OnReading(name, snap)
	}
}

func (o Observers) OnTick(t Tick) {
	for _, obs := range o {
		obs.OnTick(t)
	}
}

func (o Observers) OnFinished() {
	for _, obs := range o {
		obs.OnFinished()
	}
}

func (o Observers) OnWarning(err error) {
	for _, obs := range o {
		obs.OnWarning(err)
	}
}

func (o Observers) OnFault(name string, err error) {
	for _, obs := range o {
		obs.OnFault(name, err)
	}
}

// Tap receives every reading of every sensor from the sampling goroutine.
// The reading must be treated as read-only and OnSample must not block.
type Tap interface {
	OnSample(d sensor.Descriptor, r sensor.Reading)
}

// TapFunc adapts a function to Tap.
type TapFunc func(d sensor.Descriptor, r sensor.Reading)

func (f TapFunc) OnSample(d sensor.Descriptor, r sensor.Reading) {
	f(d, r)
}

var (
	_ Observer = ObserverFuncs{}
	_ Observer = Observers{}
	_ Tap      = TapFunc(nil)
)
