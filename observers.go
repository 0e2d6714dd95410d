package main

import (
	"log/slog"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// logObserver writes measurement events to the log.
type logObserver struct {
	logger *slog.Logger
}

func (o logObserver) OnReading(name string, snap stats.Snapshot) {
	o.logger.Debug("reading", "sensor", name, "values", snap.Current, "count", snap.Count)
}

func (o logObserver) OnTick(measurement.Tick) {}

func (o logObserver) OnFinished() {
	o.logger.Info("measurement finished")
}

func (o logObserver) OnWarning(err error) {
	o.logger.Warn("measurement warning", "error", err)
}

func (o logObserver) OnFault(name string, err error) {
	o.logger.Error("sensor stopped", "sensor", name, "error", err)
}
