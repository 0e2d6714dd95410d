// Package persist writes every reading handed off by the samplers to one
// output file per sensor and format.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

var (
	ErrUnknownExtension = errors.New("unknown output extension")
	ErrSinkClosed       = errors.New("sink is closed")
)

// PersistenceError reports an output file that could not be opened or
// written. It never stops the measurement.
type PersistenceError struct {
	Sensor string
	Path   string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence for sensor %s (%s): %v", e.Sensor, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RowSink stores readings of one sensor in one file.
type RowSink interface {
	// WriteRow appends one reading.
	WriteRow(r sensor.Reading) error
	// Flush makes rows written so far durable where the format allows it.
	Flush() error
	Close() error
	Path() string
}

// SinkOptions carry the per-run settings shared by every sink.
type SinkOptions struct {
	Separator rune
	RunID     string
}

// SinkFactory opens a sink at path for the described sensor. The header,
// when the format has one, is written before it returns.
type SinkFactory func(path string, d sensor.Descriptor, opts SinkOptions) (RowSink, error)

var factories = map[string]SinkFactory{
	"csv":     openCSV,
	"txt":     openCSV,
	"parquet": openParquet,
	"db":      openSQLite,
}

// Extensions lists the supported output extensions.
func Extensions() []string {
	out := make([]string, 0, len(factories))
	for ext := range factories {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether ext has a sink.
func Supported(ext string) bool {
	_, ok := factories[normalizeExt(ext)]
	return ok
}

func factoryFor(ext string) (SinkFactory, error) {
	f, ok := factories[normalizeExt(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
	return f, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// StartLayout formats the run start time used in file names.
const StartLayout = "02-01-2006_15-04-05"

// FileName builds <outputPath><prefix>_<sensor>__<start>.<ext>. The prefix
// and its separator are omitted when prefix is empty.
func FileName(outputPath, prefix, sensorName, start, ext string) string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(sensorName)
	if prefix != "" {
		name = prefix + "_" + name
	}
	return outputPath + name + "__" + start + "." + normalizeExt(ext)
}

// createFile creates path for writing. It fails with os.ErrExist rather
// than truncate an earlier run's file.
func createFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// header returns Value 1..Value N followed by Time.
func header(channels int) []string {
	cols := make([]string, 0, channels+1)
	for i := 1; i <= channels; i++ {
		cols = append(cols, fmt.Sprintf("Value %d", i))
	}
	return append(cols, "Time")
}
