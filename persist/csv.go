package persist

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

type csvSink struct {
	path   string
	file   *os.File
	w      *csv.Writer
	closed bool
}

func openCSV(path string, d sensor.Descriptor, opts SinkOptions) (RowSink, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if opts.Separator != 0 {
		w.Comma = opts.Separator
	}

	s := &csvSink{path: path, file: f, w: w}
	if err := w.Write(header(d.Channels)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	// An empty run still leaves a header-only file.
	if err := s.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *csvSink) WriteRow(r sensor.Reading) error {
	if s.closed {
		return ErrSinkClosed
	}
	rec := make([]string, 0, len(r.Values)+1)
	for _, v := range r.Values {
		rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
	}
	rec = append(rec, r.Stamp())
	return s.w.Write(rec)
}

func (s *csvSink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

func (s *csvSink) Close() error {
	if s.closed {
		return nil
	}
	flushErr := s.Flush()
	s.closed = true
	if err := s.file.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *csvSink) Path() string { return s.path }
