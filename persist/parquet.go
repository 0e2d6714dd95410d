package persist

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

// ParquetRow is the parquet schema of one reading.
type ParquetRow struct {
	Values      []float64 `parquet:"values"`
	Time        string    `parquet:"time,zstd"`
	TimestampMs int64     `parquet:"timestamp_ms"`
}

type parquetSink struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[ParquetRow]
	closed bool
}

func openParquet(path string, _ sensor.Descriptor, _ SinkOptions) (RowSink, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	writer := parquet.NewGenericWriter[ParquetRow](f,
		parquet.Compression(&parquet.Zstd),
	)
	return &parquetSink{path: path, file: f, writer: writer}, nil
}

func (s *parquetSink) WriteRow(r sensor.Reading) error {
	if s.closed {
		return ErrSinkClosed
	}
	row := ParquetRow{
		Values:      r.Values,
		Time:        r.Stamp(),
		TimestampMs: r.Time.UnixMilli(),
	}
	if _, err := s.writer.Write([]ParquetRow{row}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Flush is a no-op: rows are buffered into a single row group written on
// Close.
func (s *parquetSink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

func (s *parquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return s.file.Close()
}

func (s *parquetSink) Path() string { return s.path }
