package persist

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

type sqliteSink struct {
	path   string
	db     *sql.DB
	insert *sql.Stmt
	runID  string
	closed bool
}

// readingsSchema returns the DDL and insert statement for a table with one
// REAL column per channel.
func readingsSchema(channels int) (ddl, insert string) {
	cols := make([]string, 0, channels+3)
	names := make([]string, 0, channels+3)
	for i := 1; i <= channels; i++ {
		cols = append(cols, fmt.Sprintf("value_%d REAL", i))
		names = append(names, fmt.Sprintf("value_%d", i))
	}
	cols = append(cols, "time TEXT NOT NULL", "timestamp_ms INTEGER NOT NULL", "run_id TEXT")
	names = append(names, "time", "timestamp_ms", "run_id")

	ddl = "CREATE TABLE IF NOT EXISTS readings (\n\t" + strings.Join(cols, ",\n\t") + "\n)"
	insert = "INSERT INTO readings(" + strings.Join(names, ", ") + ") VALUES(" +
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"
	return ddl, insert
}

func openSQLite(path string, d sensor.Descriptor, opts SinkOptions) (RowSink, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	ddl, insert := readingsSchema(d.Channels)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	stmt, err := db.Prepare(insert)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &sqliteSink{path: path, db: db, insert: stmt, runID: opts.RunID}, nil
}

func (s *sqliteSink) WriteRow(r sensor.Reading) error {
	if s.closed {
		return ErrSinkClosed
	}
	args := make([]any, 0, len(r.Values)+3)
	for _, v := range r.Values {
		args = append(args, v)
	}
	args = append(args, r.Stamp(), r.Time.UnixMilli(), s.runID)

	if _, err := s.insert.Exec(args...); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *sqliteSink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

func (s *sqliteSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.insert.Close()
	return s.db.Close()
}

func (s *sqliteSink) Path() string { return s.path }
