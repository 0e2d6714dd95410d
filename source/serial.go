package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a line-oriented serial device.
type SerialConfig struct {
	Port      string
	BaudRate  int
	Channels  int
	Separator string        // between values, empty splits on whitespace or commas
	Request   string        // written before each read, empty to only listen
	Timeout   time.Duration // per line
}

// Serial reads one line per sample and parses it as Channels floats.
type Serial struct {
	name     string
	channels int
	sep      string
	request  []byte
	timeout  time.Duration

	mu   sync.Mutex
	port io.ReadWriteCloser
	buf  []byte
}

// NewSerial opens the port.
func NewSerial(name string, config SerialConfig) (*Serial, error) {
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}

	port, err := serial.Open(config.Port, &serial.Mode{BaudRate: config.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Port, err)
	}
	// Short reads let the line loop observe the context and timeout.
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure serial port %s: %w", config.Port, err)
	}

	return newSerial(name, config, port), nil
}

func newSerial(name string, config SerialConfig, port io.ReadWriteCloser) *Serial {
	if config.Channels < 1 {
		config.Channels = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}
	s := &Serial{
		name:     name,
		channels: config.Channels,
		sep:      config.Separator,
		timeout:  config.Timeout,
		port:     port,
	}
	if config.Request != "" {
		s.request = []byte(config.Request)
	}
	return s
}

func (s *Serial) Sample(ctx context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, acquisitionError(s.name, ErrClosed)
	}

	if s.request != nil {
		if _, err := s.port.Write(s.request); err != nil {
			return nil, acquisitionError(s.name, err)
		}
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return nil, acquisitionError(s.name, err)
	}

	values, err := parseLine(line, s.sep)
	if err != nil {
		return nil, acquisitionError(s.name, err)
	}
	if len(values) != s.channels {
		return nil, acquisitionError(s.name, fmt.Errorf("%w: got %d values, want %d",
			ErrInvalidResponse, len(values), s.channels))
	}
	return values, nil
}

// readLine returns the next newline-terminated line, keeping any bytes past
// the newline for the following call.
func (s *Serial) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.timeout)
	chunk := make([]byte, 128)

	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := string(s.buf[:i])
			s.buf = s.buf[i+1:]
			return strings.TrimRight(line, "\r"), nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no line within %s", s.timeout)
		}

		n, err := s.port.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			return "", err
		}
	}
}

// parseLine splits a line on sep (or on whitespace and commas when sep is
// empty) and parses every field as a float.
func parseLine(line, sep string) ([]float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: empty line", ErrInvalidResponse)
	}

	var fields []string
	if sep == "" {
		fields = strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
	} else {
		fields = strings.Split(line, sep)
	}

	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidResponse, f)
		}
		values = append(values, v)
	}
	return values, nil
}

func (s *Serial) Channels() int { return s.channels }
func (s *Serial) Name() string  { return s.name }

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

var _ Source = (*Serial)(nil)
