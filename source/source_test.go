package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_Range(t *testing.T) {
	s := NewSimulatedWithSeed("sim", &SimulatedConfig{Channels: 3, Min: -3, Max: 3}, 1)
	assert.Equal(t, 3, s.Channels())
	assert.Equal(t, "sim", s.Name())

	for range 500 {
		values, err := s.Sample(context.Background())
		require.NoError(t, err)
		require.Len(t, values, 3)
		for _, v := range values {
			require.GreaterOrEqual(t, v, -3.0)
			require.LessOrEqual(t, v, 3.0)
		}
	}
}

func TestSimulated_SeedIsDeterministic(t *testing.T) {
	a := NewSimulatedWithSeed("a", nil, 99)
	b := NewSimulatedWithSeed("b", nil, 99)

	for range 10 {
		va, _ := a.Sample(context.Background())
		vb, _ := b.Sample(context.Background())
		assert.Equal(t, va, vb)
	}
}

func TestSimulated_Closed(t *testing.T) {
	s := NewSimulatedWithSeed("sim", nil, 1)
	require.NoError(t, s.Close())

	_, err := s.Sample(context.Background())
	var acq *AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Equal(t, "sim", acq.Source)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConverters(t *testing.T) {
	tests := []struct {
		name  string
		conv  Converter
		input float64
		want  float64
	}{
		{"710 below domain", DistanceGP2Y0A710K0F, 1.39, 0},
		{"710 above domain", DistanceGP2Y0A710K0F, 2.51, 0},
		{"710 lower edge", DistanceGP2Y0A710K0F, 1.4, 222799/(1.4*1.4*1.4) - 319655/(1.4*1.4) + 158254/1.4 - 25501},
		{"710 upper edge", DistanceGP2Y0A710K0F, 2.5, 222799/(2.5*2.5*2.5) - 319655/(2.5*2.5) + 158254/2.5 - 25501},
		{"21 below domain", DistanceGP2Y0A21YK0F, 0.2, 0},
		{"21 above domain", DistanceGP2Y0A21YK0F, 3.0, 0},
		{"21 in domain", DistanceGP2Y0A21YK0F, 1.0, 252.77 - 20.237},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.conv(tt.input), 1e-6)
		})
	}
}

func TestConverterFor(t *testing.T) {
	c, ok := ConverterFor("DistanceSensor_GP2Y0A21YK0F")
	require.True(t, ok)
	assert.InDelta(t, 252.77/2-20.237, c(2), 1e-9)

	_, ok = ConverterFor("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"DistanceSensor_GP2Y0A21YK0F", "DistanceSensor_GP2Y0A710K0F"}, DeviceTypes())
}

func TestConverting(t *testing.T) {
	inner := Func("raw", 2, func(context.Context) ([]float64, error) {
		return []float64{1.0, 5.0}, nil
	})
	c := NewConverting(inner, DistanceGP2Y0A21YK0F)

	values, err := c.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 252.77-20.237, values[0], 1e-9)
	assert.Equal(t, 0.0, values[1])
	assert.Equal(t, 2, c.Channels())
	assert.Equal(t, "raw", c.Name())
}

func TestFunc_WrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	f := Func("f", 1, func(context.Context) ([]float64, error) { return nil, boom })

	_, err := f.Sample(context.Background())
	var acq *AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "acquisition from f failed")
}

func TestAltitude(t *testing.T) {
	assert.InDelta(t, 0, Altitude(StandardSeaLevel, StandardSeaLevel), 1e-9)
	assert.InDelta(t, 110.9, Altitude(1000, StandardSeaLevel), 0.5)
	assert.Greater(t, Altitude(900, StandardSeaLevel), Altitude(1000, StandardSeaLevel))
	assert.Equal(t, 0.0, Altitude(0, StandardSeaLevel))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		sep     string
		want    []float64
		wantErr bool
	}{
		{"1.5", "", []float64{1.5}, false},
		{"1.5, 2 ,-3", "", []float64{1.5, 2, -3}, false},
		{"1.5\t2 3", "", []float64{1.5, 2, 3}, false},
		{"1.5;2", ";", []float64{1.5, 2}, false},
		{"  4e2  ", "", []float64{400}, false},
		{"", "", nil, true},
		{"1,x", "", nil, true},
		{"nan", "", nil, true},
		{"1.5,NaN", ",", nil, true},
		{"inf", "", nil, true},
		{"2;-Inf", ";", nil, true},
	}

	for _, tt := range tests {
		got, err := parseLine(tt.line, tt.sep)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidResponse, "line %q", tt.line)
			continue
		}
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got)
	}
}

type fakePort struct {
	in      *bytes.Buffer
	written bytes.Buffer
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.in.Len() == 0 {
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

var _ io.ReadWriteCloser = (*fakePort)(nil)

func TestSerial_Sample(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("21.5,1002.1\r\n22.0,1001.9\n")}
	s := newSerial("uart", SerialConfig{Channels: 2, Request: "R\n", Timeout: 100 * time.Millisecond}, port)

	values, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{21.5, 1002.1}, values)

	values, err = s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{22.0, 1001.9}, values)
	assert.Equal(t, "R\nR\n", port.written.String())

	// Nothing left: the read times out and the cycle fails.
	_, err = s.Sample(context.Background())
	var acq *AcquisitionError
	assert.ErrorAs(t, err, &acq)

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
	_, err = s.Sample(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSerial_WrongValueCount(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("1,2,3\n")}
	s := newSerial("uart", SerialConfig{Channels: 2}, port)

	_, err := s.Sample(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestPDUFloat(t *testing.T) {
	tests := []struct {
		pdu     gosnmp.SnmpPDU
		want    float64
		wantErr bool
	}{
		{gosnmp.SnmpPDU{Name: ".1", Type: gosnmp.Integer, Value: 42}, 42, false},
		{gosnmp.SnmpPDU{Name: ".2", Type: gosnmp.Gauge32, Value: uint(7)}, 7, false},
		{gosnmp.SnmpPDU{Name: ".3", Type: gosnmp.Counter64, Value: uint64(1 << 40)}, 1 << 40, false},
		{gosnmp.SnmpPDU{Name: ".4", Type: gosnmp.OpaqueFloat, Value: float32(1.5)}, 1.5, false},
		{gosnmp.SnmpPDU{Name: ".5", Type: gosnmp.OpaqueDouble, Value: 2.25}, 2.25, false},
		{gosnmp.SnmpPDU{Name: ".6", Type: gosnmp.OctetString, Value: []byte("x")}, 0, true},
		{gosnmp.SnmpPDU{Name: ".7", Type: gosnmp.NoSuchObject}, 0, true},
	}

	for _, tt := range tests {
		got, err := pduFloat(tt.pdu)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidResponse, tt.pdu.Name)
			continue
		}
		require.NoError(t, err, tt.pdu.Name)
		assert.Equal(t, tt.want, got, tt.pdu.Name)
	}
}
