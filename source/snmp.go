package source

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMPConfig describes an SNMP v2c agent and the OIDs polled from it.
type SNMPConfig struct {
	Target    string
	Port      uint16
	Community string
	OIDs      []string
	Timeout   time.Duration
	Retries   int
}

// SNMP polls one numeric value per OID from an agent.
type SNMP struct {
	name   string
	oids   []string
	client *gosnmp.GoSNMP
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewSNMP connects to the agent. For UDP, connecting only binds the socket.
func NewSNMP(name string, config SNMPConfig) (*SNMP, error) {
	if len(config.OIDs) == 0 {
		return nil, fmt.Errorf("snmp source %s: no OIDs configured", name)
	}
	if config.Port == 0 {
		config.Port = 161
	}
	if config.Community == "" {
		config.Community = "public"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &gosnmp.GoSNMP{
		Target:    config.Target,
		Port:      config.Port,
		Community: config.Community,
		Version:   gosnmp.Version2c,
		Timeout:   config.Timeout,
		Retries:   config.Retries,
		Context:   ctx,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := client.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SNMP agent %s:%d: %w", config.Target, config.Port, err)
	}

	return &SNMP{
		name:   name,
		oids:   append([]string(nil), config.OIDs...),
		client: client,
		cancel: cancel,
	}, nil
}

func (s *SNMP) Sample(_ context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, acquisitionError(s.name, ErrClosed)
	}

	pkt, err := s.client.Get(s.oids)
	if err != nil {
		return nil, acquisitionError(s.name, err)
	}
	if len(pkt.Variables) != len(s.oids) {
		return nil, acquisitionError(s.name, fmt.Errorf("%w: %d varbinds for %d OIDs",
			ErrInvalidResponse, len(pkt.Variables), len(s.oids)))
	}

	values := make([]float64, len(pkt.Variables))
	for i, pdu := range pkt.Variables {
		v, err := pduFloat(pdu)
		if err != nil {
			return nil, acquisitionError(s.name, err)
		}
		values[i] = v
	}
	return values, nil
}

// pduFloat converts a numeric varbind to float64.
func pduFloat(pdu gosnmp.SnmpPDU) (float64, error) {
	switch pdu.Type {
	case gosnmp.OpaqueFloat:
		if f, ok := pdu.Value.(float32); ok {
			return float64(f), nil
		}
	case gosnmp.OpaqueDouble:
		if f, ok := pdu.Value.(float64); ok {
			return f, nil
		}
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		f, _ := new(big.Float).SetInt(gosnmp.ToBigInt(pdu.Value)).Float64()
		return f, nil
	}
	return 0, fmt.Errorf("%w: OID %s has non-numeric type %s", ErrInvalidResponse, pdu.Name, pdu.Type)
}

func (s *SNMP) Channels() int { return len(s.oids) }
func (s *SNMP) Name() string  { return s.name }

func (s *SNMP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	s.cancel()
	var err error
	if s.client.Conn != nil {
		err = s.client.Conn.Close()
	}
	s.client = nil
	return err
}

var _ Source = (*SNMP)(nil)
