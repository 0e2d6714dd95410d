package publish

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

// Message is the published form of one reading.
type Message struct {
	Sensor string    `json:"sensor"`
	Values []float64 `json:"values"`
	Units  []string  `json:"units,omitempty"`
	Time   time.Time `json:"time"`
	Stamp  string    `json:"stamp"`
}

func newMessage(d sensor.Descriptor, r sensor.Reading) Message {
	m := Message{
		Sensor: d.Name,
		Values: make([]float64, len(r.Values)),
		Time:   r.Time,
		Stamp:  r.Stamp(),
	}
	copy(m.Values, r.Values)
	if len(d.Units) > 0 {
		m.Units = make([]string, len(r.Values))
		for c := range r.Values {
			m.Units[c] = d.Unit(c)
		}
	}
	return m
}

// topicEscaper removes the topic separator and wildcards from sensor names.
var topicEscaper = strings.NewReplacer("/", " ", "+", " ", "#", " ")

// Topic returns the topic readings of the named sensor are published to.
func Topic(prefix, sensorName string) string {
	return prefix + "/" + strcase.ToSnake(topicEscaper.Replace(sensorName))
}

// Encode serializes m in the given format.
func Encode(m Message, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.Marshal(m)
	case FormatProto:
		s, err := m.Struct()
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// Struct converts m to a protobuf Struct. Non-finite values become null.
func (m Message) Struct() (*structpb.Struct, error) {
	values := make([]any, len(m.Values))
	for i, v := range m.Values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		values[i] = v
	}
	units := make([]any, len(m.Units))
	for i, u := range m.Units {
		units[i] = u
	}

	return structpb.NewStruct(map[string]any{
		"sensor": m.Sensor,
		"values": values,
		"units":  units,
		"time":   m.Time.Format(time.RFC3339Nano),
		"stamp":  m.Stamp,
	})
}

func contentType(format Format) string {
	if format == FormatProto {
		return "application/x-protobuf"
	}
	return "application/json"
}
