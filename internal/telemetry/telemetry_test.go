package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/vfdlink/modbus2mqtt/internal/messaging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

type sent struct {
	topic   string
	qos     messaging.QoS
	retain  bool
	payload string
}

type fakePublisher struct {
	sent []sent
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, qos messaging.QoS, retain bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{topic, qos, retain, string(payload)})
	return nil
}

func (f *fakePublisher) PublishJSON(context.Context, string, messaging.QoS, bool, interface{}) error {
	return errors.New("not used")
}

func floatValue(name string, words []uint16) register.DecodedValue {
	def := register.Definition{Name: name, Width: register.Float32, Function: register.InputRegister}
	return register.DecodedValue{Definition: def, Value: register.Value(def, register.HighWordFirst, words)}
}

func TestFormatValue(t *testing.T) {
	single := register.Definition{Name: "voltage", Width: register.Single}
	tests := []struct {
		name      string
		v         register.DecodedValue
		precision int
		want      string
	}{
		{"known vector", floatValue("p", []uint16{0x4248, 0xF5C3}), 2, "50.24"},
		{"whole number", floatValue("p", register.EncodeFloat32(50, register.HighWordFirst)), 2, "50"},
		{"rounds to nearest", floatValue("p", register.EncodeFloat32(12.345678, register.HighWordFirst)), 2, "12.35"},
		{"tie rounds down to even", floatValue("p", register.EncodeFloat32(0.125, register.HighWordFirst)), 2, "0.12"},
		{"tie rounds up to even", floatValue("p", register.EncodeFloat32(0.375, register.HighWordFirst)), 2, "0.38"},
		{"tie at 50.625", floatValue("p", register.EncodeFloat32(50.625, register.HighWordFirst)), 2, "50.62"},
		{"integer tie", floatValue("p", register.EncodeFloat32(2.5, register.HighWordFirst)), 0, "2"},
		{"negative tie", floatValue("p", register.EncodeFloat32(-0.125, register.HighWordFirst)), 2, "-0.12"},
		{"negative", floatValue("p", register.EncodeFloat32(-3.5, register.HighWordFirst)), 2, "-3.5"},
		{"no negative zero", floatValue("p", register.EncodeFloat32(-0.001, register.HighWordFirst)), 2, "0"},
		{"precision 0", floatValue("p", []uint16{0x4248, 0xF5C3}), 0, "50"},
		{"single word", register.DecodedValue{Definition: single, Value: 230}, 2, "230"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.v, tt.precision); got != tt.want {
				t.Errorf("FormatValue = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublish_TopicAndFlags(t *testing.T) {
	fp := &fakePublisher{}
	p := NewPublisher(fp, "modbus/dxe007r", messaging.AtMostOnce, DefaultPrecision)
	if err := p.Publish(context.Background(), floatValue("measured_psi", []uint16{0x4248, 0xF5C3})); err != nil {
		t.Fatal(err)
	}
	want := sent{"modbus/dxe007r/measured_psi", messaging.AtMostOnce, false, "50.24"}
	if len(fp.sent) != 1 || fp.sent[0] != want {
		t.Errorf("sent = %+v, want %+v", fp.sent, want)
	}
}

func TestPublish_ErrorPropagates(t *testing.T) {
	fp := &fakePublisher{err: messaging.ErrNotConnected}
	p := NewPublisher(fp, "modbus/dxe007r", messaging.AtMostOnce, DefaultPrecision)
	err := p.Publish(context.Background(), floatValue("measured_psi", []uint16{0, 0}))
	if !errors.Is(err, messaging.ErrNotConnected) {
		t.Errorf("err = %v", err)
	}
}

func TestTopic_Injective(t *testing.T) {
	defs := []register.Definition{
		{Name: "measured_psi", Address: 33, Width: register.Float32, Function: register.InputRegister},
		{Name: "measured_gpm", Address: 34, Width: register.Float32, Function: register.InputRegister},
		{Name: "measured_ft", Address: 35, Width: register.Float32, Function: register.InputRegister},
		{Name: "target_hz", Address: 36, Width: register.Float32, Function: register.InputRegister},
		{Name: "target_psi", Address: 37, Width: register.Float32, Function: register.InputRegister},
		{Name: "target_gpm", Address: 38, Width: register.Float32, Function: register.InputRegister},
	}
	cat, err := register.NewCatalog(defs)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPublisher(&fakePublisher{}, "modbus/dxe007r", 0, 2)
	seen := map[string]string{}
	for _, d := range cat.Definitions() {
		topic := p.Topic(d.Name)
		if other, dup := seen[topic]; dup {
			t.Errorf("%s and %s share topic %s", d.Name, other, topic)
		}
		seen[topic] = d.Name
	}
}
