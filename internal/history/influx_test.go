package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

type fakeWriter struct {
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) { f.points = append(f.points, p) }
func (f *fakeWriter) Flush()                    { f.flushes++ }

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{}, "dxe007r")
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNewPoint(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := register.DecodedValue{
		Definition: register.Definition{Name: "measured_psi", Unit: "psi"},
		Value:      50.24,
	}
	p := NewPoint("dxe007r", v, ts)
	if p.Name() != Measurement {
		t.Errorf("measurement = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device"] != "dxe007r" || tags["register"] != "measured_psi" || tags["unit"] != "psi" {
		t.Errorf("tags = %v", tags)
	}
	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "value" || fields[0].Value != 50.24 {
		t.Errorf("fields = %+v", fields)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("time = %v", p.Time())
	}
}

func TestNewPoint_NoUnitTag(t *testing.T) {
	p := NewPoint("dxe007r", register.DecodedValue{Definition: register.Definition{Name: "voltage"}, Value: 230}, time.Now())
	for _, tag := range p.TagList() {
		if tag.Key == "unit" {
			t.Errorf("unexpected unit tag %q", tag.Value)
		}
	}
}

func TestSink_PublishAndClose(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{writer: fw, device: "dxe007r", now: time.Now}
	v := register.DecodedValue{Definition: register.Definition{Name: "target_hz", Unit: "Hz"}, Value: 60}
	if err := s.Publish(context.Background(), v); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if len(fw.points) != 1 || fw.flushes != 1 {
		t.Errorf("points=%d flushes=%d", len(fw.points), fw.flushes)
	}
}
