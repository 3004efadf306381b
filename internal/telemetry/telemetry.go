package telemetry

import (
	"context"
	"math"
	"strconv"

	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/messaging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

const DefaultPrecision = 2

type Publisher struct {
	pub       messaging.Publisher
	baseTopic string
	qos       messaging.QoS
	precision int
}

func NewPublisher(pub messaging.Publisher, baseTopic string, qos messaging.QoS, precision int) *Publisher {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &Publisher{pub: pub, baseTopic: baseTopic, qos: qos, precision: precision}
}

func (p *Publisher) Topic(name string) string { return messaging.JoinTopic(p.baseTopic, name) }

// Publish sends one decoded value as a plain decimal string. State messages
// are not retained.
func (p *Publisher) Publish(ctx context.Context, v register.DecodedValue) error {
	topic := p.Topic(v.Name())
	payload := FormatValue(v, p.precision)
	if err := p.pub.Publish(ctx, topic, p.qos, false, []byte(payload)); err != nil {
		return err
	}
	logging.Debug("published value", "topic", topic, "payload", payload)
	return nil
}

func (p *Publisher) Name() string { return "mqtt" }

// FormatValue renders float registers rounded to precision decimals in the
// shortest form ("50.24", "50") and single-word registers as integers.
// Exact ties round to even, so 0.125 becomes "0.12".
func FormatValue(v register.DecodedValue, precision int) string {
	if v.Definition.Width == register.Single {
		return strconv.FormatUint(uint64(v.Value), 10)
	}
	scale := math.Pow10(precision)
	rounded := math.RoundToEven(v.Value*scale) / scale
	if rounded == 0 {
		rounded = 0 // drop negative zero
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
