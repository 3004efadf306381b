// Package history records decoded register values in InfluxDB v2.
//
// Writes go through the non-blocking batched write API; errors surface
// asynchronously and are logged.
package history

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

const (
	Measurement = "modbus_register"

	defaultConnectTimeout = 10 * time.Second
)

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

type Sink struct {
	client influxdb2.Client
	writer pointWriter
	device string
	now    func() time.Time
}

// Connect pings the server and opens a batched write API for org/bucket.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, device string) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushMs := cfg.FlushIntervalMs
	if flushMs <= 0 {
		flushMs = 10000
	}
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushMs)),
	)

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logging.Warn("influxdb write failed", "bucket", cfg.Bucket, "error", err)
		}
	}()

	logging.Info("influxdb history enabled", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return &Sink{client: client, writer: writeAPI, device: device, now: time.Now}, nil
}

func (s *Sink) Name() string { return "influxdb" }

// Publish queues the value; it never blocks on the network.
func (s *Sink) Publish(_ context.Context, v register.DecodedValue) error {
	s.writer.WritePoint(NewPoint(s.device, v, s.now()))
	return nil
}

func (s *Sink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

func NewPoint(device string, v register.DecodedValue, ts time.Time) *write.Point {
	tags := map[string]string{
		"device":   device,
		"register": v.Name(),
	}
	if v.Definition.Unit != "" {
		tags["unit"] = v.Definition.Unit
	}
	return write.NewPoint(Measurement, tags, map[string]interface{}{"value": v.Value}, ts)
}
