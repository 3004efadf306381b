package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vfdlink/modbus2mqtt/internal/bridge"
	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/discovery"
	"github.com/vfdlink/modbus2mqtt/internal/history"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/messaging"
	"github.com/vfdlink/modbus2mqtt/internal/modbus"
	"github.com/vfdlink/modbus2mqtt/internal/telemetry"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := config.ResolvePath()
	cfg, err := config.Load(path)
	if err != nil {
		logging.Fatal("config error", "path", path, "error", err)
	}
	logging.Init(getenv("LOG_LEVEL", cfg.Logging.Level), cfg.Logging.Format)

	catalog, err := cfg.Catalog()
	if err != nil {
		logging.Fatal("register catalog", "error", err)
	}
	logging.Info("Loaded config",
		"path", path,
		"transport", cfg.Serial.Type,
		"registers", catalog.Len(),
		"pollMs", cfg.PollIntervalMs,
	)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := messaging.NewMsgBroker(cfg.BrokerConfig())
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		broker.Close(closeCtx)
	}()

	device, err := modbus.NewDeviceClient(cfg.Serial)
	if err != nil {
		logging.Fatal("modbus transport", "error", err)
	}

	sinks := []bridge.Sink{
		telemetry.NewPublisher(broker, cfg.Topics.Base, cfg.QoS(), cfg.Precision),
	}
	if cfg.InfluxDB.Enabled {
		hist, err := history.Connect(ctx, cfg.InfluxDB, cfg.Topics.DeviceSlug)
		if err != nil {
			// History is optional; telemetry keeps flowing without it.
			logging.Error("influxdb unavailable, history disabled", "error", err)
		} else {
			defer hist.Close()
			sinks = append(sinks, hist)
		}
	}

	opts := bridge.Options{
		Catalog:  catalog,
		Identity: cfg.Identity(),
		Interval: cfg.PollInterval(),
		Broker:   broker,
		Poller:   modbus.NewPoller(device, cfg.Order()),
		Sinks:    sinks,
	}
	if cfg.Discovery.Enabled {
		availability := ""
		if cfg.Discovery.Availability {
			availability = broker.StatusTopic()
		}
		opts.Announcer = discovery.NewAnnouncer(broker, discovery.Options{
			DiscoveryPrefix:   cfg.Topics.DiscoveryPrefix,
			BaseTopic:         cfg.Topics.Base,
			DeviceSlug:        cfg.Topics.DeviceSlug,
			AvailabilityTopic: availability,
			QoS:               cfg.QoS(),
		})
	}

	if err := bridge.New(opts).Run(ctx); err != nil {
		if errors.Is(err, bridge.ErrStartup) {
			logging.Fatal("Startup failed", "broker", cfg.MQTT.Broker, "error", err)
		}
		logging.Error("bridge stopped", "error", err)
	}
	logging.Info("bye")
}
