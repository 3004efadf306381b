package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/messaging"
)

// formatLine renders one message for the terminal. Discovery configs are
// shortened to the fields worth eyeballing; everything else prints as is.
func formatLine(topic string, payload []byte) string {
	if strings.HasSuffix(topic, "/config") {
		var cfg struct {
			Name       string `json:"name"`
			UniqueID   string `json:"unique_id"`
			StateTopic string `json:"state_topic"`
			Unit       string `json:"unit_of_measurement"`
		}
		if err := json.Unmarshal(payload, &cfg); err == nil {
			return fmt.Sprintf("%s discovery name=%q id=%s state=%s unit=%s",
				topic, cfg.Name, cfg.UniqueID, cfg.StateTopic, cfg.Unit)
		}
	}
	return fmt.Sprintf("%s %s", topic, payload)
}

func main() {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		logging.Fatal("config error", "error", err)
	}
	var broker string
	var topics []string
	flag.StringVar(&broker, "broker", cfg.MQTT.Broker, "MQTT broker address")
	flag.Func("topic", "MQTT topic filter (repeatable)", func(s string) error {
		topics = append(topics, s)
		return nil
	})
	flag.Parse()
	if len(topics) == 0 {
		topics = []string{
			messaging.JoinTopic(cfg.Topics.Base, "#"),
			messaging.JoinTopic(cfg.Topics.DiscoveryPrefix, "sensor", "+", "config"),
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := messaging.NewMsgBroker(messaging.BrokerConfig{
		BrokerURL:      broker,
		ClientID:       "modbus2mqtt-monitor-" + uuid.NewString()[:8],
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: 10 * time.Second,
		AutoReconnect:  true,
	})
	if err := b.Connect(ctx); err != nil {
		logging.Fatal("connect", "error", err)
	}
	defer b.Close(context.Background())

	subs := make([]messaging.Subscription, 0, len(topics))
	for _, t := range topics {
		sub, err := b.Subscribe(ctx, t, messaging.AtMostOnce, func(_ context.Context, topic string, payload []byte) {
			fmt.Println(formatLine(topic, payload))
		})
		if err != nil {
			logging.Fatal("subscribe", "topic", t, "error", err)
		}
		subs = append(subs, sub)
	}
	fmt.Printf("Connected to MQTT broker %s, subscribed to %s\n", broker, strings.Join(topics, ", "))

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	unsubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, sub := range subs {
		if err := sub.Unsubscribe(unsubCtx); err != nil {
			logging.Warn("unsubscribe failed", "error", err)
		}
	}
}
