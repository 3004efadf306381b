package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vfdlink/modbus2mqtt/internal/logging"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type BrokerConfig struct {
	BrokerURL        string
	ClientID         string
	Username         string
	Password         string
	TopicPrefix      string // base topic, e.g. "modbus/dxe007r"
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	AutoReconnect    bool
	MaxReconnect     time.Duration
	// Availability enables the retained <prefix>/status topic with an "offline" LWT.
	Availability bool
}

type MsgBroker struct {
	config         BrokerConfig
	client         mqtt.Client
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	mu             sync.RWMutex
	onConnectFuncs map[string]OnConnectPublisher
}

type PublishRequest struct {
	Topic   string
	Qos     QoS
	Retain  bool
	Payload []byte
}

type OnConnectPublisher func() (PublishRequest, error)

func NewMsgBroker(cfg BrokerConfig) *MsgBroker {
	b := &MsgBroker{
		config:         cfg,
		newClient:      mqtt.NewClient,
		onConnectFuncs: make(map[string]OnConnectPublisher),
	}
	if cfg.Availability {
		b.AddOnConnectPublisher("availability", func() (PublishRequest, error) {
			return PublishRequest{
				Topic:   b.StatusTopic(),
				Qos:     AtLeastOnce,
				Retain:  true,
				Payload: []byte(StatusOnline),
			}, nil
		})
	}
	return b
}

func (b *MsgBroker) Topic(parts ...string) string {
	return JoinTopic(append([]string{b.config.TopicPrefix}, parts...)...)
}

// StatusTopic is where availability is announced.
func (b *MsgBroker) StatusTopic() string { return b.Topic("status") }

func (b *MsgBroker) Connect(ctx context.Context) error {
	if b.client == nil {
		b.client = b.newClient(b.optionsFromConfig())
	}
	if b.client.IsConnected() {
		return nil
	}

	timeout := b.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := b.client.Connect()
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, b.config.BrokerURL, err)
		}
		logging.Info("mqtt connected", "broker", b.config.BrokerURL, "clientId", b.config.ClientID)
		return nil
	case <-ctx.Done():
		b.client.Disconnect(250)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, b.config.BrokerURL, ctx.Err())
	}
}

func (b *MsgBroker) optionsFromConfig() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(b.config.BrokerURL)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	if b.config.KeepAlive > 0 {
		opts.SetKeepAlive(b.config.KeepAlive)
	}
	if b.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(b.config.ConnectTimeout)
	}
	// The first connect must fail loudly; only established sessions are retried.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(b.config.AutoReconnect)
	if b.config.MaxReconnect > 0 {
		opts.SetMaxReconnectInterval(b.config.MaxReconnect)
	}
	if b.config.Availability {
		opts.SetWill(b.StatusTopic(), StatusOffline, byte(AtLeastOnce), true)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.onConnectPublisher()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logging.Warn("mqtt connection lost", "broker", b.config.BrokerURL, "error", err)
	})
	opts.SetReconnectingHandler(func(c mqtt.Client, o *mqtt.ClientOptions) {
		logging.Info("mqtt reconnecting", "broker", b.config.BrokerURL)
	})
	return opts
}

func (b *MsgBroker) AddOnConnectPublisher(id string, fn OnConnectPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnectFuncs[id] = fn
}

func (b *MsgBroker) onConnectPublisher() {
	b.mu.RLock()
	funcsCopy := make(map[string]OnConnectPublisher, len(b.onConnectFuncs))
	for k, v := range b.onConnectFuncs {
		funcsCopy[k] = v
	}
	b.mu.RUnlock()

	for id, fn := range funcsCopy {
		req, err := fn()
		if err != nil {
			logging.Error("onConnectPublisher failed", "clientId", b.config.ClientID, "id", id, "error", err)
			continue
		}
		pubErr := b.publish(context.Background(), req.Topic, req.Qos, req.Retain, req.Payload)
		if pubErr != nil {
			logging.Error("onConnect publish failed", "clientId", b.config.ClientID, "id", id, "topic", req.Topic, "error", pubErr)
		}
	}
}

func (b *MsgBroker) IsConnected() bool {
	if b.client == nil {
		return false
	}
	return b.client.IsConnected()
}

// Close publishes "offline" when availability is enabled and disconnects.
func (b *MsgBroker) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	if b.config.Availability && b.client.IsConnectionOpen() {
		if err := b.Publish(ctx, b.StatusTopic(), AtLeastOnce, true, []byte(StatusOffline)); err != nil {
			logging.Warn("offline status publish failed", "topic", b.StatusTopic(), "error", err)
		}
	}
	done := make(chan struct{})
	go func() {
		// 250 ms quiesce period
		b.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends payload and, unless qos is AsyncNoWait, waits for the token
// bounded by PublishTimeout. Publishing while the session is down fails fast,
// including while paho is reconnecting (IsConnected is still true then).
func (b *MsgBroker) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if b.client == nil || !b.client.IsConnectionOpen() {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ErrNotConnected)
	}
	return b.publish(ctx, topic, qos, retain, payload)
}

// publish skips the connected check; paho reports connected only after OnConnect returns.
func (b *MsgBroker) publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	qosByte, wait := qosToByte(qos)
	token := b.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	timeout := b.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ctx.Err())
	}
}

func qosToByte(qos QoS) (byte, bool) {
	if qos > 2 {
		return 0, false
	}
	return byte(qos), true
}

func (b *MsgBroker) PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return b.Publish(ctx, topic, qos, retain, data)
}

// Subscribe registers handler and waits for SUBACK with timeout
func (b *MsgBroker) Subscribe(ctx context.Context, topic string, qos QoS, handler func(context.Context, string, []byte)) (Subscription, error) {
	if b.client == nil {
		return nil, ErrNotConnected
	}
	// wrapper that converts paho message to our handler and logs panics without crashing
	onMessageHandler := func(_ mqtt.Client, msg mqtt.Message) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("mqtt handler panic", "clientId", b.config.ClientID, "topic", msg.Topic(), "err", r)
				}
			}()
			handler(ctx, msg.Topic(), msg.Payload())
		}()
	}
	token := b.client.Subscribe(topic, byte(qos), onMessageHandler)

	timeout := b.config.SubscribeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, err
		}

		return &msgSubscription{broker: b, topic: topic}, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("subscribe timeout for %s", topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// subscription wrapper
type msgSubscription struct {
	broker *MsgBroker
	topic  string
}

func (s *msgSubscription) Unsubscribe(ctx context.Context) error {
	b := s.broker
	token := b.client.Unsubscribe(s.topic)
	timeout := 3 * time.Second
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("unsubscribe timeout for %s", s.topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}
