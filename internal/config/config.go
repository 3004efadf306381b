// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vfdlink/modbus2mqtt/internal/messaging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

/* =========================
   Types
   ========================= */

type Config struct {
	Serial         SerialConfig     `yaml:"serial"`
	MQTT           MQTTConfig       `yaml:"mqtt"`
	Topics         TopicsConfig     `yaml:"topics"`
	Discovery      DiscoveryConfig  `yaml:"discovery"`
	Device         DeviceConfig     `yaml:"device"`
	Registers      []RegisterConfig `yaml:"registers"`
	PollIntervalMs int              `yaml:"poll_interval_ms"`
	Precision      int              `yaml:"precision"`  // decimals kept for float registers
	WordOrder      string           `yaml:"word_order"` // high_first | low_first
	InfluxDB       InfluxDBConfig   `yaml:"influxdb"`
	Logging        LoggingConfig    `yaml:"logging"`
}

type SerialConfig struct {
	Type      string `yaml:"type"` // "rtu" | "tcp"
	Port      string `yaml:"port"`
	TCPAddr   string `yaml:"tcp_addr"`
	Baud      int    `yaml:"baud"`
	DataBits  int    `yaml:"data_bits"`
	StopBits  int    `yaml:"stop_bits"`
	Parity    string `yaml:"parity"`
	TimeoutMs int    `yaml:"timeout_ms"`
	SlaveID   uint8  `yaml:"slave_id"`
	Debug     bool   `yaml:"debug"`
}

type MQTTConfig struct {
	Broker           string          `yaml:"broker"` // e.g. tcp://192.168.1.100:1883
	ClientID         string          `yaml:"client_id"`
	Username         string          `yaml:"username"`
	Password         string          `yaml:"password"`
	QoS              int             `yaml:"qos"`
	KeepAliveSec     int             `yaml:"keepalive_sec"`
	ConnectTimeoutMs int             `yaml:"connect_timeout_ms"`
	PublishTimeoutMs int             `yaml:"publish_timeout_ms"`
	Reconnect        ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxDelaySec int  `yaml:"max_delay_sec"`
}

type TopicsConfig struct {
	Base            string `yaml:"base"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	DeviceSlug      string `yaml:"device_slug"`
}

type DiscoveryConfig struct {
	Enabled      bool `yaml:"enabled"`
	Availability bool `yaml:"availability"`
}

type DeviceConfig struct {
	Identifiers  []string `yaml:"identifiers"`
	Name         string   `yaml:"name"`
	Manufacturer string   `yaml:"manufacturer"`
	Model        string   `yaml:"model"`
}

type RegisterConfig struct {
	Name        string `yaml:"name"`
	Address     uint16 `yaml:"address"`
	Width       string `yaml:"width"`    // float32 | single
	Function    string `yaml:"function"` // input | holding
	Unit        string `yaml:"unit"`
	DeviceClass string `yaml:"device_class"`
	StateClass  string `yaml:"state_class"`
}

type InfluxDBConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	Token           string `yaml:"token"`
	Org             string `yaml:"org"`
	Bucket          string `yaml:"bucket"`
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

/* =========================
   Helpers
   ========================= */

func (s SerialConfig) Timeout() time.Duration { return time.Duration(s.TimeoutMs) * time.Millisecond }

func (m MQTTConfig) KeepAlive() time.Duration { return time.Duration(m.KeepAliveSec) * time.Second }
func (m MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMs) * time.Millisecond
}
func (m MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeoutMs) * time.Millisecond
}
func (r ReconnectConfig) MaxDelay() time.Duration { return time.Duration(r.MaxDelaySec) * time.Second }

func (i InfluxDBConfig) FlushInterval() time.Duration {
	return time.Duration(i.FlushIntervalMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Catalog builds the immutable register catalog from the register list.
func (c *Config) Catalog() (*register.Catalog, error) {
	defs := make([]register.Definition, 0, len(c.Registers))
	var errs multiErr
	for i, r := range c.Registers {
		w, err := register.ParseWidth(r.Width)
		if err != nil {
			errs.addf("registers[%d/%s]: %v", i, r.Name, err)
		}
		fn, err := register.ParseFunction(r.Function)
		if err != nil {
			errs.addf("registers[%d/%s]: %v", i, r.Name, err)
		}
		defs = append(defs, register.Definition{
			Name:        r.Name,
			Address:     r.Address,
			Width:       w,
			Function:    fn,
			Unit:        r.Unit,
			DeviceClass: r.DeviceClass,
			StateClass:  r.StateClass,
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return register.NewCatalog(defs)
}

func (c *Config) Identity() register.DeviceIdentity {
	return register.DeviceIdentity{
		Identifiers:  slices.Clone(c.Device.Identifiers),
		Name:         c.Device.Name,
		Manufacturer: c.Device.Manufacturer,
		Model:        c.Device.Model,
	}
}

func (c *Config) BrokerConfig() messaging.BrokerConfig {
	m := c.MQTT
	return messaging.BrokerConfig{
		BrokerURL:        m.Broker,
		ClientID:         m.ClientID,
		Username:         m.Username,
		Password:         m.Password,
		TopicPrefix:      c.Topics.Base,
		KeepAlive:        m.KeepAlive(),
		ConnectTimeout:   m.ConnectTimeout(),
		PublishTimeout:   m.PublishTimeout(),
		SubscribeTimeout: 5 * time.Second,
		AutoReconnect:    m.Reconnect.Enabled,
		MaxReconnect:     m.Reconnect.MaxDelay(),
		Availability:     c.Discovery.Availability,
	}
}

func (c *Config) QoS() messaging.QoS { return messaging.QoS(c.MQTT.QoS) }

func (c *Config) Order() register.WordOrder {
	o, _ := register.ParseWordOrder(c.WordOrder) // checked by Validate
	return o
}

/* =========================
   Defaults (DXE007R pump drive)
   ========================= */

func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Type:      "rtu",
			Port:      "/dev/ttyUSB0",
			Baud:      9600,
			DataBits:  8,
			StopBits:  1,
			Parity:    "N",
			TimeoutMs: 1000,
			SlaveID:   1,
		},
		MQTT: MQTTConfig{
			Broker:           "tcp://192.168.1.100:1883",
			KeepAliveSec:     60,
			ConnectTimeoutMs: 10000,
			PublishTimeoutMs: 5000,
			Reconnect:        ReconnectConfig{Enabled: true, MaxDelaySec: 60},
		},
		Topics: TopicsConfig{
			Base:            "modbus/dxe007r",
			DiscoveryPrefix: "homeassistant",
			DeviceSlug:      "dxe007r",
		},
		Discovery: DiscoveryConfig{Enabled: true},
		Device: DeviceConfig{
			Identifiers:  []string{"dxe007r_modbus"},
			Name:         "DXE007R VFD",
			Manufacturer: "Phase Technologies",
			Model:        "DXE007R",
		},
		Registers: []RegisterConfig{
			{Name: "measured_psi", Address: 33, Unit: "psi", DeviceClass: "pressure"},
			{Name: "measured_gpm", Address: 34, Unit: "gpm"},
			{Name: "measured_ft", Address: 35, Unit: "ft"},
			{Name: "target_hz", Address: 36, Unit: "Hz", DeviceClass: "frequency"},
			{Name: "target_psi", Address: 37, Unit: "psi"},
			{Name: "target_gpm", Address: 38, Unit: "gpm"},
		},
		PollIntervalMs: 10000,
		Precision:      2,
		InfluxDB: InfluxDBConfig{
			BatchSize:       100,
			FlushIntervalMs: 10000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

/* =========================
   Strict load + validate
   ========================= */

// DefaultPath is used when BRIDGE_CONFIG is unset and the file exists.
var DefaultPath = "/etc/modbus2mqtt/config.yaml"

// ResolvePath picks the config file shared by the bridge and its tools:
// BRIDGE_CONFIG, else DefaultPath if present, else "" for built-in defaults.
func ResolvePath() string {
	if p := os.Getenv("BRIDGE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load reads the YAML file at path over the defaults. An empty path means
// defaults only. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromReader(bytes.NewReader(raw))
}

func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

func (c *Config) Validate() error {
	var errs multiErr

	/* Serial */
	s := &c.Serial
	switch strings.ToLower(s.Type) {
	case "rtu":
		if strings.TrimSpace(s.Port) == "" {
			errs.add("serial.port is required for type=rtu")
		}
		if s.Baud <= 0 {
			errs.add("serial.baud must be > 0 for type=rtu")
		}
		if s.DataBits == 0 {
			s.DataBits = 8
		}
		if s.StopBits == 0 {
			s.StopBits = 1
		}
		if s.Parity == "" {
			s.Parity = "N"
		}
		s.Parity = strings.ToUpper(s.Parity)
		if !slices.Contains([]string{"N", "E", "O"}, s.Parity) {
			errs.add("serial.parity must be one of N,E,O")
		}
	case "tcp":
		if strings.TrimSpace(s.TCPAddr) == "" {
			errs.add("serial.tcp_addr is required for type=tcp")
		}
	default:
		errs.addf("serial.type must be 'rtu' or 'tcp', got %q", s.Type)
	}
	s.Type = strings.ToLower(s.Type)
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = 1000
	}
	if s.SlaveID == 0 || s.SlaveID > 247 {
		errs.add("serial.slave_id must be 1..247")
	}

	/* MQTT */
	if u, err := url.Parse(c.MQTT.Broker); err != nil || u.Host == "" {
		errs.addf("mqtt.broker %q must be a URL like tcp://host:1883", c.MQTT.Broker)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs.add("mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "modbus2mqtt-" + uuid.NewString()[:8]
	}
	if c.MQTT.KeepAliveSec <= 0 {
		c.MQTT.KeepAliveSec = 60
	}
	if c.MQTT.ConnectTimeoutMs <= 0 {
		c.MQTT.ConnectTimeoutMs = 10000
	}
	if c.MQTT.PublishTimeoutMs <= 0 {
		c.MQTT.PublishTimeoutMs = 5000
	}
	if c.MQTT.Reconnect.MaxDelaySec <= 0 {
		c.MQTT.Reconnect.MaxDelaySec = 60
	}

	/* Topics */
	for name, v := range map[string]string{
		"topics.base":             c.Topics.Base,
		"topics.discovery_prefix": c.Topics.DiscoveryPrefix,
		"topics.device_slug":      c.Topics.DeviceSlug,
	} {
		if strings.TrimSpace(v) == "" {
			errs.addf("%s is required", name)
		} else if strings.ContainsAny(v, "+#") {
			errs.addf("%s must not contain MQTT wildcards", name)
		}
	}
	if strings.Contains(c.Topics.DeviceSlug, "/") {
		errs.add("topics.device_slug must be a single topic segment")
	}
	c.Topics.Base = strings.TrimSuffix(c.Topics.Base, "/")
	c.Topics.DiscoveryPrefix = strings.TrimSuffix(c.Topics.DiscoveryPrefix, "/")

	/* Device */
	if c.Discovery.Enabled {
		if len(c.Device.Identifiers) == 0 {
			errs.add("device.identifiers cannot be empty when discovery is enabled")
		}
		if c.Device.Name == "" {
			errs.add("device.name is required when discovery is enabled")
		}
	}

	/* Poll */
	if c.PollIntervalMs <= 0 {
		errs.add("poll_interval_ms must be > 0 (e.g., 10000)")
	}
	if c.Precision < 0 || c.Precision > 6 {
		errs.add("precision must be 0..6")
	}
	if _, err := register.ParseWordOrder(c.WordOrder); err != nil {
		errs.add(err.Error())
	}

	/* Registers */
	if _, err := c.Catalog(); err != nil {
		errs.add(err.Error())
	}
	if c.Discovery.Availability {
		for i, r := range c.Registers {
			if r.Name == "status" {
				errs.addf("registers[%d]: name %q collides with the availability topic %s/status", i, r.Name, c.Topics.Base)
			}
		}
	}

	/* InfluxDB */
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs.add("influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
		if c.InfluxDB.BatchSize <= 0 {
			c.InfluxDB.BatchSize = 100
		}
		if c.InfluxDB.FlushIntervalMs <= 0 {
			c.InfluxDB.FlushIntervalMs = 10000
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
