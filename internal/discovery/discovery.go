// Package discovery announces catalog registers as Home Assistant MQTT sensors.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/messaging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

type Options struct {
	DiscoveryPrefix   string // "homeassistant"
	BaseTopic         string // state topics live under here
	DeviceSlug        string // prefix for unique ids and discovery object ids
	AvailabilityTopic string // empty disables availability_topic
	QoS               messaging.QoS
}

// SensorConfig is the retained discovery payload. Field order is fixed so
// repeated announcements are byte-identical.
type SensorConfig struct {
	Name              string                  `json:"name"`
	UniqueID          string                  `json:"unique_id"`
	StateTopic        string                  `json:"state_topic"`
	Unit              string                  `json:"unit_of_measurement,omitempty"`
	DeviceClass       string                  `json:"device_class,omitempty"`
	StateClass        string                  `json:"state_class,omitempty"`
	AvailabilityTopic string                  `json:"availability_topic,omitempty"`
	Device            register.DeviceIdentity `json:"device"`
}

type Announcer struct {
	pub  messaging.Publisher
	opts Options
}

func NewAnnouncer(pub messaging.Publisher, opts Options) *Announcer {
	return &Announcer{pub: pub, opts: opts}
}

// AnnounceAll publishes one retained config per register. A failed publish is
// logged and the rest are still announced; the joined error is informational.
func (a *Announcer) AnnounceAll(ctx context.Context, cat *register.Catalog, id register.DeviceIdentity) error {
	var errs []error
	for _, def := range cat.Definitions() {
		topic := a.Topic(def.Name)
		if err := a.pub.PublishJSON(ctx, topic, a.opts.QoS, true, a.Config(def, id)); err != nil {
			logging.Error("discovery publish failed", "register", def.Name, "topic", topic, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
			continue
		}
		logging.Info("published discovery", "register", def.Name, "topic", topic)
	}
	return errors.Join(errs...)
}

func (a *Announcer) Config(def register.Definition, id register.DeviceIdentity) SensorConfig {
	return SensorConfig{
		Name:              DisplayName(def.Name),
		UniqueID:          a.UniqueID(def.Name),
		StateTopic:        messaging.JoinTopic(a.opts.BaseTopic, def.Name),
		Unit:              def.Unit,
		DeviceClass:       def.DeviceClass,
		StateClass:        def.StateClass,
		AvailabilityTopic: a.opts.AvailabilityTopic,
		Device:            id,
	}
}

func (a *Announcer) UniqueID(name string) string { return a.opts.DeviceSlug + "_" + name }

// Topic is <prefix>/sensor/<slug>_<name>/config.
func (a *Announcer) Topic(name string) string {
	return messaging.JoinTopic(a.opts.DiscoveryPrefix, "sensor", a.UniqueID(name), "config")
}

// DisplayName turns "measured_psi" into "Measured Psi". A letter is upper
// cased when it follows a non-letter, so "stage2pump" gives "Stage2Pump".
// Underscores map one to one onto spaces.
func DisplayName(name string) string {
	var sb strings.Builder
	prevLetter := false
	for _, r := range strings.ReplaceAll(name, "_", " ") {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
