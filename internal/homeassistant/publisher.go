// Package homeassistant publishes the sensors to an MQTT broker using the
// Home Assistant discovery protocol.
package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/models"
	"github.com/tejusbharadwaj/apavital/internal/sensors"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	qos            = 1
)

var errPublishTimeout = errors.New("mqtt publish timed out")

// Client is the subset of mqtt.Client used by the publisher.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Options struct {
	DiscoveryPrefix string
	BaseTopic       string
	// NodeID identifies the meter in topics and unique ids.
	NodeID  string
	Timeout time.Duration
}

type Publisher struct {
	client Client
	opts   Options
	logger *logrus.Logger

	mu         sync.Mutex
	discovered bool
}

func NewPublisher(client Client, opts Options, logger *logrus.Logger) *Publisher {
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.BaseTopic == "" {
		opts.BaseTopic = "apavital"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	opts.NodeID = NodeID(opts.NodeID)
	return &Publisher{client: client, opts: opts, logger: logger}
}

// NodeID turns a client code into a topic-safe identifier.
func NodeID(code string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(code) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "meter"
	}
	return b.String()
}

func (p *Publisher) StateTopic() string {
	return fmt.Sprintf("%s/%s/state", p.opts.BaseTopic, p.opts.NodeID)
}

func (p *Publisher) AvailabilityTopic() string {
	return fmt.Sprintf("%s/%s/availability", p.opts.BaseTopic, p.opts.NodeID)
}

func (p *Publisher) discoveryTopic(d sensors.Description) string {
	return fmt.Sprintf("%s/%s/apavital_%s/%s/config", p.opts.DiscoveryPrefix, d.Component, p.opts.NodeID, d.Key)
}

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryConfig struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic"`
	ValueTemplate     string `json:"value_template"`
	PayloadOn         string `json:"payload_on,omitempty"`
	PayloadOff        string `json:"payload_off,omitempty"`
	Unit              string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
	EnabledByDefault  bool   `json:"enabled_by_default"`
	Device            device `json:"device"`
}

func (p *Publisher) discovery(d sensors.Description) discoveryConfig {
	cfg := discoveryConfig{
		Name:              d.Name,
		UniqueID:          fmt.Sprintf("%s_%s", p.opts.NodeID, d.Key),
		StateTopic:        p.StateTopic(),
		AvailabilityTopic: p.AvailabilityTopic(),
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", d.Key),
		Unit:              d.Unit,
		DeviceClass:       d.DeviceClass,
		StateClass:        d.StateClass,
		Icon:              d.Icon,
		EnabledByDefault:  d.EnabledByDefault,
		Device: device{
			Identifiers:  []string{"apavital_" + p.opts.NodeID},
			Name:         "Apavital Water Meter",
			Manufacturer: "Apavital",
			Model:        "Water Meter",
		},
	}
	if d.Component == "binary_sensor" {
		cfg.ValueTemplate = fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", d.Key)
		cfg.PayloadOn = "ON"
		cfg.PayloadOff = "OFF"
	}
	return cfg
}

type snapshotSource struct {
	snap *models.Snapshot
}

func (s snapshotSource) Snapshot() (*models.Snapshot, bool) { return s.snap, s.snap != nil }

// Observe publishes the outcome of one update cycle. Discovery configs are
// sent once, retained, before the first state.
func (p *Publisher) Observe(_ context.Context, snap *models.Snapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil || snap == nil {
		p.logFailure(p.publish(p.AvailabilityTopic(), true, payloadOffline), "availability")
		return
	}

	if !p.discovered {
		if err := p.publishDiscovery(); err != nil {
			p.logFailure(err, "discovery")
			return
		}
		p.discovered = true
	}

	if err := p.publishState(snap); err != nil {
		p.logFailure(err, "state")
		return
	}
	p.logFailure(p.publish(p.AvailabilityTopic(), true, payloadOnline), "availability")
}

// Close marks the meter offline.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publish(p.AvailabilityTopic(), true, payloadOffline)
}

func (p *Publisher) publishDiscovery() error {
	for _, d := range sensors.Descriptions {
		payload, err := json.Marshal(p.discovery(d))
		if err != nil {
			return err
		}
		if err := p.publish(p.discoveryTopic(d), true, payload); err != nil {
			return fmt.Errorf("%s: %w", d.Key, err)
		}
	}
	return nil
}

func (p *Publisher) publishState(snap *models.Snapshot) error {
	state := make(map[string]interface{}, len(sensors.Descriptions))
	for _, st := range sensors.States(snapshotSource{snap: snap}) {
		if st.Available {
			state[st.Key] = st.Value
		}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return p.publish(p.StateTopic(), true, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload interface{}) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.opts.Timeout) {
		return fmt.Errorf("%s: %w", topic, errPublishTimeout)
	}
	return token.Error()
}

func (p *Publisher) logFailure(err error, what string) {
	if err == nil {
		return
	}
	p.logger.WithError(err).WithField("payload", what).Warn("Failed to publish to MQTT")
}
