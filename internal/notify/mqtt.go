// Package notify publishes fleet events to an MQTT broker so that image
// viewers and other consoles can refresh without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"argus-master/internal/camera"
	"argus-master/internal/client"
	"argus-master/internal/fleet"
)

type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
	LogFunc     client.LogFunc
}

// CaptureEvent is published once per camera after a fleet capture.
type CaptureEvent struct {
	Address    string         `json:"address"`
	Name       string         `json:"name"`
	LeftImage  string         `json:"left_image,omitempty"`
	RightImage string         `json:"right_image,omitempty"`
	LeftOK     bool           `json:"left_ok"`
	RightOK    bool           `json:"right_ok"`
	CapturedAt time.Time      `json:"captured_at"`
	Info       map[string]any `json:"info,omitempty"`
}

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher is a fleet.Observer that forwards capture events to MQTT.
type Publisher struct {
	pub         tokenPublisher
	disconnect  func()
	topicPrefix string
	qos         byte
	timeout     time.Duration
	logFn       client.LogFunc
}

var _ fleet.Observer = (*Publisher)(nil)

// Connect dials the broker and returns a Publisher bound to it.
func Connect(cfg Config) (*Publisher, error) {
	cfg = withDefaults(cfg)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	p := newPublisher(c, cfg)
	p.disconnect = func() { c.Disconnect(250) }
	return p, nil
}

func newPublisher(pub tokenPublisher, cfg Config) *Publisher {
	cfg = withDefaults(cfg)
	return &Publisher{
		pub:         pub,
		disconnect:  func() {},
		topicPrefix: strings.TrimRight(cfg.TopicPrefix, "/"),
		qos:         cfg.QoS,
		timeout:     cfg.Timeout,
		logFn:       cfg.LogFunc,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.ClientID == "" {
		cfg.ClientID = "argus-master-" + uuid.NewString()[:8]
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "argus/cameras"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.LogFunc == nil {
		cfg.LogFunc = log.Printf
	}
	return cfg
}

// Topic returns the topic capture events for the named camera go to.
func (p *Publisher) Topic(name string) string {
	return fmt.Sprintf("%s/%s/captured", p.topicPrefix, name)
}

func (p *Publisher) OnDeviceCaptured(_ context.Context, d *camera.Device, res fleet.CaptureResult) {
	event := CaptureEvent{
		Address:    d.Address,
		Name:       d.Name,
		LeftImage:  res.LeftImage,
		RightImage: res.RightImage,
		LeftOK:     res.LeftOK,
		RightOK:    res.RightOK,
		CapturedAt: time.Now().UTC(),
		Info:       res.Outcome.Info,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logFn("notify: encode capture event for %s: %v", d.Name, err)
		return
	}

	topic := p.Topic(d.Name)
	tok := p.pub.Publish(topic, p.qos, false, payload)
	if !tok.WaitTimeout(p.timeout) {
		p.logFn("notify: publish to %s timed out", topic)
		return
	}
	if err := tok.Error(); err != nil {
		p.logFn("notify: publish to %s: %v", topic, err)
	}
}

func (p *Publisher) Close() {
	p.disconnect()
}
