// internal/writer/mqtt.go
package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/history"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
)

// MQTTConfig is the broker connection.
type MQTTConfig struct {
	Broker   string // tcp://host:1883 or ssl://host:8883
	ClientID string
	Username string
	Password string
	Timeout  time.Duration // connect and publish wait; default 5s
}

// MQTTClient is a reconnecting paho client.
type MQTTClient struct {
	client    mqtt.Client
	timeout   time.Duration
	connected atomic.Bool
	log       *logging.Logger
}

// NewMQTTClient configures a client. It does not connect.
func NewMQTTClient(cfg MQTTConfig, log *logging.Logger) (*MQTTClient, error) {
	if cfg.Broker == "" {
		return nil, errors.New("writer: mqtt broker required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &MQTTClient{timeout: cfg.Timeout, log: logging.OrDiscard(log)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(mqtt.Client) {
		c.connected.Store(true)
		c.log.Info("mqtt connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		c.log.Error("mqtt connection lost: %v", err)
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect starts the connection. With connect-retry enabled paho keeps
// trying in the background, so a timeout here is not fatal.
func (c *MQTTClient) Connect() error {
	tok := c.client.Connect()
	if !tok.WaitTimeout(c.timeout) {
		c.log.Info("mqtt broker not reachable yet; retrying in background")
		return nil
	}
	return tok.Error()
}

// Connected reports the last known connection state.
func (c *MQTTClient) Connected() bool {
	return c.connected.Load()
}

// Publish sends one message and waits for the broker's acknowledgement.
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return tok.Error()
}

// Close disconnects, allowing in-flight work 250ms.
func (c *MQTTClient) Close() {
	c.client.Disconnect(250)
}

// MQTTWriter publishes snapshots, downlinks and uplink results as JSON.
type MQTTWriter struct {
	pub    Publisher
	prefix string
	qos    byte
}

// NewMQTTWriter publishes under prefix with qos.
func NewMQTTWriter(pub Publisher, prefix string, qos byte) *MQTTWriter {
	return &MQTTWriter{pub: pub, prefix: prefix, qos: qos}
}

type telemetryMessage struct {
	poller.Snapshot
	Errors []string `json:"errors,omitempty"`
}

// Write publishes the snapshot to <prefix>/telemetry, retained so a new
// subscriber sees the latest reading.
func (w *MQTTWriter) Write(s poller.Snapshot) error {
	msg := telemetryMessage{Snapshot: s}
	for _, err := range s.Errs {
		msg.Errors = append(msg.Errors, err.Error())
	}
	return w.publish(TopicTelemetry, true, msg)
}

// PublishDownlink publishes one received downlink to <prefix>/downlink.
func (w *MQTTWriter) PublishDownlink(data []byte) error {
	return w.publish(TopicDownlink, false, history.NewDownlinkRecord(time.Now(), data))
}

// PublishUplink publishes one uplink attempt to <prefix>/uplink.
func (w *MQTTWriter) PublishUplink(r history.UplinkRecord) error {
	if r.Time == "" {
		r.Time = time.Now().Format(history.TimeLayout)
	}
	return w.publish(TopicUplink, false, r)
}

func (w *MQTTWriter) publish(name string, retained bool, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("writer: encode %s: %w", name, err)
	}
	topic := Topic(w.prefix, name)
	if err := w.pub.Publish(topic, w.qos, retained, b); err != nil {
		return fmt.Errorf("writer: publish %s: %w", topic, err)
	}
	return nil
}
