// Package mqtt exposes the command channel over MQTT: each virtual pin is
// writable at <prefix>/<pin>/set and reported at <prefix>/<pin>/state.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

// Client bridges the broker to the mailbox and the event bus.
type Client struct {
	client  mqtt.Client
	cfg     config.MQTTConfig
	mailbox *core.Mailbox
	events  core.Subscriber
	log     zerolog.Logger
	prefix  string
	version string
}

// NewClient returns nil when MQTT is disabled.
func NewClient(cfg config.MQTTConfig, mailbox *core.Mailbox, bus *core.EventBus, logger zerolog.Logger, version string) *Client {
	if !cfg.Enabled {
		return nil
	}

	c := newClient(cfg, mailbox, bus, logger, version)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying at startup so a broker that boots after us is picked up.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	opts.SetWill(c.topic("availability"), "offline", 1, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.log.Warn().Err(err).Msg("connection lost, retrying in background")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		c.log.Info().Msg("attempting to reconnect")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

func newClient(cfg config.MQTTConfig, mailbox *core.Mailbox, bus *core.EventBus, logger zerolog.Logger, version string) *Client {
	return &Client{
		cfg:     cfg,
		mailbox: mailbox,
		events:  bus.Subscribe(core.AllEvents...),
		log:     logger,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		version: version,
	}
}

// Connect waits for the first connection attempt.
func (c *Client) Connect() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.log.Info().Str("broker", c.cfg.Broker).Msg("connecting")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "mqtt connect")
	}
	return nil
}

// Disconnect publishes offline and closes the connection.
func (c *Client) Disconnect() {
	if c == nil || c.client == nil || !c.client.IsConnected() {
		return
	}
	c.log.Info().Msg("disconnecting")

	token := c.client.Publish(c.topic("availability"), 0, true, "offline")
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			c.log.Warn().Err(token.Error()).Msg("failed to publish offline status")
		}
	} else {
		c.log.Warn().Msg("timed out publishing offline status")
	}

	c.client.Disconnect(250)
	c.log.Info().Msg("disconnected")
}

func (c *Client) topic(subtopic string) string {
	return fmt.Sprintf("%s/%s", c.prefix, subtopic)
}

// Publish sends payload to <prefix>/<subtopic> without waiting for the broker.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := c.topic(subtopic)
	var msg interface{}
	switch p := payload.(type) {
	case []byte, string:
		msg = p
	default:
		msg = fmt.Sprintf("%v", p)
	}

	token := c.client.Publish(topic, 0, retained, msg)
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				c.log.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
			}
		} else {
			c.log.Warn().Str("topic", topic).Msg("publish timed out")
		}
	}()
}

// Pump forwards pending device events to the broker. It never blocks.
func (c *Client) Pump() {
	for {
		select {
		case ev := <-c.events:
			c.forward(ev)
		default:
			return
		}
	}
}

func (c *Client) forward(ev core.Event) {
	switch ev.Type {
	case core.ServoToggledEvent:
		c.publishToggle(core.PinServo, ev.Payload)
	case core.LEDToggledEvent:
		c.publishToggle(core.PinLED, ev.Payload)
	case core.SoundToggledEvent:
		c.publishToggle(core.PinSound, ev.Payload)
	case core.BrightnessChangedEvent:
		if b, ok := ev.Payload.(core.BrightnessChange); ok {
			c.Publish(stateTopic(core.PinBrightness), b.Level, true)
		}
	case core.StatusEvent:
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to encode status")
			return
		}
		c.Publish("status", data, false)
	}
}

func (c *Client) publishToggle(pin core.Pin, payload interface{}) {
	t, ok := payload.(core.ToggleChange)
	if !ok {
		return
	}
	v := 0
	if t.On {
		v = 1
	}
	c.Publish(stateTopic(pin), v, true)
}

func setTopic(pin core.Pin) string   { return string(pin) + "/set" }
func stateTopic(pin core.Pin) string { return string(pin) + "/state" }

// onConnect runs on paho's internal goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info().Msg("connected to broker")

	for _, pin := range core.Pins {
		topic := c.topic(setTopic(pin))
		if token := client.Subscribe(topic, 1, c.handleWrite(pin)); token.Wait() && token.Error() != nil {
			c.log.Warn().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		} else {
			c.log.Info().Str("topic", topic).Msg("subscribed")
		}
	}

	go func() {
		c.Publish("availability", "online", true)
		c.publishSnapshot()
		if c.cfg.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

// publishSnapshot reports every pin so retained state matches the mailbox
// after a reconnect.
func (c *Client) publishSnapshot() {
	for _, pin := range core.Pins {
		if v, err := c.mailbox.Read(pin); err == nil {
			c.Publish(stateTopic(pin), v, true)
		}
	}
}

func (c *Client) handleWrite(pin core.Pin) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		v, err := ParseValue(string(msg.Payload()))
		if err != nil {
			c.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring write")
			return
		}
		if err := c.mailbox.Write(pin, v); err != nil {
			c.log.Warn().Err(err).Msg("ignoring write")
			return
		}
		c.log.Debug().Str("pin", string(pin)).Int("value", v).Msg("write")
	}
}

// ParseValue decodes a pin write: an integer or on/off/true/false.
func ParseValue(payload string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, errors.Errorf("invalid value %q", payload)
	}
	return v, nil
}
