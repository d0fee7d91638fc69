package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  interface{}
}

// fakeBroker implements the parts of mqtt.Client the bridge uses.
type fakeBroker struct {
	mqtt.Client
	mu       sync.Mutex
	pubs     []published
	handlers map[string]mqtt.MessageHandler
}

func (b *fakeBroker) IsConnected() bool { return true }

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, published{topic: topic, retained: retained, payload: payload})
	return fakeToken{}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]mqtt.MessageHandler)
	}
	b.handlers[topic] = cb
	return fakeToken{}
}

func (b *fakeBroker) published() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.pubs...)
}

func (b *fakeBroker) find(topic string) (published, bool) {
	for _, p := range b.published() {
		if p.topic == topic {
			return p, true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload string
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }

func newTestClient(t *testing.T) (*Client, *fakeBroker, *core.Mailbox, *core.EventBus) {
	t.Helper()
	mb := core.NewMailbox(10)
	bus := core.NewEventBus()
	cfg := config.Default().MQTT
	cfg.Enabled = true
	cfg.HADiscoveryEnabled = true
	c := newClient(cfg, mb, bus, zerolog.Nop(), "test")
	broker := &fakeBroker{}
	c.client = broker
	return c, broker, mb, bus
}

func TestNewClientDisabled(t *testing.T) {
	c := NewClient(config.MQTTConfig{}, core.NewMailbox(0), core.NewEventBus(), zerolog.Nop(), "")
	assert.Nil(t, c)
	assert.NoError(t, c.Connect())
	c.Disconnect()
}

func TestParseValue(t *testing.T) {
	for in, want := range map[string]int{"1": 1, "0": 0, " 7 ": 7, "ON": 1, "off": 0, "true": 1, "False": 0, "-3": -3} {
		v, err := ParseValue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v, in)
	}
	_, err := ParseValue("maybe")
	assert.Error(t, err)
}

func TestOnConnectSubscribesEveryPin(t *testing.T) {
	c, broker, mb, _ := newTestClient(t)
	c.onConnect(broker)

	for _, pin := range core.Pins {
		require.Contains(t, broker.handlers, "discoball/"+string(pin)+"/set")
	}

	broker.handlers["discoball/V2/set"](broker, fakeMessage{topic: "discoball/V2/set", payload: "1"})
	broker.handlers["discoball/V3/set"](broker, fakeMessage{topic: "discoball/V3/set", payload: "4"})
	broker.handlers["discoball/V1/set"](broker, fakeMessage{topic: "discoball/V1/set", payload: "bogus"})

	assert.Equal(t, core.Commands{Sound: true, Brightness: 4}, mb.Snapshot())

	assert.Eventually(t, func() bool {
		_, ok := broker.find("discoball/availability")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestPumpForwardsEvents(t *testing.T) {
	c, broker, _, bus := newTestClient(t)

	bus.Publish(core.Event{Type: core.ServoToggledEvent, Payload: core.ToggleChange{On: true}})
	bus.Publish(core.Event{Type: core.BrightnessChangedEvent, Payload: core.BrightnessChange{Level: 3, Driver: 115}})
	bus.Publish(core.Event{Type: core.StatusEvent, Payload: core.Status{HuePhase: 9}})
	c.Pump()

	p, ok := broker.find("discoball/V0/state")
	require.True(t, ok)
	assert.Equal(t, "1", p.payload)
	assert.True(t, p.retained)

	p, ok = broker.find("discoball/V3/state")
	require.True(t, ok)
	assert.Equal(t, "3", p.payload)

	p, ok = broker.find("discoball/status")
	require.True(t, ok)
	var st core.Status
	require.NoError(t, json.Unmarshal(p.payload.([]byte), &st))
	assert.Equal(t, 9, st.HuePhase)

	// Nothing left to forward.
	n := len(broker.published())
	c.Pump()
	assert.Len(t, broker.published(), n)
}

func TestDiscoveryConfigs(t *testing.T) {
	c, broker, _, _ := newTestClient(t)
	c.cfg.ClientID = "disco ball!"

	cfgs := c.discoveryConfigs()
	require.Len(t, cfgs, 4)

	sw, ok := cfgs["homeassistant/switch/disco_ball/disco_ball_v1/config"]
	require.True(t, ok)
	assert.Equal(t, "discoball/V1/set", sw["command_topic"])
	assert.Equal(t, "discoball/V1/state", sw["state_topic"])

	num, ok := cfgs["homeassistant/number/disco_ball/disco_ball_v3/config"]
	require.True(t, ok)
	assert.Equal(t, "discoball/V3/set", num["command_topic"])

	c.PublishHADiscovery()
	assert.Len(t, broker.published(), 4)
}
