package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"discoball-controller/internal/core"
)

var switchNames = map[core.Pin]string{
	core.PinServo: "Rotation",
	core.PinLED:   "Lights",
	core.PinSound: "Sound",
}

func (c *Client) safeID() string {
	id := strings.ReplaceAll(c.cfg.ClientID, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, id)
}

func (c *Client) device(id string) map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{id},
		"name":         "Disco Ball",
		"manufacturer": "discoball-controller",
		"model":        "Disco Ball",
		"sw_version":   c.version,
	}
}

func (c *Client) availability() []map[string]string {
	return []map[string]string{{
		"topic":                 c.topic("availability"),
		"payload_available":     "online",
		"payload_not_available": "offline",
	}}
}

// discoveryConfigs returns the Home Assistant discovery topic and payload of
// every entity: one switch per flag pin and a number for brightness.
func (c *Client) discoveryConfigs() map[string]map[string]interface{} {
	id := c.safeID()
	out := make(map[string]map[string]interface{})

	for pin, name := range switchNames {
		obj := strings.ToLower(id + "_" + string(pin))
		topic := fmt.Sprintf("%s/switch/%s/%s/config", c.cfg.HADiscoveryPrefix, id, obj)
		out[topic] = map[string]interface{}{
			"name":          name,
			"unique_id":     obj,
			"command_topic": c.topic(setTopic(pin)),
			"state_topic":   c.topic(stateTopic(pin)),
			"payload_on":    "1",
			"payload_off":   "0",
			"state_on":      "1",
			"state_off":     "0",
			"availability":  c.availability(),
			"device":        c.device(id),
		}
	}

	obj := strings.ToLower(id + "_" + string(core.PinBrightness))
	topic := fmt.Sprintf("%s/number/%s/%s/config", c.cfg.HADiscoveryPrefix, id, obj)
	out[topic] = map[string]interface{}{
		"name":          "Brightness",
		"unique_id":     obj,
		"icon":          "mdi:brightness-6",
		"command_topic": c.topic(setTopic(core.PinBrightness)),
		"state_topic":   c.topic(stateTopic(core.PinBrightness)),
		"min":           0,
		"max":           10,
		"step":          1,
		"availability":  c.availability(),
		"device":        c.device(id),
	}
	return out
}

// PublishHADiscovery sends the Home Assistant discovery documents.
func (c *Client) PublishHADiscovery() {
	for topic, payload := range c.discoveryConfigs() {
		data, err := json.Marshal(payload)
		if err != nil {
			c.log.Warn().Err(err).Str("topic", topic).Msg("failed to encode discovery")
			continue
		}
		c.client.Publish(topic, 0, true, data)
	}
	c.log.Info().Str("prefix", c.cfg.HADiscoveryPrefix).Msg("HA discovery sent")
}
