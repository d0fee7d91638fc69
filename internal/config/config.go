// Package config loads the controller configuration from JSON or TOML.
package config

import (
	"encoding"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Duration is a time.Duration written as a string such as "20ms" in both
// JSON and TOML files.
type Duration time.Duration

var (
	_ encoding.TextUnmarshaler = (*Duration)(nil)
	_ encoding.TextMarshaler   = (*Duration)(nil)
)

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DeviceConfig describes the actuators and the control loop pacing.
type DeviceConfig struct {
	// Pixels is the number of LEDs on the strip.
	Pixels int `json:"pixels" toml:"pixels"`
	// SPIPort is the periph SPI port name; empty picks the first one.
	SPIPort    string `json:"spi_port" toml:"spi_port"`
	SPIFreqKHz int    `json:"spi_freq_khz" toml:"spi_freq_khz"`

	ServoPin        string `json:"servo_pin" toml:"servo_pin"`
	ServoMinPulseUS int    `json:"servo_min_pulse_us" toml:"servo_min_pulse_us"`
	ServoMaxPulseUS int    `json:"servo_max_pulse_us" toml:"servo_max_pulse_us"`

	FrameInterval Duration `json:"frame_interval" toml:"frame_interval"`
	MoveInterval  Duration `json:"move_interval" toml:"move_interval"`
	TickInterval  Duration `json:"tick_interval" toml:"tick_interval"`

	// Brightness is the initial brightness level (V3).
	Brightness *int `json:"brightness" toml:"brightness"`
}

// AudioConfig describes the looping sound.
type AudioConfig struct {
	// Dir is mounted as the asset filesystem. Sound is unavailable when it
	// cannot be mounted.
	Dir   string `json:"dir" toml:"dir"`
	Asset string `json:"asset" toml:"asset"`
	// Command runs the player; {file} and {scale} are substituted.
	Command []string `json:"command" toml:"command"`
	Volume  *int     `json:"volume" toml:"volume"`
	// Pinout is the I2S bclk, lrclk and din pins.
	Pinout      []int    `json:"pinout" toml:"pinout"`
	RestartHold Duration `json:"restart_hold" toml:"restart_hold"`
	// SimTrackLength is the track length of the dry-run player.
	SimTrackLength Duration `json:"sim_track_length" toml:"sim_track_length"`
}

// ServerConfig configures the websocket monitor.
type ServerConfig struct {
	Enabled        bool     `json:"enabled" toml:"enabled"`
	Port           string   `json:"port" toml:"port"`
	AllowedOrigins []string `json:"allowed_origins" toml:"allowed_origins"`
}

// MQTTConfig configures the MQTT control plane and Home Assistant discovery.
type MQTTConfig struct {
	Enabled            bool   `json:"enabled" toml:"enabled"`
	Broker             string `json:"broker" toml:"broker"` // tcp://IP:PORT
	Username           string `json:"username" toml:"username"`
	Password           string `json:"password" toml:"password"`
	ClientID           string `json:"client_id" toml:"client_id"`
	TopicPrefix        string `json:"topic_prefix" toml:"topic_prefix"`
	HADiscoveryEnabled bool   `json:"ha_discovery_enabled" toml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `json:"ha_discovery_prefix" toml:"ha_discovery_prefix"`
}

// ScheduleEntry is a cron spec and the command it writes, e.g.
// "0 0 20 * * *" and "sound 1".
type ScheduleEntry struct {
	Spec    string `json:"spec" toml:"spec"`
	Command string `json:"command" toml:"command"`
}

// PatternConfig selects an optional Lua color wheel.
type PatternConfig struct {
	Dir    string `json:"dir" toml:"dir"`
	Script string `json:"script" toml:"script"`
}

// TelemetryConfig configures the periodic status report.
type TelemetryConfig struct {
	Interval Duration `json:"interval" toml:"interval"`
}

// Config is the root configuration.
type Config struct {
	Device    DeviceConfig    `json:"device" toml:"device"`
	Audio     AudioConfig     `json:"audio" toml:"audio"`
	Server    ServerConfig    `json:"server" toml:"server"`
	MQTT      MQTTConfig      `json:"mqtt" toml:"mqtt"`
	Schedules []ScheduleEntry `json:"schedules" toml:"schedule"`
	Pattern   PatternConfig   `json:"pattern" toml:"pattern"`
	Telemetry TelemetryConfig `json:"telemetry" toml:"telemetry"`
	LogLevel  string          `json:"log_level" toml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads path, decodes it by extension and applies defaults and
// validation. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file '%s'", path)
	}
	defer file.Close()

	return Parse(file, filepath.Ext(path))
}

// Parse decodes r as TOML when ext is ".toml" and as JSON otherwise.
func Parse(r io.Reader, ext string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.NewDecoder(r).Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode toml")
		}
	default:
		if err := json.NewDecoder(r).Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode json")
		}
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Device.SPIPort = strings.TrimSpace(c.Device.SPIPort)
	c.Device.ServoPin = strings.TrimSpace(c.Device.ServoPin)
	c.Audio.Dir = strings.TrimSpace(c.Audio.Dir)
	c.Audio.Asset = strings.TrimSpace(c.Audio.Asset)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Pattern.Dir = strings.TrimSpace(c.Pattern.Dir)
	c.Pattern.Script = strings.TrimSpace(c.Pattern.Script)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	for i := range c.Schedules {
		c.Schedules[i].Spec = strings.TrimSpace(c.Schedules[i].Spec)
		c.Schedules[i].Command = strings.TrimSpace(c.Schedules[i].Command)
	}
}

func intPtr(v int) *int { return &v }

func (c *Config) setDefaults() {
	// Device
	if c.Device.Pixels == 0 {
		c.Device.Pixels = 12
	}
	if c.Device.SPIFreqKHz == 0 {
		c.Device.SPIFreqKHz = 2500
	}
	if c.Device.ServoPin == "" {
		c.Device.ServoPin = "GPIO15"
	}
	if c.Device.ServoMinPulseUS == 0 {
		c.Device.ServoMinPulseUS = 500
	}
	if c.Device.ServoMaxPulseUS == 0 {
		c.Device.ServoMaxPulseUS = 2400
	}
	if c.Device.FrameInterval == 0 {
		c.Device.FrameInterval = Duration(10 * time.Millisecond)
	}
	if c.Device.MoveInterval == 0 {
		c.Device.MoveInterval = Duration(20 * time.Millisecond)
	}
	if c.Device.TickInterval == 0 {
		c.Device.TickInterval = Duration(time.Millisecond)
	}
	if c.Device.Brightness == nil {
		c.Device.Brightness = intPtr(10)
	}

	// Audio
	if c.Audio.Dir == "" {
		c.Audio.Dir = "assets"
	}
	if c.Audio.Asset == "" {
		c.Audio.Asset = "sound.mp3"
	}
	if c.Audio.Volume == nil {
		c.Audio.Volume = intPtr(21)
	}
	if len(c.Audio.Pinout) == 0 {
		c.Audio.Pinout = []int{26, 27, 14}
	}
	if c.Audio.RestartHold == 0 {
		c.Audio.RestartHold = Duration(5 * time.Second)
	}
	if c.Audio.SimTrackLength == 0 {
		c.Audio.SimTrackLength = Duration(30 * time.Second)
	}

	// Server
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// MQTT
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "discoball"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "discoball"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}

	if c.Pattern.Dir == "" {
		c.Pattern.Dir = "patterns"
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = Duration(time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Device.Pixels < 0 {
		return errors.New("config error: 'device.pixels' must not be negative")
	}
	if c.Device.ServoMinPulseUS >= c.Device.ServoMaxPulseUS {
		return errors.Errorf("config error: servo pulse range %d..%d us is empty",
			c.Device.ServoMinPulseUS, c.Device.ServoMaxPulseUS)
	}
	for name, d := range map[string]Duration{
		"device.frame_interval": c.Device.FrameInterval,
		"device.move_interval":  c.Device.MoveInterval,
		"device.tick_interval":  c.Device.TickInterval,
		"telemetry.interval":    c.Telemetry.Interval,
	} {
		if d < 0 {
			return errors.Errorf("config error: '%s' must not be negative", name)
		}
	}
	if v := *c.Audio.Volume; v < 0 || v > 21 {
		return errors.Errorf("config error: 'audio.volume' %d is outside 0..21", v)
	}
	if len(c.Audio.Pinout) != 3 {
		return errors.Errorf("config error: 'audio.pinout' needs 3 pins, got %d", len(c.Audio.Pinout))
	}
	for i, s := range c.Schedules {
		if s.Spec == "" || s.Command == "" {
			return errors.Errorf("config error: schedule %d needs both spec and command", i)
		}
	}
	return nil
}

// AudioPinout returns the configured I2S pins.
func (c *Config) AudioPinout() [3]int {
	return [3]int{c.Audio.Pinout[0], c.Audio.Pinout[1], c.Audio.Pinout[2]}
}
