// Package device runs the disco ball's control loop: once per tick it reads
// the command mailbox, reacts to flags that changed since the previous tick
// and keeps the LED, servo and audio subsystems moving.
package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"discoball-controller/internal/animation"
	"discoball-controller/internal/core"
)

const (
	// DefaultTickInterval paces Run. It only needs to be well below the
	// animation intervals.
	DefaultTickInterval = time.Millisecond
	// DefaultRestartHold is how long playback is left alone after the audio
	// driver refused to start it.
	DefaultRestartHold = 5 * time.Second

	warnEvery = 5 * time.Second
)

// Config wires a Controller to its collaborators. Audio may be nil when the
// asset filesystem is unavailable; everything else is required.
type Config struct {
	Mailbox *core.Mailbox
	LEDs    LEDDriver
	Servo   ServoDriver
	Audio   AudioDriver
	// Asset is the name passed to Audio.ConnectToSource.
	Asset string
	// Pumps are flushed at the start of every tick.
	Pumps  []Pumper
	Timers *Timers
	Bus    *core.EventBus
	Logger zerolog.Logger

	TickInterval time.Duration
	RestartHold  time.Duration
}

// Controller reconciles the command mailbox against the actuators.
type Controller struct {
	cfg      Config
	restarts time.Time // no restart before this instant
	warned   map[string]*animation.RateLimiter
}

// NewController returns a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.Timers == nil {
		cfg.Timers = &Timers{}
	}
	if cfg.Bus == nil {
		cfg.Bus = core.NewEventBus()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.RestartHold <= 0 {
		cfg.RestartHold = DefaultRestartHold
	}
	return &Controller{
		cfg:    cfg,
		warned: make(map[string]*animation.RateLimiter),
	}
}

// AudioAvailable reports whether the controller has an audio driver.
func (c *Controller) AudioAvailable() bool { return c.cfg.Audio != nil }

// AudioDriver returns the audio driver, nil when unavailable.
func (c *Controller) AudioDriver() AudioDriver { return c.cfg.Audio }

// Status is st's status with the controller's view of the audio subsystem.
func (c *Controller) Status(st *State) core.Status {
	s := st.Status()
	s.AudioOnline = c.AudioAvailable()
	return s
}

// Setup brings the actuators to their power-on positions: servo at 0 degrees,
// strip cleared at the state's brightness, audio pinout and volume applied.
func (c *Controller) Setup(st *State, pinout [3]int, volume int) {
	log := c.cfg.Logger

	if err := c.cfg.Servo.Write(animation.MinAngle); err != nil {
		log.Warn().Err(err).Msg("servo initial write failed")
	}

	c.cfg.LEDs.SetBrightness(BrightnessFor(st.Brightness.Current()))
	if err := c.cfg.LEDs.Show(); err != nil {
		log.Warn().Err(err).Msg("strip initial show failed")
	}

	if c.cfg.Audio == nil {
		log.Warn().Msg("audio unavailable, sound commands will be ignored")
		return
	}
	if err := c.cfg.Audio.SetPinout(pinout[0], pinout[1], pinout[2]); err != nil {
		log.Warn().Err(err).Msg("audio pinout rejected")
	}
	if err := c.cfg.Audio.SetVolume(volume); err != nil {
		log.Warn().Err(err).Int("volume", volume).Msg("audio volume rejected")
	}
}

// Run ticks until ctx is canceled.
func (c *Controller) Run(ctx context.Context, st *State, clock Clock) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.cfg.Logger.Info().Dur("interval", c.cfg.TickInterval).Msg("control loop running")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.Tick(clock.Now(), st)
		}
	}
}

// Tick runs one iteration of the control loop. It never blocks and never
// fails: driver errors are logged and the next tick tries again.
func (c *Controller) Tick(now time.Time, st *State) {
	log := c.cfg.Logger
	audio := c.cfg.Audio
	st.Ticks++

	for _, p := range c.cfg.Pumps {
		p.Pump()
	}
	c.cfg.Timers.Run(now, st)
	cmd := c.cfg.Mailbox.Snapshot()

	if audio != nil {
		audio.Loop()
	}

	if st.Servo.Observe(cmd.Servo) {
		log.Info().Bool("on", cmd.Servo).Msg("move servo")
		c.publish(core.ServoToggledEvent, core.ToggleChange{On: cmd.Servo})
		st.Servo.Commit()
	}

	if st.Servo.Current() {
		if _, err := st.Sweep.Advance(now, c.cfg.Servo); err != nil {
			c.warn(now, "servo", err)
		}
	}

	if st.Sound.Observe(cmd.Sound) {
		st.PlaybackIntent = cmd.Sound
		if audio != nil {
			if cmd.Sound {
				c.startPlayback(now)
			} else if err := audio.StopPlayback(); err != nil {
				c.warn(now, "audio-stop", err)
			}
		}
		log.Info().Bool("on", cmd.Sound).Msg("sound toggled")
		c.publish(core.SoundToggledEvent, core.ToggleChange{On: cmd.Sound})
		st.Sound.Commit()
	}

	if st.Brightness.Observe(cmd.Brightness) {
		b := BrightnessFor(cmd.Brightness)
		c.cfg.LEDs.SetBrightness(b)
		log.Info().Int("level", cmd.Brightness).Uint8("driver", b).Msg("brightness changed")
		c.publish(core.BrightnessChangedEvent, core.BrightnessChange{Level: cmd.Brightness, Driver: b})
		st.Brightness.Commit()
	}

	if st.LED.Observe(cmd.LED) {
		log.Info().Bool("on", cmd.LED).Msg("leds toggled")
		c.publish(core.LEDToggledEvent, core.ToggleChange{On: cmd.LED})
		st.LED.Commit()
	}

	// The strip is blanked on every tick while disabled, not just on the
	// falling edge.
	if st.LED.Current() {
		if _, err := st.Rainbow.Advance(now, c.cfg.LEDs); err != nil {
			c.warn(now, "strip", err)
		}
	} else if err := animation.Blank(c.cfg.LEDs); err != nil {
		c.warn(now, "strip", err)
	}

	if st.PlaybackIntent && audio != nil && !audio.IsRunning() && !now.Before(c.restarts) {
		log.Debug().Msg("playback stopped, restarting")
		c.startPlayback(now)
		c.publish(core.PlaybackRestartedEvent, nil)
	}
}

func (c *Controller) startPlayback(now time.Time) {
	if err := c.cfg.Audio.ConnectToSource(c.cfg.Asset); err != nil {
		c.restarts = now.Add(c.cfg.RestartHold)
		c.warn(now, "audio-start", err)
		return
	}
	c.restarts = time.Time{}
}

func (c *Controller) publish(t core.EventType, payload interface{}) {
	c.cfg.Bus.Publish(core.Event{Type: t, Payload: payload})
}

// warn logs err at most once per warnEvery for each kind, so a dead driver
// does not flood the log at tick rate.
func (c *Controller) warn(now time.Time, kind string, err error) {
	lim, ok := c.warned[kind]
	if !ok {
		lim = animation.NewRateLimiter(warnEvery)
		c.warned[kind] = lim
	}
	if lim.Allow(now) {
		c.cfg.Logger.Warn().Err(err).Str("subsystem", kind).Msg("driver error")
	}
}

func (c *Controller) shutdown() {
	log := c.cfg.Logger
	if err := animation.Blank(c.cfg.LEDs); err != nil {
		log.Warn().Err(err).Msg("failed to clear strip")
	}
	if c.cfg.Audio != nil {
		if err := c.cfg.Audio.StopPlayback(); err != nil {
			log.Warn().Err(err).Msg("failed to stop playback")
		}
	}
	log.Info().Msg("control loop stopped")
}
