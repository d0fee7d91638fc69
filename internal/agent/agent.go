// Package agent assembles the disco ball from its configuration and runs it.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"discoball-controller/internal/animation"
	"discoball-controller/internal/audio"
	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
	"discoball-controller/internal/device"
	"discoball-controller/internal/hw"
	"discoball-controller/internal/lua"
	"discoball-controller/internal/mqtt"
	"discoball-controller/internal/scheduler"
	"discoball-controller/internal/server"
)

// Options are the command-line switches that are not part of the config file.
type Options struct {
	// DryRun replaces the strip, servo and audio with in-memory drivers.
	DryRun  bool
	Version string
}

type Agent struct {
	config *config.Config
	opts   Options
	log    zerolog.Logger

	mailbox  *core.Mailbox
	eventBus *core.EventBus
	store    *core.StatusStore

	state      *device.State
	controller *device.Controller
	strip      *hw.Strip
	wheel      *lua.Wheel

	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client
}

func NewAgent(cfg *config.Config, opts Options, logger zerolog.Logger) (*Agent, error) {
	a := &Agent{
		config:   cfg,
		opts:     opts,
		log:      logger.With().Str("component", "agent").Logger(),
		mailbox:  core.NewMailbox(*cfg.Device.Brightness),
		eventBus: core.NewEventBus(),
		store:    core.NewStatusStore(),
	}

	strip, servo, err := a.openActuators()
	if err != nil {
		return nil, err
	}
	a.strip = strip

	var wheel animation.WheelFunc
	if cfg.Pattern.Script != "" {
		w, err := lua.LoadWheel(cfg.Pattern.Dir, cfg.Pattern.Script, a.child("pattern"))
		if err != nil {
			a.log.Warn().Err(err).Msg("pattern script unusable, using built-in wheel")
		} else {
			a.wheel = w
			wheel = w.Func()
		}
	}

	a.state = device.NewState(device.Options{
		FrameInterval:   cfg.Device.FrameInterval.Std(),
		MoveInterval:    cfg.Device.MoveInterval.Std(),
		BrightnessLevel: *cfg.Device.Brightness,
		Wheel:           wheel,
	})

	a.mqttClient = mqtt.NewClient(cfg.MQTT, a.mailbox, a.eventBus, a.child("mqtt"), opts.Version)
	var pumps []device.Pumper
	if a.mqttClient != nil {
		pumps = append(pumps, a.mqttClient)
	}

	timers := &device.Timers{}
	a.controller = device.NewController(device.Config{
		Mailbox:      a.mailbox,
		LEDs:         strip,
		Servo:        servo,
		Audio:        a.openAudio(),
		Asset:        cfg.Audio.Asset,
		Pumps:        pumps,
		Timers:       timers,
		Bus:          a.eventBus,
		Logger:       a.child("loop"),
		TickInterval: cfg.Device.TickInterval.Std(),
		RestartHold:  cfg.Audio.RestartHold.Std(),
	})
	timers.Every(cfg.Telemetry.Interval.Std(), a.report)

	a.scheduler, err = scheduler.NewScheduler(a.mailbox, cfg.Schedules, a.child("scheduler"))
	if err != nil {
		a.log.Warn().Err(err).Msg("some schedules were skipped")
	}

	if cfg.Server.Enabled {
		handler := server.MailboxHandler{Mailbox: a.mailbox, Store: a.store}
		a.server = server.NewServer(cfg.Server, handler, a.store, a.eventBus, a.scheduler.Entries, a.child("server"))
	}

	return a, nil
}

func (a *Agent) child(component string) zerolog.Logger {
	return a.log.With().Str("component", component).Logger()
}

func (a *Agent) openActuators() (*hw.Strip, *hw.Servo, error) {
	d := a.config.Device
	if a.opts.DryRun {
		a.log.Info().Int("pixels", d.Pixels).Msg("dry run, hardware disabled")
		return hw.NewDryRunStrip(d.Pixels), hw.NewDryRunServo(a.child("servo")), nil
	}

	strip, err := hw.OpenStrip(d.SPIPort, d.Pixels, physic.Frequency(d.SPIFreqKHz)*physic.KiloHertz)
	if err != nil {
		return nil, nil, err
	}
	servo, err := hw.OpenServo(d.ServoPin,
		time.Duration(d.ServoMinPulseUS)*time.Microsecond,
		time.Duration(d.ServoMaxPulseUS)*time.Microsecond)
	if err != nil {
		strip.Close()
		return nil, nil, err
	}
	return strip, servo, nil
}

// openAudio returns nil when the asset directory cannot be mounted.
func (a *Agent) openAudio() device.AudioDriver {
	src, err := audio.Mount(a.config.Audio.Dir)
	if err != nil {
		a.log.Error().Err(err).Msg("asset filesystem unavailable")
		return nil
	}
	if a.opts.DryRun {
		return audio.NewSimPlayer(src, a.config.Audio.SimTrackLength.Std(), a.child("audio"))
	}
	return audio.NewProcessPlayer(src, a.config.Audio.Command, a.child("audio"))
}

// report runs from the control loop on the telemetry interval.
func (a *Agent) report(now time.Time, st *device.State) {
	status := a.controller.Status(st)
	a.store.Set(status)
	a.eventBus.Publish(core.Event{Type: core.StatusEvent, Payload: status})
}

// Run blocks until ctx is canceled or a component fails, then shuts down.
func (a *Agent) Run(ctx context.Context) error {
	a.controller.Setup(a.state, a.config.AudioPinout(), *a.config.Audio.Volume)

	if a.mqttClient != nil {
		// Connect retries until the broker answers, so it must not hold up shutdown.
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.log.Error().Err(err).Msg("mqtt setup failed")
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.controller.Run(ctx, a.state, device.SystemClock{})
	})
	g.Go(func() error {
		a.scheduler.Start()
		<-ctx.Done()
		a.scheduler.Stop()
		return nil
	})
	if a.server != nil {
		g.Go(func() error { return a.server.Run(ctx) })
	}

	a.log.Info().Msg("agent running")
	err := g.Wait()
	a.Shutdown()
	return err
}

// Shutdown releases what Run leaves behind.
func (a *Agent) Shutdown() {
	a.mqttClient.Disconnect()
	if a.wheel != nil {
		a.wheel.Close()
	}
	if err := a.strip.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close strip")
	}
	a.log.Info().Msg("agent stopped")
}
