package device

import (
	"time"

	"discoball-controller/internal/animation"
	"discoball-controller/internal/core"
)

// DefaultFrameInterval and DefaultMoveInterval replace zero Options
// intervals. DefaultBrightnessLevel is the usual power-on level; level 0 is
// valid, so NewState takes Options.BrightnessLevel as given.
const (
	DefaultFrameInterval   = 10 * time.Millisecond
	DefaultMoveInterval    = 20 * time.Millisecond
	DefaultBrightnessLevel = 10
)

// Options configures a new State.
type Options struct {
	FrameInterval   time.Duration
	MoveInterval    time.Duration
	BrightnessLevel int
	// Wheel replaces the rainbow's color wheel when set.
	Wheel animation.WheelFunc
}

// State is everything the control loop carries from one tick to the next.
type State struct {
	Servo      Edge[bool]
	LED        Edge[bool]
	Sound      Edge[bool]
	Brightness Edge[int]

	Rainbow *animation.Rainbow
	Sweep   *animation.Sweep

	// PlaybackIntent is whether audio should be playing, regardless of what
	// the driver currently reports.
	PlaybackIntent bool

	Ticks int64
}

// NewState returns the power-on state: every flag off, servo at 0 degrees.
func NewState(opts Options) *State {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.MoveInterval <= 0 {
		opts.MoveInterval = DefaultMoveInterval
	}
	return &State{
		Brightness: NewEdge(opts.BrightnessLevel),
		Rainbow:    animation.NewRainbow(opts.FrameInterval, opts.Wheel),
		Sweep:      animation.NewSweep(opts.MoveInterval),
	}
}

// Status summarises the state for reporting.
func (s *State) Status() core.Status {
	return core.Status{
		Commands: core.Commands{
			Servo:      s.Servo.Current(),
			LED:        s.LED.Current(),
			Sound:      s.Sound.Current(),
			Brightness: s.Brightness.Current(),
		},
		Playing:    s.PlaybackIntent,
		HuePhase:   int(s.Rainbow.Phase()),
		ServoAngle: s.Sweep.Angle(),
		Ticks:      s.Ticks,
	}
}

// BrightnessFor maps a brightness level to the strip's native 0..255 range.
// Levels outside 0..10 are accepted; the result saturates.
func BrightnessFor(level int) uint8 {
	v := level*20 + 55
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
