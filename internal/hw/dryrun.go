package hw

import (
	"io"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// NewDryRunStrip returns a strip of n pixels whose frames go nowhere.
func NewDryRunStrip(n int) *Strip {
	return NewStrip(n, io.Discard)
}

// LogPin is a PWMPin that only logs what it would have driven.
type LogPin struct {
	Logger zerolog.Logger
	Duty   gpio.Duty
}

func (p *LogPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.Duty = duty
	p.Logger.Trace().Stringer("duty", duty).Stringer("freq", f).Msg("pwm")
	return nil
}

// NewDryRunServo returns a servo attached to a LogPin.
func NewDryRunServo(logger zerolog.Logger) *Servo {
	return NewServo(&LogPin{Logger: logger}, DefaultMinPulse, DefaultMaxPulse)
}
