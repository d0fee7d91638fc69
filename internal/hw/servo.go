package hw

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	ServoFreq   = 50 * physic.Hertz
	servoPeriod = 20 * time.Millisecond

	DefaultMinPulse = 500 * time.Microsecond
	DefaultMaxPulse = 2400 * time.Microsecond
)

// PWMPin is the part of gpio.PinOut a servo needs.
type PWMPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
}

// Servo drives a hobby servo with a 50 Hz pulse whose width maps linearly
// from minPulse at 0 degrees to maxPulse at 180 degrees.
type Servo struct {
	pin      PWMPin
	minPulse time.Duration
	maxPulse time.Duration
	angle    int
}

// NewServo attaches a servo to pin with the given pulse range.
func NewServo(pin PWMPin, minPulse, maxPulse time.Duration) *Servo {
	if minPulse <= 0 {
		minPulse = DefaultMinPulse
	}
	if maxPulse <= minPulse {
		maxPulse = DefaultMaxPulse
	}
	return &Servo{pin: pin, minPulse: minPulse, maxPulse: maxPulse, angle: -1}
}

// OpenServo looks up a GPIO by name ("GPIO15") and attaches a servo to it.
func OpenServo(name string, minPulse, maxPulse time.Duration) (*Servo, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no gpio named %q", name)
	}
	return NewServo(p, minPulse, maxPulse), nil
}

// Write moves the horn to angle, clamped to [0, 180].
func (s *Servo) Write(angle int) error {
	if angle < 0 {
		angle = 0
	}
	if angle > 180 {
		angle = 180
	}
	if err := s.pin.PWM(s.dutyFor(angle), ServoFreq); err != nil {
		return errors.Wrapf(err, "servo pwm at %d degrees", angle)
	}
	s.angle = angle
	return nil
}

// Angle returns the last angle written, or -1 before the first write.
func (s *Servo) Angle() int { return s.angle }

// PulseFor returns the pulse width that positions the horn at angle.
func (s *Servo) PulseFor(angle int) time.Duration {
	return s.minPulse + (s.maxPulse-s.minPulse)*time.Duration(angle)/180
}

func (s *Servo) dutyFor(angle int) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(s.PulseFor(angle)) / int64(servoPeriod))
}
