package core

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Pin names a virtual input of the control plane.
type Pin string

const (
	PinServo      Pin = "V0"
	PinLED        Pin = "V1"
	PinSound      Pin = "V2"
	PinBrightness Pin = "V3"
)

// Pins lists every virtual input in wire order.
var Pins = []Pin{PinServo, PinLED, PinSound, PinBrightness}

// Valid reports whether p is one of Pins.
func (p Pin) Valid() bool {
	for _, known := range Pins {
		if p == known {
			return true
		}
	}
	return false
}

// ErrUnknownPin is returned by Mailbox.Write for a pin the device does not expose.
var ErrUnknownPin = errors.New("unknown virtual pin")

// Commands is one read of the mailbox.
type Commands struct {
	Servo      bool `json:"servo"`
	LED        bool `json:"led"`
	Sound      bool `json:"sound"`
	Brightness int  `json:"brightness"`
}

// Mailbox holds the latest value written to each virtual pin.
//
// Setters are called from transport goroutines, getters from the control loop.
// Every field is written independently and the last write wins; a tick running
// between two writes only sees the newer one.
type Mailbox struct {
	servo      atomic.Int64
	led        atomic.Int64
	sound      atomic.Int64
	brightness atomic.Int64
}

// NewMailbox returns a mailbox with every flag off and the given brightness level.
func NewMailbox(brightness int) *Mailbox {
	m := &Mailbox{}
	m.brightness.Store(int64(brightness))
	return m
}

func (m *Mailbox) SetServo(v int)      { m.servo.Store(int64(v)) }
func (m *Mailbox) SetLED(v int)        { m.led.Store(int64(v)) }
func (m *Mailbox) SetSound(v int)      { m.sound.Store(int64(v)) }
func (m *Mailbox) SetBrightness(v int) { m.brightness.Store(int64(v)) }

func (m *Mailbox) Servo() bool     { return m.servo.Load() != 0 }
func (m *Mailbox) LED() bool       { return m.led.Load() != 0 }
func (m *Mailbox) Sound() bool     { return m.sound.Load() != 0 }
func (m *Mailbox) Brightness() int { return int(m.brightness.Load()) }

// Write dispatches a raw integer to the setter behind pin.
func (m *Mailbox) Write(pin Pin, value int) error {
	switch pin {
	case PinServo:
		m.SetServo(value)
	case PinLED:
		m.SetLED(value)
	case PinSound:
		m.SetSound(value)
	case PinBrightness:
		m.SetBrightness(value)
	default:
		return errors.Wrapf(ErrUnknownPin, "pin %q", pin)
	}
	return nil
}

// Read returns the raw integer currently held for pin.
func (m *Mailbox) Read(pin Pin) (int, error) {
	switch pin {
	case PinServo:
		return int(m.servo.Load()), nil
	case PinLED:
		return int(m.led.Load()), nil
	case PinSound:
		return int(m.sound.Load()), nil
	case PinBrightness:
		return m.Brightness(), nil
	}
	return 0, errors.Wrapf(ErrUnknownPin, "pin %q", pin)
}

// Snapshot reads all four pins. Fields are loaded one by one; there is no
// cross-field consistency to preserve.
func (m *Mailbox) Snapshot() Commands {
	return Commands{
		Servo:      m.Servo(),
		LED:        m.LED(),
		Sound:      m.Sound(),
		Brightness: m.Brightness(),
	}
}
