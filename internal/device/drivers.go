package device

import (
	"time"

	"discoball-controller/internal/animation"
)

// LEDDriver is an addressable strip. Pixels set with SetPixel only become
// visible on the next Show.
type LEDDriver interface {
	animation.PixelSink
	SetBrightness(b uint8)
}

// ServoDriver positions the servo horn in degrees, [0, 180].
type ServoDriver interface {
	animation.AngleWriter
}

// AudioDriver plays one asset at a time. Loop must be called on every tick;
// the other methods must return promptly.
type AudioDriver interface {
	SetPinout(bclk, lrclk, din int) error
	SetVolume(volume int) error
	ConnectToSource(name string) error
	StopPlayback() error
	Loop()
	IsRunning() bool
}

// Pumper is a transport that has queued work to flush from the control loop.
// Pump must not block.
type Pumper interface {
	Pump()
}

// Clock supplies the time of each tick.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
