package animation

import (
	"image/color"
	"time"
)

const (
	// RainbowCycles is how many full wheel turns the phase covers before wrapping.
	RainbowCycles = 5
	// RainbowSteps is the phase value at which the rainbow wraps back to 0.
	RainbowSteps = 256 * RainbowCycles
)

// PixelSink is the part of an LED strip the rainbow draws into.
type PixelSink interface {
	Len() int
	SetPixel(i int, c color.RGBA)
	// Show commits every pixel set since the previous Show as one frame.
	Show() error
}

// Rainbow spreads the color wheel across the strip and rotates it one step
// per frame.
type Rainbow struct {
	limiter *RateLimiter
	wheel   WheelFunc
	phase   uint16
}

// NewRainbow returns a rainbow that draws at most one frame per interval.
// A nil wheel selects Wheel.
func NewRainbow(interval time.Duration, wheel WheelFunc) *Rainbow {
	if wheel == nil {
		wheel = Wheel
	}
	return &Rainbow{
		limiter: NewRateLimiter(interval),
		wheel:   wheel,
	}
}

// Phase returns the current hue phase in [0, RainbowSteps).
func (r *Rainbow) Phase() uint16 { return r.phase }

// Advance draws and shows one frame if a frame is due at now. It reports
// whether a frame was drawn; the phase moves on even when Show fails.
func (r *Rainbow) Advance(now time.Time, strip PixelSink) (bool, error) {
	if !r.limiter.Allow(now) {
		return false, nil
	}

	n := strip.Len()
	for i := 0; i < n; i++ {
		strip.SetPixel(i, r.wheel(HueAt(i, n, r.phase)))
	}
	err := strip.Show()

	r.phase++
	if r.phase >= RainbowSteps {
		r.phase = 0
	}
	return true, err
}

// HueAt returns the wheel position of pixel i out of n at the given phase.
func HueAt(i, n int, phase uint16) uint8 {
	return uint8((i*256/n + int(phase)) & 0xff)
}

// Blank turns every pixel off and shows the result.
func Blank(strip PixelSink) error {
	for i := 0; i < strip.Len(); i++ {
		strip.SetPixel(i, color.RGBA{})
	}
	return strip.Show()
}
