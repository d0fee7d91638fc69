package animation

import "image/color"

// WheelFunc maps a position on a 256-step color wheel to a color.
type WheelFunc func(pos uint8) color.RGBA

// Wheel is the classic three-segment NeoPixel color wheel. Each segment spans
// 85 positions and fades linearly between two primaries; position 0 and 255
// are both pure red.
func Wheel(pos uint8) color.RGBA {
	p := 255 - pos
	switch {
	case p < 85:
		return color.RGBA{R: 255 - p*3, G: 0, B: p * 3, A: 0xff}
	case p < 170:
		p -= 85
		return color.RGBA{R: 0, G: p * 3, B: 255 - p*3, A: 0xff}
	default:
		p -= 170
		return color.RGBA{R: p * 3, G: 255 - p*3, B: 0, A: 0xff}
	}
}
