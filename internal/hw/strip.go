// Package hw adapts periph.io devices to the controller's driver interfaces.
package hw

import (
	"image/color"
	"io"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// DefaultStripFreq is the SPI clock used to encode the WS2812 NRZ stream.
const DefaultStripFreq = 2500 * physic.KiloHertz

// Strip buffers a frame of pixels and writes it, scaled by the brightness, to
// an NRZ LED chain on Show.
type Strip struct {
	pix        []color.RGBA
	brightness uint8
	out        io.Writer
	raw        []byte

	halt  func() error
	close func() error
}

// NewStrip returns a strip of n pixels that writes raw RGB triplets to out.
func NewStrip(n int, out io.Writer) *Strip {
	return &Strip{
		pix:        make([]color.RGBA, n),
		brightness: 255,
		out:        out,
		raw:        make([]byte, 3*n),
	}
}

// OpenStrip initializes the host drivers and opens an nrzled chain of n
// pixels on the SPI port named port ("" selects the first one).
func OpenStrip(port string, n int, freq physic.Frequency) (*Strip, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, errors.Wrapf(err, "open spi port %q", port)
	}
	if freq == 0 {
		freq = DefaultStripFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: n, Channels: 3, Freq: freq})
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "nrzled")
	}
	return newStripOn(n, d, p), nil
}

func newStripOn(n int, d *nrzled.Dev, p spi.PortCloser) *Strip {
	s := NewStrip(n, d)
	s.halt = d.Halt
	s.close = p.Close
	return s
}

func (s *Strip) Len() int { return len(s.pix) }

func (s *Strip) SetPixel(i int, c color.RGBA) {
	if i < 0 || i >= len(s.pix) {
		return
	}
	s.pix[i] = c
}

func (s *Strip) SetBrightness(b uint8) { s.brightness = b }

// Brightness returns the level applied on Show.
func (s *Strip) Brightness() uint8 { return s.brightness }

// Pixel returns pixel i as last set, before brightness scaling.
func (s *Strip) Pixel(i int) color.RGBA { return s.pix[i] }

// Show writes the whole frame in one transfer.
func (s *Strip) Show() error {
	for i, c := range s.pix {
		s.raw[3*i] = scale(c.R, s.brightness)
		s.raw[3*i+1] = scale(c.G, s.brightness)
		s.raw[3*i+2] = scale(c.B, s.brightness)
	}
	if _, err := s.out.Write(s.raw); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Close turns the chain off and releases the port.
func (s *Strip) Close() error {
	var err error
	if s.halt != nil {
		err = s.halt()
	}
	if s.close != nil {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}
	return err
}

// scale applies brightness the way NeoPixel strips do: 255 passes the value
// through, anything lower multiplies by (b+1)/256.
func scale(v, b uint8) uint8 {
	if b == 255 {
		return v
	}
	return uint8(uint16(v) * (uint16(b) + 1) >> 8)
}
