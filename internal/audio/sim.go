package audio

import (
	"time"

	"github.com/rs/zerolog"
)

// SimPlayer pretends to play an asset of fixed length. It is used for dry
// runs and exercises the restart path when a track ends.
type SimPlayer struct {
	source *Source
	length time.Duration
	now    func() time.Time
	log    zerolog.Logger

	endsAt  time.Time
	running bool
	Starts  int
}

// NewSimPlayer returns a player whose tracks last length. source may be nil,
// in which case every asset name is accepted.
func NewSimPlayer(source *Source, length time.Duration, logger zerolog.Logger) *SimPlayer {
	return &SimPlayer{source: source, length: length, now: time.Now, log: logger}
}

func (p *SimPlayer) SetPinout(bclk, lrclk, din int) error { return nil }
func (p *SimPlayer) SetVolume(volume int) error           { return nil }

func (p *SimPlayer) ConnectToSource(name string) error {
	if p.source != nil {
		if _, err := p.source.Resolve(name); err != nil {
			return err
		}
	}
	p.Starts++
	p.running = true
	p.endsAt = p.now().Add(p.length)
	p.log.Info().Str("asset", name).Dur("length", p.length).Msg("simulated playback started")
	return nil
}

func (p *SimPlayer) StopPlayback() error {
	p.running = false
	return nil
}

func (p *SimPlayer) Loop() {
	if p.running && !p.now().Before(p.endsAt) {
		p.running = false
	}
}

func (p *SimPlayer) IsRunning() bool { return p.running }
