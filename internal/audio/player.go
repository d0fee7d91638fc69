package audio

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MaxVolume is the top of the 0..21 volume scale.
const MaxVolume = 21

// DefaultCommand plays one file with mpg123; {file} and {scale} are
// substituted on every start.
var DefaultCommand = []string{"mpg123", "-q", "-f", "{scale}", "{file}"}

type playback struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// ProcessPlayer plays assets by running an external decoder process. Every
// method returns without waiting for the process; exits are picked up by Loop.
type ProcessPlayer struct {
	source  *Source
	command []string
	volume  int
	pinout  [3]int
	log     zerolog.Logger

	current *playback
	running bool
}

// NewProcessPlayer returns a player resolving assets against source. An empty
// command selects DefaultCommand.
func NewProcessPlayer(source *Source, command []string, logger zerolog.Logger) *ProcessPlayer {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ProcessPlayer{
		source:  source,
		command: command,
		volume:  MaxVolume,
		log:     logger,
	}
}

// SetPinout records the I2S pins (bit clock, word select, data). The pins
// belong to the sound card; the player only keeps them for reporting.
func (p *ProcessPlayer) SetPinout(bclk, lrclk, din int) error {
	if bclk < 0 || lrclk < 0 || din < 0 {
		return errors.Errorf("invalid pinout %d/%d/%d", bclk, lrclk, din)
	}
	p.pinout = [3]int{bclk, lrclk, din}
	p.log.Debug().Ints("pinout", p.pinout[:]).Msg("i2s pinout set")
	return nil
}

// SetVolume sets the volume used from the next start, 0..21.
func (p *ProcessPlayer) SetVolume(volume int) error {
	if volume < 0 || volume > MaxVolume {
		return errors.Errorf("volume %d outside 0..%d", volume, MaxVolume)
	}
	p.volume = volume
	return nil
}

// ConnectToSource stops whatever is playing and starts the named asset.
func (p *ProcessPlayer) ConnectToSource(name string) error {
	p.stop()

	path, err := p.source.Resolve(name)
	if err != nil {
		return err
	}

	args := p.args(path)
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", args[0])
	}

	pb := &playback{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(pb.done)
	}()

	p.current = pb
	p.running = true
	p.log.Debug().Str("asset", name).Int("pid", cmd.Process.Pid).Msg("playback started")
	return nil
}

// StopPlayback kills the running decoder, if any.
func (p *ProcessPlayer) StopPlayback() error {
	p.stop()
	return nil
}

// Loop notices a decoder that has exited on its own.
func (p *ProcessPlayer) Loop() {
	if p.current == nil {
		return
	}
	select {
	case <-p.current.done:
		p.current = nil
		p.running = false
	default:
	}
}

func (p *ProcessPlayer) IsRunning() bool { return p.running }

func (p *ProcessPlayer) stop() {
	if p.current == nil {
		return
	}
	if err := p.current.cmd.Process.Kill(); err != nil {
		p.log.Debug().Err(err).Msg("kill decoder")
	}
	p.current = nil
	p.running = false
}

func (p *ProcessPlayer) args(path string) []string {
	// mpg123 scales output by a 0..32768 factor.
	scale := strconv.Itoa(p.volume * 32768 / MaxVolume)
	out := make([]string, len(p.command))
	for i, a := range p.command {
		a = strings.ReplaceAll(a, "{file}", path)
		a = strings.ReplaceAll(a, "{scale}", scale)
		out[i] = a
	}
	return out
}
