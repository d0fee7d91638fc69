// Package scheduler writes commands into the mailbox on cron schedules.
package scheduler

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

var pinAliases = map[string]core.Pin{
	"servo":      core.PinServo,
	"led":        core.PinLED,
	"leds":       core.PinLED,
	"sound":      core.PinSound,
	"brightness": core.PinBrightness,
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	cron    *cron.Cron
	store   map[cron.EntryID]config.ScheduleEntry
	mailbox *core.Mailbox
	mu      sync.RWMutex
	log     zerolog.Logger
}

// NewScheduler creates a scheduler and adds entries. Entries whose spec or
// command does not parse are reported together.
func NewScheduler(mailbox *core.Mailbox, entries []config.ScheduleEntry, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		store:   make(map[cron.EntryID]config.ScheduleEntry),
		mailbox: mailbox,
		log:     logger,
	}
	var bad []string
	for _, e := range entries {
		if _, err := s.Add(e.Spec, e.Command); err != nil {
			bad = append(bad, err.Error())
		}
	}
	if len(bad) > 0 {
		return s, errors.Errorf("invalid schedules: %s", strings.Join(bad, "; "))
	}
	return s, nil
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("entries", len(s.GetAll())).Msg("cron scheduler started")
}

// Stop halts the cron job ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("cron scheduler stopped")
}

// Add creates a new cron job.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	pin, value, err := ParseCommand(command)
	if err != nil {
		return 0, errors.Wrapf(err, "schedule %q", spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(pin, value) })
	if err != nil {
		return 0, errors.Wrapf(err, "schedule %q", spec)
	}
	s.store[id] = config.ScheduleEntry{Spec: spec, Command: command}
	s.log.Info().Int("id", int(id)).Str("spec", spec).Str("command", command).Msg("added schedule")
	return id, nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Remove(id)
	delete(s.store, id)
	s.log.Info().Int("id", int(id)).Msg("removed schedule")
}

// GetAll returns a copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]config.ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newMap := make(map[cron.EntryID]config.ScheduleEntry, len(s.store))
	for k, v := range s.store {
		newMap[k] = v
	}
	return newMap
}

// Entries returns the schedules as a list, for display.
func (s *Scheduler) Entries() []config.ScheduleEntry {
	all := s.GetAll()
	out := make([]config.ScheduleEntry, 0, len(all))
	for _, e := range s.cron.Entries() {
		if entry, ok := all[e.ID]; ok {
			out = append(out, entry)
		}
	}
	return out
}

func (s *Scheduler) execute(pin core.Pin, value int) {
	s.log.Info().Str("pin", string(pin)).Int("value", value).Msg("executing scheduled command")
	if err := s.mailbox.Write(pin, value); err != nil {
		s.log.Warn().Err(err).Msg("scheduled write failed")
	}
}

// ParseCommand parses "<name> <value>" where name is a pin (V0..V3) or one of
// servo, led, sound, brightness, and value is an integer or on/off.
func ParseCommand(command string) (core.Pin, int, error) {
	parts := strings.Fields(command)
	if len(parts) != 2 {
		return "", 0, errors.Errorf("command %q: want '<pin> <value>'", command)
	}

	pin, ok := pinAliases[strings.ToLower(parts[0])]
	if !ok {
		pin = core.Pin(strings.ToUpper(parts[0]))
		if !pin.Valid() {
			return "", 0, errors.Wrapf(core.ErrUnknownPin, "command %q", command)
		}
	}

	var value int
	switch strings.ToLower(parts[1]) {
	case "on":
		value = 1
	case "off":
		value = 0
	default:
		v, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", 0, errors.Errorf("command %q: invalid value %q", command, parts[1])
		}
		value = v
	}
	return pin, value, nil
}
