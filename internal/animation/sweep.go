package animation

import "time"

const (
	MinAngle = 0
	MaxAngle = 180
)

// AngleWriter positions a servo.
type AngleWriter interface {
	Write(angle int) error
}

// Sweep moves a servo back and forth across [MinAngle, MaxAngle] one degree
// per interval.
type Sweep struct {
	limiter   *RateLimiter
	angle     int
	direction int
}

// NewSweep returns a sweep parked at MinAngle heading up.
func NewSweep(interval time.Duration) *Sweep {
	return &Sweep{
		limiter:   NewRateLimiter(interval),
		angle:     MinAngle,
		direction: 1,
	}
}

// Angle returns the angle the next step will write.
func (s *Sweep) Angle() int { return s.angle }

// Direction returns +1 while sweeping up and -1 while sweeping down.
func (s *Sweep) Direction() int { return s.direction }

// Advance writes the current angle and steps the cursor if a move is due at
// now. The direction flips on the step that lands on a bound, so each bound is
// written exactly once per sweep.
func (s *Sweep) Advance(now time.Time, servo AngleWriter) (bool, error) {
	if !s.limiter.Allow(now) {
		return false, nil
	}

	err := servo.Write(s.angle)
	s.angle += s.direction
	if s.angle >= MaxAngle || s.angle <= MinAngle {
		s.direction = -s.direction
	}
	return true, err
}
