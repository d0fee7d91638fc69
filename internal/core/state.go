package core

import "sync"

// Status is what the outside world may see of the device: the commands the
// loop last acted on plus the animation cursors.
type Status struct {
	Commands
	Playing     bool  `json:"playing"`
	AudioOnline bool  `json:"audio_online"`
	HuePhase    int   `json:"hue_phase"`
	ServoAngle  int   `json:"servo_angle"`
	Ticks       int64 `json:"ticks"`
}

// StatusStore holds the latest Status published by the control loop.
type StatusStore struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusStore creates an empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

// Set replaces the stored status.
func (s *StatusStore) Set(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Clone returns a copy of the stored status for safe reading.
func (s *StatusStore) Clone() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
