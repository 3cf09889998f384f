package sppm

import (
	"errors"
	"math"
)

var (
	ErrInvalidRadius = errors.New("sppm: initial radius must be positive")
	ErrInvalidAlpha  = errors.New("sppm: alpha must be in (0, 1)")
)

// RadiusSchedule shrinks the photon search radius after every gather pass
// using r(n+1) = r(n) * sqrt((n + alpha) / (n + 1)).
type RadiusSchedule struct {
	initial float64
	alpha   float64

	radius    float64
	iteration uint32
}

// Create a schedule starting at radius r0.
func NewRadiusSchedule(r0, alpha float32) (*RadiusSchedule, error) {
	if r0 <= 0 {
		return nil, ErrInvalidRadius
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, ErrInvalidAlpha
	}

	return &RadiusSchedule{
		initial: float64(r0),
		alpha:   float64(alpha),
		radius:  float64(r0),
	}, nil
}

// Radius returns the current search radius.
func (s *RadiusSchedule) Radius() float32 {
	return float32(s.radius)
}

// Iteration returns the number of completed iterations.
func (s *RadiusSchedule) Iteration() uint32 {
	return s.iteration
}

// Advance shrinks the radius and increments the iteration counter. It
// returns the new radius.
func (s *RadiusSchedule) Advance() float32 {
	n := float64(s.iteration)
	s.radius *= math.Sqrt((n + s.alpha) / (n + 1))
	s.iteration++
	return float32(s.radius)
}

// Reset restores the initial radius and iteration counter.
func (s *RadiusSchedule) Reset() {
	s.radius = s.initial
	s.iteration = 0
}
