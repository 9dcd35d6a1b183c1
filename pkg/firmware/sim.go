package firmware

import (
	"context"
	"math"
	"slices"
	"time"
)

// SimActuator moves every joint linearly at a fixed angular speed.
// All joints arrive together; the move lasts as long as the largest delta needs.
type SimActuator struct {
	speed float64 // degrees per second, 0 for instant moves
	now   func() time.Time

	from   []float64
	target []float64
	start  time.Time
	moving bool
}

// SimOption configures a SimActuator.
type SimOption func(*SimActuator)

// WithSimClock overrides the time source.
func WithSimClock(now func() time.Time) SimOption {
	return func(s *SimActuator) {
		s.now = now
	}
}

// NewSimActuator creates a simulated arm starting at all-zero angles.
func NewSimActuator(degreesPerSecond float64, opts ...SimOption) *SimActuator {
	s := &SimActuator{
		speed:  degreesPerSecond,
		now:    time.Now,
		target: []float64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimActuator) MoveTo(_ context.Context, degrees []float64) error {
	s.from = s.Position()
	s.target = slices.Clone(degrees)
	s.start = s.now()
	s.moving = true
	return nil
}

func (s *SimActuator) Settled(_ context.Context) (bool, error) {
	if !s.moving {
		return true, nil
	}
	if s.progress() < 1 {
		return false, nil
	}
	s.from = s.target
	s.moving = false
	return true, nil
}

func (s *SimActuator) Halt(_ context.Context) error {
	s.target = s.Position()
	s.from = s.target
	s.moving = false
	return nil
}

// Position returns the current interpolated joint angles.
func (s *SimActuator) Position() []float64 {
	if !s.moving {
		return slices.Clone(s.target)
	}
	p := s.progress()
	n := max(len(s.from), len(s.target))
	out := make([]float64, n)
	for i := range out {
		from, to := at(s.from, i), at(s.target, i)
		out[i] = from + (to-from)*p
	}
	return out
}

// progress returns the completed fraction of the current move, in [0, 1].
func (s *SimActuator) progress() float64 {
	if s.speed <= 0 {
		return 1
	}
	var span float64
	for i := range max(len(s.from), len(s.target)) {
		span = math.Max(span, math.Abs(at(s.target, i)-at(s.from, i)))
	}
	if span == 0 {
		return 1
	}
	elapsed := s.now().Sub(s.start).Seconds()
	return math.Min(1, elapsed*s.speed/span)
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}
