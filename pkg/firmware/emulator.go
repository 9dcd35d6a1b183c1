// Package firmware emulates an arm controller's firmware on the host.
//
// An Emulator speaks the same line protocol as the microcontroller firmware and
// implements robot.Transport, so a robot.Arm can drive it directly. Motion is
// delegated to an Actuator: a simulation, or a Feetech servo bus attached to
// the host.
package firmware

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/gwillem/armlink/pkg/protocol"
	"github.com/gwillem/armlink/pkg/robot"
)

// DefaultPoseBufferSize matches the pose buffer of the controller firmware.
const DefaultPoseBufferSize = 256

// Rejection and error reasons reported by the emulator.
const (
	ReasonIDZeroReserved  = "ID_ZERO_IS_RESERVED"
	ReasonIDOutOfRange    = "ID_OUT_OF_RANGE"
	ReasonBusy            = "BUSY"
	ReasonActuatorFault   = "ACTUATOR_FAULT"
	ReasonMissingBrackets = "MISSING_ANGLE_BRACKETS"
	ReasonUnknownCommand  = "UNKNOWN_COMMAND"
	ReasonInvalidField    = "INVALID_FIELD"
)

const defaultActuatorTimeout = 100 * time.Millisecond

// ErrClosed is returned by WriteLine after Close.
var ErrClosed = errors.New("emulator closed")

// Actuator moves the joints of one arm.
type Actuator interface {
	// MoveTo starts a move to the given joint angles in degrees. It must not
	// wait for the move to finish.
	MoveTo(ctx context.Context, degrees []float64) error
	// Settled reports whether the last move has finished.
	Settled(ctx context.Context) (bool, error)
	// Halt stops any move in progress where it is.
	Halt(ctx context.Context) error
}

// Emulator is a host-side stand-in for the controller firmware.
// It is not safe for concurrent use.
type Emulator struct {
	actuator   Actuator
	bufferSize int
	timeout    time.Duration

	poses      map[int][]float64
	activePose int
	moving     bool
	target     int

	outbox []string
	closed bool
}

// EmulatorOption configures an Emulator.
type EmulatorOption func(*Emulator)

// WithPoseBufferSize sets the number of pose slots.
func WithPoseBufferSize(n int) EmulatorOption {
	return func(e *Emulator) {
		e.bufferSize = n
	}
}

// WithActuatorTimeout bounds every actuator call.
func WithActuatorTimeout(d time.Duration) EmulatorOption {
	return func(e *Emulator) {
		e.timeout = d
	}
}

// NewEmulator creates an emulator driving a.
func NewEmulator(a Actuator, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		actuator:   a,
		bufferSize: DefaultPoseBufferSize,
		timeout:    defaultActuatorTimeout,
		poses:      make(map[int][]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteLine handles one command line and queues the replies.
func (e *Emulator) WriteLine(line string) error {
	if e.closed {
		return ErrClosed
	}

	q, err := protocol.ParseGetPose(line)
	switch {
	case err == nil:
		e.handleGetPose(q)
		return nil
	case errors.Is(err, protocol.ErrInvalidField):
		e.send(protocol.FormatError(ReasonInvalidField + ": " + err.Error()))
		return nil
	}

	cmd, err := protocol.ParseCommand(line)
	switch {
	case errors.Is(err, protocol.ErrMissingBrackets):
		e.send(protocol.FormatError(ReasonMissingBrackets))
		return nil
	case errors.Is(err, protocol.ErrUnknownCommand):
		e.send(protocol.FormatError(ReasonUnknownCommand))
		return nil
	case err != nil:
		e.send(protocol.FormatError(ReasonInvalidField + ": " + err.Error()))
		return nil
	}

	switch c := cmd.(type) {
	case protocol.SetPose:
		e.handleSetPose(c)
	case protocol.GoTo:
		e.handleGoTo(c)
	case protocol.Stop:
		e.handleStop()
	}
	return nil
}

func (e *Emulator) handleSetPose(c protocol.SetPose) {
	if c.ID == robot.HomePose {
		e.send(protocol.FormatRejected(c.ID, ReasonIDZeroReserved))
		return
	}
	if c.ID >= e.bufferSize {
		e.send(protocol.FormatRejected(c.ID, ReasonIDOutOfRange))
		return
	}
	e.poses[c.ID] = slices.Clone(c.Angles)
	e.send(protocol.FormatAccepted(c.ID))
}

func (e *Emulator) handleGetPose(q protocol.GetPose) {
	if q.ID >= e.bufferSize {
		e.send(protocol.FormatRejected(q.ID, ReasonIDOutOfRange))
		return
	}
	e.send(protocol.FormatPose(q.ID, e.pose(q.ID)))
}

func (e *Emulator) handleGoTo(c protocol.GoTo) {
	if c.ID >= e.bufferSize {
		e.send(protocol.FormatRejected(c.ID, ReasonIDOutOfRange))
		return
	}
	if e.moving {
		e.send(protocol.FormatRejected(c.ID, ReasonBusy))
		return
	}

	e.send(protocol.FormatAccepted(c.ID))

	ctx, cancel := e.context()
	defer cancel()
	if err := e.actuator.MoveTo(ctx, e.pose(c.ID)); err != nil {
		e.send(protocol.FormatRejected(c.ID, ReasonActuatorFault))
		return
	}
	e.moving = true
	e.target = c.ID
}

func (e *Emulator) handleStop() {
	ctx, cancel := e.context()
	defer cancel()
	if err := e.actuator.Halt(ctx); err != nil {
		e.send(protocol.FormatError(ReasonActuatorFault + ": " + err.Error()))
	}
	e.moving = false
	e.send(protocol.FormatStopped(e.activePose))
}

// pose returns the stored angles for id; unset slots are all zeros, as on the
// firmware.
func (e *Emulator) pose(id int) []float64 {
	if p, ok := e.poses[id]; ok {
		return slices.Clone(p)
	}
	return make([]float64, robot.JointCount)
}

// ReadLines advances motion and returns the pending replies.
func (e *Emulator) ReadLines() ([]string, error) {
	if e.moving {
		ctx, cancel := e.context()
		settled, err := e.actuator.Settled(ctx)
		cancel()
		switch {
		case err != nil:
			e.moving = false
			e.send(protocol.FormatRejected(e.target, ReasonActuatorFault))
		case settled:
			e.moving = false
			e.activePose = e.target
			e.send(protocol.FormatCompleted(e.target))
		}
	}

	out := e.outbox
	e.outbox = nil
	return out, nil
}

// ActivePose returns the pose the emulated arm last reached.
func (e *Emulator) ActivePose() int {
	return e.activePose
}

// Moving reports whether a move is in progress.
func (e *Emulator) Moving() bool {
	return e.moving
}

// Close closes the actuator if it supports it.
func (e *Emulator) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if c, ok := e.actuator.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Emulator) send(line string) {
	e.outbox = append(e.outbox, line)
}

func (e *Emulator) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.timeout)
}
