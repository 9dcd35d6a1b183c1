package firmware

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armlink/pkg/protocol"
	"github.com/gwillem/armlink/pkg/robot"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newSim(speed float64) (*SimActuator, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return NewSimActuator(speed, WithSimClock(clock.now)), clock
}

func writeAndRead(t *testing.T, e *Emulator, cmd protocol.Command) []string {
	t.Helper()
	require.NoError(t, e.WriteLine(cmd.Encode()))
	lines, err := e.ReadLines()
	require.NoError(t, err)
	return lines
}

func TestEmulator_SetPose(t *testing.T) {
	sim, _ := newSim(0)
	e := NewEmulator(sim)

	lines := writeAndRead(t, e, protocol.SetPose{ID: 3, Angles: []float64{1, 2, 3}})
	assert.Equal(t, []string{"<ACCEPTED id=3>"}, lines)

	lines = writeAndRead(t, e, protocol.SetPose{ID: 0, Angles: []float64{1}})
	assert.Equal(t, []string{"<REJECTED 0 ID_ZERO_IS_RESERVED>"}, lines)

	lines = writeAndRead(t, e, protocol.SetPose{ID: 256, Angles: []float64{1}})
	assert.Equal(t, []string{"<REJECTED 256 ID_OUT_OF_RANGE>"}, lines)
}

func TestEmulator_GoToCompletesWhenSettled(t *testing.T) {
	sim, clock := newSim(90)
	e := NewEmulator(sim)

	writeAndRead(t, e, protocol.SetPose{ID: 2, Angles: []float64{90, 45}})

	lines := writeAndRead(t, e, protocol.GoTo{ID: 2})
	assert.Equal(t, []string{"<ACCEPTED id=2>"}, lines)
	assert.True(t, e.Moving())

	clock.advance(500 * time.Millisecond)
	lines, err := e.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.InDeltaSlice(t, []float64{45, 22.5}, sim.Position(), 1e-9)

	clock.advance(500 * time.Millisecond)
	lines, err = e.ReadLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"<COMPLETED id=2>"}, lines)
	assert.Equal(t, 2, e.ActivePose())
	assert.False(t, e.Moving())
}

func TestEmulator_GoToUnsetPoseGoesToZero(t *testing.T) {
	sim, _ := newSim(0)
	e := NewEmulator(sim)

	writeAndRead(t, e, protocol.SetPose{ID: 1, Angles: []float64{10, 10, 10, 10, 10}})
	writeAndRead(t, e, protocol.GoTo{ID: 1})
	writeAndRead(t, e, protocol.GoTo{ID: 0})

	assert.Equal(t, make([]float64, robot.JointCount), sim.Position())
	assert.Equal(t, 0, e.ActivePose())
}

func TestEmulator_GoToWhileMovingIsRejected(t *testing.T) {
	sim, _ := newSim(1)
	e := NewEmulator(sim)

	writeAndRead(t, e, protocol.SetPose{ID: 1, Angles: []float64{90}})
	writeAndRead(t, e, protocol.GoTo{ID: 1})

	lines := writeAndRead(t, e, protocol.GoTo{ID: 1})
	assert.Equal(t, []string{"<REJECTED 1 BUSY>"}, lines)
}

func TestEmulator_StopReportsActivePose(t *testing.T) {
	sim, clock := newSim(10)
	e := NewEmulator(sim)

	writeAndRead(t, e, protocol.SetPose{ID: 4, Angles: []float64{100}})
	writeAndRead(t, e, protocol.GoTo{ID: 4})
	clock.advance(time.Second)

	lines := writeAndRead(t, e, protocol.Stop{})
	assert.Equal(t, []string{"<STOPPED id=0>"}, lines)
	assert.False(t, e.Moving())
	assert.InDeltaSlice(t, []float64{10}, sim.Position(), 1e-9)

	// Nothing more arrives once halted.
	clock.advance(time.Hour)
	lines, err := e.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestEmulator_GetPose(t *testing.T) {
	sim, _ := newSim(0)
	e := NewEmulator(sim, WithPoseBufferSize(robot.MaxPoses))

	writeAndRead(t, e, protocol.SetPose{ID: 2, Angles: []float64{45, -10.25}})

	tests := []struct {
		line string
		want string
	}{
		{protocol.GetPose{ID: 2}.Encode(), "<POSE 2 45.00000;-10.25000>"},
		{protocol.GetPose{ID: 0}.Encode(), "<POSE 0 0.00000;0.00000;0.00000;0.00000;0.00000>"},
		{protocol.GetPose{ID: 32}.Encode(), "<REJECTED 32 ID_OUT_OF_RANGE>"},
	}
	for _, tt := range tests {
		require.NoError(t, e.WriteLine(tt.line))
		lines, err := e.ReadLines()
		require.NoError(t, err)
		assert.Equal(t, []string{tt.want}, lines, tt.line)
	}

	require.NoError(t, e.WriteLine("<GET_POSE>"))
	lines, err := e.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "<ERROR INVALID_FIELD")
	assert.False(t, e.Moving())
}

func TestEmulator_MalformedLines(t *testing.T) {
	sim, _ := newSim(0)
	e := NewEmulator(sim)

	tests := []struct {
		line string
		want string
	}{
		{"GO_TO id=1", "<ERROR MISSING_ANGLE_BRACKETS>"},
		{"<DANCE>", "<ERROR UNKNOWN_COMMAND>"},
	}
	for _, tt := range tests {
		require.NoError(t, e.WriteLine(tt.line))
		lines, err := e.ReadLines()
		require.NoError(t, err)
		assert.Equal(t, []string{tt.want}, lines, tt.line)
	}

	require.NoError(t, e.WriteLine("<GO_TO id=x>"))
	lines, err := e.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.IsType(t, protocol.ErrorReport{}, protocol.ParseReply(lines[0]))
}

type faultyActuator struct {
	moveErr    error
	settledErr error
	closed     bool
}

func (f *faultyActuator) MoveTo(context.Context, []float64) error { return f.moveErr }
func (f *faultyActuator) Settled(context.Context) (bool, error)   { return false, f.settledErr }
func (f *faultyActuator) Halt(context.Context) error              { return nil }
func (f *faultyActuator) Close() error                            { f.closed = true; return nil }

func TestEmulator_ActuatorFaults(t *testing.T) {
	a := &faultyActuator{moveErr: errors.New("bus timeout")}
	e := NewEmulator(a)

	lines := writeAndRead(t, e, protocol.GoTo{ID: 0})
	assert.Equal(t, []string{"<ACCEPTED id=0>", "<REJECTED 0 ACTUATOR_FAULT>"}, lines)

	a.moveErr = nil
	a.settledErr = errors.New("no reply")
	lines = writeAndRead(t, e, protocol.GoTo{ID: 0})
	assert.Equal(t, []string{"<ACCEPTED id=0>", "<REJECTED 0 ACTUATOR_FAULT>"}, lines)
	assert.False(t, e.Moving())
}

func TestEmulator_Close(t *testing.T) {
	a := &faultyActuator{}
	e := NewEmulator(a)

	require.NoError(t, e.Close())
	assert.True(t, a.closed)
	assert.ErrorIs(t, e.WriteLine("<STOP>"), ErrClosed)
	require.NoError(t, e.Close())
}

func TestEmulator_DrivesArm(t *testing.T) {
	sim, clock := newSim(180)
	arm := robot.NewArm("base", NewEmulator(sim))

	require.NoError(t, arm.EnqueueSetPose(1, []float64{math.Pi / 2}))
	require.NoError(t, arm.EnqueueGoTo(1))

	for range 10 {
		arm.Tick()
		clock.advance(100 * time.Millisecond)
	}

	assert.Equal(t, 1, arm.CurrentPose())
	assert.True(t, arm.ReadyForMotion())
	assert.False(t, arm.IsWaiting())
	assert.Zero(t, arm.QueueSize())
}

type fakeGroup struct {
	positions feetech.PositionMap
	writes    []feetech.PositionMap
	enabled   int
	disabled  int
	closed    bool
}

func newFakeFeetech(cal robot.Calibration) (*FeetechActuator, *fakeGroup) {
	g := &fakeGroup{positions: feetech.PositionMap{}}
	return &FeetechActuator{
		cal:       cal,
		tolerance: DefaultSettleTolerance,
		enable:    func(context.Context) error { g.enabled++; return nil },
		disable:   func(context.Context) error { g.disabled++; return nil },
		read: func(context.Context) (feetech.PositionMap, error) {
			out := make(feetech.PositionMap, len(g.positions))
			for id, p := range g.positions {
				out[id] = p
			}
			return out, nil
		},
		write: func(_ context.Context, pos feetech.PositionMap) error {
			g.writes = append(g.writes, pos)
			return nil
		},
		close: func() error { g.closed = true; return nil },
	}, g
}

func TestFeetechActuator_MoveAndSettle(t *testing.T) {
	f, g := newFakeFeetech(robot.DefaultCalibration())
	ctx := context.Background()

	require.NoError(t, f.MoveTo(ctx, []float64{90, -90}))
	assert.Equal(t, 1, g.enabled)
	require.Len(t, g.writes, 1)
	assert.Equal(t, feetech.PositionMap{1: 3072, 2: 1024}, g.writes[0])

	g.positions = feetech.PositionMap{1: 2500, 2: 1024}
	settled, err := f.Settled(ctx)
	require.NoError(t, err)
	assert.False(t, settled)

	g.positions = feetech.PositionMap{1: 3060, 2: 1030}
	settled, err = f.Settled(ctx)
	require.NoError(t, err)
	assert.True(t, settled)

	require.NoError(t, f.MoveTo(ctx, []float64{0}))
	assert.Equal(t, 1, g.enabled, "torque is enabled once")
}

func TestFeetechActuator_Halt(t *testing.T) {
	f, g := newFakeFeetech(robot.DefaultCalibration())
	ctx := context.Background()

	require.NoError(t, f.MoveTo(ctx, []float64{90, 90}))
	g.positions = feetech.PositionMap{1: 2600, 2: 2700, 3: 2048}

	require.NoError(t, f.Halt(ctx))
	assert.Equal(t, feetech.PositionMap{1: 2600, 2: 2700}, g.writes[len(g.writes)-1])

	settled, err := f.Settled(ctx)
	require.NoError(t, err)
	assert.True(t, settled)

	require.NoError(t, f.Close())
	assert.Equal(t, 1, g.disabled)
	assert.True(t, g.closed)
}

func TestEmulator_PoseBufferSize(t *testing.T) {
	sim, _ := newSim(0)
	e := NewEmulator(sim, WithPoseBufferSize(robot.MaxPoses))

	lines := writeAndRead(t, e, protocol.SetPose{ID: 31, Angles: []float64{1}})
	assert.Equal(t, []string{"<ACCEPTED id=31>"}, lines)

	lines = writeAndRead(t, e, protocol.GoTo{ID: 32})
	assert.Equal(t, []string{"<REJECTED 32 ID_OUT_OF_RANGE>"}, lines)
}
