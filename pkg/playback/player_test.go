package playback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armlink/pkg/dual"
	"github.com/gwillem/armlink/pkg/firmware"
	"github.com/gwillem/armlink/pkg/robot"
)

// recorder keeps every line written to the wrapped transport.
type recorder struct {
	robot.Transport
	written []string
}

func (r *recorder) WriteLine(line string) error {
	r.written = append(r.written, line)
	return r.Transport.WriteLine(line)
}

func (r *recorder) gotos() []string {
	var out []string
	for _, l := range r.written {
		if strings.HasPrefix(l, "<GO_TO") || l == "<STOP>" {
			out = append(out, l)
		}
	}
	return out
}

func newRig(speed float64) (*dual.Controller, *recorder, *recorder) {
	base := &recorder{Transport: firmware.NewEmulator(firmware.NewSimActuator(speed))}
	fore := &recorder{Transport: firmware.NewEmulator(firmware.NewSimActuator(speed))}
	return dual.New(robot.NewArm("base", base), robot.NewArm("forearm", fore)), base, fore
}

var twoPoses = Program{Poses: []Waypoint{
	{Base: []float64{0.1, 0.2}},
	{Base: []float64{0.3, 0.4}, Forearm: []float64{-0.3, -0.4}},
}}

func runSteps(t *testing.T, p *Player, limit int) int {
	t.Helper()
	for i := 1; i <= limit; i++ {
		if p.step() {
			return i
		}
	}
	t.Fatalf("program did not finish in %d steps", limit)
	return 0
}

func TestPlayer_RunsProgramThenReturnsHome(t *testing.T) {
	ctrl, base, fore := newRig(0)
	p, err := NewPlayer(ctrl, twoPoses, Config{})
	require.NoError(t, err)
	assert.Equal(t, 60, p.Hz())

	runSteps(t, p, 100)

	want := []string{"<GO_TO id=1>", "<GO_TO id=2>", "<GO_TO id=0>"}
	assert.Equal(t, want, base.gotos())
	assert.Equal(t, want, fore.gotos())
	assert.Equal(t, "<SET_POSE id=2 angles=-17.189;-22.918>", fore.written[1])

	b, f := ctrl.CurrentPoses()
	assert.Equal(t, 0, b)
	assert.Equal(t, 0, f)
	s := <-p.States()
	assert.Equal(t, PhaseDone, s.Phase)
	assert.Equal(t, 0, s.Waypoint)
}

func TestPlayer_Loop(t *testing.T) {
	ctrl, base, _ := newRig(0)
	p, err := NewPlayer(ctrl, twoPoses, Config{Loop: true})
	require.NoError(t, err)

	for range 200 {
		require.False(t, p.step(), "looping program never finishes")
	}
	gotos := base.gotos()
	require.GreaterOrEqual(t, len(gotos), 4)
	assert.Equal(t, []string{"<GO_TO id=1>", "<GO_TO id=2>", "<GO_TO id=1>", "<GO_TO id=2>"}, gotos[:4])
	assert.NotContains(t, gotos, "<GO_TO id=0>")
}

func TestPlayer_StartFinishes(t *testing.T) {
	ctrl, _, _ := newRig(0)
	p, err := NewPlayer(ctrl, twoPoses, Config{Hz: 1000})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Start(ctx))

	first := <-p.Logs()
	assert.Contains(t, first, "Playback of 2 poses started at 1000 Hz")
}

func TestPlayer_CancelStopsArms(t *testing.T) {
	ctrl, base, fore := newRig(0)
	p, err := NewPlayer(ctrl, twoPoses, Config{Hz: 1000, Loop: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, "<STOP>", base.written[len(base.written)-1])
	assert.Equal(t, "<STOP>", fore.written[len(fore.written)-1])
	assert.True(t, ctrl.Idle())

	s := <-p.States()
	assert.Equal(t, PhaseStopping, s.Phase)
}

func TestPlayer_CancelGivesUpAfterTimeout(t *testing.T) {
	// One degree per second: the first move cannot finish in time.
	ctrl, base, _ := newRig(1)
	p, err := NewPlayer(ctrl, Program{Poses: []Waypoint{{Base: []float64{1.5}}}},
		Config{Hz: 1000, StopTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.ErrorIs(t, p.Start(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, ctrl.IsWaiting())
	assert.NotContains(t, base.written, "<STOP>", "stop stays queued behind the move")
}

func TestNewPlayer_RejectsBadPrograms(t *testing.T) {
	ctrl, _, _ := newRig(0)

	_, err := NewPlayer(ctrl, Program{}, Config{})
	assert.ErrorIs(t, err, ErrEmptyProgram)

	long := Program{Poses: make([]Waypoint, MaxWaypoints+1)}
	for i := range long.Poses {
		long.Poses[i].Base = []float64{0}
	}
	_, err = NewPlayer(ctrl, long, Config{})
	assert.ErrorContains(t, err, "at most 31")

	_, err = NewPlayer(ctrl, Program{Poses: []Waypoint{{}}}, Config{})
	assert.ErrorContains(t, err, "pose 1: no base angles")
}

func TestLoadProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wave.json")
	data := `{"name": "wave", "poses": [{"base": [0, 1.5708]}, {"base": [0, 0], "forearm": [0.5, 0]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	p, err := LoadProgram(path)
	require.NoError(t, err)
	assert.Equal(t, "wave", p.Name)
	require.Len(t, p.Poses, 2)
	assert.Nil(t, p.Poses[0].Forearm)
	assert.Equal(t, []float64{0.5, 0}, p.Poses[1].Forearm)

	_, err = LoadProgram(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read program")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"poses": []}`), 0644))
	_, err = LoadProgram(bad)
	assert.ErrorIs(t, err, ErrEmptyProgram)
}
