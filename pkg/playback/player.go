// Package playback steps a pair of arms through a stored program.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/armlink/pkg/dual"
	"github.com/gwillem/armlink/pkg/robot"
)

// Phase is where a Player is in its program.
type Phase int

const (
	PhaseUploading Phase = iota
	PhaseMoving
	PhaseHoming
	PhaseDone
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseUploading:
		return "uploading"
	case PhaseMoving:
		return "moving"
	case PhaseHoming:
		return "homing"
	case PhaseDone:
		return "done"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// State is a snapshot of the arms during playback.
type State struct {
	Phase        Phase
	Waypoint     int // pose id of the last dispatched move, 0 before the first
	BasePose     int
	ForearmPose  int
	BaseQueue    int
	ForearmQueue int
	Waiting      bool
	Ready        bool
	Timestamp    time.Time
}

// Config holds configuration for the player.
type Config struct {
	Hz   int
	Loop bool // repeat the program instead of returning home
	// StopTimeout bounds how long shutdown waits for the arms to stop.
	StopTimeout time.Duration
}

// Player runs the program loop. The controller must not be used by anyone
// else while Start is running.
type Player struct {
	ctrl        *dual.Controller
	program     Program
	hz          int
	loop        bool
	stopTimeout time.Duration

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string

	phase    Phase
	next     int
	waypoint int
}

// NewPlayer creates a player for program on ctrl.
func NewPlayer(ctrl *dual.Controller, program Program, cfg Config) (*Player, error) {
	if err := program.Validate(); err != nil {
		return nil, err
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}

	return &Player{
		ctrl:        ctrl,
		program:     program,
		hz:          cfg.Hz,
		loop:        cfg.Loop,
		stopTimeout: cfg.StopTimeout,
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
	}, nil
}

// States returns a channel that receives state updates.
func (p *Player) States() <-chan State {
	return p.stateCh
}

// Logs returns a channel that receives log messages.
func (p *Player) Logs() <-chan string {
	return p.logCh
}

// Hz returns the control frequency.
func (p *Player) Hz() int {
	return p.hz
}

func (p *Player) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case p.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the program until it finishes or ctx is cancelled. It returns nil
// once a non-looping program is back home.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.log("Playback of %d poses started at %d Hz", len(p.program.Poses), p.hz)

	ticker := time.NewTicker(time.Second / time.Duration(p.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown(ticker.C)
			return ctx.Err()
		case <-ticker.C:
			if p.step() {
				p.log("Playback finished")
				return nil
			}
		}
	}
}

// step advances the program once and reports whether it has finished.
func (p *Player) step() bool {
	p.feed()
	p.ctrl.Tick()
	p.sendState()
	return p.phase == PhaseDone
}

func (p *Player) feed() {
	if p.phase == PhaseUploading {
		for i, wp := range p.program.Poses {
			forearm := wp.Forearm
			if len(forearm) == 0 {
				forearm = nil
			}
			if err := p.ctrl.EnqueueSetPose(i+1, wp.Base, forearm); err != nil {
				p.log("Upload of pose %d failed: %v", i+1, err)
			}
		}
		p.phase = PhaseMoving
		return
	}

	if !p.ctrl.Idle() {
		return
	}

	switch p.phase {
	case PhaseMoving:
		if p.next >= len(p.program.Poses) {
			if !p.loop {
				p.moveTo(robot.HomePose)
				p.phase = PhaseHoming
				return
			}
			p.next = 0
		}
		p.moveTo(p.next + 1)
		p.next++
	case PhaseHoming:
		p.phase = PhaseDone
	}
}

func (p *Player) moveTo(id int) {
	if err := p.ctrl.EnqueueGoTo(id); err != nil {
		p.log("Move to pose %d failed: %v", id, err)
		return
	}
	p.waypoint = id
	p.log("Moving to pose %d", id)
}

func (p *Player) sendState() {
	base, forearm := p.ctrl.CurrentPoses()
	bq, fq := p.ctrl.QueueSizes()
	s := State{
		Phase:        p.phase,
		Waypoint:     p.waypoint,
		BasePose:     base,
		ForearmPose:  forearm,
		BaseQueue:    bq,
		ForearmQueue: fq,
		Waiting:      p.ctrl.IsWaiting(),
		Ready:        p.ctrl.ReadyForMotion(),
		Timestamp:    time.Now(),
	}

	select {
	case p.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-p.stateCh:
		default:
		}
		p.stateCh <- s
	}
}

// shutdown queues a stop and keeps ticking until both arms have settled or
// the stop timeout passes.
func (p *Player) shutdown(tick <-chan time.Time) {
	p.phase = PhaseStopping
	p.ctrl.EnqueueStop()

	timeout := time.After(p.stopTimeout)
	for {
		p.ctrl.Tick()
		p.sendState()
		if p.ctrl.Idle() {
			p.log("Playback stopped")
			return
		}
		select {
		case <-timeout:
			p.log("Warning: arms did not confirm stop within %s", p.stopTimeout)
			return
		case <-tick:
		}
	}
}
