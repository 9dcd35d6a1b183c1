package robot

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gwillem/armlink/pkg/protocol"
)

// Transport is a line-oriented link to one arm controller.
type Transport interface {
	// WriteLine sends one command line; the terminator is added by the transport.
	WriteLine(line string) error
	// ReadLines returns the complete lines received since the last call without
	// waiting for more. A non-nil error may accompany lines read before it.
	ReadLines() ([]string, error)
}

// Arm serializes motion commands to a single controller and tracks the
// accept/complete handshake. Only one command is ever in flight.
//
// Arm is not safe for concurrent use; drive it from one loop via Tick.
type Arm struct {
	name      string
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	poses    PoseTable
	queue    []protocol.Command
	messages *MessageLog

	awaitingAccept   bool
	awaitingComplete bool
	inFlight         int
	hasInFlight      bool
	readyForMotion   bool
	currentPose      int
}

// Option configures an Arm.
type Option func(*Arm)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arm) {
		a.logger = logger
	}
}

// WithMetrics records link activity into m.
func WithMetrics(m *Metrics) Option {
	return func(a *Arm) {
		a.metrics = m
	}
}

// WithMessageLogSize sets how many protocol lines are retained.
func WithMessageLogSize(n int) Option {
	return func(a *Arm) {
		a.messages = NewMessageLog(n)
	}
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(a *Arm) {
		a.now = now
	}
}

// NewArm binds a new controller state machine to t.
func NewArm(name string, t Transport, opts ...Option) *Arm {
	a := &Arm{
		name:           name,
		transport:      t,
		now:            time.Now,
		readyForMotion: true,
		currentPose:    HomePose,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.messages == nil {
		a.messages = NewMessageLog(DefaultMessageLogSize)
	}
	a.logger = a.logger.With("arm", name)
	return a
}

// Name returns the arm's name.
func (a *Arm) Name() string {
	return a.name
}

// EnqueueSetPose validates id, stores the pose (converted to degrees) in the
// pose table right away, and queues a SetPose command.
func (a *Arm) EnqueueSetPose(id int, radians []float64) error {
	if err := ValidateSetPoseID(id); err != nil {
		return err
	}
	pose := PoseFromRadians(radians)
	a.poses.Set(id, pose)
	a.push(protocol.SetPose{ID: id, Angles: pose})
	return nil
}

// EnqueueGoTo queues a move to pose id.
func (a *Arm) EnqueueGoTo(id int) error {
	if err := ValidateGoToID(id); err != nil {
		return err
	}
	a.push(protocol.GoTo{ID: id})
	return nil
}

// EnqueueStop queues a stop at the tail; it does not jump ahead of queued commands.
func (a *Arm) EnqueueStop() {
	a.push(protocol.Stop{})
}

func (a *Arm) push(cmd protocol.Command) {
	a.queue = append(a.queue, cmd)
	a.metrics.setQueueDepth(a.name, len(a.queue))
}

// Poll drains every line currently available from the transport and applies
// it to the handshake state. It never blocks and never fails.
func (a *Arm) Poll() {
	lines, err := a.transport.ReadLines()
	for _, line := range lines {
		a.handleLine(line)
	}
	if err != nil {
		a.record(TagReadError + ": " + err.Error())
		a.metrics.linkError(a.name, "read")
		a.logger.Warn("read failed", "err", err)
	}
}

// Update transmits the next queued command if the arm is idle and ready.
func (a *Arm) Update() {
	if a.IsWaiting() || !a.readyForMotion || len(a.queue) == 0 {
		return
	}

	cmd := a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	a.metrics.setQueueDepth(a.name, len(a.queue))

	line := cmd.Encode()
	if err := a.transport.WriteLine(line); err != nil {
		// The command is already off the queue and is not retried.
		a.record(TagWriteError + ": " + err.Error())
		a.metrics.linkError(a.name, "write")
		a.logger.Warn("write failed, command dropped", "cmd", line, "err", err)
		return
	}
	a.logger.Debug("sent", "cmd", line)
	a.metrics.commandSent(a.name, cmd.Kind().String())

	switch c := cmd.(type) {
	case protocol.SetPose:
		a.awaitingAccept = true
		a.awaitingComplete = false
		a.setInFlight(c.ID)
		// Storing a pose starts no motion; more poses may follow.
		a.readyForMotion = true
	case protocol.GoTo:
		a.awaitingAccept = true
		a.awaitingComplete = true
		a.setInFlight(c.ID)
		a.readyForMotion = false
	case protocol.Stop:
		a.awaitingAccept = false
		a.awaitingComplete = true
		a.setInFlight(a.currentPose)
		a.readyForMotion = false
	}
}

// Tick polls for replies and then dispatches at most one command.
func (a *Arm) Tick() {
	a.Poll()
	a.Update()
}

func (a *Arm) handleLine(line string) {
	if decodable(line) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		a.record(line)
	} else {
		// Noise on the link must not hide a reply framed in the same line.
		a.record(fmt.Sprintf("%s: %q", TagDecodeError, line))
		a.metrics.linkError(a.name, "decode")
		a.logger.Warn("undecodable line", "raw", fmt.Sprintf("%q", line))
		line = sanitize(line)
		if line == "" {
			return
		}
	}

	reply := protocol.ParseReply(line)
	a.metrics.reply(a.name, reply.Kind().String())

	switch r := reply.(type) {
	case protocol.Rejected:
		a.logger.Info("command rejected", "id", r.ID, "reason", r.Reason)
		a.clearInFlight()
		a.readyForMotion = true
	case protocol.Accepted:
		if a.awaitingAccept && a.inFlightIs(r.ID) {
			a.awaitingAccept = false
			return
		}
		a.logger.Debug("stale reply ignored", "reply", line)
	case protocol.Completed:
		if a.awaitingComplete && a.inFlightIs(r.ID) {
			a.clearInFlight()
			a.currentPose = r.ID
			a.readyForMotion = true
			a.logger.Debug("motion completed", "pose", r.ID)
			return
		}
		a.logger.Debug("stale reply ignored", "reply", line)
	case protocol.Stopped:
		a.clearInFlight()
		a.currentPose = r.ID
		a.readyForMotion = true
	case protocol.ErrorReport:
		a.logger.Warn("controller error", "reason", r.Reason)
	case protocol.Unknown:
	}
}

func (a *Arm) setInFlight(id int) {
	a.inFlight = id
	a.hasInFlight = true
}

func (a *Arm) inFlightIs(id int) bool {
	return a.hasInFlight && a.inFlight == id
}

func (a *Arm) clearInFlight() {
	a.awaitingAccept = false
	a.awaitingComplete = false
	a.inFlight = 0
	a.hasInFlight = false
}

func (a *Arm) record(text string) {
	a.messages.Add(Message{Time: a.now(), Source: a.name, Text: text})
}

// decodable reports whether line is valid UTF-8 whose only control
// characters are whitespace.
func decodable(line string) bool {
	if !utf8.ValidString(line) {
		return false
	}
	for _, r := range line {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// sanitize turns invalid bytes and control characters into spaces.
func sanitize(line string) string {
	line = strings.ToValidUTF8(line, " ")
	line = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}

// IsWaiting reports whether a reply is outstanding.
func (a *Arm) IsWaiting() bool {
	return a.awaitingAccept || a.awaitingComplete
}

// AwaitingAccept reports whether an ACCEPTED reply is outstanding.
func (a *Arm) AwaitingAccept() bool {
	return a.awaitingAccept
}

// AwaitingComplete reports whether a COMPLETED or STOPPED reply is outstanding.
func (a *Arm) AwaitingComplete() bool {
	return a.awaitingComplete
}

// InFlight returns the id of the command awaiting a reply, if any.
func (a *Arm) InFlight() (int, bool) {
	return a.inFlight, a.hasInFlight
}

// ReadyForMotion reports whether the arm may dispatch new motion.
func (a *Arm) ReadyForMotion() bool {
	return a.readyForMotion
}

// CurrentPose returns the id of the last pose the arm reached or stopped at.
func (a *Arm) CurrentPose() int {
	return a.currentPose
}

// QueueSize returns the number of commands not yet transmitted.
func (a *Arm) QueueSize() int {
	return len(a.queue)
}

// Pose returns the pose stored under id, in degrees.
func (a *Arm) Pose(id int) (Pose, bool) {
	return a.poses.Get(id)
}

// Messages returns recent protocol lines, oldest first.
func (a *Arm) Messages() []Message {
	return a.messages.Entries()
}

// Close closes the transport if it supports it.
func (a *Arm) Close() error {
	if c, ok := a.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
