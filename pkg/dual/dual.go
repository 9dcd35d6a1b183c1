// Package dual keeps two arm controllers moving in lockstep.
//
// Every command is mirrored to both arms, and neither arm dispatches a new
// command while the other still has one outstanding.
package dual

import (
	"errors"
	"slices"

	"github.com/gwillem/armlink/pkg/robot"
)

// Controller mirrors commands to a base and a forearm controller.
type Controller struct {
	base    *robot.Arm
	forearm *robot.Arm
}

// New creates a Controller over two independently bound arms.
func New(base, forearm *robot.Arm) *Controller {
	return &Controller{base: base, forearm: forearm}
}

// Arms returns the base and forearm controllers.
func (c *Controller) Arms() (base, forearm *robot.Arm) {
	return c.base, c.forearm
}

// EnqueueSetPose queues a pose on both arms. A nil forearmAngles reuses baseAngles.
// The id is validated once, so either both arms receive the command or neither does.
func (c *Controller) EnqueueSetPose(id int, baseAngles, forearmAngles []float64) error {
	if err := robot.ValidateSetPoseID(id); err != nil {
		return err
	}
	if forearmAngles == nil {
		forearmAngles = baseAngles
	}
	if err := c.base.EnqueueSetPose(id, baseAngles); err != nil {
		return err
	}
	return c.forearm.EnqueueSetPose(id, forearmAngles)
}

// EnqueueGoTo queues a move to pose id on both arms.
func (c *Controller) EnqueueGoTo(id int) error {
	if err := robot.ValidateGoToID(id); err != nil {
		return err
	}
	if err := c.base.EnqueueGoTo(id); err != nil {
		return err
	}
	return c.forearm.EnqueueGoTo(id)
}

// EnqueueStop queues a stop on both arms.
func (c *Controller) EnqueueStop() {
	c.base.EnqueueStop()
	c.forearm.EnqueueStop()
}

// IsWaiting reports whether either arm has an outstanding command.
func (c *Controller) IsWaiting() bool {
	return c.base.IsWaiting() || c.forearm.IsWaiting()
}

// ReadyForMotion reports whether both arms are ready.
func (c *Controller) ReadyForMotion() bool {
	return c.base.ReadyForMotion() && c.forearm.ReadyForMotion()
}

// Tick drains replies from both arms, then lets them dispatch only if
// neither is waiting.
func (c *Controller) Tick() {
	c.base.Poll()
	c.forearm.Poll()

	if c.IsWaiting() {
		return
	}
	c.base.Update()
	c.forearm.Update()
}

// CurrentPoses returns the pose id each arm last reached.
func (c *Controller) CurrentPoses() (base, forearm int) {
	return c.base.CurrentPose(), c.forearm.CurrentPose()
}

// CurrentPoseAngles returns the stored angles of each arm's current pose.
// A nil Pose means the slot was never set on the host (e.g. home).
func (c *Controller) CurrentPoseAngles() (base, forearm robot.Pose) {
	base, _ = c.base.Pose(c.base.CurrentPose())
	forearm, _ = c.forearm.Pose(c.forearm.CurrentPose())
	return base, forearm
}

// QueueSizes returns the number of undispatched commands on each arm.
func (c *Controller) QueueSizes() (base, forearm int) {
	return c.base.QueueSize(), c.forearm.QueueSize()
}

// Messages returns both arms' recent protocol lines merged in time order.
func (c *Controller) Messages() []robot.Message {
	msgs := append(c.base.Messages(), c.forearm.Messages()...)
	slices.SortStableFunc(msgs, func(a, b robot.Message) int {
		return a.Time.Compare(b.Time)
	})
	return msgs
}

// Close closes both arms' transports.
func (c *Controller) Close() error {
	return errors.Join(c.base.Close(), c.forearm.Close())
}

// Idle reports whether both arms are ready, not waiting, and have empty queues.
func (c *Controller) Idle() bool {
	b, f := c.QueueSizes()
	return b == 0 && f == 0 && c.ReadyForMotion() && !c.IsWaiting()
}
