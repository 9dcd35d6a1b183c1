// Package robot provides the per-arm command queue and handshake state machine.
package robot

// JointName identifies a joint of the arm.
type JointName string

// Joint names for the five-axis arm, in wire order.
const (
	Waist      JointName = "waist"
	Shoulder   JointName = "shoulder"
	Elbow      JointName = "elbow"
	WristPitch JointName = "wrist_pitch"
	WristRoll  JointName = "wrist_roll"
)

// JointCount is the number of angles the controller firmware stores per pose.
const JointCount = 5

// AllJoints returns all joint names in wire order (matching servo IDs 1-5).
func AllJoints() []JointName {
	return []JointName{
		Waist,
		Shoulder,
		Elbow,
		WristPitch,
		WristRoll,
	}
}
