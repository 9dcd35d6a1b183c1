package robot

import (
	"errors"
	"fmt"
)

// ErrPoseOutOfRange is matched by every RangeError.
var ErrPoseOutOfRange = errors.New("pose id out of range")

// RangeError reports a pose id rejected at enqueue time.
type RangeError struct {
	Op  string
	ID  int
	Min int
	Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: pose id %d out of range (%d-%d)", e.Op, e.ID, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrPoseOutOfRange
}

// ValidateSetPoseID checks an id for SetPose. Pose 0 is home and cannot be overwritten.
func ValidateSetPoseID(id int) error {
	if id < 1 || id >= MaxPoses {
		return &RangeError{Op: "set pose", ID: id, Min: 1, Max: MaxPoses - 1}
	}
	return nil
}

// ValidateGoToID checks an id for GoTo.
func ValidateGoToID(id int) error {
	if id < HomePose || id >= MaxPoses {
		return &RangeError{Op: "goto", ID: id, Min: HomePose, Max: MaxPoses - 1}
	}
	return nil
}
