package robot

import (
	"math"
	"slices"
)

const (
	// MaxPoses is the number of pose slots on each controller.
	MaxPoses = 32
	// HomePose is reserved; it can be driven to but never overwritten.
	HomePose = 0
)

// Pose is an ordered list of joint angles in degrees.
type Pose []float64

// PoseFromRadians converts joint angles from radians to degrees.
func PoseFromRadians(radians []float64) Pose {
	p := make(Pose, len(radians))
	for i, r := range radians {
		p[i] = r * 180 / math.Pi
	}
	return p
}

// PoseTable is a fixed-capacity store of poses indexed by id.
// Slots stay empty until set.
type PoseTable struct {
	slots [MaxPoses]Pose
	set   [MaxPoses]bool
}

// Set stores a copy of p under id. Ids outside the table are ignored; callers
// validate before storing.
func (t *PoseTable) Set(id int, p Pose) {
	if id < 0 || id >= MaxPoses {
		return
	}
	t.slots[id] = slices.Clone(p)
	t.set[id] = true
}

// Get returns a copy of the pose stored under id.
func (t *PoseTable) Get(id int) (Pose, bool) {
	if id < 0 || id >= MaxPoses || !t.set[id] {
		return nil, false
	}
	return slices.Clone(t.slots[id]), true
}

// Len returns the number of populated slots.
func (t *PoseTable) Len() int {
	n := 0
	for _, ok := range t.set {
		if ok {
			n++
		}
	}
	return n
}
