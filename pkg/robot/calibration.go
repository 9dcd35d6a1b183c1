package robot

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// StepsPerRevolution is the resolution of a Feetech STS servo.
const StepsPerRevolution = 4096

// JointCalibration maps a joint angle to a raw servo position.
type JointCalibration struct {
	ID int `json:"id"`
	// DriveMode 1 inverts the direction of rotation.
	DriveMode int `json:"drive_mode"`
	// HomingOffset is the raw position at zero degrees.
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all joints, keyed by joint name.
type Calibration map[JointName]JointCalibration

// DefaultCalibration centres every joint at mid-travel with the full servo range.
func DefaultCalibration() Calibration {
	cal := make(Calibration, JointCount)
	for i, name := range AllJoints() {
		cal[name] = JointCalibration{
			ID:           i + 1,
			HomingOffset: StepsPerRevolution / 2,
			RangeMin:     0,
			RangeMax:     StepsPerRevolution - 1,
		}
	}
	return cal
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	// Parse into a map with string keys first
	var raw map[string]JointCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, jc := range raw {
		cal[JointName(name)] = jc
	}

	return cal, nil
}

// Raw converts an angle in degrees to a servo position, clamped to the joint's range.
func (c JointCalibration) Raw(degrees float64) int {
	steps := degrees * StepsPerRevolution / 360
	if c.DriveMode == 1 {
		steps = -steps
	}
	raw := c.HomingOffset + int(math.Round(steps))
	return max(c.RangeMin, min(c.RangeMax, raw))
}

// Degrees converts a raw servo position to an angle in degrees.
func (c JointCalibration) Degrees(raw int) float64 {
	deg := float64(raw-c.HomingOffset) * 360 / StepsPerRevolution
	if c.DriveMode == 1 {
		deg = -deg
	}
	return deg
}

// MotorIDs returns the servo IDs for all joints in the calibration, in wire order.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	for _, name := range AllJoints() {
		if jc, ok := c[name]; ok {
			ids = append(ids, jc.ID)
		}
	}
	return ids
}

// ByID returns joint name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (JointName, JointCalibration, bool) {
	for name, jc := range c {
		if jc.ID == id {
			return name, jc, true
		}
	}
	return "", JointCalibration{}, false
}

// ByIndex returns the calibration of the i-th joint in wire order.
func (c Calibration) ByIndex(i int) (JointCalibration, bool) {
	joints := AllJoints()
	if i < 0 || i >= len(joints) {
		return JointCalibration{}, false
	}
	jc, ok := c[joints[i]]
	return jc, ok
}
