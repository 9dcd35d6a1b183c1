package playback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gwillem/armlink/pkg/robot"
)

// MaxWaypoints is the number of poses a program can hold; pose 0 is home.
const MaxWaypoints = robot.MaxPoses - 1

// Waypoint holds joint angles in radians for each arm. An empty Forearm
// mirrors Base.
type Waypoint struct {
	Base    []float64 `json:"base"`
	Forearm []float64 `json:"forearm,omitempty"`
}

// Program is an ordered list of waypoints. Waypoint i is stored as pose i+1.
type Program struct {
	Name  string     `json:"name,omitempty"`
	Poses []Waypoint `json:"poses"`
}

var ErrEmptyProgram = errors.New("program has no poses")

// LoadProgram reads a program from a JSON file.
func LoadProgram(path string) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, fmt.Errorf("read program: %w", err)
	}

	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return Program{}, fmt.Errorf("parse program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

// Validate checks the program fits the pose table.
func (p Program) Validate() error {
	if len(p.Poses) == 0 {
		return ErrEmptyProgram
	}
	if len(p.Poses) > MaxWaypoints {
		return fmt.Errorf("program has %d poses, at most %d fit", len(p.Poses), MaxWaypoints)
	}
	for i, wp := range p.Poses {
		if len(wp.Base) == 0 {
			return fmt.Errorf("pose %d: no base angles", i+1)
		}
	}
	return nil
}
