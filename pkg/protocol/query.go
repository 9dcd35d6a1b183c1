package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// GetPose asks a controller for the angles stored in one pose slot. It is a
// diagnostic query answered with a POSE frame and never enters an arm queue.
type GetPose struct {
	ID int
}

func (q GetPose) Encode() string {
	return "<GET_POSE id=" + strconv.Itoa(q.ID) + ">"
}

// ParseGetPose decodes a GET_POSE line. Lines carrying another keyword give
// ErrUnknownCommand, so callers can fall back to ParseCommand.
func ParseGetPose(line string) (GetPose, error) {
	body, ok := unwrap(strings.TrimSpace(line))
	if !ok {
		return GetPose{}, ErrMissingBrackets
	}
	keyword, args := splitKeyword(body)
	if keyword != "GET_POSE" {
		return GetPose{}, fmt.Errorf("%w: %q", ErrUnknownCommand, keyword)
	}
	id, err := intField(args, "id")
	if err != nil {
		return GetPose{}, err
	}
	return GetPose{ID: id}, nil
}

// FormatPose renders the controller's answer to GET_POSE.
func FormatPose(id int, angles []float64) string {
	var sb strings.Builder
	sb.WriteString("<POSE ")
	sb.WriteString(strconv.Itoa(id))
	sb.WriteByte(' ')
	for i, a := range angles {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.FormatFloat(a, 'f', 5, 64))
	}
	sb.WriteByte('>')
	return sb.String()
}
