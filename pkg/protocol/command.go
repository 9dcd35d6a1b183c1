// Package protocol implements the line-oriented text protocol spoken between
// the host and an arm controller.
//
// Every frame is a single ASCII line wrapped in angle brackets:
//
//	<SET_POSE id=3 angles=0.000;12.500;-4.250>
//	<GO_TO id=3>
//	<STOP>
//
// Controllers answer with ACCEPTED, COMPLETED, STOPPED, REJECTED or ERROR frames.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a command variant.
type Kind int

const (
	KindSetPose Kind = iota + 1
	KindGoTo
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindSetPose:
		return "set_pose"
	case KindGoTo:
		return "goto"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Command is an outgoing motion command. The set of implementations is closed:
// SetPose, GoTo and Stop.
type Command interface {
	Kind() Kind
	// Encode returns the wire form of the command without the line terminator.
	Encode() string

	isCommand()
}

// SetPose stores a joint-angle vector (degrees) under a pose id on the controller.
type SetPose struct {
	ID     int
	Angles []float64
}

// GoTo moves the arm to a previously stored pose.
type GoTo struct {
	ID int
}

// Stop halts any motion in progress.
type Stop struct{}

func (SetPose) Kind() Kind { return KindSetPose }
func (GoTo) Kind() Kind    { return KindGoTo }
func (Stop) Kind() Kind    { return KindStop }

func (SetPose) isCommand() {}
func (GoTo) isCommand()    {}
func (Stop) isCommand()    {}

func (c SetPose) Encode() string {
	var sb strings.Builder
	sb.WriteString("<SET_POSE id=")
	sb.WriteString(strconv.Itoa(c.ID))
	sb.WriteString(" angles=")
	for i, a := range c.Angles {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.FormatFloat(a, 'f', 3, 64))
	}
	sb.WriteByte('>')
	return sb.String()
}

func (c GoTo) Encode() string {
	return "<GO_TO id=" + strconv.Itoa(c.ID) + ">"
}

func (Stop) Encode() string {
	return "<STOP>"
}

// Errors returned by ParseCommand.
var (
	ErrMissingBrackets = errors.New("missing angle brackets")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidField    = errors.New("invalid field")
)

// ParseCommand decodes a command line as a controller would receive it.
func ParseCommand(line string) (Command, error) {
	body, ok := unwrap(strings.TrimSpace(line))
	if !ok {
		return nil, ErrMissingBrackets
	}

	keyword, args := splitKeyword(body)
	switch keyword {
	case "SET_POSE":
		id, err := intField(args, "id")
		if err != nil {
			return nil, err
		}
		raw, ok := field(args, "angles")
		if !ok {
			return nil, fmt.Errorf("%w: angles missing", ErrInvalidField)
		}
		angles, err := parseAngles(raw)
		if err != nil {
			return nil, err
		}
		return SetPose{ID: id, Angles: angles}, nil
	case "GO_TO":
		id, err := intField(args, "id")
		if err != nil {
			return nil, err
		}
		return GoTo{ID: id}, nil
	case "STOP":
		return Stop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, keyword)
	}
}

func unwrap(s string) (string, bool) {
	if len(s) < 2 || s[0] != '<' || s[len(s)-1] != '>' {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// splitKeyword separates the leading keyword from its whitespace separated arguments.
func splitKeyword(body string) (string, []string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func field(args []string, key string) (string, bool) {
	prefix := key + "="
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, prefix); ok {
			return v, true
		}
	}
	return "", false
}

func intField(args []string, key string) (int, error) {
	raw, ok := field(args, key)
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrInvalidField, key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidField, key, raw)
	}
	return v, nil
}

func parseAngles(raw string) ([]float64, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: no angles", ErrInvalidField)
	}
	parts := strings.Split(raw, ";")
	angles := make([]float64, 0, len(parts))
	for _, p := range parts {
		a, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: angle %q", ErrInvalidField, p)
		}
		angles = append(angles, a)
	}
	return angles, nil
}
