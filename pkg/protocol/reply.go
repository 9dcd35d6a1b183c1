package protocol

import (
	"strconv"
	"strings"
)

// ReplyKind identifies a reply variant.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyAccepted
	ReplyCompleted
	ReplyStopped
	ReplyRejected
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyAccepted:
		return "accepted"
	case ReplyCompleted:
		return "completed"
	case ReplyStopped:
		return "stopped"
	case ReplyRejected:
		return "rejected"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// Reply is a decoded controller line. The set of implementations is closed.
type Reply interface {
	Kind() ReplyKind

	isReply()
}

// Accepted confirms the controller received and queued the command for ID.
type Accepted struct{ ID int }

// Completed confirms the motion to pose ID finished.
type Completed struct{ ID int }

// Stopped reports motion halted with the arm at pose ID.
type Stopped struct{ ID int }

// Rejected reports the controller refused the last command. ID is -1 when the
// line did not name one.
type Rejected struct {
	ID     int
	Reason string
	Text   string
}

// ErrorReport is an <ERROR ...> diagnostic from the controller. It does not
// refer to any command and carries no state.
type ErrorReport struct {
	Reason string
}

// Unknown is any other line, typically free-form telemetry.
type Unknown struct {
	Text string
}

func (Accepted) Kind() ReplyKind    { return ReplyAccepted }
func (Completed) Kind() ReplyKind   { return ReplyCompleted }
func (Stopped) Kind() ReplyKind     { return ReplyStopped }
func (Rejected) Kind() ReplyKind    { return ReplyRejected }
func (ErrorReport) Kind() ReplyKind { return ReplyError }
func (Unknown) Kind() ReplyKind     { return ReplyUnknown }

func (Accepted) isReply()    {}
func (Completed) isReply()   {}
func (Stopped) isReply()     {}
func (Rejected) isReply()    {}
func (ErrorReport) isReply() {}
func (Unknown) isReply()     {}

const rejectedToken = "REJECTED"

// ParseReply decodes a single reply line.
//
// REJECTED anywhere in the line takes precedence over every other frame.
// Otherwise the first ACCEPTED, then COMPLETED, then STOPPED frame wins. The id
// may be written either as "id=N" or as a bare number.
func ParseReply(line string) Reply {
	line = strings.TrimSpace(line)

	if strings.Contains(line, rejectedToken) {
		r := Rejected{ID: -1, Text: line}
		for _, f := range frames(line) {
			if f.keyword != rejectedToken {
				continue
			}
			rest := f.args
			if len(rest) > 0 {
				if id, ok := parseID(rest[0]); ok {
					r.ID = id
					rest = rest[1:]
				}
			}
			r.Reason = strings.Join(rest, " ")
			break
		}
		return r
	}

	var (
		accepted, completed, stopped *int
		report                       *ErrorReport
	)
	for _, f := range frames(line) {
		switch f.keyword {
		case "ACCEPTED":
			if accepted == nil {
				accepted = firstID(f.args)
			}
		case "COMPLETED":
			if completed == nil {
				completed = firstID(f.args)
			}
		case "STOPPED":
			if stopped == nil {
				stopped = firstID(f.args)
			}
		case "ERROR":
			if report == nil {
				report = &ErrorReport{Reason: strings.Join(f.args, " ")}
			}
		}
	}

	switch {
	case accepted != nil:
		return Accepted{ID: *accepted}
	case completed != nil:
		return Completed{ID: *completed}
	case stopped != nil:
		return Stopped{ID: *stopped}
	case report != nil:
		return *report
	default:
		return Unknown{Text: line}
	}
}

type frame struct {
	keyword string
	args    []string
}

// frames tokenizes every <...> group in line. Unterminated groups are dropped.
func frames(line string) []frame {
	var out []frame
	for {
		start := strings.IndexByte(line, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(line[start+1:], '>')
		if end < 0 {
			return out
		}
		body := line[start+1 : start+1+end]
		line = line[start+1+end+1:]

		keyword, args := splitKeyword(body)
		if keyword == "" {
			continue
		}
		out = append(out, frame{keyword: keyword, args: args})
	}
}

func firstID(args []string) *int {
	if len(args) == 0 {
		return nil
	}
	id, ok := parseID(args[0])
	if !ok {
		return nil
	}
	return &id
}

func parseID(tok string) (int, bool) {
	tok = strings.TrimPrefix(tok, "id=")
	if tok == "" {
		return 0, false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Format helpers used by controllers (and the emulator) to build replies.

func FormatAccepted(id int) string  { return "<ACCEPTED id=" + strconv.Itoa(id) + ">" }
func FormatCompleted(id int) string { return "<COMPLETED id=" + strconv.Itoa(id) + ">" }
func FormatStopped(id int) string   { return "<STOPPED id=" + strconv.Itoa(id) + ">" }

func FormatRejected(id int, reason string) string {
	return "<REJECTED " + strconv.Itoa(id) + " " + reason + ">"
}

func FormatError(reason string) string {
	return "<ERROR " + reason + ">"
}
