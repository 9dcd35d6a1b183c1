package robot

import "time"

// DefaultMessageLogSize is the number of lines an arm keeps for diagnostics.
const DefaultMessageLogSize = 20

// Tags prefixed to MessageLog entries that record link failures.
const (
	TagWriteError  = "WRITE_ERROR"
	TagReadError   = "READ_ERROR"
	TagDecodeError = "DECODE_ERROR"
)

// Message is a single MessageLog entry.
type Message struct {
	Time   time.Time
	Source string
	Text   string
}

// MessageLog is a bounded ring buffer of recent protocol lines.
// It is diagnostic only; nothing reads it to make decisions.
type MessageLog struct {
	buf   []Message
	next  int
	count int
}

// NewMessageLog creates a log that keeps the last size entries.
func NewMessageLog(size int) *MessageLog {
	if size <= 0 {
		size = DefaultMessageLogSize
	}
	return &MessageLog{buf: make([]Message, size)}
}

// Add appends m, overwriting the oldest entry when full.
func (l *MessageLog) Add(m Message) {
	l.buf[l.next] = m
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Entries returns the retained messages, oldest first.
func (l *MessageLog) Entries() []Message {
	out := make([]Message, 0, l.count)
	start := (l.next - l.count + len(l.buf)) % len(l.buf)
	for i := 0; i < l.count; i++ {
		out = append(out, l.buf[(start+i)%len(l.buf)])
	}
	return out
}

// Len returns the number of retained messages.
func (l *MessageLog) Len() int {
	return l.count
}
