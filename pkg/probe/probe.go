// Package probe sends single commands to a controller and blocks until the
// expected reply arrives.
//
// It exists for one-shot tools and bench checks. A Session must not share its
// transport with a robot.Arm, whose tick loop would consume the replies.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gwillem/armlink/pkg/protocol"
	"github.com/gwillem/armlink/pkg/robot"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	rejectedToken       = "REJECTED"
)

// ErrRejected is returned when the controller answers REJECTED while waiting.
var ErrRejected = errors.New("command rejected")

// Session owns a transport for blocking request and reply exchanges.
type Session struct {
	t        robot.Transport
	interval time.Duration
	pending  []string
	seen     []string
}

// Option configures a Session.
type Option func(*Session)

// WithPollInterval sets how often the transport is polled while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		s.interval = d
	}
}

// NewSession wraps t.
func NewSession(t robot.Transport, opts ...Option) *Session {
	s := &Session{t: t, interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send transmits cmd without waiting.
func (s *Session) Send(cmd protocol.Command) error {
	if err := s.t.WriteLine(cmd.Encode()); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Kind(), err)
	}
	return nil
}

// WaitFor blocks until a line containing token arrives and returns it.
// A REJECTED line ends the wait with ErrRejected. Lines received after the
// match are kept for the next call.
func (s *Session) WaitFor(ctx context.Context, token string) (string, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		for len(s.pending) > 0 {
			line := strings.TrimSpace(s.pending[0])
			s.pending = s.pending[1:]
			if line == "" {
				continue
			}
			s.seen = append(s.seen, line)

			if strings.Contains(line, rejectedToken) {
				return line, fmt.Errorf("%w: %s", ErrRejected, line)
			}
			if strings.Contains(line, token) {
				return line, nil
			}
		}

		lines, err := s.t.ReadLines()
		s.pending = append(s.pending, lines...)
		if err != nil {
			return "", fmt.Errorf("wait for %s: %w", token, err)
		}
		if len(lines) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for %s: %w", token, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Exchange sends cmd and waits for token.
func (s *Session) Exchange(ctx context.Context, cmd protocol.Command, token string) (string, error) {
	if err := s.Send(cmd); err != nil {
		return "", err
	}
	return s.WaitFor(ctx, token)
}

// Seen returns every non-empty line consumed so far, including ones that did
// not match.
func (s *Session) Seen() []string {
	return s.seen
}
