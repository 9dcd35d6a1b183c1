// Package transport connects arm controllers over USB serial lines.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Defaults for SerialConfig.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 200 * time.Millisecond
	DefaultBootDelay   = 2 * time.Second
	DefaultLineBuffer  = 64

	maxLineLength = 4096
)

// ErrClosed is returned by WriteLine after Close.
var ErrClosed = errors.New("serial link closed")

// SerialConfig describes a serial connection to one controller.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	// BootDelay is how long to wait after opening for the board to reset.
	BootDelay time.Duration
	// LineBuffer is the number of received lines held until ReadLines drains them.
	LineBuffer int
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.BootDelay == 0 {
		c.BootDelay = DefaultBootDelay
	}
	if c.LineBuffer == 0 {
		c.LineBuffer = DefaultLineBuffer
	}
	return c
}

// OpenPort opens a serial port and waits for the controller to boot.
// Opening the port resets most USB boards, so anything sent during the boot
// delay would be lost.
func OpenPort(ctx context.Context, cfg SerialConfig) (serial.Port, error) {
	cfg = cfg.withDefaults()

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	select {
	case <-time.After(cfg.BootDelay):
	case <-ctx.Done():
		port.Close()
		return nil, ctx.Err()
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	return port, nil
}

// Serial is a line-oriented link whose reads never block.
// A background goroutine reads the port and buffers complete lines.
type Serial struct {
	port  io.ReadWriteCloser
	lines chan string
	errs  chan error
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenSerial opens cfg.Port and starts reading lines from it.
func OpenSerial(ctx context.Context, cfg SerialConfig) (*Serial, error) {
	cfg = cfg.withDefaults()
	port, err := OpenPort(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSerial(port, cfg.LineBuffer), nil
}

// NewSerial wraps an open port. Reads that return no data and no error, as a
// serial port does on read timeout, are retried.
func NewSerial(port io.ReadWriteCloser, lineBuffer int) *Serial {
	if lineBuffer <= 0 {
		lineBuffer = DefaultLineBuffer
	}
	s := &Serial{
		port:  port,
		lines: make(chan string, lineBuffer),
		errs:  make(chan error, 1),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer s.wg.Done()

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		pending = append(pending, buf[:n]...)

		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			if !s.emit(string(pending[:i])) {
				return
			}
			pending = pending[i+1:]
		}
		if len(pending) > maxLineLength {
			if !s.emit(string(pending)) {
				return
			}
			pending = nil
		}

		if err != nil {
			if len(pending) > 0 && !s.emit(string(pending)) {
				return
			}
			select {
			case <-s.done:
			default:
				s.errs <- err
			}
			return
		}
	}
}

// emit hands a line to ReadLines, blocking while the buffer is full.
// It returns false once the link is closed.
func (s *Serial) emit(line string) bool {
	line = strings.TrimRight(line, "\r")
	select {
	case s.lines <- line:
		return true
	case <-s.done:
		return false
	}
}

// WriteLine sends line followed by a newline.
func (s *Serial) WriteLine(line string) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.port.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadLines returns every complete line received since the last call.
// A read failure on the port is reported once, after the lines that preceded it.
// An unterminated line left when the port fails is returned as a final line.
func (s *Serial) ReadLines() ([]string, error) {
	var out []string
	for {
		select {
		case line := <-s.lines:
			out = append(out, line)
		default:
			select {
			case err := <-s.errs:
				return out, fmt.Errorf("read: %w", err)
			default:
				return out, nil
			}
		}
	}
}

// Close stops the reader and closes the port.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
