package robot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/magarm/internal/metrics"
)

// Default link parameters.
const (
	DefaultArmBaud     = 230_400
	DefaultInputBaud   = 9_600
	DefaultReadTimeout = 100 * time.Millisecond
)

// maxLineLength bounds a partial line; longer garbage is dropped.
const maxLineLength = 256

// ErrConnection matches every *ConnectionError via errors.Is.
var ErrConnection = errors.New("serial connection failed")

// ConnectionError reports a port that could not be opened or configured.
type ConnectionError struct {
	Port string
	Baud int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s at %d baud: %v", e.Port, e.Baud, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// LinkConfig holds the parameters for opening one serial device.
type LinkConfig struct {
	Port    string        `json:"port"`
	Baud    int           `json:"baud"`
	Timeout time.Duration `json:"timeout"`
}

// Opener opens the OS handle for a link. Reads on the returned handle must
// give up after cfg.Timeout and report (0, nil) when nothing arrived.
type Opener func(cfg LinkConfig) (io.ReadWriteCloser, error)

// OpenSerial is the Opener for real serial devices.
func OpenSerial(cfg LinkConfig) (io.ReadWriteCloser, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}

// ListPorts returns the serial devices present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

// Link is a line-oriented connection to one serial device. It owns the OS
// handle exclusively. Writes are serialised so concurrent senders never
// interleave partial lines.
type Link struct {
	name    string
	open    Opener
	metrics *metrics.Metrics

	mu   sync.Mutex // guards port
	port io.ReadWriteCloser

	wmu sync.Mutex // one write at a time

	rmu     sync.Mutex // one read at a time; guards pending and buf
	pending []byte
	buf     []byte
}

// NewLink creates a disconnected link. A nil opener means OpenSerial and
// nil metrics means a private, unexported registry.
func NewLink(name string, open Opener, m *metrics.Metrics) *Link {
	if open == nil {
		open = OpenSerial
	}
	if m == nil {
		m = metrics.New()
	}
	return &Link{
		name:    name,
		open:    open,
		metrics: m,
		buf:     make([]byte, 64),
	}
}

// Name returns the link's label (e.g. "arm").
func (l *Link) Name() string {
	return l.name
}

// Connect closes any open handle and opens a new one. Failures are
// returned as *ConnectionError and leave the link disconnected.
func (l *Link) Connect(cfg LinkConfig) error {
	if err := l.Close(); err != nil {
		slog.Warn("closing previous handle", slog.String("link", l.name), slog.Any("error", err))
	}

	if cfg.Port == "" {
		return &ConnectionError{Port: cfg.Port, Baud: cfg.Baud, Err: errors.New("no port selected")}
	}
	if cfg.Baud <= 0 {
		return &ConnectionError{Port: cfg.Port, Baud: cfg.Baud, Err: errors.New("invalid baud rate")}
	}
	if cfg.Timeout < 0 {
		return &ConnectionError{Port: cfg.Port, Baud: cfg.Baud, Err: fmt.Errorf("invalid read timeout %s", cfg.Timeout)}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultReadTimeout
	}

	port, err := l.open(cfg)
	if err != nil {
		return &ConnectionError{Port: cfg.Port, Baud: cfg.Baud, Err: err}
	}

	l.rmu.Lock()
	l.pending = l.pending[:0]
	l.rmu.Unlock()

	l.mu.Lock()
	l.port = port
	l.mu.Unlock()

	slog.Info("serial link connected",
		slog.String("link", l.name),
		slog.String("port", cfg.Port),
		slog.Int("baud", cfg.Baud),
		slog.Duration("timeout", cfg.Timeout))
	return nil
}

// Close releases the handle. Closing a closed link is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	port := l.port
	l.port = nil
	l.mu.Unlock()

	if port == nil {
		return nil
	}
	slog.Info("serial link closed", slog.String("link", l.name))
	if err := port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", l.name, err)
	}
	return nil
}

// Connected reports whether a handle is open.
func (l *Link) Connected() bool {
	return l.handle() != nil
}

func (l *Link) handle() io.ReadWriteCloser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// SendLine writes text as ASCII, dropping characters outside the ASCII
// range. It does nothing when the link is not connected.
func (l *Link) SendLine(text string) error {
	port := l.handle()
	if port == nil {
		return nil
	}

	data := asciiBytes([]byte(text))

	l.wmu.Lock()
	defer l.wmu.Unlock()
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", l.name, err)
	}
	l.metrics.LinesSent.WithLabelValues(l.name).Inc()
	return nil
}

// ReadLine makes one read attempt, bounded by the link's read timeout. It
// returns the next complete line without its terminator, or false when no
// full line is available yet. Read errors count as "no line".
func (l *Link) ReadLine() (string, bool) {
	port := l.handle()
	if port == nil {
		return "", false
	}

	l.rmu.Lock()
	defer l.rmu.Unlock()

	if line, ok := l.takeLine(); ok {
		return line, true
	}

	n, err := port.Read(l.buf)
	if err != nil || n == 0 {
		return "", false
	}
	l.pending = append(l.pending, l.buf[:n]...)

	if line, ok := l.takeLine(); ok {
		return line, true
	}
	if len(l.pending) > maxLineLength {
		l.pending = l.pending[:0]
	}
	return "", false
}

// takeLine pops the first newline-terminated line off pending.
func (l *Link) takeLine() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(asciiBytes(l.pending[:i]))
	l.pending = append(l.pending[:0], l.pending[i+1:]...)
	return line, true
}

// asciiBytes drops every byte outside the 7-bit range.
func asciiBytes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return out
}
