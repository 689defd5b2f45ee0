// Package fakeport is an in-memory serial device for tests.
package fakeport

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// Port behaves like an opened serial port with a short read timeout:
// Read returns queued input, or (0, nil) after a brief wait when nothing
// is queued.
type Port struct {
	mu       sync.Mutex
	in       []byte
	out      bytes.Buffer
	closed   bool
	readErr  error
	writeErr error
}

// New returns an open port with nothing queued.
func New() *Port {
	return &Port{}
}

const idleWait = time.Millisecond

// Feed queues s for the next reads.
func (p *Port) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, s...)
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if p.readErr != nil || len(p.in) == 0 {
		err := p.readErr
		p.mu.Unlock()
		time.Sleep(idleWait)
		return 0, err
	}
	defer p.mu.Unlock()
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.out.Write(b)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailReads makes every following Read return err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailWrites makes every following Write return err.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns everything written so far.
func (p *Port) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

// Lines returns the written data split into newline-terminated lines,
// terminators kept.
func (p *Port) Lines() []string {
	var lines []string
	for _, l := range strings.SplitAfter(p.Written(), "\n") {
		if strings.HasSuffix(l, "\n") {
			lines = append(lines, l)
		}
	}
	return lines
}
