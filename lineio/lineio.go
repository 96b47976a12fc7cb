// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lineio reads and writes CRLF terminated text lines on a serial
// port.
//
// Reads are polled one character at a time, each character with its own
// timeout. A character timeout ends the line; it is not an error at this
// layer.
package lineio

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Port is the part of a serial port the transport needs.
//
// Read must return 0 bytes and no error once the read timeout expires.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	Break(d time.Duration) error
}

// Open opens the serial device name at baud, 8N1.
func Open(name string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "lineio: failed to open %s", name)
	}
	return port, nil
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// BufferSize is the capacity of the line buffer. Longer lines are
	// truncated.
	BufferSize int
	// ByteTimeout is the per character timeout used by ReadLine when none is
	// given.
	ByteTimeout time.Duration
}

// DefaultOpts matches the RN2483 response sizes.
var DefaultOpts = Opts{
	BufferSize:  64,
	ByteTimeout: time.Second,
}

var crlf = []byte("\r\n")

// New returns a Transport on p.
func New(p Port, opts *Opts, options ...func(*Transport)) *Transport {
	if opts == nil {
		opts = &DefaultOpts
	}
	t := &Transport{
		port:        p,
		byteTimeout: opts.ByteTimeout,
		log:         zap.NewNop(),
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultOpts.BufferSize
	}
	if t.byteTimeout <= 0 {
		t.byteTimeout = DefaultOpts.ByteTimeout
	}
	t.buf = make([]byte, 0, size)
	for _, option := range options {
		option(t)
	}
	return t
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) func(*Transport) {
	return func(t *Transport) {
		t.log = logger
	}
}

// Transport owns the line buffer of a serial port. It is not safe for
// concurrent use.
type Transport struct {
	port        Port
	buf         []byte
	byteTimeout time.Duration
	timeout     time.Duration // timeout currently set on the port
	log         *zap.Logger
}

// ByteTimeout returns the default per character timeout.
func (t *Transport) ByteTimeout() time.Duration {
	return t.byteTimeout
}

// ReadLine reads characters into the line buffer until '\n', a character
// timeout, or a full buffer. It returns the length of the stored line.
//
// The terminator and a trailing '\r' are not stored. A full buffer ends the
// line; the characters after it are left for the next ReadLine, so the call
// is bounded even on a port that never sends a terminator. byteTimeout <= 0
// uses the default.
func (t *Transport) ReadLine(byteTimeout time.Duration) int {
	t.buf = t.buf[:0]
	if byteTimeout <= 0 {
		byteTimeout = t.byteTimeout
	}
	if byteTimeout != t.timeout {
		if err := t.port.SetReadTimeout(byteTimeout); err != nil {
			t.log.Warn("failed to set read timeout", zap.Error(err))
			return 0
		}
		t.timeout = byteTimeout
	}
	var c [1]byte
	for len(t.buf) < cap(t.buf) {
		n, err := t.port.Read(c[:])
		if err != nil {
			t.log.Warn("serial read failed", zap.Error(err))
			break
		}
		if n == 0 || c[0] == '\n' {
			break
		}
		t.buf = append(t.buf, c[0])
	}
	if len(t.buf) == cap(t.buf) {
		t.log.Debug("line truncated", zap.Int("size", cap(t.buf)))
	}
	t.buf = bytes.TrimSuffix(t.buf, []byte{'\r'})
	if len(t.buf) != 0 {
		t.log.Debug("rx", zap.ByteString("line", t.buf))
	}
	return len(t.buf)
}

// Line returns the last line read. It is only valid until the next
// ReadLine.
func (t *Transport) Line() []byte {
	return t.buf
}

// String returns the last line read.
func (t *Transport) String() string {
	return string(t.buf)
}

// Clear empties the line buffer.
func (t *Transport) Clear() {
	t.buf = t.buf[:0]
}

// WriteLine writes line followed by CRLF in a single write.
func (t *Transport) WriteLine(line []byte) error {
	t.log.Debug("tx", zap.ByteString("line", line))
	out := make([]byte, 0, len(line)+len(crlf))
	out = append(append(out, line...), crlf...)
	return t.Write(out)
}

// Write writes raw bytes.
func (t *Transport) Write(b []byte) error {
	if _, err := t.port.Write(b); err != nil {
		return errors.Wrap(err, "lineio: write failed")
	}
	return nil
}

// Break holds the line in the break condition for d.
func (t *Transport) Break(d time.Duration) error {
	return errors.Wrap(t.port.Break(d), "lineio: break failed")
}

var _ Port = serial.Port(nil)
