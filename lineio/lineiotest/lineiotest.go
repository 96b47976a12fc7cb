// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lineiotest is meant to be used to test line oriented serial
// drivers.
package lineiotest

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/fieldnode/timebase/timebasetest"
)

// IO registers one exchange with the device.
//
// An IO with neither W nor Break is incoming data only. It is queued together
// with the write or break that precedes it.
type IO struct {
	// W is the exact byte sequence the driver is expected to write.
	W []byte
	// Break is set when the driver is expected to send a break instead.
	Break bool
	// R becomes readable Delay after the write.
	R     []byte
	Delay time.Duration
}

// Playback implements lineio.Port and plays back a recorded exchange.
//
// When Clock is set, a read with no data available advances it by the read
// timeout, so drivers waiting on long deadlines complete immediately.
type Playback struct {
	sync.Mutex
	Ops   []IO
	Count int
	Clock *timebasetest.Clock

	timeout time.Duration
	pending []chunk
	err     error
}

type chunk struct {
	at   time.Time
	data []byte
}

func (p *Playback) String() string {
	return "playback"
}

// Close returns an error if not all the expected writes were done or if an
// unexpected write happened.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if p.err != nil {
		return p.err
	}
	if len(p.Ops) != p.Count {
		return fmt.Errorf("lineiotest: expected playback to be empty: I/O count %d; expected %d", p.Count, len(p.Ops))
	}
	return nil
}

// Write implements lineio.Port.
func (p *Playback) Write(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	if err := p.next(false, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Break implements lineio.Port.
func (p *Playback) Break(time.Duration) error {
	p.Lock()
	defer p.Unlock()
	return p.next(true, nil)
}

// SetReadTimeout implements lineio.Port.
func (p *Playback) SetReadTimeout(t time.Duration) error {
	p.Lock()
	defer p.Unlock()
	p.timeout = t
	return nil
}

// Read implements lineio.Port.
func (p *Playback) Read(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	for len(p.pending) != 0 && len(p.pending[0].data) == 0 {
		p.pending = p.pending[1:]
	}
	timeout := p.timeout
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	if len(p.pending) == 0 {
		p.advance(timeout)
		return 0, nil
	}
	c := &p.pending[0]
	if p.Clock != nil {
		if wait := c.at.Sub(p.Clock.Now()); wait > 0 {
			if wait > timeout {
				p.advance(timeout)
				return 0, nil
			}
			p.advance(wait)
		}
	}
	n := copy(b, c.data)
	c.data = c.data[n:]
	return n, nil
}

func (p *Playback) advance(d time.Duration) {
	if p.Clock != nil {
		p.Clock.Advance(d)
	}
}

func (p *Playback) now() time.Time {
	if p.Clock != nil {
		return p.Clock.Now()
	}
	return time.Time{}
}

func (p *Playback) next(brk bool, w []byte) error {
	if p.err != nil {
		return p.err
	}
	if p.Count >= len(p.Ops) {
		p.err = fmt.Errorf("lineiotest: unexpected write %q, break %t", w, brk)
		return p.err
	}
	op := p.Ops[p.Count]
	if op.Break != brk || !bytes.Equal(op.W, w) {
		p.err = fmt.Errorf("lineiotest: unexpected write (#%d) %q, break %t; expected %q, break %t", p.Count, w, brk, op.W, op.Break)
		return p.err
	}
	now := p.now()
	for {
		p.queue(now, op)
		p.Count++
		if p.Count == len(p.Ops) {
			return nil
		}
		op = p.Ops[p.Count]
		if op.W != nil || op.Break {
			return nil
		}
	}
}

func (p *Playback) queue(now time.Time, op IO) {
	if len(op.R) == 0 {
		return
	}
	p.pending = append(p.pending, chunk{at: now.Add(op.Delay), data: append([]byte(nil), op.R...)})
}
