// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineio

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/fieldnode/lineio/lineiotest"
	"github.com/GermanBionicSystems/fieldnode/timebase/timebasetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReadLine(t *testing.T) {
	data := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "ok\r\n", "ok"},
		{"lf", "ok\n", "ok"},
		{"empty", "\r\n", ""},
		{"no terminator", "mac_tx_ok", "mac_tx_ok"},
		{"inner cr", "a\rb\r\n", "a\rb"},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			p := &lineiotest.Playback{Ops: []lineiotest.IO{{W: []byte("x\r\n"), R: []byte(line.in)}}}
			tr := New(p, nil)
			if err := tr.WriteLine([]byte("x")); err != nil {
				t.Fatal(err)
			}
			if n := tr.ReadLine(0); n != len(line.want) {
				t.Fatalf("ReadLine() = %d; want %d", n, len(line.want))
			}
			if s := tr.String(); s != line.want {
				t.Fatalf("String() = %q; want %q", s, line.want)
			}
			if err := p.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestReadLine_consecutive(t *testing.T) {
	p := &lineiotest.Playback{Ops: []lineiotest.IO{{W: []byte("mac join otaa\r\n"), R: []byte("ok\r\naccepted\r\n")}}}
	tr := New(p, nil)
	if err := tr.WriteLine([]byte("mac join otaa")); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ok", "accepted", ""} {
		tr.ReadLine(0)
		if s := tr.String(); s != want {
			t.Fatalf("String() = %q; want %q", s, want)
		}
	}
}

func TestReadLine_timeout(t *testing.T) {
	c := &timebasetest.Clock{}
	p := &lineiotest.Playback{Clock: c}
	tr := New(p, nil)
	if n := tr.ReadLine(250 * time.Millisecond); n != 0 {
		t.Fatalf("ReadLine() = %d", n)
	}
	if d := c.Now().Sub(time.Time{}); d != 250*time.Millisecond {
		t.Fatalf("waited %s", d)
	}
	// The default timeout applies when none is given.
	tr.ReadLine(0)
	if d := c.Now().Sub(time.Time{}); d != 250*time.Millisecond+time.Second {
		t.Fatalf("waited %s", d)
	}
}

func TestReadLine_partialThenTimeout(t *testing.T) {
	c := &timebasetest.Clock{}
	p := &lineiotest.Playback{
		Clock: c,
		Ops: []lineiotest.IO{
			{W: []byte("sys get vdd\r\n"), R: []byte("33")},
			{R: []byte("00\r\n"), Delay: 5 * time.Second},
		},
	}
	tr := New(p, nil)
	if err := tr.WriteLine([]byte("sys get vdd")); err != nil {
		t.Fatal(err)
	}
	if s := readString(tr, time.Second); s != "33" {
		t.Fatalf("got %q", s)
	}
	// The tail arrives later and is seen as a separate line.
	if s := readString(tr, 10*time.Second); s != "00" {
		t.Fatalf("got %q", s)
	}
}

func TestReadLine_truncated(t *testing.T) {
	long := strings.Repeat("A", 20)
	p := &lineiotest.Playback{Ops: []lineiotest.IO{{W: []byte("sys get ver\r\n"), R: []byte(long + "\r\nok\r\n")}}}
	tr := New(p, &Opts{BufferSize: 8})
	if err := tr.WriteLine([]byte("sys get ver")); err != nil {
		t.Fatal(err)
	}
	// A full buffer ends the line; the rest comes with the next reads.
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, readString(tr, 0))
	}
	want := []string{"AAAAAAAA", "AAAAAAAA", "AAAA", "ok"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadLine() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLine_noTerminator(t *testing.T) {
	p := &noisyPort{}
	tr := New(p, &Opts{BufferSize: 8})
	if n := tr.ReadLine(0); n != 8 {
		t.Fatalf("ReadLine() = %d", n)
	}
	if p.reads != 8 {
		t.Fatalf("read %d characters", p.reads)
	}
	if n := tr.ReadLine(0); n != 8 || p.reads != 16 {
		t.Fatalf("ReadLine() = %d after %d reads", n, p.reads)
	}
}

func TestReadLine_resetsLength(t *testing.T) {
	p := &lineiotest.Playback{Ops: []lineiotest.IO{{W: []byte("a\r\n"), R: []byte("first\r\n")}}}
	tr := New(p, nil)
	if err := tr.WriteLine([]byte("a")); err != nil {
		t.Fatal(err)
	}
	tr.ReadLine(0)
	if n := tr.ReadLine(0); n != 0 || len(tr.Line()) != 0 {
		t.Fatalf("stale line %q", tr.Line())
	}
}

func TestReadLine_readError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := New(&failingPort{}, nil, WithLogger(zap.New(core)))
	if n := tr.ReadLine(0); n != 0 {
		t.Fatalf("ReadLine() = %d", n)
	}
	if logs.FilterMessage("serial read failed").Len() != 1 {
		t.Fatalf("missing log, got %v", logs.All())
	}
}

func TestWriteLine_unexpected(t *testing.T) {
	p := &lineiotest.Playback{Ops: []lineiotest.IO{{W: []byte("sys reset\r\n")}}}
	tr := New(p, nil)
	if err := tr.WriteLine([]byte("sys factoryRESET")); err == nil {
		t.Fatal("expected error")
	}
	if err := p.Close(); err == nil {
		t.Fatal("expected playback error")
	}
}

func TestBreak(t *testing.T) {
	p := &lineiotest.Playback{Ops: []lineiotest.IO{{Break: true}, {W: []byte{0x55}}}}
	tr := New(p, nil)
	if err := tr.Break(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := tr.Write([]byte{0x55}); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBreak_error(t *testing.T) {
	tr := New(&failingPort{}, nil)
	if err := tr.Break(time.Millisecond); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_defaults(t *testing.T) {
	tr := New(&failingPort{}, &Opts{})
	if cap(tr.buf) != 64 {
		t.Fatalf("buffer %d", cap(tr.buf))
	}
	if tr.ByteTimeout() != time.Second {
		t.Fatalf("timeout %s", tr.ByteTimeout())
	}
}

//

func readString(tr *Transport, d time.Duration) string {
	tr.ReadLine(d)
	return tr.String()
}

var errPort = errors.New("port gone")

type failingPort struct{}

func (failingPort) Read([]byte) (int, error)          { return 0, errPort }
func (failingPort) Write([]byte) (int, error)         { return 0, errPort }
func (failingPort) SetReadTimeout(time.Duration) error { return nil }
func (failingPort) Break(time.Duration) error         { return errPort }

// noisyPort streams characters forever without a terminator.
type noisyPort struct {
	reads int
}

func (p *noisyPort) Read(b []byte) (int, error) {
	p.reads++
	b[0] = 'A'
	return 1, nil
}

func (p *noisyPort) Write(b []byte) (int, error)        { return len(b), nil }
func (p *noisyPort) SetReadTimeout(time.Duration) error { return nil }
func (p *noisyPort) Break(time.Duration) error          { return nil }
