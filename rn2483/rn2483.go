// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

import (
	"strconv"
	"strings"
	"time"

	"github.com/GermanBionicSystems/fieldnode/common"
	"github.com/GermanBionicSystems/fieldnode/lineio"
	"github.com/GermanBionicSystems/fieldnode/timebase"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

// BaudRate is the factory default baud rate of the module.
const BaudRate = 57600

// Errors returned by the command layer. They are wrapped with the command
// and the response; use errors.Is.
var (
	// ErrCommandRejected is returned when the module answered something
	// other than the expected token.
	ErrCommandRejected = errors.New("rn2483: command rejected")
	// ErrCommandTimeout is returned when no response arrived in time.
	ErrCommandTimeout = errors.New("rn2483: command timed out")
	// ErrJoinDenied is returned when the network refused a join.
	ErrJoinDenied = errors.New("rn2483: join denied")
	// ErrUnknownDevice is returned by ResetDevice for an unrecognized
	// identity line.
	ErrUnknownDevice = errors.New("rn2483: unknown device")
)

// Variant is the hardware variant, resolved by ResetDevice.
type Variant uint8

// Supported variants.
const (
	Unknown Variant = iota
	RN2483          // 433/868MHz
	RN2903          // 915MHz
)

func (v Variant) String() string {
	switch v {
	case RN2483:
		return "RN2483"
	case RN2903:
		return "RN2903"
	default:
		return "Unknown"
	}
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// Timeout bounds the wait for a command acknowledgment.
	Timeout time.Duration
	// CharTimeout bounds the wait for each character of a response line.
	CharTimeout time.Duration
	// ReceiveTimeout bounds the wait for the result of a transmission.
	ReceiveTimeout time.Duration
	// JoinTimeout bounds the wait for the join accept.
	JoinTimeout time.Duration
	// InputBufferSize is the longest response line kept.
	InputBufferSize int
	// PayloadBufferSize is the longest downlink payload kept, in hex
	// characters.
	PayloadBufferSize int
	// BreakDuration is the length of the wake-up break condition.
	BreakDuration time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timeout:           120 * time.Millisecond,
	CharTimeout:       time.Second,
	ReceiveTimeout:    60 * time.Second,
	JoinTimeout:       30 * time.Second,
	InputBufferSize:   64,
	PayloadBufferSize: 32,
	BreakDuration:     5 * time.Millisecond,
}

func (o *Opts) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultOpts.Timeout
	}
	if o.CharTimeout <= 0 {
		o.CharTimeout = DefaultOpts.CharTimeout
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultOpts.ReceiveTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultOpts.JoinTimeout
	}
	if o.InputBufferSize <= 0 {
		o.InputBufferSize = DefaultOpts.InputBufferSize
	}
	if o.PayloadBufferSize <= 0 {
		o.PayloadBufferSize = DefaultOpts.PayloadBufferSize
	}
	if o.BreakDuration <= 0 {
		o.BreakDuration = DefaultOpts.BreakDuration
	}
}

// Defaults applied by ResetDevice.
const (
	defaultFSB          = 2
	defaultPowerIdx868  = 1
	defaultPowerIdx915  = 5
	defaultSF           = 7
	maxSleep            = 1<<32 - 1
	minSleep            = 100
	syncSleep           = 259200000
	wakeUpSyncByte byte = 0x55
)

// New returns a driver for the module on port p.
//
// The module variant is unknown until ResetDevice is called.
func New(p lineio.Port, opts *Opts, options ...func(*Dev)) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		opts:  *opts,
		clock: &timebase.Host{},
		log:   zap.NewNop(),
	}
	d.opts.setDefaults()
	for _, option := range options {
		option(d)
	}
	d.t = lineio.New(p, &lineio.Opts{BufferSize: d.opts.InputBufferSize, ByteTimeout: d.opts.CharTimeout}, lineio.WithLogger(d.log))
	d.payload = make([]byte, 0, d.opts.PayloadBufferSize)
	return d
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) func(*Dev) {
	return func(d *Dev) {
		d.log = logger
	}
}

// WithClock sets the clock deadlines are measured on.
func WithClock(c timebase.Clock) func(*Dev) {
	return func(d *Dev) {
		d.clock = c
	}
}

// Dev is a handle to the module.
//
// It is not safe for concurrent use. The line buffer and the received
// payload are owned by the single caller.
type Dev struct {
	t       *lineio.Transport
	opts    Opts
	clock   timebase.Clock
	log     *zap.Logger
	variant Variant
	state   JoinState

	payload  []byte // hex characters of the last downlink
	port     uint8
	received bool
}

func (d *Dev) String() string {
	return d.variant.String()
}

// Variant returns the variant detected by the last ResetDevice.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Init synchronizes the module, resets it and joins the network with a.
func (d *Dev) Init(a Activation) error {
	if err := d.Sync(); err != nil {
		return err
	}
	if err := d.ResetDevice(); err != nil {
		return err
	}
	if err := d.Join(a); err != nil {
		return err
	}
	return d.SaveConfiguration()
}

// Sync brings the module to a known state whatever it was doing: it is sent
// to sleep for a long time and immediately woken up.
func (d *Dev) Sync() error {
	if err := d.Sleep(syncSleep * time.Millisecond); err != nil {
		return err
	}
	d.clock.Delay(10 * time.Millisecond)
	return d.WakeUp()
}

// ResetDevice reboots the module and applies the defaults of the detected
// variant.
//
// The RN2483 gets power index 1 and SF7. The RN2903 gets the channels of
// sub-band 2, power index 5 and SF7.
func (d *Dev) ResetDevice() error {
	if err := d.t.WriteLine([]byte("sys reset")); err != nil {
		return err
	}
	if !d.waitLine(d.opts.Timeout) {
		return errors.Wrap(ErrCommandTimeout, "rn2483: sys reset")
	}
	id := d.t.String()
	switch {
	case strings.Contains(id, "RN2483"):
		d.variant = RN2483
		d.log.Info("module reset", zap.String("id", id))
		if err := d.SetPowerIndex(defaultPowerIdx868); err != nil {
			return err
		}
		return d.SetSpreadingFactor(defaultSF)
	case strings.Contains(id, "RN2903"):
		d.variant = RN2903
		d.log.Info("module reset", zap.String("id", id))
		if err := d.SetFSBChannels(defaultFSB); err != nil {
			return err
		}
		if err := d.SetPowerIndex(defaultPowerIdx915); err != nil {
			return err
		}
		return d.SetSpreadingFactor(defaultSF)
	default:
		d.variant = Unknown
		return errors.Wrapf(ErrUnknownDevice, "rn2483: identity %q", id)
	}
}

// Sleep puts the module to sleep for d. It has no response.
//
// Durations of 100ms or less are ignored since the module rejects them.
// Durations are capped to about 49 days.
func (d *Dev) Sleep(dur time.Duration) error {
	ms := dur.Milliseconds()
	if ms <= minSleep {
		return nil
	}
	if ms > maxSleep {
		ms = maxSleep
	}
	return d.t.WriteLine([]byte("sys sleep " + strconv.FormatInt(ms, 10)))
}

// WakeUp wakes the module with a break condition followed by the
// auto-baud synchronization byte. It has no response.
func (d *Dev) WakeUp() error {
	if err := d.t.Break(d.opts.BreakDuration); err != nil {
		return err
	}
	return d.t.Write([]byte{wakeUpSyncByte})
}

// HWEUI returns the preprogrammed EUI of the module.
func (d *Dev) HWEUI() ([]byte, error) {
	if err := d.t.WriteLine([]byte("sys get hweui")); err != nil {
		return nil, err
	}
	if !d.waitLine(d.opts.Timeout) {
		return nil, errors.Wrap(ErrCommandTimeout, "rn2483: sys get hweui")
	}
	line := d.t.Line()
	eui := make([]byte, 0, len(line)/2)
	for i := 0; i+1 < len(line); i += 2 {
		b, ok := common.HexPair(line[i], line[i+1])
		if !ok {
			break
		}
		eui = append(eui, b)
	}
	if len(eui) == 0 {
		return nil, errors.Wrapf(ErrCommandRejected, "rn2483: sys get hweui: %q", line)
	}
	return eui, nil
}

// VDD returns the supply voltage measured by the module.
func (d *Dev) VDD() (physic.ElectricPotential, error) {
	if err := d.t.WriteLine([]byte("sys get vdd")); err != nil {
		return 0, err
	}
	if !d.waitLine(d.opts.ReceiveTimeout) {
		return 0, errors.Wrap(ErrCommandTimeout, "rn2483: sys get vdd")
	}
	mv, err := strconv.ParseInt(d.t.String(), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrCommandRejected, "rn2483: sys get vdd: %q", d.t.String())
	}
	return physic.ElectricPotential(mv) * physic.MilliVolt, nil
}

// SendCommand writes cmd followed by the space separated params and waits
// for "ok".
func (d *Dev) SendCommand(cmd string, params ...string) error {
	line := cmd
	if len(params) != 0 {
		line += " " + strings.Join(params, " ")
	}
	return d.command([]byte(line))
}

// SendCommandBytes writes cmd followed by param encoded in hex and waits for
// "ok".
func (d *Dev) SendCommandBytes(cmd string, param []byte) error {
	line := make([]byte, 0, len(cmd)+1+2*len(param))
	line = append(append(line, cmd...), ' ')
	return d.command(common.AppendHex(line, param))
}

// SetMacParam sets the MAC parameter name to value.
func (d *Dev) SetMacParam(name, value string) error {
	return d.SendCommand("mac set "+name, value)
}

// SetMacParamBytes sets the MAC parameter name to value encoded in hex.
func (d *Dev) SetMacParamBytes(name string, value []byte) error {
	return d.SendCommandBytes("mac set "+name, value)
}

// SaveConfiguration is a no-op. "mac save" takes longer than any sensible
// timeout, so the parameters are written again on every Init instead.
func (d *Dev) SaveConfiguration() error {
	d.log.Debug("mac save skipped")
	return nil
}

//

// command writes line and waits for "ok".
func (d *Dev) command(line []byte) error {
	if err := d.t.WriteLine(line); err != nil {
		return err
	}
	return d.expect(line, "ok", d.opts.Timeout)
}

// expect waits up to timeout for a response line equal to want.
//
// On timeout the line buffer is empty so the response classifies as
// NoResponse.
func (d *Dev) expect(cmd []byte, want string, timeout time.Duration) error {
	if !d.waitLine(timeout) {
		d.log.Warn("no response", zap.ByteString("cmd", cmd), zap.String("want", want))
		return errors.Wrapf(ErrCommandTimeout, "rn2483: %s: waiting for %q", cmd, want)
	}
	if got := d.t.String(); got != want {
		d.log.Warn("unexpected response", zap.ByteString("cmd", cmd), zap.String("want", want), zap.String("got", got))
		return errors.Wrapf(ErrCommandRejected, "rn2483: %s: got %q, want %q", cmd, got, want)
	}
	return nil
}

// waitLine reads until a non-empty line arrives or timeout passes. A line
// that started before the deadline is read to its end.
func (d *Dev) waitLine(timeout time.Duration) bool {
	deadline := d.clock.Now().Add(timeout)
	for !timebase.Expired(d.clock, deadline) {
		if d.t.ReadLine(d.opts.CharTimeout) > 0 {
			return true
		}
	}
	d.t.Clear()
	return false
}
