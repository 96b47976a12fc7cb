// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Activation is the way the node joins the network. It is either OTAA or
// ABP.
type Activation interface {
	mode() string
	configure(d *Dev) error
}

// OTAA is over-the-air activation: the session keys are negotiated with the
// network at join.
type OTAA struct {
	DevEUI [8]byte
	AppEUI [8]byte
	AppKey [16]byte
	ADR    bool
}

func (OTAA) mode() string { return "otaa" }

func (a *OTAA) configure(d *Dev) error {
	if err := d.SetMacParamBytes("deveui", a.DevEUI[:]); err != nil {
		return err
	}
	if err := d.SetMacParamBytes("appeui", a.AppEUI[:]); err != nil {
		return err
	}
	if err := d.SetMacParamBytes("appkey", a.AppKey[:]); err != nil {
		return err
	}
	return d.SetMacParam("adr", onOff(a.ADR))
}

// ABP is activation by personalization: the session keys are provisioned in
// the node.
type ABP struct {
	DevAddr [4]byte
	AppSKey [16]byte
	NwkSKey [16]byte
	ADR     bool
}

func (ABP) mode() string { return "abp" }

func (a *ABP) configure(d *Dev) error {
	if err := d.SetMacParamBytes("devaddr", a.DevAddr[:]); err != nil {
		return err
	}
	if err := d.SetMacParamBytes("appskey", a.AppSKey[:]); err != nil {
		return err
	}
	if err := d.SetMacParamBytes("nwkskey", a.NwkSKey[:]); err != nil {
		return err
	}
	return d.SetMacParam("adr", onOff(a.ADR))
}

// JoinState is the progress of the last join attempt.
type JoinState uint8

// Join states.
const (
	NotJoined JoinState = iota
	AwaitingOK
	AwaitingAccept
	Joined
)

func (s JoinState) String() string {
	switch s {
	case NotJoined:
		return "NotJoined"
	case AwaitingOK:
		return "AwaitingOK"
	case AwaitingAccept:
		return "AwaitingAccept"
	case Joined:
		return "Joined"
	default:
		return "JoinState(?)"
	}
}

// Join configures the activation parameters and joins the network.
//
// The sequence stops at the first rejected parameter; what was already set
// is left as is. The join command must be acknowledged with "ok" and then
// "accepted" within JoinTimeout. Any failure leaves the driver NotJoined and
// the caller decides whether to retry.
func (d *Dev) Join(a Activation) error {
	d.state = NotJoined
	if err := a.configure(d); err != nil {
		return err
	}
	cmd := []byte("mac join " + a.mode())
	if err := d.t.WriteLine(cmd); err != nil {
		return err
	}
	d.state = AwaitingOK
	if err := d.expect(cmd, "ok", d.opts.Timeout); err != nil {
		d.state = NotJoined
		return err
	}
	d.state = AwaitingAccept
	if err := d.expect(cmd, "accepted", d.opts.JoinTimeout); err != nil {
		d.state = NotJoined
		if errors.Is(err, ErrCommandRejected) {
			return errors.Wrapf(ErrJoinDenied, "rn2483: %s: %q", cmd, d.t.String())
		}
		return err
	}
	d.state = Joined
	d.log.Info("joined", zap.String("mode", a.mode()))
	return nil
}

// JoinState returns the state of the last join exchange.
func (d *Dev) JoinState() JoinState {
	return d.state
}

// Joined returns true if the last join succeeded and the module has not
// since reported that it is not joined.
func (d *Dev) Joined() bool {
	return d.state == Joined
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var (
	_ Activation = &OTAA{}
	_ Activation = &ABP{}
)
