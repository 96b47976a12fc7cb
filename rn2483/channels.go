// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

import (
	"strconv"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// fsbChannels is the number of channels of the 915MHz band plan: 64 125kHz
// channels followed by 8 500kHz channels.
const fsbChannels = 72

// SetFSBChannels enables the channels of frequency sub-band fsb (1 to 8) and
// disables all others. 0 enables all channels.
//
// Every channel is written even after a rejection; the error reports the
// first one.
func (d *Dev) SetFSBChannels(fsb uint8) error {
	if fsb > 8 {
		return errors.Errorf("rn2483: invalid sub-band %d", fsb)
	}
	first, last := 0, 71
	if fsb > 0 {
		first = int(fsb-1) * 8
		last = first + 7
	}
	wide := int(fsb) + 63
	var firstErr error
	failed := 0
	for i := 0; i < fsbChannels; i++ {
		on := i == wide || (i >= first && i <= last)
		if err := d.setChannelStatus(i, on); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "rn2483: %d of %d channels failed", failed, fsbChannels)
	}
	return nil
}

// SetSpreadingFactor sets the data rate matching sf for the detected
// variant: SF7 to SF12 on the RN2483, SF7 to SF10 on the RN2903.
func (d *Dev) SetSpreadingFactor(sf uint8) error {
	maxSF := uint8(12)
	if d.variant == RN2903 {
		maxSF = 10
	}
	if sf < 7 || sf > maxSF {
		return errors.Errorf("rn2483: invalid spreading factor %d for %s", sf, d.variant)
	}
	return d.SetMacParam("dr", strconv.Itoa(int(maxSF-sf)))
}

// SetPowerIndex sets the output power index. 1 to 5 on 868MHz; 5, 7, 8, 9
// or 10 on 915MHz.
func (d *Dev) SetPowerIndex(idx uint8) error {
	return d.SetMacParam("pwridx", strconv.Itoa(int(idx)))
}

// SetLinkCheckInterval sets the link check period in seconds. 0 disables
// link checks.
func (d *Dev) SetLinkCheckInterval(seconds uint16) error {
	return d.SetMacParam("linkchk", strconv.Itoa(int(seconds)))
}

// SetBattery sets the battery level reported to the network. 0 is external
// power, 1 to 254 the level and 255 unknown.
func (d *Dev) SetBattery(level uint8) error {
	return d.SetMacParam("bat", strconv.Itoa(int(level)))
}

// SetChannelFreq sets the frequency of channel 3 to 15.
//
// f must be in 863 to 870MHz or 433.05 to 434.79MHz.
func (d *Dev) SetChannelFreq(ch uint8, f physic.Frequency) error {
	if ch < 3 || ch > 15 {
		return errors.Errorf("rn2483: invalid channel %d", ch)
	}
	inBand := func(lo, hi physic.Frequency) bool { return f >= lo && f <= hi }
	if !inBand(863*physic.MegaHertz, 870*physic.MegaHertz) && !inBand(433050*physic.KiloHertz, 434790*physic.KiloHertz) {
		return errors.Errorf("rn2483: frequency %s out of band", f)
	}
	return d.SetMacParam("ch freq", strconv.Itoa(int(ch))+" "+strconv.FormatInt(int64(f/physic.Hertz), 10))
}

// SetDutyCycle sets the duty cycle of channel 0 to 15, in percent.
func (d *Dev) SetDutyCycle(ch uint8, percent float64) error {
	if ch > 15 {
		return errors.Errorf("rn2483: invalid channel %d", ch)
	}
	if percent <= 0 || percent > 100 {
		return errors.Errorf("rn2483: invalid duty cycle %g%%", percent)
	}
	v := uint16(100/percent - 1)
	return d.SetMacParam("ch dcycle", strconv.Itoa(int(ch))+" "+strconv.Itoa(int(v)))
}

// SetDRRange sets the data rate range of channel 0 to 15. Data rates are 0
// to 7.
func (d *Dev) SetDRRange(ch, minDR, maxDR uint8) error {
	if ch > 15 || minDR > 7 || maxDR > 7 {
		return errors.Errorf("rn2483: invalid data rate range %d %d-%d", ch, minDR, maxDR)
	}
	return d.SetMacParam("ch drrange", strconv.Itoa(int(ch))+" "+strconv.Itoa(int(minDR))+" "+strconv.Itoa(int(maxDR)))
}

// SetChannelStatus enables or disables channel 0 to 15.
//
// Frequency, duty cycle and data rate range must be set before enabling a
// channel.
func (d *Dev) SetChannelStatus(ch uint8, on bool) error {
	if ch > 15 {
		return errors.Errorf("rn2483: invalid channel %d", ch)
	}
	return d.setChannelStatus(int(ch), on)
}

// ForceEnable restores a module the network silenced.
func (d *Dev) ForceEnable() error {
	return d.SendCommand("mac forceENABLE")
}

func (d *Dev) setChannelStatus(ch int, on bool) error {
	return d.SetMacParam("ch status", strconv.Itoa(ch)+" "+onOff(on))
}
