// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package lp55231 provides direct PWM control of the TI LP55231 9-channel
// LED driver.
//
// A Device exclusively owns its bus and optional power-enable pin. Register
// traffic is refused with ErrNotEnabled until Enable has been called, and
// again after Disable or Reset.
//
// The program execution engines are not supported.
package lp55231

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Bus is the I2C transport. Address is the 7-bit slave address.
type Bus interface {
	Write(addr uint8, b []byte) error
	// WriteRead writes w then reads len(r) bytes as one transaction.
	WriteRead(addr uint8, w, r []byte) error
}

// Pin is a digital output, such as the chip's EN line.
type Pin interface {
	High()
	Low()
}

// Addr selects the slave address by the ASEL1 and ASEL2 straps.
type Addr uint8

const (
	Addr32 Addr = iota // ASEL1=GND, ASEL2=GND
	Addr33             // ASEL1=GND, ASEL2=VEN
	Addr34             // ASEL1=VEN, ASEL2=GND
	Addr35             // ASEL1=VEN, ASEL2=VEN
)

func (a Addr) Uint8() uint8 { return 0x32 + uint8(a&3) }

func (a Addr) String() string { return fmt.Sprintf("0x%02x", a.Uint8()) }

// ParseAddr accepts a slave address, 0x32 through 0x35.
func ParseAddr(s string) (Addr, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v < 0x32 || v > 0x35 {
		return 0, fmt.Errorf("%s: %w address", s, ErrInvalid)
	}
	return Addr(v - 0x32), nil
}

// State of the Device gate.
type State uint8

const (
	Uninitialized State = iota
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

var (
	ErrNotEnabled = errors.New("not enabled")
	ErrInvalid    = errors.New("invalid")
)

// BusError reports the register operation that the transport failed.
type BusError struct {
	Op  string // "read" or "write"
	Reg uint8
	// D is the channel being configured; zero if none.
	D   D
	Err error
}

func (e *BusError) Error() string {
	s := fmt.Sprintf("%s reg 0x%02x", e.Op, e.Reg)
	if e.D.Valid() {
		s = e.D.String() + ": " + s
	}
	return s + ": " + e.Err.Error()
}

func (e *BusError) Unwrap() error { return e.Err }

// Power-on to first bus access.
const EnableDelay = 500 * time.Microsecond

type Device struct {
	bus   Bus
	pin   Pin
	addr  uint8
	state State

	// sleep waits for the chip to settle after EN is raised.
	sleep func(time.Duration)
}

// New returns an uninitialized device. The pin may be nil if EN is strapped.
// There is no bus traffic until Enable.
func New(bus Bus, pin Pin, addr Addr) *Device {
	return &Device{
		bus:   bus,
		pin:   pin,
		addr:  addr.Uint8(),
		sleep: time.Sleep,
	}
}

func (d *Device) Addr() uint8    { return d.addr }
func (d *Device) State() State   { return d.state }
func (d *Device) String() string { return fmt.Sprintf("lp55231@0x%02x", d.addr) }

// Enable raises EN, then turns the chip on and configures its internal
// clock, 1.5x charge pump, and address auto-increment.
//
// The device remains Enabled if either write fails; calling Enable again
// repeats both writes.
func (d *Device) Enable() error {
	if d.pin != nil {
		d.pin.High()
	}
	d.sleep(EnableDelay)
	d.state = Enabled
	r := getRegs()
	if err := r.Cntrl1.set(d, chipEn.bits(1)); err != nil {
		return err
	}
	return r.Misc.set(d, intClkEn.bits(1)|
		clkDetEn.bits(1)|
		cpMode.bits(cpMode1x5)|
		enAutoIncr.bits(1))
}

// Disable drops EN, if available, without any bus traffic.
func (d *Device) Disable() {
	if d.pin != nil {
		d.pin.Low()
	}
	d.state = Disabled
}

// Reset restores the chip's power-on register defaults. The chip is then
// off so the device must be re-enabled.
func (d *Device) Reset() error {
	if err := d.gate(); err != nil {
		return err
	}
	if err := getRegs().Reset.set(d, resetNow); err != nil {
		return err
	}
	d.state = Disabled
	return nil
}

// SetPWM writes the channel's direct PWM duty cycle.
func (d *Device) SetPWM(ch D, duty uint8) error {
	if err := d.gate(ch); err != nil {
		return err
	}
	return withD(ch, getRegs().DPwm[ch.index()].set(d, duty))
}

// PWM reads the channel's direct PWM duty cycle.
func (d *Device) PWM(ch D) (uint8, error) {
	if err := d.gate(ch); err != nil {
		return 0, err
	}
	v, err := getRegs().DPwm[ch.index()].get(d)
	return v, withD(ch, err)
}

// SetCurrent writes the channel's drive current in 100µA steps.
func (d *Device) SetCurrent(ch D, v uint8) error {
	if err := d.gate(ch); err != nil {
		return err
	}
	return withD(ch, getRegs().DCurrent[ch.index()].set(d, v))
}

// Current reads the channel's drive current.
func (d *Device) Current(ch D) (uint8, error) {
	if err := d.gate(ch); err != nil {
		return 0, err
	}
	v, err := getRegs().DCurrent[ch.index()].get(d)
	return v, withD(ch, err)
}

// SetScaleMode selects linear or logarithmic PWM adjustment of each
// channel in turn. It stops at the first failure; channels before it keep
// the new mode.
func (d *Device) SetScaleMode(chs []D, mode ScaleMode) error {
	if err := d.gate(chs...); err != nil {
		return err
	}
	for _, ch := range chs {
		err := getRegs().DCtrl[ch.index()].modify(d, logEn, uint8(mode))
		if err != nil {
			return withD(ch, err)
		}
	}
	return nil
}

// ScaleMode reads the channel's PWM adjustment from the chip.
func (d *Device) ScaleMode(ch D) (ScaleMode, error) {
	if err := d.gate(ch); err != nil {
		return Linear, err
	}
	b, err := getRegs().DCtrl[ch.index()].get(d)
	if err != nil {
		return Linear, withD(ch, err)
	}
	return ScaleMode(logEn.get(b)), nil
}

// SetFader maps each channel in turn to a master fader, or none. Like
// SetScaleMode, it stops at the first failure.
func (d *Device) SetFader(chs []D, f Fader) error {
	if err := d.gate(chs...); err != nil {
		return err
	}
	if f > Fader3 {
		return fmt.Errorf("fader %d: %w", f, ErrInvalid)
	}
	for _, ch := range chs {
		err := getRegs().DCtrl[ch.index()].modify(d, mapping, uint8(f))
		if err != nil {
			return withD(ch, err)
		}
	}
	return nil
}

// Fader reads the channel's master fader mapping from the chip.
func (d *Device) Fader(ch D) (Fader, error) {
	if err := d.gate(ch); err != nil {
		return NoFader, err
	}
	b, err := getRegs().DCtrl[ch.index()].get(d)
	if err != nil {
		return NoFader, withD(ch, err)
	}
	return Fader(mapping.get(b)), nil
}

// SetMasterFade writes the level of a master fader.
func (d *Device) SetMasterFade(f Fader, v uint8) error {
	if err := d.gate(); err != nil {
		return err
	}
	if f < Fader1 || f > Fader3 {
		return fmt.Errorf("fader %d: %w", f, ErrInvalid)
	}
	return getRegs().MasterFade[f-Fader1].set(d, v)
}

// MasterFade reads the level of a master fader.
func (d *Device) MasterFade(f Fader) (uint8, error) {
	if err := d.gate(); err != nil {
		return 0, err
	}
	if f < Fader1 || f > Fader3 {
		return 0, fmt.Errorf("fader %d: %w", f, ErrInvalid)
	}
	return getRegs().MasterFade[f-Fader1].get(d)
}

// SetOutput switches the given channels on or off. D1 through D8 share one
// register and D9 has another; each touched register is read and written
// once.
func (d *Device) SetOutput(chs []D, on bool) error {
	if err := d.gate(chs...); err != nil {
		return err
	}
	var lsb, msb uint8
	for _, ch := range chs {
		if ch == D9 {
			msb |= 1
		} else {
			lsb |= 1 << ch.index()
		}
	}
	r := getRegs()
	for _, x := range []struct {
		r    *reg8
		mask uint8
	}{
		{&r.OutputOnOffLSB, lsb},
		{&r.OutputOnOffMSB, msb},
	} {
		if x.mask == 0 {
			continue
		}
		b, err := x.r.get(d)
		if err != nil {
			return err
		}
		if on {
			b |= x.mask
		} else {
			b &^= x.mask
		}
		if err = x.r.set(d, b); err != nil {
			return err
		}
	}
	return nil
}

// Output reads whether the channel's output is on.
func (d *Device) Output(ch D) (bool, error) {
	if err := d.gate(ch); err != nil {
		return false, err
	}
	r, bit := &getRegs().OutputOnOffLSB, uint8(1)<<ch.index()
	if ch == D9 {
		r, bit = &getRegs().OutputOnOffMSB, 1
	}
	b, err := r.get(d)
	if err != nil {
		return false, withD(ch, err)
	}
	return b&bit != 0, nil
}

// gate refuses register traffic while not enabled or with an invalid
// channel.
func (d *Device) gate(chs ...D) error {
	if d.state != Enabled {
		return ErrNotEnabled
	}
	for _, ch := range chs {
		if !ch.Valid() {
			return fmt.Errorf("%v: %w channel", ch, ErrInvalid)
		}
	}
	return nil
}

func withD(ch D, err error) error {
	if be, ok := err.(*BusError); ok {
		be.D = ch
	}
	return err
}
