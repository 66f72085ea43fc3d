// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lp55231

import "unsafe"

type reg8 byte

// Memory map. Field offsets are the register addresses.
type regs struct {
	Cntrl1         reg8 // 0x00 enable, engine exec
	Cntrl2         reg8 // 0x01 engine op modes
	RatioMSB       reg8
	RatioLSB       reg8
	OutputOnOffMSB reg8 // D9
	OutputOnOffLSB reg8 // D8..D1
	DCtrl          [9]reg8
	_              [0x07]byte
	DPwm           [9]reg8 // no auto-increment
	_              [0x07]byte
	DCurrent       [9]reg8
	_              [0x07]byte
	Misc           reg8
	PC             [3]reg8
	StatusIrq      reg8
	IntGpo         reg8
	GlobalVar      reg8
	Reset          reg8
	TempCtl        reg8
	TempRead       reg8
	TempWrite      reg8
	TestCtl        reg8
	TestADC        reg8
	_              [0x02]byte
	EngineVar      [3]reg8
	MasterFade     [3]reg8
	_              [0x01]byte
	ProgStart      [3]reg8
	ProgPageSel    reg8
	ProgMem        [0x20]reg8
	EngMap         [6]reg8
	GainChange     reg8
}

var regMap regs

func getRegs() *regs { return &regMap }

func (r *reg8) offset() uint8 {
	return uint8(uintptr(unsafe.Pointer(r)) -
		uintptr(unsafe.Pointer(&regMap)))
}

// A field is a run of width bits starting at bit shift of a register.
type field struct {
	shift, width uint8
}

func (f field) mask() uint8         { return uint8((1<<f.width)-1) << f.shift }
func (f field) bits(v uint8) uint8  { return (v << f.shift) & f.mask() }
func (f field) get(b uint8) uint8   { return (b & f.mask()) >> f.shift }
func (f field) put(b, v uint8) uint8 { return b&^f.mask() | f.bits(v) }

// CNTRL1
var chipEn = field{6, 1}

// D1_CTRL through D9_CTRL
var (
	mapping  = field{6, 2}
	logEn    = field{5, 1}
	tempComp = field{0, 5}
)

// MISC
var (
	variableDSel = field{7, 1}
	enAutoIncr   = field{6, 1}
	powersaveEn  = field{5, 1}
	cpMode       = field{3, 2}
	pwmPsEn      = field{2, 1}
	clkDetEn     = field{1, 1}
	intClkEn     = field{0, 1}
)

// MISC.CP_MODE values
const (
	cpModeOff uint8 = iota
	cpModeBypass
	cpMode1x5
	cpModeAuto
)

// Writing 0xff to RESET restores register defaults.
const resetNow = 0xff
