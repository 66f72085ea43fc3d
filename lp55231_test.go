// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lp55231

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/platinasystems/lp55231/internal/bustest"
)

const addr = 0x32

func newTest(pin Pin) (*Device, *bustest.Bus, *[]time.Duration) {
	bus := new(bustest.Bus)
	slept := new([]time.Duration)
	d := New(bus, pin, Addr32)
	d.sleep = func(t time.Duration) { *slept = append(*slept, t) }
	return d, bus, slept
}

func enabled(t *testing.T, pin Pin) (*Device, *bustest.Bus) {
	t.Helper()
	d, bus, _ := newTest(pin)
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	bus.Reset()
	return d, bus
}

func expectTxs(t *testing.T, bus *bustest.Bus, want ...bustest.Tx) {
	t.Helper()
	if want == nil {
		want = []bustest.Tx{}
	}
	got := bus.Txs
	if got == nil {
		got = []bustest.Tx{}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transactions (-want +got):\n%s", diff)
	}
}

func TestGatedBeforeEnable(t *testing.T) {
	for _, x := range []struct {
		name string
		op   func(*Device) error
	}{
		{"reset", (*Device).Reset},
		{"pwm", func(d *Device) error { return d.SetPWM(D1, 0xff) }},
		{"current", func(d *Device) error { return d.SetCurrent(D1, 0xaf) }},
		{"scale", func(d *Device) error {
			return d.SetScaleMode([]D{D1, D2}, Logarithmic)
		}},
		{"query scale", func(d *Device) error {
			_, err := d.ScaleMode(D5)
			return err
		}},
		{"fader", func(d *Device) error {
			return d.SetFader([]D{D4}, Fader2)
		}},
		{"fade", func(d *Device) error {
			return d.SetMasterFade(Fader1, 0x80)
		}},
		{"output", func(d *Device) error {
			return d.SetOutput([]D{D9}, true)
		}},
	} {
		t.Run(x.name, func(t *testing.T) {
			d, bus, _ := newTest(nil)
			if err := x.op(d); !errors.Is(err, ErrNotEnabled) {
				t.Errorf("returned %v [expected %v]", err, ErrNotEnabled)
			}
			expectTxs(t, bus)
			if s := d.State(); s != Uninitialized {
				t.Errorf("state %v", s)
			}
		})
	}
}

func TestEnable(t *testing.T) {
	pin := new(bustest.Pin)
	d, bus, slept := newTest(pin)
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	expectTxs(t, bus,
		bustest.W(addr, 0x00, 0x40),
		bustest.W(addr, 0x36, 0x53))
	if s := d.State(); s != Enabled {
		t.Errorf("state %v", s)
	}
	if !pin.Level() {
		t.Error("EN not raised")
	}
	if len(*slept) != 1 || (*slept)[0] < 500*time.Microsecond {
		t.Errorf("slept %v", *slept)
	}
}

func TestEnableWithoutPin(t *testing.T) {
	d, bus, _ := newTest(nil)
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	if n := len(bus.Txs); n != 2 {
		t.Errorf("%d transactions", n)
	}
}

func TestEnablePartialRetry(t *testing.T) {
	d, bus, _ := newTest(nil)
	bus.Fail = bustest.FailAt(1)
	err := d.Enable()
	if !errors.Is(err, bustest.ErrNak) {
		t.Fatalf("returned %v", err)
	}
	var be *BusError
	if !errors.As(err, &be) || be.Op != "write" || be.Reg != 0x36 {
		t.Errorf("returned %#v", err)
	}
	if s := d.State(); s != Enabled {
		t.Errorf("state %v after partial enable", s)
	}
	bus.Fail = nil
	bus.Reset()
	if err = d.Enable(); err != nil {
		t.Fatal(err)
	}
	expectTxs(t, bus,
		bustest.W(addr, 0x00, 0x40),
		bustest.W(addr, 0x36, 0x53))
}

func TestEnableFirstWriteFails(t *testing.T) {
	d, bus, _ := newTest(nil)
	bus.Fail = bustest.FailAt(0)
	if err := d.Enable(); !errors.Is(err, bustest.ErrNak) {
		t.Fatalf("returned %v", err)
	}
	if n := len(bus.Txs); n != 1 {
		t.Errorf("%d transactions after failed CNTRL1 write", n)
	}
}

func TestSetPWM(t *testing.T) {
	d, bus := enabled(t, nil)
	var want []bustest.Tx
	for i, ch := range Ds {
		duty := uint8(0x10 * i)
		if err := d.SetPWM(ch, duty); err != nil {
			t.Fatal(ch, err)
		}
		want = append(want, bustest.W(addr, 0x16+uint8(i), duty))
	}
	expectTxs(t, bus, want...)
}

func TestSetCurrent(t *testing.T) {
	d, bus := enabled(t, nil)
	var want []bustest.Tx
	for i, ch := range Ds {
		if err := d.SetCurrent(ch, 0xaf); err != nil {
			t.Fatal(ch, err)
		}
		want = append(want, bustest.W(addr, 0x26+uint8(i), 0xaf))
	}
	expectTxs(t, bus, want...)
}

func TestSetScaleModeRoundTrip(t *testing.T) {
	d, bus := enabled(t, nil)
	// fader 3, temperature compensation 7
	const orig = 0xc7
	bus.Regs[0x08] = orig
	if err := d.SetScaleMode([]D{D3}, Logarithmic); err != nil {
		t.Fatal(err)
	}
	expectTxs(t, bus,
		bustest.WR(addr, 0x08, orig),
		bustest.W(addr, 0x08, orig|0x20))
	if m, err := d.ScaleMode(D3); err != nil || m != Logarithmic {
		t.Errorf("ScaleMode: %v, %v", m, err)
	}
	if err := d.SetScaleMode([]D{D3}, Linear); err != nil {
		t.Fatal(err)
	}
	if b := bus.Regs[0x08]; b != orig {
		t.Errorf("D3_CTRL 0x%02x [expected 0x%02x]", b, orig)
	}
}

func TestSetScaleModeStopsAtFailure(t *testing.T) {
	d, bus := enabled(t, nil)
	// read d1, write d1, read d2, write d2 fails
	bus.Fail = bustest.FailAt(3)
	err := d.SetScaleMode([]D{D1, D2, D3}, Logarithmic)
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("returned %v", err)
	}
	if be.D != D2 || be.Op != "write" || be.Reg != 0x07 {
		t.Errorf("returned %v", err)
	}
	if !errors.Is(err, bustest.ErrNak) {
		t.Errorf("%v doesn't wrap %v", err, bustest.ErrNak)
	}
	expectTxs(t, bus,
		bustest.WR(addr, 0x06, 0),
		bustest.W(addr, 0x06, 0x20),
		bustest.WR(addr, 0x07, 0),
		bustest.Tx{Addr: addr, W: []byte{0x07, 0x20}, Failed: true})
	if bus.Regs[0x06] != 0x20 {
		t.Error("d1 not left logarithmic")
	}
}

func TestSetFaderPreservesOtherBits(t *testing.T) {
	d, bus := enabled(t, nil)
	bus.Regs[0x0e] = 0x20 | 0x1f
	if err := d.SetFader([]D{D9}, Fader2); err != nil {
		t.Fatal(err)
	}
	if b := bus.Regs[0x0e]; b != 0x80|0x20|0x1f {
		t.Errorf("D9_CTRL 0x%02x", b)
	}
	if f, err := d.Fader(D9); err != nil || f != Fader2 {
		t.Errorf("Fader: %v, %v", f, err)
	}
	if err := d.SetFader([]D{D9}, Fader(4)); !errors.Is(err, ErrInvalid) {
		t.Errorf("returned %v", err)
	}
}

func TestSetMasterFade(t *testing.T) {
	d, bus := enabled(t, nil)
	for _, f := range []Fader{Fader1, Fader2, Fader3} {
		if err := d.SetMasterFade(f, 0x7f); err != nil {
			t.Fatal(err)
		}
	}
	expectTxs(t, bus,
		bustest.W(addr, 0x48, 0x7f),
		bustest.W(addr, 0x49, 0x7f),
		bustest.W(addr, 0x4a, 0x7f))
	bus.Reset()
	if err := d.SetMasterFade(NoFader, 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("returned %v", err)
	}
	expectTxs(t, bus)
}

func TestSetOutput(t *testing.T) {
	d, bus := enabled(t, nil)
	bus.Regs[0x04] = 0x01
	bus.Regs[0x05] = 0xff
	if err := d.SetOutput([]D{D1, D9}, false); err != nil {
		t.Fatal(err)
	}
	expectTxs(t, bus,
		bustest.WR(addr, 0x05, 0xff),
		bustest.W(addr, 0x05, 0xfe),
		bustest.WR(addr, 0x04, 0x01),
		bustest.W(addr, 0x04, 0x00))
	bus.Reset()
	if err := d.SetOutput([]D{D8}, false); err != nil {
		t.Fatal(err)
	}
	if len(bus.Txs) != 2 {
		t.Errorf("touched MSB:\n%v", bus)
	}
	if on, err := d.Output(D8); err != nil || on {
		t.Errorf("Output: %v, %v", on, err)
	}
	if on, err := d.Output(D2); err != nil || !on {
		t.Errorf("Output: %v, %v", on, err)
	}
}

func TestInvalidChannel(t *testing.T) {
	d, bus := enabled(t, nil)
	for _, err := range []error{
		d.SetPWM(0, 1),
		d.SetCurrent(D9+1, 1),
		d.SetScaleMode([]D{D1, 10}, Logarithmic),
		d.SetOutput([]D{0}, true),
	} {
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("returned %v", err)
		}
	}
	expectTxs(t, bus)
}

func TestDisable(t *testing.T) {
	pin := new(bustest.Pin)
	d, bus := enabled(t, pin)
	d.Disable()
	expectTxs(t, bus)
	if pin.Level() {
		t.Error("EN still high")
	}
	if s := d.State(); s != Disabled {
		t.Errorf("state %v", s)
	}
	if err := d.SetPWM(D1, 1); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("returned %v", err)
	}
	if err := d.Reset(); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("returned %v", err)
	}
	expectTxs(t, bus)
}

func TestReset(t *testing.T) {
	d, bus := enabled(t, nil)
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	expectTxs(t, bus, bustest.W(addr, 0x3d, 0xff))
	if s := d.State(); s != Disabled {
		t.Errorf("state %v after reset", s)
	}
	if err := d.SetPWM(D1, 1); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("returned %v", err)
	}
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetPWM(D1, 1); err != nil {
		t.Error(err)
	}
}

func TestResetFailureKeepsEnabled(t *testing.T) {
	d, bus := enabled(t, nil)
	bus.Fail = bustest.FailAt(0)
	if err := d.Reset(); !errors.Is(err, bustest.ErrNak) {
		t.Fatalf("returned %v", err)
	}
	if s := d.State(); s != Enabled {
		t.Errorf("state %v", s)
	}
}

func TestAddr(t *testing.T) {
	seen := make(map[uint8]bool)
	for _, a := range []Addr{Addr32, Addr33, Addr34, Addr35} {
		d := New(new(bustest.Bus), nil, a)
		if seen[d.Addr()] {
			t.Errorf("%v: duplicate address", a)
		}
		seen[d.Addr()] = true
		p, err := ParseAddr(a.String())
		if err != nil || p != a {
			t.Errorf("ParseAddr(%q): %v, %v", a.String(), p, err)
		}
	}
	for _, s := range []string{"0x31", "0x36", "fifty", ""} {
		if _, err := ParseAddr(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseAddr(%q): %v", s, err)
		}
	}
}

func TestParseD(t *testing.T) {
	for i, ch := range Ds {
		for _, s := range []string{ch.String(), "D" + ch.String()[1:]} {
			if p, err := ParseD(s); err != nil || p != ch {
				t.Errorf("ParseD(%q): %v, %v", s, p, err)
			}
		}
		if ch.index() != uint8(i) {
			t.Errorf("%v index %d", ch, ch.index())
		}
	}
	for _, s := range []string{"d0", "d10", "x", ""} {
		if _, err := ParseD(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseD(%q): %v", s, err)
		}
	}
}

func TestRegisterMap(t *testing.T) {
	r := getRegs()
	for _, x := range []struct {
		name string
		r    *reg8
		want uint8
	}{
		{"CNTRL1", &r.Cntrl1, 0x00},
		{"OUTPUT_ONOFF_LSB", &r.OutputOnOffLSB, 0x05},
		{"D1_CTRL", &r.DCtrl[0], 0x06},
		{"D9_CTRL", &r.DCtrl[8], 0x0e},
		{"D1_PWM", &r.DPwm[0], 0x16},
		{"D9_PWM", &r.DPwm[8], 0x1e},
		{"D1_I_CTL", &r.DCurrent[0], 0x26},
		{"MISC", &r.Misc, 0x36},
		{"STATUS_IRQ", &r.StatusIrq, 0x3a},
		{"RESET", &r.Reset, 0x3d},
		{"TEST_ADC", &r.TestADC, 0x42},
		{"ENGINE_A_VAR", &r.EngineVar[0], 0x45},
		{"MASTER_FADE_1", &r.MasterFade[0], 0x48},
		{"PROG1_START", &r.ProgStart[0], 0x4c},
		{"PROG_PAGE_SEL", &r.ProgPageSel, 0x4f},
		{"PROG_MEM_BASE", &r.ProgMem[0], 0x50},
		{"ENG1_MAP_MSB", &r.EngMap[0], 0x70},
		{"GAIN_CHANGE", &r.GainChange, 0x76},
	} {
		if got := x.r.offset(); got != x.want {
			t.Errorf("%s: 0x%02x [expected 0x%02x]", x.name, got, x.want)
		}
	}
}

func TestField(t *testing.T) {
	if b := tempComp.put(0xff, 0); b != 0xe0 {
		t.Errorf("tempComp.put 0x%02x", b)
	}
	if v := mapping.get(0xc0); v != 3 {
		t.Errorf("mapping.get %d", v)
	}
	if b := cpMode.bits(cpModeAuto); b != 0x18 {
		t.Errorf("cpMode.bits 0x%02x", b)
	}
	if b := logEn.bits(3); b != 0x20 {
		t.Errorf("logEn.bits overflow 0x%02x", b)
	}
}

func TestReadBack(t *testing.T) {
	d, bus := enabled(t, nil)
	if err := d.SetPWM(D7, 0x33); err != nil {
		t.Fatal(err)
	}
	if err := d.SetCurrent(D7, 0x44); err != nil {
		t.Fatal(err)
	}
	if err := d.SetMasterFade(Fader3, 0x55); err != nil {
		t.Fatal(err)
	}
	bus.Reset()
	if v, err := d.PWM(D7); err != nil || v != 0x33 {
		t.Errorf("PWM: 0x%02x, %v", v, err)
	}
	if v, err := d.Current(D7); err != nil || v != 0x44 {
		t.Errorf("Current: 0x%02x, %v", v, err)
	}
	if v, err := d.MasterFade(Fader3); err != nil || v != 0x55 {
		t.Errorf("MasterFade: 0x%02x, %v", v, err)
	}
	expectTxs(t, bus,
		bustest.WR(addr, 0x1c, 0x33),
		bustest.WR(addr, 0x2c, 0x44),
		bustest.WR(addr, 0x4a, 0x55))
	bus.Fail = bustest.FailAt(3)
	_, err := d.PWM(D1)
	var be *BusError
	if !errors.As(err, &be) || be.D != D1 || be.Op != "read" {
		t.Errorf("returned %v", err)
	}
}
