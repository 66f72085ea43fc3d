// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lp55231

// Every register access is a single transaction: a write sends
// [reg, value]; a read writes [reg] then reads one byte. There are no
// auto-increment bursts.

func (r *reg8) get(d *Device) (byte, error) {
	var b [1]byte
	if d.state != Enabled {
		return 0, ErrNotEnabled
	}
	err := d.bus.WriteRead(d.addr, []byte{r.offset()}, b[:])
	if err != nil {
		return 0, &BusError{Op: "read", Reg: r.offset(), Err: err}
	}
	return b[0], nil
}

func (r *reg8) set(d *Device, v uint8) error {
	if d.state != Enabled {
		return ErrNotEnabled
	}
	err := d.bus.Write(d.addr, []byte{r.offset(), v})
	if err != nil {
		return &BusError{Op: "write", Reg: r.offset(), Err: err}
	}
	return nil
}

// modify replaces field f with v, leaving the register's other bits as read.
func (r *reg8) modify(d *Device, f field, v uint8) error {
	b, err := r.get(d)
	if err != nil {
		return err
	}
	return r.set(d, f.put(b, v))
}
