// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package smbus provides an lp55231.Bus on a linux i2c-dev adapter,
// optionally behind a mux.
package smbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/platinasystems/i2c"
	"github.com/platinasystems/log"
)

var ErrUnsupported = errors.New("unsupported transfer")

// Config of the adapter. With a non-zero MuxAddr, MuxValue is written to
// the mux on MuxBus before every transaction.
type Config struct {
	Bus      int  `yaml:"bus"`
	MuxBus   int  `yaml:"mux-bus"`
	MuxAddr  int  `yaml:"mux-addr"`
	MuxValue int  `yaml:"mux-value"`
	Debug    bool `yaml:"debug"`
}

type Bus struct {
	Config
	mutex sync.Mutex
}

// Open checks that the adapter (and the mux adapter, if any) exists.
func Open(cfg Config) (*Bus, error) {
	buses := []int{cfg.Bus}
	if cfg.MuxAddr != 0 {
		buses = append(buses, cfg.MuxBus)
	}
	for _, n := range buses {
		var bus i2c.Bus
		if err := bus.Open(n); err != nil {
			return nil, fmt.Errorf("i2c-%d: %w", n, err)
		}
		bus.Close()
	}
	return &Bus{Config: cfg}, nil
}

// An Op is one SMBus command.
type Op struct {
	RW   i2c.RW
	Cmd  uint8
	Size i2c.SMBusSize
	// Data holds the bytes written, or the number of bytes to read.
	Data []byte
}

// WriteOp maps an i2c write to an SMBus command.
func WriteOp(b []byte) (Op, error) {
	switch len(b) {
	case 1:
		return Op{i2c.Write, b[0], i2c.Byte, nil}, nil
	case 2:
		return Op{i2c.Write, b[0], i2c.ByteData, b[1:]}, nil
	case 3:
		return Op{i2c.Write, b[0], i2c.WordData, b[1:]}, nil
	}
	return Op{}, fmt.Errorf("write %d bytes: %w", len(b), ErrUnsupported)
}

// ReadOp maps an i2c write of a register offset, then read of n bytes,
// to an SMBus command.
func ReadOp(w []byte, n int) (Op, error) {
	if len(w) == 1 {
		switch n {
		case 1:
			return Op{i2c.Read, w[0], i2c.ByteData, make([]byte, 1)}, nil
		case 2:
			return Op{i2c.Read, w[0], i2c.WordData, make([]byte, 2)}, nil
		}
	}
	return Op{}, fmt.Errorf("write %d read %d bytes: %w",
		len(w), n, ErrUnsupported)
}

func (p *Bus) Write(addr uint8, b []byte) error {
	op, err := WriteOp(b)
	if err != nil {
		return err
	}
	return p.do(addr, op)
}

func (p *Bus) WriteRead(addr uint8, w, r []byte) error {
	op, err := ReadOp(w, len(r))
	if err != nil {
		return err
	}
	if err = p.do(addr, op); err != nil {
		return err
	}
	copy(r, op.Data)
	return nil
}

func (p *Bus) do(addr uint8, op Op) error {
	var data i2c.SMBusData

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.MuxAddr != 0 {
		data[0] = byte(p.MuxValue)
		err := i2cDo(p.MuxBus, p.MuxAddr, i2c.Write, 0, i2c.ByteData,
			&data)
		if err != nil {
			return fmt.Errorf("mux 0x%02x: %w", p.MuxAddr, err)
		}
	}
	if op.RW == i2c.Write {
		copy(data[:], op.Data)
	}
	err := i2cDo(p.Bus, int(addr), op.RW, op.Cmd, op.Size, &data)
	if p.Debug {
		log.Printf("debug", "i2c-%d.%02x.%02x rw %d size %d data % x: %v",
			p.Bus, addr, op.Cmd, op.RW, op.Size, data[:len(op.Data)], err)
	}
	if err != nil {
		return err
	}
	if op.RW == i2c.Read {
		copy(op.Data, data[:])
	}
	return nil
}

func i2cDo(n, addr int, rw i2c.RW, cmd uint8, size i2c.SMBusSize, data *i2c.SMBusData) (err error) {
	var bus i2c.Bus

	err = bus.Open(n)
	if err != nil {
		return
	}
	defer bus.Close()

	err = bus.ForceSlaveAddress(addr)
	if err != nil {
		return
	}

	err = bus.Do(rw, cmd, size, data)
	return
}
