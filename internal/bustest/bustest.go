// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package bustest provides a register file that records I2C transactions
// and a digital output that records its levels.
package bustest

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNak = errors.New("nak")

// Tx is one recorded transaction. R is nil for a write.
type Tx struct {
	Addr   uint8
	W, R   []byte
	Failed bool
}

func (tx Tx) String() string {
	s := fmt.Sprintf("%02x: w % x", tx.Addr, tx.W)
	if tx.R != nil {
		s += fmt.Sprintf(" r % x", tx.R)
	}
	if tx.Failed {
		s += " failed"
	}
	return s
}

// W is a write transaction record.
func W(addr uint8, b ...byte) Tx { return Tx{Addr: addr, W: b} }

// WR is a write then read transaction record.
func WR(addr, reg uint8, r ...byte) Tx {
	return Tx{Addr: addr, W: []byte{reg}, R: r}
}

// Bus is a fake bus with one register file for every address. Writes of
// more than two bytes store successive registers.
type Bus struct {
	Regs [256]byte
	Txs  []Tx
	// Fail returns the error for the nth (from zero) transaction, if any.
	Fail func(n int, tx Tx) error
}

// FailAt fails the nth transaction with ErrNak.
func FailAt(n int) func(int, Tx) error {
	return func(i int, _ Tx) error {
		if i == n {
			return ErrNak
		}
		return nil
	}
}

func (b *Bus) Write(addr uint8, w []byte) error {
	tx := Tx{Addr: addr, W: append([]byte{}, w...)}
	if err := b.do(&tx); err != nil {
		return err
	}
	if len(w) > 1 {
		for i, v := range w[1:] {
			b.Regs[(int(w[0])+i)&0xff] = v
		}
	}
	return nil
}

func (b *Bus) WriteRead(addr uint8, w, r []byte) error {
	tx := Tx{Addr: addr, W: append([]byte{}, w...), R: make([]byte, len(r))}
	if len(w) > 0 {
		for i := range r {
			r[i] = b.Regs[(int(w[0])+i)&0xff]
		}
	}
	copy(tx.R, r)
	return b.do(&tx)
}

func (b *Bus) do(tx *Tx) error {
	var err error
	if b.Fail != nil {
		err = b.Fail(len(b.Txs), *tx)
	}
	tx.Failed = err != nil
	b.Txs = append(b.Txs, *tx)
	return err
}

// Reset forgets recorded transactions.
func (b *Bus) Reset() { b.Txs = b.Txs[:0] }

func (b *Bus) String() string {
	var sb strings.Builder
	for _, tx := range b.Txs {
		fmt.Fprintln(&sb, tx)
	}
	return sb.String()
}

// Pin records every level driven.
type Pin struct {
	Levels []bool
}

func (p *Pin) High() { p.Levels = append(p.Levels, true) }
func (p *Pin) Low()  { p.Levels = append(p.Levels, false) }

// Level is the last level driven, false if never driven.
func (p *Pin) Level() bool {
	if len(p.Levels) == 0 {
		return false
	}
	return p.Levels[len(p.Levels)-1]
}
