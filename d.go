// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lp55231

import (
	"fmt"
	"strconv"
	"strings"
)

// D is one of the nine LED outputs, D1 through D9. The zero value is not a
// channel.
type D uint8

const (
	D1 D = iota + 1
	D2
	D3
	D4
	D5
	D6
	D7
	D8
	D9
)

// All channels, D1 through D9.
var Ds = []D{D1, D2, D3, D4, D5, D6, D7, D8, D9}

func (d D) Valid() bool { return d >= D1 && d <= D9 }

// index is the offset from each per-channel register base.
func (d D) index() uint8 { return uint8(d - D1) }

func (d D) String() string {
	if !d.Valid() {
		return fmt.Sprintf("D(%d)", uint8(d))
	}
	return "d" + strconv.Itoa(int(d))
}

// ParseD accepts "d1" through "d9", case insensitive, or just the digit.
func ParseD(s string) (D, error) {
	t := strings.TrimPrefix(strings.ToLower(s), "d")
	if n, err := strconv.Atoi(t); err == nil && n >= 1 && n <= 9 {
		return D(n), nil
	}
	return 0, fmt.Errorf("%s: %w channel", s, ErrInvalid)
}

// ScaleMode is the PWM brightness adjustment of a channel. Logarithmic
// adjustment looks linear to the eye and runs the channel's PWM with
// 12-bit resolution.
type ScaleMode uint8

const (
	Linear ScaleMode = iota
	Logarithmic
)

func (m ScaleMode) String() string {
	if m == Logarithmic {
		return "log"
	}
	return "linear"
}

func ParseScaleMode(s string) (ScaleMode, error) {
	switch strings.ToLower(s) {
	case "linear", "lin":
		return Linear, nil
	case "log", "logarithmic":
		return Logarithmic, nil
	}
	return Linear, fmt.Errorf("%s: %w scale mode", s, ErrInvalid)
}

// Fader is the master fader that dims a channel with a single write.
type Fader uint8

const (
	NoFader Fader = iota
	Fader1
	Fader2
	Fader3
)

func (f Fader) String() string {
	if f == NoFader {
		return "none"
	}
	return "fader" + strconv.Itoa(int(f))
}
