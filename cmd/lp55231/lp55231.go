// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package lp55231 provides a command to drive an LP55231 LED controller.
package lp55231

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	chip "github.com/platinasystems/lp55231"
	"github.com/platinasystems/lp55231/cmd"
	"github.com/platinasystems/lp55231/internal/fdtgpio"
	"github.com/platinasystems/lp55231/internal/smbus"
	"github.com/platinasystems/lp55231/lang"
	"github.com/platinasystems/parms"
)

const Name = "lp55231"

var ErrUsage = errors.New("usage")

type Command struct {
	// Open the bus described by the command parameters.
	Open func(smbus.Config) (chip.Bus, error)
	// Find the named power pin.
	Find func(name string) (chip.Pin, error)

	Stdout io.Writer
}

func New() *Command { return new(Command) }

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [-bus N] [-addr 0x32..0x35] [-mux-bus N -mux-addr A" +
		" -mux-value V] [-pin NAME] [-v] VERB..."
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "drive an LP55231 LED controller",
	}
}

func (*Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Run each VERB in turn on one LP55231. Register verbs fail until
	the device is enabled, so most invocations begin with "enable".

VERBS
	enable		raise EN and turn the chip on
	disable		drop EN
	reset		restore register defaults; enable again after
	pwm D VALUE	set the channel's PWM duty cycle
	current D VALUE	set the channel's drive current (100uA steps)
	log D...	logarithmic PWM adjustment
	linear D...	linear PWM adjustment
	scale D...	print the PWM adjustment
	fader F D...	map channels to master fader F (0 for none)
	fade F VALUE	set master fader F (1, 2, or 3)
	on D...		turn outputs on
	off D...	turn outputs off

	D is d1 through d9, or "all".

OPTIONS
	-bus N		i2c adapter number (default 0)
	-addr A		slave address (default 0x32)
	-mux-bus N, -mux-addr A, -mux-value V
			select mux channel V before each transaction
	-pin NAME	gpio driving EN
	-v		log each SMBus transaction

EXAMPLES
	lp55231 -addr 0x34 enable log all pwm d1 0x80 pwm d2 0x40`,
	}
}

func (*Command) Kind() cmd.Kind { return cmd.DontFork }

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-v")
	parm, args := parms.New(args, "-bus", "-addr", "-mux-bus",
		"-mux-addr", "-mux-value", "-pin")
	if len(args) == 0 {
		return fmt.Errorf("%s: %w: %s", c, ErrUsage, c.Usage())
	}

	cfg, addr, err := Config(parm.ByName)
	if err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	cfg.Debug = flag.ByName["-v"]

	open := c.Open
	if open == nil {
		open = func(cfg smbus.Config) (chip.Bus, error) {
			return smbus.Open(cfg)
		}
	}
	bus, err := open(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}

	var pin chip.Pin
	if name := parm.ByName["-pin"]; name != "" {
		find := c.Find
		if find == nil {
			find = func(name string) (chip.Pin, error) {
				return fdtgpio.Find(name)
			}
		}
		if pin, err = find(name); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
	}

	w := c.Stdout
	if w == nil {
		w = os.Stdout
	}
	return c.run(w, chip.New(bus, pin, addr), args)
}

// Config of the bus and slave address from command parameters.
func Config(byName map[string]string) (smbus.Config, chip.Addr, error) {
	var cfg smbus.Config
	addr := chip.Addr32
	for _, x := range []struct {
		name string
		p    *int
	}{
		{"-bus", &cfg.Bus},
		{"-mux-bus", &cfg.MuxBus},
		{"-mux-addr", &cfg.MuxAddr},
		{"-mux-value", &cfg.MuxValue},
	} {
		s := byName[x.name]
		if s == "" {
			continue
		}
		i, err := strconv.ParseInt(s, 0, 0)
		if err != nil {
			return cfg, addr, fmt.Errorf("%s: %w", x.name, err)
		}
		*x.p = int(i)
	}
	if s := byName["-addr"]; s != "" {
		a, err := chip.ParseAddr(s)
		if err != nil {
			return cfg, addr, err
		}
		addr = a
	}
	return cfg, addr, nil
}

func (c *Command) run(w io.Writer, dev *chip.Device, args []string) error {
	for len(args) > 0 {
		verb := args[0]
		args = args[1:]
		err := c.verb(w, dev, verb, &args)
		if err != nil {
			log.Print("daemon", "err", dev, ": ", verb, ": ", err)
			return fmt.Errorf("%s: %s: %w", c, verb, err)
		}
	}
	return nil
}

func (c *Command) verb(w io.Writer, dev *chip.Device, verb string, args *[]string) error {
	switch verb {
	case "enable":
		return dev.Enable()
	case "disable":
		dev.Disable()
		return nil
	case "reset":
		return dev.Reset()
	case "pwm", "current":
		ds, err := channels(args)
		if err != nil {
			return err
		}
		v, err := value(args)
		if err != nil {
			return err
		}
		for _, d := range ds {
			if verb == "pwm" {
				err = dev.SetPWM(d, v)
			} else {
				err = dev.SetCurrent(d, v)
			}
			if err != nil {
				return err
			}
		}
		return nil
	case "log", "linear":
		ds, err := channels(args)
		if err != nil {
			return err
		}
		mode, _ := chip.ParseScaleMode(verb)
		return dev.SetScaleMode(ds, mode)
	case "scale":
		ds, err := channels(args)
		if err != nil {
			return err
		}
		for _, d := range ds {
			mode, err := dev.ScaleMode(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%v: %v\n", d, mode)
		}
		return nil
	case "fader":
		v, err := value(args)
		if err != nil {
			return err
		}
		ds, err := channels(args)
		if err != nil {
			return err
		}
		return dev.SetFader(ds, chip.Fader(v))
	case "fade":
		f, err := value(args)
		if err != nil {
			return err
		}
		v, err := value(args)
		if err != nil {
			return err
		}
		return dev.SetMasterFade(chip.Fader(f), v)
	case "on", "off":
		ds, err := channels(args)
		if err != nil {
			return err
		}
		return dev.SetOutput(ds, verb == "on")
	}
	return fmt.Errorf("%w verb", ErrUsage)
}

// channels consumes leading channel names from args.
func channels(args *[]string) ([]chip.D, error) {
	var ds []chip.D
	for len(*args) > 0 {
		s := strings.ToLower((*args)[0])
		if s == "all" {
			ds = append(ds, chip.Ds...)
		} else if !strings.HasPrefix(s, "d") {
			break
		} else if d, err := chip.ParseD(s); err == nil {
			ds = append(ds, d)
		} else {
			break
		}
		*args = (*args)[1:]
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("%w: missing channel", ErrUsage)
	}
	return ds, nil
}

// value consumes an 8-bit value from args.
func value(args *[]string) (uint8, error) {
	if len(*args) == 0 {
		return 0, fmt.Errorf("%w: missing value", ErrUsage)
	}
	s := (*args)[0]
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	*args = (*args)[1:]
	return uint8(v), nil
}
