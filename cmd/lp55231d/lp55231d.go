// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package lp55231d publishes the LP55231 channel settings to redis and
// applies those set by redis hset.
package lp55231d

import (
	"errors"
	"fmt"
	"net/rpc"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	chip "github.com/platinasystems/lp55231"
	"github.com/platinasystems/lp55231/cmd"
	"github.com/platinasystems/lp55231/internal/fdtgpio"
	"github.com/platinasystems/lp55231/internal/smbus"
	"github.com/platinasystems/lp55231/lang"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
)

const (
	Name   = "lp55231d"
	Prefix = "lp55231."
)

var ErrUnknownField = errors.New("unknown field")

type Command struct {
	Info

	// Open returns the transport, smbus.Open by default.
	Open func(smbus.Config) (chip.Bus, error)
	// Find returns the named EN pin, fdtgpio.Find by default.
	Find func(string) (chip.Pin, error)
}

type Info struct {
	mutex sync.Mutex
	dev   *chip.Device
	rpc   *atsock.RpcServer
	pub   *publisher.Publisher
	stop  chan struct{}
	lasts map[string]string

	// master fader levels, as last set
	fade [3]string
}

func New() *Command { return new(Command) }

func (*Command) String() string { return Name }

func (*Command) Usage() string { return Name + " [-debug] [-config FILE]" }

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "LP55231 LED controller daemon",
	}
}

func (*Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Enable the LP55231 described by the YAML configuration file
	(default ` + ConfigFile + `), then publish its state and channel
	settings to redis every poll interval.

	These may be changed with hset:
		lp55231.state		enable | disable | reset
		lp55231.dN.pwm		0..255
		lp55231.dN.current	0..255 (100µA steps)
		lp55231.dN.scale	linear | log
		lp55231.dN.fader	0..3
		lp55231.dN.output	on | off
		lp55231.faderN		0..255

OPTIONS
	-debug	log every bus transaction
	-config FILE`,
	}
}

func (*Command) Kind() cmd.Kind { return cmd.Daemon }

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-debug")
	parm, args := parms.New(args, "-config")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}

	cfg, err := LoadConfig(parm.ByName["-config"])
	if err != nil {
		return err
	}
	if flag.ByName["-debug"] {
		cfg.Debug = true
	}

	if err = redis.IsReady(); err != nil {
		return err
	}

	c.stop = make(chan struct{})
	c.lasts = make(map[string]string)

	if err = c.open(cfg); err != nil {
		return err
	}
	if err = c.enable(cfg.Retry); err != nil {
		return err
	}
	c.init(cfg.Init)

	if c.pub, err = publisher.New(); err != nil {
		return err
	}
	defer c.pub.Close()

	if c.rpc, err = atsock.NewRpcServer(Name); err != nil {
		return err
	}
	defer c.rpc.Close()

	rpc.Register(&c.Info)
	err = redis.Assign(redis.DefaultHash+":"+Prefix, Name, "Info")
	if err != nil {
		return err
	}

	t := time.NewTicker(cfg.Poll)
	defer t.Stop()
	c.update()
	for {
		select {
		case <-c.stop:
			c.mutex.Lock()
			c.dev.Disable()
			c.mutex.Unlock()
			return nil
		case <-t.C:
			c.update()
		}
	}
}

func (c *Command) Close() error {
	if c.stop != nil {
		close(c.stop)
	}
	return nil
}

func (c *Command) open(cfg Config) error {
	addr, err := chip.ParseAddr(cfg.Addr)
	if err != nil {
		return err
	}
	open := c.Open
	if open == nil {
		open = func(cfg smbus.Config) (chip.Bus, error) {
			return smbus.Open(cfg)
		}
	}
	bus, err := open(cfg.Config)
	if err != nil {
		return err
	}
	var pin chip.Pin
	if cfg.Pin != "" {
		find := c.Find
		if find == nil {
			find = func(name string) (chip.Pin, error) {
				return fdtgpio.Find(name)
			}
		}
		if pin, err = find(cfg.Pin); err != nil {
			return err
		}
	}
	c.dev = chip.New(bus, pin, addr)
	return nil
}

// enable repeats Enable, with growing delays between attempts, until it
// succeeds, the retry attempts are exhausted, or the daemon is closed.
func (c *Command) enable(r Retry) error {
	b := &backoff.Backoff{
		Min:    r.Min,
		Max:    r.Max,
		Factor: 2,
		Jitter: true,
	}
	for attempt := 1; ; attempt++ {
		c.mutex.Lock()
		err := c.dev.Enable()
		c.mutex.Unlock()
		if err == nil {
			return nil
		}
		if attempt >= r.Attempts {
			return fmt.Errorf("%v: enable: %w", c.dev, err)
		}
		d := b.Duration()
		log.Print("daemon", "warning", c.dev, ": enable: ", err,
			"; retry in ", d)
		select {
		case <-c.stop:
			return fmt.Errorf("%v: enable: %w", c.dev, err)
		case <-time.After(d):
		}
	}
}

func (i *Info) init(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for _, k := range keys {
		if err := i.set(k, fields[k]); err != nil {
			log.Print("daemon", "err", k, ": ", err)
		}
	}
}

func (i *Info) update() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for _, kv := range i.changes() {
		i.pub.Print(kv[0], ": ", kv[1])
	}
}

// changes returns the key, value pairs that differ from those last
// returned. Channel settings aren't read unless the device is enabled.
func (i *Info) changes() (kvs [][2]string) {
	vals := i.values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := vals[k]; i.lasts[k] != v {
			i.lasts[k] = v
			kvs = append(kvs, [2]string{k, v})
		}
	}
	return
}

func (i *Info) values() map[string]string {
	vals := map[string]string{
		Prefix + "state": i.dev.State().String(),
	}
	for n, v := range i.fade {
		if v != "" {
			vals[fmt.Sprint(Prefix, "fader", n+1)] = v
		}
	}
	if i.dev.State() != chip.Enabled {
		return vals
	}
	for _, d := range chip.Ds {
		k := Prefix + d.String() + "."
		if v, err := i.dev.PWM(d); err == nil {
			vals[k+"pwm"] = strconv.Itoa(int(v))
		} else {
			log.Print("daemon", "err", err)
		}
		if v, err := i.dev.Current(d); err == nil {
			vals[k+"current"] = strconv.Itoa(int(v))
		}
		if v, err := i.dev.ScaleMode(d); err == nil {
			vals[k+"scale"] = v.String()
		}
		if v, err := i.dev.Fader(d); err == nil {
			vals[k+"fader"] = strconv.Itoa(int(v))
		}
		if v, err := i.dev.Output(d); err == nil {
			vals[k+"output"] = onOff(v)
		}
	}
	return vals
}

func (i *Info) Hset(args args.Hset, reply *reply.Hset) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	v := strings.TrimRight(string(args.Value), "\n")
	err := i.set(args.Field, v)
	if err == nil {
		*reply = 1
	}
	return err
}

func (i *Info) set(field, v string) error {
	name := strings.TrimPrefix(field, Prefix)
	if name == field {
		return fmt.Errorf("%s: %w", field, ErrUnknownField)
	}
	if name == "state" {
		switch v {
		case "enable":
			return i.dev.Enable()
		case "disable":
			i.dev.Disable()
			return nil
		case "reset":
			return i.dev.Reset()
		}
		return fmt.Errorf("%s: %q: %w", field, v, chip.ErrInvalid)
	}
	if strings.HasPrefix(name, "fader") {
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "fader"),
			10, 8)
		if err != nil || n < 1 || n > 3 {
			return fmt.Errorf("%s: %w", field, ErrUnknownField)
		}
		u, err := parseUint8(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if err = i.dev.SetMasterFade(chip.Fader(n), u); err != nil {
			return err
		}
		i.fade[n-1] = strconv.Itoa(int(u))
		return nil
	}
	dn, attr, ok := strings.Cut(name, ".")
	if !ok {
		return fmt.Errorf("%s: %w", field, ErrUnknownField)
	}
	d, err := chip.ParseD(dn)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	switch attr {
	case "pwm", "current":
		u, err := parseUint8(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if attr == "pwm" {
			return i.dev.SetPWM(d, u)
		}
		return i.dev.SetCurrent(d, u)
	case "scale":
		m, err := chip.ParseScaleMode(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		return i.dev.SetScaleMode([]chip.D{d}, m)
	case "fader":
		u, err := strconv.ParseUint(v, 0, 8)
		if err != nil || u > uint64(chip.Fader3) {
			return fmt.Errorf("%s: %q: %w", field, v, chip.ErrInvalid)
		}
		return i.dev.SetFader([]chip.D{d}, chip.Fader(u))
	case "output":
		switch v {
		case "on":
			return i.dev.SetOutput([]chip.D{d}, true)
		case "off":
			return i.dev.SetOutput([]chip.D{d}, false)
		}
		return fmt.Errorf("%s: %q: %w", field, v, chip.ErrInvalid)
	}
	return fmt.Errorf("%s: %w", field, ErrUnknownField)
}

func parseUint8(s string) (uint8, error) {
	u, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, chip.ErrInvalid)
	}
	return uint8(u), nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
