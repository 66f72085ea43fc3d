// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package fdtgpio names gpio pins from the device tree and drives them as
// lp55231.Pin outputs.
package fdtgpio

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"sync"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
	"github.com/platinasystems/log"
)

// File is the flattened device tree blob.
var File = "/boot/linux.dtb"

var (
	mutex   sync.Mutex
	aliases = make(map[string]string)
)

// Init fills gpio.Pins from the device tree blob, if not already done.
func Init(file string) error {
	mutex.Lock()
	defer mutex.Unlock()
	if len(gpio.Pins) > 0 {
		return nil
	}
	b, err := ioutil.ReadFile(file)
	if err != nil {
		return err
	}
	if gpio.Pins == nil {
		gpio.Pins = make(gpio.PinMap)
	}
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	t.Parse(b)
	t.MatchNode("aliases", gatherAliases)
	t.EachProperty("gpio-controller", "", gatherPins)
	return nil
}

// Map gpio controller node names to their alias, e.g. gpio0.
func gatherAliases(n *fdt.Node) {
	for p, pn := range n.Properties {
		if strings.Contains(p, "gpio") {
			val := strings.Split(string(pn), "\x00")
			v := strings.Split(val[0], "/")
			aliases[v[len(v)-1]] = p
		}
	}
}

// Add the described pins of a gpio controller.
func gatherPins(n *fdt.Node, name string, value string) {
	bank, found := aliases[n.Name]
	if !found {
		return
	}
	for _, c := range n.Children {
		var pn []string
		var mode string
		for p := range c.Properties {
			switch p {
			case "gpio-pin-desc":
				pn = strings.Split(c.Name, "@")
			case "output-high", "output-low", "input":
				mode = p
			}
		}
		if mode == "" || len(pn) != 2 {
			continue
		}
		if pin, err := pinOf(mode, bank, pn[1]); err == nil {
			gpio.Pins[pn[0]] = pin
		} else {
			log.Print("daemon", "warn", c.Name, ": ", err)
		}
	}
}

func pinOf(mode, bank, index string) (gpio.Pin, error) {
	i, err := strconv.Atoi(index)
	if err != nil {
		return 0, err
	}
	m, found := gpio.GpioPinMode[mode]
	if !found {
		return 0, fmt.Errorf("%s: unknown mode", mode)
	}
	base, found := gpio.GpioBankToBase[bank]
	if !found {
		return 0, fmt.Errorf("%s: unknown bank", bank)
	}
	return m | base | gpio.Pin(i), nil
}

// Pin is a named gpio output.
type Pin struct {
	Name string
	gpio.Pin
}

// Find returns the named output pin.
func Find(name string) (*Pin, error) {
	if err := Init(File); err != nil {
		return nil, err
	}
	pin, found := gpio.Pins[name]
	if !found {
		return nil, fmt.Errorf("%s: pin not found", name)
	}
	if err := pin.SetDirection(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Pin{name, pin}, nil
}

func (p *Pin) High() { p.set(true) }
func (p *Pin) Low()  { p.set(false) }

// Errors are only logged.
func (p *Pin) set(v bool) {
	if err := p.SetValue(v); err != nil {
		log.Print("daemon", "err", p.Name, ": ", err)
	}
}
