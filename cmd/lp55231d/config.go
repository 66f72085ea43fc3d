// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lp55231d

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	chip "github.com/platinasystems/lp55231"
	"github.com/platinasystems/lp55231/internal/smbus"
	"gopkg.in/yaml.v3"
)

var ConfigFile = "/etc/goes/lp55231d.yaml"

// Config of the board's LP55231. For example,
//
//	bus: 1
//	mux-bus: 0
//	mux-addr: 0x76
//	mux-value: 0x04
//	addr: 0x33
//	pin: LED_EN
//	poll: 5s
//	retry:
//	  min: 10ms
//	  max: 1s
//	  attempts: 8
//	init:
//	  lp55231.d1.current: 0x60
//	  lp55231.d1.pwm: 0xff
type Config struct {
	smbus.Config `yaml:",inline"`

	Addr  string        `yaml:"addr"`
	Pin   string        `yaml:"pin"`
	Poll  time.Duration `yaml:"poll"`
	Retry Retry         `yaml:"retry"`

	// Init has fields, as accepted by Hset, written after the chip is
	// enabled.
	Init map[string]string `yaml:"init"`
}

// Retry bounds the enable attempts.
type Retry struct {
	Min      time.Duration `yaml:"min"`
	Max      time.Duration `yaml:"max"`
	Attempts int           `yaml:"attempts"`
}

func DefaultConfig() Config {
	return Config{
		Addr: chip.Addr32.String(),
		Poll: 5 * time.Second,
		Retry: Retry{
			Min:      10 * time.Millisecond,
			Max:      time.Second,
			Attempts: 8,
		},
	}
}

// LoadConfig reads the YAML file over the defaults. A missing default
// ConfigFile isn't an error.
func LoadConfig(fn string) (Config, error) {
	cfg := DefaultConfig()
	explicit := fn != ""
	if !explicit {
		fn = ConfigFile
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err = ParseConfig(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", fn, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates YAML into cfg.
func ParseConfig(b []byte, cfg *Config) error {
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return err
	}
	if _, err := chip.ParseAddr(cfg.Addr); err != nil {
		return err
	}
	if cfg.Poll <= 0 {
		return fmt.Errorf("poll %v: %w", cfg.Poll, chip.ErrInvalid)
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}
	return nil
}
