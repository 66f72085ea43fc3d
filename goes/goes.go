// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package goes runs the plotted command named by the program or its first
// argument.
package goes

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/lp55231/cmd"
	"github.com/platinasystems/lp55231/lang"
)

var (
	Exit = os.Exit

	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	// Notify subscribes the daemon's signal channel.
	Notify = func(ch chan<- os.Signal) {
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	}
)

type ByName map[string]cmd.Cmd

type manner interface {
	Man() lang.Alt
}

// Plot commands on map.
func (byName ByName) Plot(cmds ...cmd.Cmd) {
	for _, v := range cmds {
		name := v.String()
		if _, found := byName[name]; found {
			panic(fmt.Errorf("%s: duplicate", name))
		}
		byName[name] = v
	}
}

func (byName ByName) Keys() []string {
	keys := make([]string, 0, len(byName))
	for k := range byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Main runs the args[0] command, or if that's the program, the args[1]
// command. With "-apropos", "-man", or "-usage", this prints that text
// instead.
//
// A daemon runs until it returns or is sent SIGTERM or SIGINT, which
// calls its Close method.
func (byName ByName) Main(args ...string) (err error) {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}
	if _, found := byName[filepath.Base(args[0])]; !found {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(Stdout, strings.Join(byName.Keys(), "\n"))
		return nil
	}
	name := filepath.Base(args[0])
	args = args[1:]
	v, found := byName[name]
	if !found {
		return fmt.Errorf("%s: command not found", name)
	}
	flag, args := flags.New(args,
		[]string{"-apropos", "--apropos"},
		[]string{"-man", "--man"},
		[]string{"-usage", "--usage"})
	switch {
	case flag.ByName["-apropos"]:
		fmt.Fprintln(Stdout, v.Apropos())
		return nil
	case flag.ByName["-man"]:
		fmt.Fprintln(Stdout, "usage:", v.Usage())
		if m, found := v.(manner); found {
			fmt.Fprintln(Stdout, m.Man())
		}
		return nil
	case flag.ByName["-usage"]:
		fmt.Fprintln(Stdout, "usage:", v.Usage())
		return nil
	}
	if !cmd.WhatKind(v).IsDaemon() {
		return v.Main(args...)
	}
	defer func() {
		if err != nil {
			log.Print("daemon", "err", name, ": ", err)
		}
	}()
	if closer, found := v.(io.Closer); found {
		sigch := make(chan os.Signal, 1)
		Notify(sigch)
		defer signal.Stop(sigch)
		done := make(chan struct{})
		defer close(done)
		go wait(closer, sigch, done)
	}
	return v.Main(args...)
}

func wait(closer io.Closer, sigch <-chan os.Signal, done <-chan struct{}) {
	select {
	case <-sigch:
		closer.Close()
	case <-done:
	}
}

// Run is the program entry; it exits non-zero on error.
func (byName ByName) Run() {
	if err := byName.Main(os.Args...); err != nil {
		fmt.Fprintf(Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
		Exit(1)
	}
}
