// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is a goes machine with the LP55231 command and daemon, run as
// goes-lp55231 COMMAND [ARG]... or linked as the command name.
package main

import (
	"github.com/platinasystems/lp55231/cmd/lp55231"
	"github.com/platinasystems/lp55231/cmd/lp55231d"
	"github.com/platinasystems/lp55231/goes"
)

func main() {
	g := make(goes.ByName)
	g.Plot(lp55231.New(), lp55231d.New())
	g.Run()
}
