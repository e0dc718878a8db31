// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/maruel/subcommands"
)

const versionNumber = "1.0.0"

var cmdVersion = &subcommands.Command{
	UsageLine: "version",
	ShortDesc: "print poolbench version",
	LongDesc:  `Print poolbench version.`,
	CommandRun: func() subcommands.CommandRun {
		return &versionCmd{}
	},
}

type versionCmd struct {
	subcommands.CommandRunBase
}

func (c *versionCmd) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	fmt.Fprintf(a.GetOut(), "poolbench %s\n", versionNumber)
	return 0
}
