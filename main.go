// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/lanreach/lanreach/command"
	"github.com/lanreach/lanreach/version"
	"github.com/mitchellh/cli"
)

func main() {

	versionString := fmt.Sprintf("lanreach %s", version.GetHumanVersion())
	c := cli.NewCLI("lanreach", versionString)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &command.AgentCommand{}, nil
		},
		"controller": func() (cli.Command, error) {
			return &command.ControllerCommand{}, nil
		},
		"version": func() (cli.Command, error) {
			return &command.VersionCommand{Version: versionString}, nil
		},
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %v\n", err)
	}
	os.Exit(exitCode)
}
