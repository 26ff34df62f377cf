// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rfdlink - RFD900 payload ground station
//
// A CLI tool for requesting images, settings and GPS fixes from a camera
// payload over a half-duplex serial radio link.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/rfdlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
