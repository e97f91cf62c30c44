// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// plcstrip - PLC Smart Power Strip Node
//
// Runs station and coordinator nodes of a power line connected smart power
// strip network and provides tools to inspect the network.

package main

import (
	"os"

	"github.com/Thermoquad/plcstrip/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
