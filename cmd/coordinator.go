// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/coordinator"
	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the network coordinator",
	Long: `Run the coordinator node.

The coordinator periodically discovers the stations on the power line,
registers new ones and checks each with a heartbeat. Touch screen events
(open a strip, rename it, switch an output, change a limit) are relayed to
the stations as reliable commands; readings and trip notifications pushed
by the stations are shown on the screen.

Required settings:
  node.address   this coordinator's PLC address
  screen.port    serial port of the touch screen (optional)

Without a screen port the coordinator runs headless and only keeps the
strip registry in store.path up to date.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlag(cmd, "node.address", "address")
		bindFlag(cmd, "screen.port", "screen")
		bindFlag(cmd, "monitor.interval", "interval")
	},
	RunE: runCoordinator,
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)
	coordinatorCmd.Flags().String("address", "", "Coordinator address (12 hex digits)")
	coordinatorCmd.Flags().String("screen", "", "Touch screen serial port")
	coordinatorCmd.Flags().Duration("interval", coordinator.DefaultInterval, "Discovery and heartbeat period")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	rt, err := openNode("coordinator")
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	reg, err := registry.Open(rt.store.Namespace(registry.Namespace), rt.log.Named("registry"))
	if err != nil {
		return err
	}
	rt.log.Info("registry loaded", zap.Int("strips", reg.Len()))

	var screen *display.Screen
	if cfg.Screen.Port != "" {
		screenConn, err := OpenSerialConnection(cfg.Screen.Port, cfg.Screen.Baud, cfg.Screen.Parity)
		if err != nil {
			return err
		}
		defer screenConn.Close()
		opts := rt.link.Options()
		screen = display.NewScreen(screenConn, display.NewTJC(screenConn),
			opts.PollInterval, opts.LockWait, rt.log.Named("screen"))
	} else {
		rt.log.Warn("no screen port configured, running headless")
	}

	peer := cfg.Peer()
	if peer.IsZero() {
		peer = cfg.Address()
	}
	node := coordinator.New(coordinator.Config{
		Address:  cfg.Address(),
		Peer:     peer,
		Interval: cfg.Monitor.Interval,
	}, rt.link, screen, nil, reg, bl0906.NewConverter(cfg.Meter.Calibration), rt.log)
	if rt.metrics != nil {
		node.SetObserver(rt.metrics)
	}

	return rt.run(func(ctx context.Context) error {
		return node.Run(ctx)
	})
}
