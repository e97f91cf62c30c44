// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/outputs"
	"github.com/Thermoquad/plcstrip/pkg/station"
)

var stationCmd = &cobra.Command{
	Use:   "station",
	Short: "Run a power strip station",
	Long: `Run the station node of a power strip.

The station answers coordinator commands received over the PLC modem
(heartbeat, set output, set max power, push switch) and runs the
overcurrent control loop: every monitor interval each enabled output with
a power limit is measured through the BL0906 metering IC and switched off
when the limit is exceeded. The coordinator is told about every trip.

Required settings:
  node.address   this station's PLC address
  node.peer      the coordinator's PLC address
  meter.port     serial port of the metering IC

Output states and limits are kept in store.path across restarts.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlag(cmd, "node.address", "address")
		bindFlag(cmd, "node.peer", "coordinator")
		bindFlag(cmd, "meter.port", "meter")
		bindFlag(cmd, "telemetry.push", "push")
	},
	RunE: runStation,
}

func init() {
	rootCmd.AddCommand(stationCmd)
	stationCmd.Flags().String("address", "", "Station address (12 hex digits)")
	stationCmd.Flags().String("coordinator", "", "Coordinator address (12 hex digits)")
	stationCmd.Flags().String("meter", "", "Metering IC serial port")
	stationCmd.Flags().Bool("push", false, "Push readings to the coordinator from start")
}

// relayLog stands in for the relay drivers of the strip hardware
type relayLog struct {
	log *zap.Logger
}

func (r relayLog) SetRelay(index int, on bool) error {
	r.log.Info("relay switched", zap.Int("output", index), zap.Bool("on", on))
	return nil
}

func runStation(cmd *cobra.Command, args []string) error {
	rt, err := openNode("station")
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg
	if cfg.Peer().IsZero() {
		return fmt.Errorf("node.peer (coordinator address) is required")
	}
	if cfg.Meter.Port == "" {
		return fmt.Errorf("meter.port is required")
	}

	meterConn, err := OpenSerialConnection(cfg.Meter.Port, cfg.Meter.Baud, cfg.Meter.Parity)
	if err != nil {
		return err
	}
	defer meterConn.Close()

	meter := bl0906.NewClient(meterConn, cfg.Meter.ReadTimeout, rt.log.Named("bl0906"))
	if err := meter.Init(); err != nil {
		return fmt.Errorf("meter init: %w", err)
	}

	bank, err := outputs.Open(rt.store.Namespace(outputs.Namespace), relayLog{rt.log.Named("relay")}, rt.log)
	if err != nil {
		return err
	}

	node := station.New(station.Config{
		Address:     cfg.Address(),
		Coordinator: cfg.Peer(),
		Interval:    cfg.Monitor.Interval,
		Push:        cfg.Telemetry.Push,
		PushRate:    cfg.PushRate(),
	}, rt.link, bank, meter, bl0906.NewConverter(cfg.Meter.Calibration), rt.log)
	if rt.metrics != nil {
		node.SetObserver(rt.metrics)
	}

	for _, o := range bank.All() {
		rt.log.Info("output restored",
			zap.Int("output", o.Index),
			zap.Bool("enabled", o.Enabled),
			zap.Uint16("max_power", o.MaxPower))
	}

	return rt.run(func(ctx context.Context) error {
		return node.Run(ctx)
	})
}
