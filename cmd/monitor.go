// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

var monitorAck bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive network monitor",
	Long: `Watch and drive the stations on the network from a terminal UI.

The monitor discovers the stations, shows the readings and trip
notifications they push, and link statistics (frames, checksum errors,
acknowledgments). A selected station can be pinged, have its outputs
switched and limits changed, and have reading push turned on or off.

Trip notifications are acknowledged unless --ack=false, so the monitor can
stand in for a coordinator. Do not acknowledge while a coordinator runs.

Keys:
  d      discover        p   ping selected station
  1-3    toggle output   l   set a limit (output:watts)
  r / s  push on / off   q   quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorAck, "ack", true, "Acknowledge heartbeats and trip notifications")
}

// monitorHandler forwards frames to the TUI
type monitorHandler struct {
	program *tea.Program
	self    hplc.Address
}

func (h *monitorHandler) HandleFrame(s *link.Session, f *hplc.Frame) {
	if monitorAck {
		var err error
		switch f.ControlCode() {
		case hplc.CodeTrip:
			if station, _, perr := hplc.ParseTrip(f); perr == nil {
				err = s.Send(station, hplc.CodeTripAck, nil)
			}
		case hplc.CodeHeartbeat:
			err = s.Send(h.self, hplc.CodeHeartbeatAck, nil)
		}
		if err != nil {
			h.program.Send(ackFailedMsg{err: err})
		}
	}
	h.program.Send(frameMsg{frame: f})
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	// The TUI owns the terminal
	l := link.New(conn, cfg.PLC.Options, zap.NewNop())
	model := initialMonitorModel(l, bl0906.NewConverter(cfg.Meter.Calibration), connInfo)
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- l.Serve(ctx, &monitorHandler{program: p, self: cfg.Address()})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	cancel()
	if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
