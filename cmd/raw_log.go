// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

var (
	rawPlain bool
	rawBytes bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display PLC frames as they arrive.

Each frame is shown with timestamp, control code, length and data. Frames
failing the checksum or terminator check are counted and reported.

Use --plain for the touch screen channel, whose frames carry no checksum.
Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawPlain, "plain", false, "Decode frames without checksum (screen channel)")
	rawLogCmd.Flags().BoolVar(&rawBytes, "bytes", false, "Also print the raw wire bytes of each frame")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetReadTimeout(100 * time.Millisecond); err != nil {
		return err
	}

	fmt.Printf("plcstrip - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := hplc.NewDecoder()
	if rawPlain {
		decoder = hplc.NewPlainDecoder()
	}
	buf := make([]byte, 128)
	var last hplc.DecoderStats

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for _, f := range decoder.Decode(buf[:n]) {
			fmt.Print(hplc.FormatFrame(f))
			if rawBytes {
				fmt.Printf("  %s\n", hplc.FormatRaw(f.Raw()))
			}
		}

		stats := decoder.Stats()
		if stats.ChecksumErrors != last.ChecksumErrors {
			fmt.Printf("[ERROR] checksum mismatch (%d total)\n", stats.ChecksumErrors)
		}
		if stats.FramingErrors != last.FramingErrors {
			fmt.Printf("[ERROR] missing terminator (%d total)\n", stats.FramingErrors)
		}
		last = stats
	}
}
