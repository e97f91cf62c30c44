// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

var (
	frameTestTimeout int
	frameTestPlain   bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid PLC frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
complete frame that passes the checksum and terminator checks. Bytes
before the first frame are skipped.

Use --plain to test the touch screen channel.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestPlain, "plain", false, "Expect frames without checksum (screen channel)")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()
	if err := conn.SetReadTimeout(100 * time.Millisecond); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("plcstrip - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := hplc.NewDecoder()
	if frameTestPlain {
		decoder = hplc.NewPlainDecoder()
	}
	buf := make([]byte, 128)
	deadline := time.Now().Add(time.Duration(frameTestTimeout) * time.Second)
	skipped := 0

	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		for i := 0; i < n; i++ {
			f := decoder.DecodeByte(buf[i])
			if f == nil {
				if decoder.State() == hplc.StateAwaitPreamble {
					skipped++
				}
				continue
			}
			if skipped > 0 {
				fmt.Printf("(skipped %d bytes before sync)\n", skipped)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Code: %s (0x%02X)\n", hplc.CodeName(f.ControlCode()), f.ControlCode())
			fmt.Printf("  Length: %d bytes\n", f.Length())
			if !f.Plain() {
				fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
			}
			os.Exit(0)
		}
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
	os.Exit(1)
	return nil
}
