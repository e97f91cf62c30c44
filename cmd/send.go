// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

var (
	sendTarget   string
	sendCode     string
	sendData     string
	sendReliable bool
	sendCount    int
	sendInterval int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a frame to a node",
	Long: `Encode a frame and transmit it to one node through the PLC modem.

Common control codes:
  66  heartbeat (acknowledged with 88)
  11  set output      data: <output><00|01>
  12  set max power   data: <output><lo><hi>
  13  push switch     data: <00|01>

With --reliable the frame is retried until its acknowledgment arrives or
the retry budget (plc.max_retries) runs out.

Examples:
  plcstrip send --port /dev/ttyUSB0 --target 0013D7632202 --code 66 --reliable
  plcstrip send --port /dev/ttyUSB0 --target 0013D7632202 --code 11 --data 0201 --reliable

Exit codes:
  0 - All frames sent (and acknowledged with --reliable)
  1 - At least one frame was not delivered
  2 - Connection or argument error`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendTarget, "target", "t", "", "Target node address (12 hex digits)")
	sendCmd.Flags().StringVar(&sendCode, "code", "66", "Control code (hex)")
	sendCmd.Flags().StringVar(&sendData, "data", "", "Frame data (hex)")
	sendCmd.Flags().BoolVarP(&sendReliable, "reliable", "r", false, "Wait for the acknowledgment and retry")
	sendCmd.Flags().IntVarP(&sendCount, "count", "n", 1, "Number of frames to send")
	sendCmd.Flags().IntVar(&sendInterval, "interval", 1000, "Interval between frames in milliseconds")
	_ = sendCmd.MarkFlagRequired("target")
}

// parseFrameArgs validates the target, code and data flags
func parseFrameArgs(target, code, data string) (hplc.Address, byte, []byte, error) {
	addr, err := hplc.ParseAddress(target)
	if err != nil {
		return addr, 0, nil, err
	}
	c, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(code), "0x"))
	if err != nil || len(c) != 1 {
		return addr, 0, nil, fmt.Errorf("invalid control code %q", code)
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(data, " ", ""))
	if err != nil {
		return addr, 0, nil, fmt.Errorf("invalid data: %w", err)
	}
	if len(payload) > hplc.MaxDataSize {
		return addr, 0, nil, hplc.ErrDataTooLong
	}
	return addr, c[0], payload, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	addr, code, data, err := parseFrameArgs(sendTarget, sendCode, sendData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Argument error: %v\n", err)
		os.Exit(2)
	}
	if sendReliable {
		if _, ok := hplc.ReplyCode(code); !ok {
			fmt.Fprintf(os.Stderr, "Warning: 0x%02X has no acknowledgment code, delivery will time out\n", code)
		}
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("plcstrip - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: %s  Code: 0x%02X (%s)  Data: % X\n\n", addr, code, hplc.CodeName(code), data)

	l := link.New(conn, cfg.PLC.Options, log)
	failures := 0
	for i := 0; i < sendCount; i++ {
		if i > 0 {
			time.Sleep(time.Duration(sendInterval) * time.Millisecond)
		}
		start := time.Now()
		err := l.Do(context.Background(), func(s *link.Session) error {
			if sendReliable {
				return s.SendReliable(addr, code, data)
			}
			return s.Send(addr, code, data)
		})
		switch {
		case err != nil:
			failures++
			fmt.Printf("#%d FAILED: %v\n", i+1, err)
		case sendReliable:
			fmt.Printf("#%d acknowledged in %v\n", i+1, time.Since(start).Round(time.Millisecond))
		default:
			fmt.Printf("#%d sent\n", i+1)
		}
	}

	fmt.Printf("\n%s\n", l.Stats())
	if failures > 0 {
		os.Exit(1)
	}
	return nil
}
