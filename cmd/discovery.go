// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

var (
	discoveryTimeout int
	discoveryPing    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover nodes on the power line network",
	Long: `Ask the PLC modem for its topology table and list the node addresses.

The modem is queried with AT+TOPONUM? for the node count, then with
AT+TOPOINFO for one line per node. Each line must arrive within the
configured line timeout (plc.line_timeout).

With --ping every discovered node is also sent a reliable heartbeat and
reported as online or offline.

Examples:
  plcstrip discovery --port /dev/ttyUSB0
  plcstrip discovery --url ws://bridge.local/plc --ping

Exit codes:
  0 - Discovery successful (at least one node found)
  1 - Discovery failed (no nodes or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Timeout in seconds for acquiring the modem")
	discoveryCmd.Flags().BoolVar(&discoveryPing, "ping", false, "Send a reliable heartbeat to each node")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("plcstrip - Node Discovery\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	l := link.New(conn, cfg.PLC.Options, log)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	var addrs []hplc.Address
	online := map[hplc.Address]bool{}
	err = l.Do(ctx, func(s *link.Session) error {
		var err error
		addrs, err = s.Discover()
		if err != nil {
			return err
		}
		if discoveryPing {
			for _, a := range addrs {
				online[a] = s.SendReliable(a, hplc.CodeHeartbeat, nil) == nil
			}
		}
		return nil
	})
	if err != nil {
		var derr *link.DiscoveryError
		if errors.As(err, &derr) {
			fmt.Printf("DISCOVERY FAILED: no response (%v)\n", derr)
		} else {
			fmt.Printf("DISCOVERY FAILED: %v\n", err)
		}
		os.Exit(1)
	}

	if len(addrs) == 0 {
		fmt.Printf("No nodes on the network\n")
		os.Exit(1)
	}

	fmt.Printf("Found %d node(s):\n", len(addrs))
	for i, a := range addrs {
		if discoveryPing {
			state := "offline"
			if online[a] {
				state = "online"
			}
			fmt.Printf("  %2d. %s  %s\n", i+1, a, state)
			continue
		}
		fmt.Printf("  %2d. %s\n", i+1, a)
	}
	return nil
}
