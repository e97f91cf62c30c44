// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/config"
	"github.com/Thermoquad/plcstrip/pkg/logging"
)

var (
	// Serial connection flags
	portName   string
	baudRate   int
	parityName string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string

	// settings holds defaults, PLCSTRIP_ environment variables and the
	// flags bound below
	settings = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "plcstrip",
	Short: "PLC Smart Power Strip Node",
	Long: `plcstrip - Runs and inspects nodes of a PLC smart power strip network.

A station switches three metered outputs and cuts any output whose power
exceeds its limit. A coordinator discovers stations over the power line,
relays touch screen commands to them and shows their readings.

Connection modes (PLC modem):
  Serial:    --port /dev/ttyUSB0 [--baud 115200] [--parity even]
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config (YAML, TOML or JSON) and PLCSTRIP_*
environment variables, e.g. PLCSTRIP_PLC_ACK_TIMEOUT=2s.

For WebSocket authentication, the password is read from the PLCSTRIP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "PLC modem serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&parityName, "parity", config.ParityEven, "Parity: none, even or odd (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = settings.BindPFlag("plc.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = settings.BindPFlag("plc.baud", rootCmd.PersistentFlags().Lookup("baud"))
	_ = settings.BindPFlag("plc.parity", rootCmd.PersistentFlags().Lookup("parity"))
	_ = settings.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig merges the config file into the bound settings. The modem
// flags are refreshed from the result so OpenConnection sees file values.
func loadConfig() (*config.Config, error) {
	if err := config.Read(settings, configPath); err != nil {
		return nil, err
	}
	cfg, err := config.Decode(settings)
	if err != nil {
		return nil, err
	}
	portName = cfg.PLC.Port
	baudRate = cfg.PLC.Baud
	parityName = cfg.PLC.Parity
	return cfg, nil
}

// setup loads the configuration and builds the logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// bindFlag maps a command flag onto a settings key
func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = settings.BindPFlag(key, cmd.Flags().Lookup(flag))
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
