// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, RoleStation, cfg.Node.Role)
	assert.Equal(t, link.DefaultOptions(), cfg.PLC.Options)
	assert.Equal(t, 115200, cfg.PLC.Baud)
	assert.Equal(t, ParityEven, cfg.PLC.Parity)
	assert.Equal(t, ParityNone, cfg.Screen.Parity)
	assert.Equal(t, ParityNone, cfg.Meter.Parity)
	assert.Equal(t, bl0906.DefaultCalibration, cfg.Meter.Calibration)
	assert.Equal(t, bl0906.DefaultReadTimeout, cfg.Meter.ReadTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.True(t, cfg.Address().IsZero())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  role: coordinator
  address: 0013D7632201
  peer: 0013d7632201
plc:
  port: /dev/ttyUSB0
  ack_timeout: 250ms
  max_retries: 5
telemetry:
  push: true
  max_rate: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RoleCoordinator, cfg.Node.Role)
	assert.Equal(t, hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x01}, cfg.Address())
	assert.Equal(t, cfg.Address(), cfg.Peer())
	assert.Equal(t, "/dev/ttyUSB0", cfg.PLC.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.PLC.AckTimeout)
	assert.Equal(t, 5, cfg.PLC.MaxRetries)
	assert.Equal(t, link.DefaultLineTimeout, cfg.PLC.LineTimeout)
	assert.True(t, cfg.Telemetry.Push)
	assert.Equal(t, rate.Inf, cfg.PushRate())
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PLCSTRIP_PLC_PORT", "/dev/ttyS3")
	t.Setenv("PLCSTRIP_MONITOR_INTERVAL", "3s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS3", cfg.PLC.Port)
	assert.Equal(t, 3*time.Second, cfg.Monitor.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		node NodeConfig
		err  error
	}{
		{"station", NodeConfig{Role: RoleStation}, nil},
		{"bad role", NodeConfig{Role: "relay"}, ErrInvalidRole},
		{"bad address", NodeConfig{Role: RoleStation, Address: "0013D76322"}, ErrInvalidAddress},
		{"bad peer", NodeConfig{Role: RoleCoordinator, Peer: "zz13D7632201"}, ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Node: tt.node, PLC: PLCConfig{Parity: ParityEven}}
			err := cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestValidateParity(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Screen.Parity = ParityOdd
	assert.NoError(t, cfg.Validate())

	cfg.PLC.Parity = "mark"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidParity)

	t.Setenv("PLCSTRIP_METER_PARITY", "space")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidParity)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWriteYAML(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	out := buf.String()
	assert.Contains(t, out, "plc:")
	assert.Contains(t, out, "ack_timeout: 1s")
	assert.Contains(t, out, "role: station")
}
