// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/link/linktest"
)

func TestObserverCounters(t *testing.T) {
	m := New(NewRegistry())

	m.FrameReceived(hplc.CodeHeartbeat)
	m.FrameReceived(hplc.CodeHeartbeat)
	m.FrameSent(hplc.CodeTrip, true)
	m.AckResult(hplc.CodeTrip, 3, false)
	m.AckResult(hplc.CodeSetOutput, 1, true)
	m.BacklogDropped()
	m.DiscoveryResult(2, nil)
	m.DiscoveryResult(0, errors.New("timeout"))
	m.Sample(1, 0.5, 120)
	m.Tripped(1)
	m.TripReported(1)
	m.StripsOnline(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesReceived.WithLabelValues("0x66")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSent.WithLabelValues("0x13", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ackResults.WithLabelValues("0x13", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ackResults.WithLabelValues("0x11", "acked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backlogDrops))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discoveries.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.discovered))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.power.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trips.WithLabelValues("1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.stripsOnline))
}

func TestRouter(t *testing.T) {
	m := New(NewRegistry())
	l := link.New(linktest.NewModem(), link.Options{}, nil)
	m.WatchLink(l)
	m.StripsOnline(2)

	srv := httptest.NewServer(Router(m.Registry(), ""))
	defer srv.Close()
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "plcstrip_strips_online 2"))
	assert.Contains(t, string(body), "plcstrip_checksum_errors_total 0")
	assert.Contains(t, string(body), `plcstrip_control_code_info{code="0x88",name="HEARTBEAT_ACK"} 1`)

	resp, err = client.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
