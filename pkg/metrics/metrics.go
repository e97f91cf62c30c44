// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports link, station and coordinator events as
// Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

const namespace = "plcstrip"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics implements link.Observer, station.Observer and
// coordinator.Observer
type Metrics struct {
	reg *prometheus.Registry

	framesReceived *prometheus.CounterVec // labels: code
	framesSent     *prometheus.CounterVec // labels: code, reliable
	ackResults     *prometheus.CounterVec // labels: code, result
	ackAttempts    *prometheus.HistogramVec
	backlogDrops   prometheus.Counter
	discoveries    *prometheus.CounterVec // labels: result
	discovered     prometheus.Gauge
	current        *prometheus.GaugeVec   // labels: output
	power          *prometheus.GaugeVec   // labels: output
	trips          *prometheus.CounterVec // labels: output
	stripsOnline   prometheus.Gauge
}

// New registers the node metrics on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Valid frames decoded from the modem by control code.",
		}, []string{"code"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames transmitted by control code.",
		}, []string{"code", "reliable"}),
		ackResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reliable_sends_total",
			Help:      "Reliable sends by control code and outcome.",
		}, []string{"code", "result"}),
		ackAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reliable_send_attempts",
			Help:      "Transmissions needed per reliable send.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"code"}),
		backlogDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backlog_dropped_total",
			Help:      "Frames dropped because the dispatch backlog was full.",
		}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Topology discoveries by outcome.",
		}, []string{"result"}),
		discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_nodes",
			Help:      "Nodes returned by the last successful discovery.",
		}),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_current_amperes",
			Help:      "Last measured current per output.",
		}, []string{"output"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_power_watts",
			Help:      "Last measured active power per output.",
		}, []string{"output"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overcurrent_trips_total",
			Help:      "Outputs switched off for exceeding their power limit.",
		}, []string{"output"}),
		stripsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "strips_online",
			Help:      "Strips that answered the last heartbeat round.",
		}),
	}
	reg.MustRegister(
		m.framesReceived, m.framesSent, m.ackResults, m.ackAttempts,
		m.backlogDrops, m.discoveries, m.discovered,
		m.current, m.power, m.trips, m.stripsOnline,
	)
	m.registerCodeNames()
	return m
}

// Registry returns the registry the metrics live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WatchLink exports the decoder error counters of l
func (m *Metrics) WatchLink(l *link.Link) {
	m.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_errors_total",
			Help:      "Frames discarded for a checksum mismatch.",
		}, func() float64 { return float64(l.Stats().Snapshot().ChecksumErrors) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "Frames discarded for a missing terminator.",
		}, func() float64 { return float64(l.Stats().Snapshot().FramingErrors) }),
	)
}

func codeLabel(code byte) string {
	return fmt.Sprintf("0x%02X", code)
}

func outputLabel(output int) string {
	return strconv.Itoa(output)
}

func (m *Metrics) FrameReceived(code byte) {
	m.framesReceived.WithLabelValues(codeLabel(code)).Inc()
}

func (m *Metrics) FrameSent(code byte, reliable bool) {
	m.framesSent.WithLabelValues(codeLabel(code), strconv.FormatBool(reliable)).Inc()
}

func (m *Metrics) AckResult(code byte, attempts int, ok bool) {
	result := "acked"
	if !ok {
		result = "timeout"
	}
	m.ackResults.WithLabelValues(codeLabel(code), result).Inc()
	m.ackAttempts.WithLabelValues(codeLabel(code)).Observe(float64(attempts))
}

func (m *Metrics) BacklogDropped() {
	m.backlogDrops.Inc()
}

func (m *Metrics) DiscoveryResult(nodes int, err error) {
	if err != nil {
		m.discoveries.WithLabelValues("error").Inc()
		return
	}
	m.discoveries.WithLabelValues("ok").Inc()
	m.discovered.Set(float64(nodes))
}

func (m *Metrics) Sample(output int, current, power float64) {
	m.current.WithLabelValues(outputLabel(output)).Set(current)
	m.power.WithLabelValues(outputLabel(output)).Set(power)
}

func (m *Metrics) Tripped(output int) {
	m.trips.WithLabelValues(outputLabel(output)).Inc()
}

// TripReported counts a trip notification received by the coordinator
func (m *Metrics) TripReported(output int) {
	m.Tripped(output)
}

func (m *Metrics) StripsOnline(n int) {
	m.stripsOnline.Set(float64(n))
}

var _ link.Observer = (*Metrics)(nil)

// registerCodeNames exports an info metric mapping code labels to names
func (m *Metrics) registerCodeNames() {
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "control_code_info",
		Help:      "Names of the PLC control codes.",
	}, []string{"code", "name"})
	for _, c := range []byte{
		hplc.CodeHeartbeat, hplc.CodeSetOutput, hplc.CodeSetMaxPower, hplc.CodeTrip,
		hplc.CodeCurrent, hplc.CodePower, hplc.CodeHeartbeatAck, hplc.CodeSetOutputAck,
		hplc.CodeSetMaxPowerAck, hplc.CodeTripAck,
	} {
		info.WithLabelValues(codeLabel(c), hplc.CodeName(c)).Set(1)
	}
	m.reg.MustRegister(info)
}
