// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coordinator

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

// HandleFrame processes a frame from a station. Trip notifications are
// always acknowledged, even from unregistered strips.
func (n *Node) HandleFrame(s *link.Session, f *hplc.Frame) {
	code := f.ControlCode()
	switch code {
	case hplc.CodeHeartbeat:
		if err := s.Send(n.cfg.Peer, hplc.CodeHeartbeatAck, nil); err != nil {
			n.log.Warn("heartbeat reply failed", zap.Error(err))
		}

	case hplc.CodeTrip:
		n.handleTrip(s, f)

	case hplc.CodeCurrent, hplc.CodePower:
		n.handleTelemetry(f)

	default:
		n.log.Debug("ignoring frame", zap.Uint8("code", code), zap.String("name", hplc.CodeName(code)))
	}
}

func (n *Node) handleTrip(s *link.Session, f *hplc.Frame) {
	addr, idx, err := hplc.ParseTrip(f)
	if err != nil {
		n.log.Warn("malformed trip notification", zap.Error(err))
		return
	}
	log := n.log.With(zap.Stringer("station", addr), zap.Int("output", idx))
	n.observer.TripReported(idx)

	err = n.reg.SetOutput(addr, idx, false)
	switch {
	case err == nil:
		log.Warn("output tripped on overcurrent")
		if n.isCurrent(addr) {
			err := setAll(n.disp, PageControl, [][3]string{
				{ctl("bt", idx), "val", "0"},
				{ctl("dl", idx), "txt", "-"},
			})
			if err != nil {
				log.Warn("screen update failed", zap.Error(err))
			}
		}
	case errors.Is(err, registry.ErrNotFound):
		log.Info("trip from unregistered strip")
	default:
		log.Warn("trip not recorded", zap.Error(err))
	}

	if err := s.Send(addr, hplc.CodeTripAck, nil); err != nil {
		log.Warn("trip acknowledgment failed", zap.Error(err))
	}
}

func (n *Node) handleTelemetry(f *hplc.Frame) {
	t, err := hplc.ParseTelemetry(f)
	if err != nil {
		n.log.Warn("malformed telemetry", zap.Error(err))
		return
	}
	if !n.isCurrent(t.Station) || t.Output < 1 || t.Output > hplc.OutputCount {
		return
	}

	var prop, value string
	if f.ControlCode() == hplc.CodeCurrent {
		prop, value = ctl("dl", t.Output), formatReading(n.conv.Current(t.Raw))
	} else {
		prop, value = ctl("gl", t.Output), formatReading(n.conv.Power(t.Raw))
	}
	if err := n.disp.SetProperty(PageControl, prop, "txt", value); err != nil {
		n.log.Warn("screen update failed", zap.Error(err))
	}
}
