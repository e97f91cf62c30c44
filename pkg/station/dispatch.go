// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

// HandleFrame executes a coordinator command. Output commands are
// acknowledged only when applied; heartbeat and push switch are always
// acknowledged.
func (n *Node) HandleFrame(s *link.Session, f *hplc.Frame) {
	code := f.ControlCode()
	switch code {
	case hplc.CodeHeartbeat:
		n.reply(s, hplc.CodeHeartbeatAck)

	case hplc.CodeSetOutput:
		idx, enabled, err := hplc.ParseSetOutput(f)
		if err != nil {
			n.log.Warn("malformed set output", zap.Error(err))
			return
		}
		if err := n.bank.SetEnabled(idx, enabled); err != nil {
			n.log.Warn("set output rejected", zap.Int("output", idx), zap.Error(err))
			return
		}
		n.reply(s, hplc.CodeSetOutputAck)

	case hplc.CodeSetMaxPower:
		idx, maxPower, err := hplc.ParseSetMaxPower(f)
		if err != nil {
			n.log.Warn("malformed set max power", zap.Error(err))
			return
		}
		if err := n.bank.SetMaxPower(idx, maxPower); err != nil {
			n.log.Warn("set max power rejected", zap.Int("output", idx), zap.Error(err))
			return
		}
		n.reply(s, hplc.CodeSetMaxPowerAck)

	case hplc.CodePushSwitch:
		on, err := hplc.ParsePushSwitch(f)
		if err != nil {
			n.log.Warn("malformed push switch", zap.Error(err))
			return
		}
		n.push.Store(on)
		n.log.Info("telemetry push switched", zap.Bool("push", on))
		n.reply(s, hplc.CodeTripAck)

	default:
		n.log.Debug("ignoring frame", zap.Uint8("code", code), zap.String("name", hplc.CodeName(code)))
	}
}

func (n *Node) reply(s *link.Session, code byte) {
	if err := s.Send(n.cfg.Coordinator, code, nil); err != nil {
		n.log.Warn("reply failed", zap.Uint8("code", code), zap.Error(err))
	}
}
