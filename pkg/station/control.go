// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/outputs"
)

// RunControlLoop runs MonitorCycle every Interval until ctx is done
func (n *Node) RunControlLoop(ctx context.Context) error {
	n.log.Info("control loop started", zap.Duration("interval", n.cfg.Interval))
	for {
		if err := n.MonitorCycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.cfg.Interval):
		}
	}
}

// MonitorCycle measures every enabled output once, pushes telemetry and
// trips outputs drawing more than their limit. A tripped output stays off
// until the coordinator enables it again. Output state is only read and
// changed while holding the link, so a command applied between the meter
// reads and the trip decision is honoured. Only context cancellation is
// returned as an error.
func (n *Node) MonitorCycle(ctx context.Context) error {
	for idx := 1; idx <= hplc.OutputCount; idx++ {
		o, err := n.output(ctx, idx)
		if err != nil {
			return err
		}
		if !o.Enabled {
			continue
		}
		if err := n.monitorOutput(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// output reads one output while holding the link
func (n *Node) output(ctx context.Context, idx int) (outputs.Output, error) {
	var o outputs.Output
	err := n.link.Do(ctx, func(*link.Session) error {
		var err error
		o, err = n.bank.Get(idx)
		return err
	})
	return o, err
}

// monitorOutput measures one output. A failed register read skips the
// output for this cycle.
func (n *Node) monitorOutput(ctx context.Context, idx int) error {
	log := n.log.With(zap.Int("output", idx))

	curReg, err := bl0906.CurrentRegister(idx)
	if err != nil {
		return nil
	}
	rawCurrent, err := n.meter.ReadRaw(curReg)
	if err != nil {
		log.Warn("current read failed", zap.Error(err))
		return nil
	}
	current := n.conv.Current(rawCurrent)
	n.pushTelemetry(hplc.CodeCurrent, idx, rawCurrent)

	powReg, err := bl0906.PowerRegister(idx)
	if err != nil {
		return nil
	}
	rawPower, err := n.meter.ReadRaw(powReg)
	if err != nil {
		log.Warn("power read failed", zap.Error(err))
		return nil
	}
	power := n.conv.Power(rawPower)
	n.pushTelemetry(hplc.CodePower, idx, rawPower)
	n.observer.Sample(idx, current, power)
	log.Debug("output measured", zap.Float64("current_a", current), zap.Float64("power_w", power))

	return n.trip(ctx, idx, power)
}

// pushTelemetry sends one unacknowledged measurement if push is enabled.
// Skipped when the link is busy or the rate limit is exhausted.
func (n *Node) pushTelemetry(code byte, idx int, raw uint32) {
	if !n.push.Load() || !n.limiter.Allow() {
		return
	}
	payload := hplc.TelemetryPayload(n.cfg.Address, idx, bl0906.Bytes24(raw))
	err := n.link.TryDo(n.link.Options().LockWait, func(s *link.Session) error {
		return s.Send(n.cfg.Coordinator, code, payload)
	})
	if err != nil && !errors.Is(err, link.ErrLockTimeout) {
		n.log.Warn("telemetry send failed", zap.Uint8("code", code), zap.Int("output", idx), zap.Error(err))
	}
}

// trip compares power against the current limit of the output and, when
// it is exceeded, switches the output off and reports it. The decision,
// the switch and the report happen under one hold of the link.
func (n *Node) trip(ctx context.Context, idx int, power float64) error {
	log := n.log.With(zap.Int("output", idx))
	tripped := false

	err := n.link.Do(ctx, func(s *link.Session) error {
		o, err := n.bank.Get(idx)
		if err != nil {
			return err
		}
		if !o.Enabled || o.MaxPower == 0 || power <= float64(o.MaxPower) {
			return nil
		}
		if err := n.bank.SetEnabled(idx, false); err != nil {
			log.Error("trip failed to switch output off", zap.Error(err))
			return nil
		}
		tripped = true
		n.observer.Tripped(idx)
		log.Warn("output tripped",
			zap.Float64("power_w", power),
			zap.Uint16("max_power_w", o.MaxPower))
		return s.SendReliable(n.cfg.Coordinator, hplc.CodeTrip, hplc.TripPayload(n.cfg.Address, idx))
	})
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case err != nil && tripped:
		log.Warn("trip notification not acknowledged", zap.Error(err))
	case err != nil:
		log.Warn("trip check failed", zap.Error(err))
	}
	return nil
}
