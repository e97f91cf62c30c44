// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

// RunMonitor runs MonitorCycle every Interval until ctx is done
func (n *Node) RunMonitor(ctx context.Context) error {
	n.log.Info("monitor started", zap.Duration("interval", n.cfg.Interval))
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

// MonitorCycle registers newly discovered strips, checks every strip with
// a heartbeat and refreshes the home page. Only context cancellation is
// returned as an error.
func (n *Node) MonitorCycle(ctx context.Context) error {
	err := n.link.Do(ctx, func(s *link.Session) error {
		if addrs, err := s.Discover(); err == nil {
			n.register(addrs)
		}
		n.heartbeat(s)
		return nil
	})
	if err != nil {
		return err
	}

	err = n.withScreen(ctx, func(d display.Display) error {
		return refreshHome(d, n.reg.List())
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		n.log.Warn("home page refresh failed", zap.Error(err))
	}
	return nil
}

func (n *Node) register(addrs []hplc.Address) {
	for i, addr := range addrs {
		if n.reg.Contains(addr) {
			continue
		}
		s := registry.Strip{
			Address: addr,
			Name:    fmt.Sprintf("Strip_%d", i+1),
		}
		if err := n.reg.Add(s); err != nil {
			n.log.Warn("could not register strip", zap.Stringer("station", addr), zap.Error(err))
			continue
		}
		n.log.Info("strip registered", zap.Stringer("station", addr), zap.String("name", s.Name))
	}
}

func (n *Node) heartbeat(s *link.Session) {
	online := 0
	for _, strip := range n.reg.List() {
		err := s.SendReliable(strip.Address, hplc.CodeHeartbeat, nil)
		up := err == nil
		if up {
			online++
		}
		changed, serr := n.reg.SetOnline(strip.Address, up)
		if serr != nil {
			continue
		}
		if changed {
			n.log.Info("strip reachability changed", zap.Stringer("station", strip.Address), zap.Bool("online", up))
		}
	}
	n.observer.StripsOnline(online)
}
