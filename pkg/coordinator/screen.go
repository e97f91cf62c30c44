// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coordinator

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

// HandleScreenFrame processes a touch screen event. Commands that reach a
// strip are sent reliably; when delivery fails the screen is put back to
// the last known state.
func (n *Node) HandleScreenFrame(ctx context.Context, d display.Display, f *hplc.Frame) {
	code := f.ControlCode()
	switch code {
	case hplc.ScreenOpenControl:
		n.openControl(ctx, d, f)
	case hplc.ScreenRename:
		n.rename(ctx, f)
	case hplc.ScreenSetOutput:
		n.setOutput(ctx, d, f)
	case hplc.ScreenSetMaxPower:
		n.setMaxPower(ctx, d, f)
	case hplc.ScreenLeave:
		n.leaveControl(ctx)
	case hplc.ScreenWifiScan, hplc.ScreenWifiSelect, hplc.ScreenWifiPassword,
		hplc.ScreenWifiConnect, hplc.ScreenWifiStatus, hplc.ScreenWifiForget:
		n.log.Debug("wifi screen event not supported", zap.Uint8("code", code))
	default:
		n.log.Debug("ignoring screen frame", zap.Uint8("code", code))
	}
}

// screenStrip extracts the strip address at the start of a screen frame
func (n *Node) screenStrip(f *hplc.Frame, min int) (hplc.Address, bool) {
	if f.Length() < min {
		n.log.Warn("short screen frame", zap.Uint8("code", f.ControlCode()), zap.Int("len", f.Length()))
		return hplc.Address{}, false
	}
	addr, _ := hplc.AddressFromBytes(f.Data())
	return addr, true
}

// sendReliable delivers one frame, waiting for the link as long as needed
func (n *Node) sendReliable(ctx context.Context, addr hplc.Address, code byte, data []byte) error {
	return n.link.Do(ctx, func(s *link.Session) error {
		return s.SendReliable(addr, code, data)
	})
}

// exchange looks up output idx of a registered strip, sends one frame
// reliably and calls apply once it is acknowledged, all under one hold of
// the HPLC link. prev is the output before the exchange; ok is false when
// the strip or output is unknown and nothing was sent.
func (n *Node) exchange(ctx context.Context, addr hplc.Address, idx int, code byte, data []byte, apply func() error) (prev registry.Output, ok bool, err error) {
	err = n.link.Do(ctx, func(s *link.Session) error {
		_, prev, ok = n.stripOutput(addr, idx)
		if !ok {
			return nil
		}
		if err := s.SendReliable(addr, code, data); err != nil {
			return err
		}
		if err := apply(); err != nil {
			n.log.Warn("acknowledged change not recorded",
				zap.Stringer("station", addr), zap.Int("output", idx), zap.Error(err))
		}
		return nil
	})
	return prev, ok, err
}

func (n *Node) openControl(ctx context.Context, d display.Display, f *hplc.Frame) {
	addr, ok := n.screenStrip(f, hplc.AddressSize)
	if !ok {
		return
	}
	log := n.log.With(zap.Stringer("station", addr))

	err := n.link.Do(ctx, func(s *link.Session) error {
		if strip, err := n.reg.Get(addr); err == nil {
			if err := showControl(d, strip); err != nil {
				log.Warn("screen update failed", zap.Error(err))
			}
		}
		return s.SendReliable(addr, hplc.CodePushSwitch, hplc.PushSwitchPayload(true))
	})
	if err != nil {
		log.Warn("strip unreachable, leaving control page", zap.Error(err))
		if err := d.Click("back", "0"); err != nil {
			log.Warn("screen update failed", zap.Error(err))
		}
		return
	}
	n.setCurrent(addr, true)
	log.Info("control page opened")
}

func (n *Node) leaveControl(ctx context.Context) {
	addr, ok := n.Current()
	n.setCurrent(hplc.Address{}, false)
	if !ok {
		return
	}
	if err := n.sendReliable(ctx, addr, hplc.CodePushSwitch, hplc.PushSwitchPayload(false)); err != nil {
		n.log.Warn("push off not acknowledged", zap.Stringer("station", addr), zap.Error(err))
	}
}

func (n *Node) rename(ctx context.Context, f *hplc.Frame) {
	addr, ok := n.screenStrip(f, hplc.AddressSize)
	if !ok {
		return
	}
	name := string(f.Data()[hplc.AddressSize:])
	err := n.link.Do(ctx, func(*link.Session) error {
		return n.reg.Rename(addr, name)
	})
	if err != nil {
		n.log.Warn("rename failed", zap.Stringer("station", addr), zap.Error(err))
		return
	}
	n.log.Info("strip renamed", zap.Stringer("station", addr), zap.String("name", name))
}

func (n *Node) setOutput(ctx context.Context, d display.Display, f *hplc.Frame) {
	addr, ok := n.screenStrip(f, hplc.AddressSize+2)
	if !ok {
		return
	}
	idx := int(f.DataByte(hplc.AddressSize))
	enabled := f.DataByte(hplc.AddressSize+1) == 0x01
	log := n.log.With(zap.Stringer("station", addr), zap.Int("output", idx))

	prev, ok, err := n.exchange(ctx, addr, idx, hplc.CodeSetOutput, hplc.SetOutputPayload(idx, enabled), func() error {
		return n.reg.SetOutput(addr, idx, enabled)
	})
	if !ok {
		return
	}
	if err != nil {
		log.Warn("set output not acknowledged", zap.Error(err))
		if err := d.SetProperty(PageControl, ctl("bt", idx), "val", boolVal(prev.Enabled)); err != nil {
			log.Warn("screen update failed", zap.Error(err))
		}
		return
	}

	err = setAll(d, PageControl, [][3]string{
		{ctl("dl", idx), "txt", "-"},
		{ctl("gl", idx), "txt", "-"},
	})
	if err != nil {
		log.Warn("screen update failed", zap.Error(err))
	}
}

func (n *Node) setMaxPower(ctx context.Context, d display.Display, f *hplc.Frame) {
	addr, ok := n.screenStrip(f, hplc.AddressSize+3)
	if !ok {
		return
	}
	idx := int(f.DataByte(hplc.AddressSize))
	maxPower := uint16(f.DataByte(hplc.AddressSize+1)) | uint16(f.DataByte(hplc.AddressSize+2))<<8
	log := n.log.With(zap.Stringer("station", addr), zap.Int("output", idx))

	prev, ok, err := n.exchange(ctx, addr, idx, hplc.CodeSetMaxPower, hplc.SetMaxPowerPayload(idx, maxPower), func() error {
		return n.reg.SetMaxPower(addr, idx, maxPower)
	})
	if !ok {
		return
	}
	if err != nil {
		log.Warn("set max power not acknowledged", zap.Error(err))
		value := strconv.Itoa(int(prev.MaxPower))
		if err := d.SetProperty(PageControl, ctl("xz", idx), "val", value); err != nil {
			log.Warn("screen update failed", zap.Error(err))
		}
	}
}

// stripOutput looks up a registered strip and one of its outputs
func (n *Node) stripOutput(addr hplc.Address, idx int) (registry.Strip, registry.Output, bool) {
	s, err := n.reg.Get(addr)
	if err != nil {
		n.log.Warn("screen event for unknown strip", zap.Stringer("station", addr))
		return s, registry.Output{}, false
	}
	o, err := s.Output(idx)
	if err != nil {
		n.log.Warn("screen event for invalid output", zap.Stringer("station", addr), zap.Error(err))
		return s, o, false
	}
	return s, o, true
}
