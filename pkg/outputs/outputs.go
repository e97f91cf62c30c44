// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package outputs manages a station's switched outputs and their power
// limits.
package outputs

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/store"
)

// Namespace is the store namespace holding output settings
const Namespace = "RelayStates"

// ErrInvalidIndex is returned for an output index outside 1..3
var ErrInvalidIndex = errors.New("invalid output index")

// Output is one switched output. MaxPower 0 means no limit.
type Output struct {
	Index    int
	Enabled  bool
	MaxPower uint16
}

// Actuator drives the physical relay of an output
type Actuator interface {
	SetRelay(index int, on bool) error
}

// Bank holds the outputs of a strip. State is persisted on every change.
type Bank struct {
	mu       sync.RWMutex
	outputs  [hplc.OutputCount]Output
	ns       store.Namespace
	actuator Actuator
	log      *zap.Logger
}

func stateKey(i int) string    { return fmt.Sprintf("r%d_state", i) }
func maxPowerKey(i int) string { return fmt.Sprintf("r%d_max_power", i) }

// Open loads output settings from ns and applies them to the actuator.
// Missing keys default to disabled with no limit. actuator may be nil.
func Open(ns store.Namespace, actuator Actuator, log *zap.Logger) (*Bank, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bank{ns: ns, actuator: actuator, log: log}

	for i := range b.outputs {
		o := Output{Index: i + 1}
		if err := ns.Get(stateKey(o.Index), &o.Enabled); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load output %d: %w", o.Index, err)
		}
		if err := ns.Get(maxPowerKey(o.Index), &o.MaxPower); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load output %d: %w", o.Index, err)
		}
		b.outputs[i] = o
		if err := b.drive(o.Index, o.Enabled); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Bank) drive(idx int, on bool) error {
	if b.actuator == nil {
		return nil
	}
	if err := b.actuator.SetRelay(idx, on); err != nil {
		return fmt.Errorf("drive output %d: %w", idx, err)
	}
	return nil
}

func check(idx int) error {
	if idx < 1 || idx > hplc.OutputCount {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
	}
	return nil
}

// Get returns output idx
func (b *Bank) Get(idx int) (Output, error) {
	if err := check(idx); err != nil {
		return Output{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.outputs[idx-1], nil
}

// All returns every output in index order
func (b *Bank) All() []Output {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Output(nil), b.outputs[:]...)
}

// SetEnabled switches output idx and persists the state
func (b *Bank) SetEnabled(idx int, enabled bool) error {
	if err := check(idx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.drive(idx, enabled); err != nil {
		return err
	}
	b.outputs[idx-1].Enabled = enabled
	if err := b.ns.Put(stateKey(idx), enabled); err != nil {
		return fmt.Errorf("persist output %d: %w", idx, err)
	}
	b.log.Info("output switched", zap.Int("output", idx), zap.Bool("enabled", enabled))
	return nil
}

// SetMaxPower sets the power limit of output idx and persists it
func (b *Bank) SetMaxPower(idx int, maxPower uint16) error {
	if err := check(idx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outputs[idx-1].MaxPower = maxPower
	if err := b.ns.Put(maxPowerKey(idx), maxPower); err != nil {
		return fmt.Errorf("persist output %d: %w", idx, err)
	}
	b.log.Info("output limit set", zap.Int("output", idx), zap.Uint16("max_power", maxPower))
	return nil
}
