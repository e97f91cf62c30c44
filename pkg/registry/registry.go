// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registry keeps the coordinator's list of known power strips.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/store"
)

// Namespace is the store namespace holding the registry
const Namespace = "powerstrips"

const indexKey = "index"

// Errors
var (
	ErrNotFound      = errors.New("power strip not registered")
	ErrExists        = errors.New("power strip already registered")
	ErrInvalidOutput = errors.New("invalid output index")
)

// Output is the coordinator's view of one switched output
type Output struct {
	Enabled  bool   `cbor:"1,keyasint"`
	MaxPower uint16 `cbor:"2,keyasint"`
}

// Strip is a registered power strip. Online is never persisted.
type Strip struct {
	Address hplc.Address
	Name    string
	Outputs [hplc.OutputCount]Output
	Online  bool
}

// Output returns output idx (1-based)
func (s *Strip) Output(idx int) (Output, error) {
	if idx < 1 || idx > hplc.OutputCount {
		return Output{}, fmt.Errorf("%w: %d", ErrInvalidOutput, idx)
	}
	return s.Outputs[idx-1], nil
}

// Registry is the persisted list of strips, in registration order
type Registry struct {
	mu     sync.RWMutex
	ns     store.Namespace
	strips []Strip
	log    *zap.Logger
}

// Open loads the registry from ns. Entries that fail to load are skipped.
func Open(ns store.Namespace, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{ns: ns, log: log}

	var index string
	if err := ns.Get(indexKey, &index); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r, nil
		}
		return nil, fmt.Errorf("load registry index: %w", err)
	}

	for _, mac := range strings.Split(index, ",") {
		if mac == "" {
			continue
		}
		s, err := r.load(mac)
		if err != nil {
			log.Warn("skipping registry entry", zap.String("mac", mac), zap.Error(err))
			continue
		}
		r.strips = append(r.strips, s)
	}
	log.Debug("registry loaded", zap.Int("strips", len(r.strips)))
	return r, nil
}

func (r *Registry) load(mac string) (Strip, error) {
	var s Strip
	var addr []byte
	if err := r.ns.Get(mac, &addr); err != nil {
		return s, err
	}
	a, err := hplc.AddressFromBytes(addr)
	if err != nil {
		return s, err
	}
	s.Address = a
	if err := r.ns.Get(mac+"_n", &s.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, err
	}
	if err := r.ns.Get(mac+"_s", &s.Outputs); err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, err
	}
	return s, nil
}

// save writes one strip's keys; mu must be held
func (r *Registry) save(s *Strip) error {
	mac := s.Address.String()
	if err := r.ns.Put(mac, s.Address[:]); err != nil {
		return err
	}
	if err := r.ns.Put(mac+"_n", s.Name); err != nil {
		return err
	}
	return r.ns.Put(mac+"_s", s.Outputs)
}

// saveIndex rewrites the comma-separated address index; mu must be held
func (r *Registry) saveIndex() error {
	macs := make([]string, len(r.strips))
	for i := range r.strips {
		macs[i] = r.strips[i].Address.String()
	}
	return r.ns.Put(indexKey, strings.Join(macs, ","))
}

func (r *Registry) find(addr hplc.Address) int {
	for i := range r.strips {
		if r.strips[i].Address == addr {
			return i
		}
	}
	return -1
}

// Add registers a new strip
func (r *Registry) Add(s Strip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(s.Address) >= 0 {
		return fmt.Errorf("%w: %s", ErrExists, s.Address)
	}
	if err := r.save(&s); err != nil {
		return fmt.Errorf("save %s: %w", s.Address, err)
	}
	r.strips = append(r.strips, s)
	if err := r.saveIndex(); err != nil {
		return fmt.Errorf("save registry index: %w", err)
	}
	return nil
}

// Update replaces a registered strip
func (r *Registry) Update(s Strip) error {
	return r.modify(s.Address, func(cur *Strip) bool {
		*cur = s
		return true
	})
}

// modify applies fn to a strip and persists it when fn reports a change
func (r *Registry) modify(addr hplc.Address, fn func(s *Strip) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(addr)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	next := r.strips[i]
	if !fn(&next) {
		return nil
	}
	if err := r.save(&next); err != nil {
		return fmt.Errorf("save %s: %w", addr, err)
	}
	r.strips[i] = next
	return nil
}

// Delete removes a strip and its keys
func (r *Registry) Delete(addr hplc.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(addr)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	mac := addr.String()
	for _, key := range []string{mac, mac + "_n", mac + "_s"} {
		if err := r.ns.Remove(key); err != nil {
			return fmt.Errorf("delete %s: %w", addr, err)
		}
	}
	r.strips = append(r.strips[:i], r.strips[i+1:]...)
	return r.saveIndex()
}

// DeleteAll removes every strip
func (r *Registry) DeleteAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strips = nil
	return r.ns.Clear()
}

// Get returns a copy of a registered strip
func (r *Registry) Get(addr hplc.Address) (Strip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.find(addr)
	if i < 0 {
		return Strip{}, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return r.strips[i], nil
}

// List returns copies of all strips in registration order
func (r *Registry) List() []Strip {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Strip(nil), r.strips...)
}

// Len returns the number of registered strips
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strips)
}

// Contains reports whether addr is registered
func (r *Registry) Contains(addr hplc.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(addr) >= 0
}

// SetOnline records reachability. It reports whether the value changed;
// nothing is persisted.
func (r *Registry) SetOnline(addr hplc.Address, online bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(addr)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if r.strips[i].Online == online {
		return false, nil
	}
	r.strips[i].Online = online
	return true, nil
}

// SetOutput records an output's switch state
func (r *Registry) SetOutput(addr hplc.Address, idx int, enabled bool) error {
	if idx < 1 || idx > hplc.OutputCount {
		return fmt.Errorf("%w: %d", ErrInvalidOutput, idx)
	}
	return r.modify(addr, func(s *Strip) bool {
		if s.Outputs[idx-1].Enabled == enabled {
			return false
		}
		s.Outputs[idx-1].Enabled = enabled
		return true
	})
}

// SetMaxPower records an output's power limit
func (r *Registry) SetMaxPower(addr hplc.Address, idx int, maxPower uint16) error {
	if idx < 1 || idx > hplc.OutputCount {
		return fmt.Errorf("%w: %d", ErrInvalidOutput, idx)
	}
	return r.modify(addr, func(s *Strip) bool {
		s.Outputs[idx-1].MaxPower = maxPower
		return true
	})
}

// Rename changes a strip's display name
func (r *Registry) Rename(addr hplc.Address, name string) error {
	return r.modify(addr, func(s *Strip) bool {
		s.Name = name
		return true
	})
}
