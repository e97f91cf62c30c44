// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store is a small namespaced key-value store for node settings.
// Values are CBOR encoded.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("key not found")

// Namespace is one isolated set of keys
type Namespace interface {
	Get(key string, v any) error
	Put(key string, v any) error
	Remove(key string) error
	Clear() error
	Keys() []string
}

// Store hands out namespaces
type Store interface {
	Namespace(name string) Namespace
	Close() error
}

// flusher persists the whole document after a change
type flusher interface {
	flush(doc map[string]map[string][]byte) error
}

// base holds the document shared by all namespaces of a store
type base struct {
	mu  sync.Mutex
	doc map[string]map[string][]byte
	out flusher
}

type namespace struct {
	b    *base
	name string
}

func (b *base) Namespace(name string) Namespace {
	return &namespace{b: b, name: name}
}

func (n *namespace) Get(key string, v any) error {
	n.b.mu.Lock()
	raw, ok := n.b.doc[n.name][key]
	n.b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", n.name, key, ErrNotFound)
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", n.name, key, err)
	}
	return nil
}

func (n *namespace) Put(key string, v any) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", n.name, key, err)
	}

	n.b.mu.Lock()
	defer n.b.mu.Unlock()
	ns := n.b.doc[n.name]
	if ns == nil {
		ns = map[string][]byte{}
		n.b.doc[n.name] = ns
	}
	ns[key] = raw
	return n.b.save()
}

func (n *namespace) Remove(key string) error {
	n.b.mu.Lock()
	defer n.b.mu.Unlock()
	if _, ok := n.b.doc[n.name][key]; !ok {
		return nil
	}
	delete(n.b.doc[n.name], key)
	return n.b.save()
}

func (n *namespace) Clear() error {
	n.b.mu.Lock()
	defer n.b.mu.Unlock()
	delete(n.b.doc, n.name)
	return n.b.save()
}

func (n *namespace) Keys() []string {
	n.b.mu.Lock()
	defer n.b.mu.Unlock()
	keys := make([]string, 0, len(n.b.doc[n.name]))
	for k := range n.b.doc[n.name] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// save must be called with mu held
func (b *base) save() error {
	if b.out == nil {
		return nil
	}
	return b.out.flush(b.doc)
}

// Memory is a Store that lives only in memory
type Memory struct {
	base
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{base: base{doc: map[string]map[string][]byte{}}}
}

// Close does nothing
func (m *Memory) Close() error { return nil }
