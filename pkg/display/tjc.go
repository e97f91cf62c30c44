// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"fmt"
	"io"
	"sync"
)

// TJC writes instructions to a TJC screen. Each instruction is written
// whole, so TJC is safe for concurrent use.
type TJC struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTJC creates a TJC writer on w
func NewTJC(w io.Writer) *TJC {
	return &TJC{w: w}
}

func (t *TJC) send(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, cmd+Terminator); err != nil {
		return fmt.Errorf("screen write %q: %w", cmd, err)
	}
	return nil
}

// GotoPage implements Display
func (t *TJC) GotoPage(page string) error {
	return t.send(PageCommand(page))
}

// Click implements Display
func (t *TJC) Click(control, value string) error {
	return t.send(ClickCommand(control, value))
}

// SetProperty implements Display
func (t *TJC) SetProperty(page, control, prop, value string) error {
	return t.send(SetCommand(page, control, prop, value))
}

// AdjustProperty implements Display
func (t *TJC) AdjustProperty(page, control, prop string, delta int) error {
	return t.send(AdjustCommand(page, control, prop, delta))
}
