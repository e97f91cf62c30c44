// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import "sync"

// Recorder is a Display that keeps instructions in memory. It is used
// when no screen is attached and in tests.
type Recorder struct {
	mu       sync.Mutex
	commands []string
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(cmd string) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	return nil
}

// GotoPage implements Display
func (r *Recorder) GotoPage(page string) error { return r.add(PageCommand(page)) }

// Click implements Display
func (r *Recorder) Click(control, value string) error { return r.add(ClickCommand(control, value)) }

// SetProperty implements Display
func (r *Recorder) SetProperty(page, control, prop, value string) error {
	return r.add(SetCommand(page, control, prop, value))
}

// AdjustProperty implements Display
func (r *Recorder) AdjustProperty(page, control, prop string, delta int) error {
	return r.add(AdjustCommand(page, control, prop, delta))
}

// Commands returns the recorded instructions without terminators
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// Reset clears the recorded instructions
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}
