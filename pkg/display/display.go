// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package display drives the coordinator's TJC serial touch screen.
package display

import (
	"fmt"
	"strings"
)

// Terminator ends every TJC instruction
const Terminator = "\xff\xff\xff"

// Display is a page-oriented UI sink
type Display interface {
	GotoPage(page string) error
	Click(control, value string) error
	SetProperty(page, control, prop, value string) error
	AdjustProperty(page, control, prop string, delta int) error
}

// numeric reports whether prop is written without quotes
func numeric(prop string) bool {
	switch prop {
	case "val", "aph", "y":
		return true
	}
	return false
}

// PageCommand returns the instruction switching to page
func PageCommand(page string) string {
	return "page " + page
}

// ClickCommand returns the instruction emulating a press (value 1) or
// release (value 0) of control
func ClickCommand(control, value string) string {
	return fmt.Sprintf("click %s,%s", control, value)
}

// SetCommand returns the assignment instruction for a property
func SetCommand(page, control, prop, value string) string {
	if numeric(prop) {
		return fmt.Sprintf("%s.%s.%s=%s", page, control, prop, value)
	}
	value = strings.ReplaceAll(value, `"`, `\"`)
	return fmt.Sprintf(`%s.%s.%s="%s"`, page, control, prop, value)
}

// AdjustCommand returns a += or -= instruction for a numeric property
func AdjustCommand(page, control, prop string, delta int) string {
	if delta < 0 {
		return fmt.Sprintf("%s.%s.%s-=%d", page, control, prop, -delta)
	}
	return fmt.Sprintf("%s.%s.%s+=%d", page, control, prop, delta)
}
