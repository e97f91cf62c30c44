// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame for human-readable display
func FormatFrame(f *Frame) string {
	var b strings.Builder
	ts := f.Timestamp().Format("15:04:05.000")

	fmt.Fprintf(&b, "[%s] 0x%02X %-18s len=%-3d", ts, f.ControlCode(), CodeName(f.ControlCode()), f.Length())
	switch f.ControlCode() {
	case CodeCurrent, CodePower:
		if t, err := ParseTelemetry(f); err == nil {
			fmt.Fprintf(&b, " station=%s output=%d raw=0x%06X", t.Station, t.Output, t.Raw)
			break
		}
		fallthrough
	default:
		if f.Length() > 0 {
			fmt.Fprintf(&b, " data=% X", f.data)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// FormatRaw formats raw bytes as hex
func FormatRaw(p []byte) string {
	return fmt.Sprintf("% X", p)
}
