// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import "time"

// Frame is a decoded protocol frame. Frames are immutable once emitted by
// the decoder or built by NewFrame.
type Frame struct {
	control   byte
	data      []byte
	checksum  byte
	plain     bool
	raw       []byte
	timestamp time.Time
}

// NewFrame builds a checksummed frame from a control code and data field
func NewFrame(code byte, data []byte) (*Frame, error) {
	raw, err := Encode(code, data)
	if err != nil {
		return nil, err
	}
	return frameFromRaw(raw, false), nil
}

// frameFromRaw wraps a complete wire frame. raw is owned by the frame.
func frameFromRaw(raw []byte, plain bool) *Frame {
	l := int(raw[PreambleLength+2])
	f := &Frame{
		control:   raw[PreambleLength+1],
		data:      raw[dataOffset : dataOffset+l],
		plain:     plain,
		raw:       raw,
		timestamp: time.Now(),
	}
	if !plain {
		f.checksum = raw[dataOffset+l]
	}
	return f
}

// ControlCode returns the frame's control code
func (f *Frame) ControlCode() byte {
	return f.control
}

// Length returns the declared data length
func (f *Frame) Length() int {
	return len(f.data)
}

// Data returns a copy of the data field
func (f *Frame) Data() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// DataByte returns the i-th data byte, or 0 when out of range
func (f *Frame) DataByte(i int) byte {
	if i < 0 || i >= len(f.data) {
		return 0
	}
	return f.data[i]
}

// Checksum returns the checksum byte (0 for plain frames)
func (f *Frame) Checksum() byte {
	return f.checksum
}

// Plain reports whether the frame was decoded without a checksum byte
func (f *Frame) Plain() bool {
	return f.plain
}

// Raw returns a copy of the complete wire bytes
func (f *Frame) Raw() []byte {
	out := make([]byte, len(f.raw))
	copy(out, f.raw)
	return out
}

// Timestamp returns when the frame was decoded or built
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
