// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a data field is too short for its code
var ErrShortPayload = errors.New("payload too short")

func boolByte(v bool) byte {
	if v {
		return 0x01
	}
	return 0x00
}

func need(f *Frame, n int) error {
	if f.Length() < n {
		return fmt.Errorf("%w: code 0x%02X needs %d bytes, got %d", ErrShortPayload, f.ControlCode(), n, f.Length())
	}
	return nil
}

// SetOutputPayload builds the data field of a CodeSetOutput frame
func SetOutputPayload(output int, enabled bool) []byte {
	return []byte{byte(output), boolByte(enabled)}
}

// ParseSetOutput decodes a CodeSetOutput frame
func ParseSetOutput(f *Frame) (output int, enabled bool, err error) {
	if err := need(f, 2); err != nil {
		return 0, false, err
	}
	return int(f.DataByte(0)), f.DataByte(1) == 0x01, nil
}

// SetMaxPowerPayload builds the data field of a CodeSetMaxPower frame.
// The limit is little-endian.
func SetMaxPowerPayload(output int, maxPower uint16) []byte {
	b := []byte{byte(output), 0, 0}
	binary.LittleEndian.PutUint16(b[1:], maxPower)
	return b
}

// ParseSetMaxPower decodes a CodeSetMaxPower frame
func ParseSetMaxPower(f *Frame) (output int, maxPower uint16, err error) {
	if err := need(f, 3); err != nil {
		return 0, 0, err
	}
	return int(f.DataByte(0)), uint16(f.DataByte(1)) | uint16(f.DataByte(2))<<8, nil
}

// PushSwitchPayload builds the data field of a CodePushSwitch frame
func PushSwitchPayload(on bool) []byte {
	return []byte{boolByte(on)}
}

// ParsePushSwitch decodes a CodePushSwitch frame
func ParsePushSwitch(f *Frame) (bool, error) {
	if err := need(f, 1); err != nil {
		return false, err
	}
	return f.DataByte(0) == 0x01, nil
}

// TripPayload builds the data field of a CodeTrip frame
func TripPayload(station Address, output int) []byte {
	b := make([]byte, 0, AddressSize+1)
	b = append(b, station[:]...)
	return append(b, byte(output))
}

// ParseTrip decodes a CodeTrip frame
func ParseTrip(f *Frame) (station Address, output int, err error) {
	if err := need(f, AddressSize+1); err != nil {
		return station, 0, err
	}
	copy(station[:], f.data[:AddressSize])
	return station, int(f.DataByte(AddressSize)), nil
}

// TelemetryPayload builds the data field of a CodeCurrent or CodePower frame.
// raw holds the metering register bytes, least significant first.
func TelemetryPayload(station Address, output int, raw [3]byte) []byte {
	b := make([]byte, 0, AddressSize+4)
	b = append(b, station[:]...)
	b = append(b, byte(output))
	return append(b, raw[:]...)
}

// Telemetry is a decoded CodeCurrent or CodePower frame
type Telemetry struct {
	Station Address
	Output  int
	Raw     uint32 // 24-bit register value
}

// ParseTelemetry decodes a CodeCurrent or CodePower frame
func ParseTelemetry(f *Frame) (Telemetry, error) {
	var t Telemetry
	if err := need(f, AddressSize+4); err != nil {
		return t, err
	}
	copy(t.Station[:], f.data[:AddressSize])
	t.Output = int(f.DataByte(AddressSize))
	t.Raw = uint32(f.DataByte(AddressSize+1)) |
		uint32(f.DataByte(AddressSize+2))<<8 |
		uint32(f.DataByte(AddressSize+3))<<16
	return t, nil
}
