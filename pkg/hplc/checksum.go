// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"errors"
	"fmt"
)

// ErrChecksumMismatch is returned when a frame checksum does not verify
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Checksum returns the 8-bit additive checksum of b.
// Callers pass the header marker through the end of the data field;
// preamble bytes are never included.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// VerifyChecksum checks a header..data slice followed by its checksum byte
func VerifyChecksum(frame []byte) error {
	if len(frame) < 2 {
		return fmt.Errorf("%w: frame too short (%d bytes)", ErrChecksumMismatch, len(frame))
	}
	body := frame[:len(frame)-1]
	want := frame[len(frame)-1]
	if got := Checksum(body); got != want {
		return fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, got, want)
	}
	return nil
}
