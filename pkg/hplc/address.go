// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressSize is the length of a PLC node address in bytes
const AddressSize = 6

// ErrInvalidAddress is returned when an address cannot be decoded
var ErrInvalidAddress = errors.New("invalid address")

// Address is a 6-byte PLC node address
type Address [AddressSize]byte

// ParseAddress decodes a 12 character hex string (either case)
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if len(s) != AddressSize*2 {
		return a, fmt.Errorf("%w: %q has %d characters, want %d", ErrInvalidAddress, s, len(s), AddressSize*2)
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// AddressFromBytes copies the first six bytes of b
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) < AddressSize {
		return a, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidAddress, AddressSize, len(b))
	}
	copy(a[:], b[:AddressSize])
	return a, nil
}

// String returns the address as 12 upper-case hex characters
func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// Compare orders addresses byte by byte
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// IsZero reports whether all address bytes are zero
func (a Address) IsZero() bool {
	return a == Address{}
}
