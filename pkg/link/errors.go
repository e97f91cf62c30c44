// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Sentinel errors
var (
	ErrDeliveryTimeout  = errors.New("no acknowledgment received")
	ErrDiscoveryTimeout = errors.New("modem response timed out")
	ErrNoAddresses      = errors.New("topology reported nodes but no address could be decoded")
	ErrBadNodeCount     = errors.New("invalid topology node count")
	ErrLockTimeout      = errors.New("link busy")
)

// DeliveryError describes a reliable send that exhausted its retries
type DeliveryError struct {
	Target   hplc.Address
	Code     byte
	Attempts int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("send 0x%02X to %s: %v after %d attempts", e.Code, e.Target, ErrDeliveryTimeout, e.Attempts)
}

func (e *DeliveryError) Unwrap() error {
	return ErrDeliveryTimeout
}

// DiscoveryError describes a topology query that timed out
type DiscoveryError struct {
	Stage string // "count" or "info"
	Line  int    // 1-based info line, 0 for the count stage
}

func (e *DiscoveryError) Error() string {
	if e.Stage == stageInfo {
		return fmt.Sprintf("topology %s line %d: %v", e.Stage, e.Line, ErrDiscoveryTimeout)
	}
	return fmt.Sprintf("topology %s: %v", e.Stage, ErrDiscoveryTimeout)
}

func (e *DiscoveryError) Unwrap() error {
	return ErrDiscoveryTimeout
}
