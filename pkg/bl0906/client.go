// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bl0906

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Errors returned by register access
var (
	ErrReadTimeout = errors.New("register read timed out")
	ErrChecksum    = errors.New("register checksum mismatch")
)

// DefaultReadTimeout bounds a single register read
const DefaultReadTimeout = 100 * time.Millisecond

// Port is the meter's serial line. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// Client reads and writes BL0906 registers over UART
type Client struct {
	port        Port
	readTimeout time.Duration
	log         *zap.Logger
	mu          sync.Mutex
}

// NewClient creates a register client. A zero readTimeout selects
// DefaultReadTimeout.
func NewClient(port Port, readTimeout time.Duration, log *zap.Logger) *Client {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{port: port, readTimeout: readTimeout, log: log}
}

// Init writes InitSequence. Every register is attempted; the first
// failure is returned.
func (c *Client) Init() error {
	var first error
	for _, r := range InitSequence {
		if err := c.WriteRegister(r.Addr, r.Value); err != nil {
			c.log.Warn("meter init write failed", zap.String("register", r.Name), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("init %s: %w", r.Name, err)
			}
			continue
		}
		c.log.Debug("meter register set", zap.String("register", r.Name))
	}
	return first
}

// WriteRegister sends a register write. The chip does not acknowledge writes.
func (c *Client) WriteRegister(addr byte, data [3]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := []byte{CmdWrite, addr, data[0], data[1], data[2], Checksum(addr, data)}
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", addr, err)
	}
	return nil
}

// ReadRegister reads three data bytes, least significant first
func (c *Client) ReadRegister(addr byte) ([3]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data [3]byte
	c.drain()

	if _, err := c.port.Write([]byte{CmdRead, addr}); err != nil {
		return data, fmt.Errorf("read register 0x%02X: %w", addr, err)
	}

	var resp [4]byte
	got := 0
	deadline := time.Now().Add(c.readTimeout)
	for got < len(resp) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return data, fmt.Errorf("%w: register 0x%02X (%d of 4 bytes)", ErrReadTimeout, addr, got)
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return data, err
		}
		n, err := c.port.Read(resp[got:])
		if err != nil {
			return data, fmt.Errorf("read register 0x%02X: %w", addr, err)
		}
		got += n
	}

	copy(data[:], resp[:3])
	if cs := Checksum(addr, data); cs != resp[3] {
		return data, fmt.Errorf("%w: register 0x%02X expected 0x%02X, got 0x%02X", ErrChecksum, addr, cs, resp[3])
	}
	return data, nil
}

// ReadRaw reads a register and assembles it into a 24-bit value
func (c *Client) ReadRaw(addr byte) (uint32, error) {
	b, err := c.ReadRegister(addr)
	if err != nil {
		return 0, err
	}
	return Raw24(b), nil
}

// drain discards stale bytes left in the receive buffer
func (c *Client) drain() {
	if err := c.port.SetReadTimeout(time.Millisecond); err != nil {
		return
	}
	buf := make([]byte, 32)
	for i := 0; i < 8; i++ {
		n, err := c.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}
