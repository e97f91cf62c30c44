// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

// Screen is the serial channel to the touch screen: inbound plain frames
// and outbound instructions, serialized by a lock.
type Screen struct {
	port    link.Port
	display Display
	lock    *link.Lock
	decoder *hplc.Decoder
	buf     []byte
	poll    time.Duration
	wait    time.Duration
	log     *zap.Logger
}

// NewScreen creates a Screen reading frames from port and writing through
// d. poll is the read timeout of one pass and wait the bounded lock wait
// of the foreground loop.
func NewScreen(port link.Port, d Display, poll, wait time.Duration, log *zap.Logger) *Screen {
	if log == nil {
		log = zap.NewNop()
	}
	if poll <= 0 {
		poll = link.DefaultPollInterval
	}
	if wait <= 0 {
		wait = link.DefaultLockWait
	}
	return &Screen{
		port:    port,
		display: d,
		lock:    link.NewLock(),
		decoder: hplc.NewPlainDecoder(),
		buf:     make([]byte, 128),
		poll:    poll,
		wait:    wait,
		log:     log,
	}
}

// Display returns the instruction sink
func (s *Screen) Display() Display {
	return s.display
}

// Do runs fn with the screen held, waiting until it is free or ctx is done
func (s *Screen) Do(ctx context.Context, fn func(d Display) error) error {
	if err := s.lock.Acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release()
	return fn(s.display)
}

// Serve reads frames from the screen until ctx is done and passes each to
// h with the screen held.
func (s *Screen) Serve(ctx context.Context, h func(d Display, f *hplc.Frame)) error {
	if err := s.port.SetReadTimeout(s.poll); err != nil {
		return fmt.Errorf("screen read timeout: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.lock.TryAcquire(s.wait) {
			time.Sleep(s.poll)
			continue
		}
		err := s.pass(h)
		s.lock.Release()
		if err != nil {
			return err
		}
	}
}

func (s *Screen) pass(h func(d Display, f *hplc.Frame)) error {
	n, err := s.port.Read(s.buf)
	if err != nil {
		return fmt.Errorf("screen read: %w", err)
	}
	if n == 0 {
		return nil
	}
	for _, f := range s.decoder.Decode(s.buf[:n]) {
		s.log.Debug("screen frame", zap.Uint8("code", f.ControlCode()), zap.Int("len", f.Length()))
		h(s.display, f)
	}
	return nil
}
