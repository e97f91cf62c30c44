// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Session is exclusive access to a Link, valid only inside the function
// passed to Link.Do or Link.TryDo.
type Session struct {
	l *Link
}

// Send transmits one frame without waiting for an acknowledgment
func (s *Session) Send(target hplc.Address, code byte, data []byte) error {
	frame, err := hplc.Encode(code, data)
	if err != nil {
		return err
	}
	if err := s.transmit(target, frame); err != nil {
		return err
	}
	s.l.observer.FrameSent(code, false)
	return nil
}

// SendReliable transmits a frame and waits for the matching reply code,
// retransmitting up to MaxRetries times. Frames that arrive during the
// wait and do not match are kept for the next Poll. Codes with no reply
// code always exhaust the retries.
func (s *Session) SendReliable(target hplc.Address, code byte, data []byte) error {
	l := s.l
	frame, err := hplc.Encode(code, data)
	if err != nil {
		return err
	}
	expect, ok := hplc.ReplyCode(code)
	if !ok {
		l.log.Warn("reliable send of a code with no reply", zap.Uint8("code", code))
	}

	for attempt := 1; attempt <= l.opts.MaxRetries; attempt++ {
		if err := s.transmit(target, frame); err != nil {
			return err
		}
		l.observer.FrameSent(code, true)

		if s.awaitCode(expect, ok, l.opts.AckTimeout) {
			l.stats.recordAck(true)
			l.observer.AckResult(code, attempt, true)
			l.log.Debug("frame acknowledged",
				zap.Stringer("target", target),
				zap.Uint8("code", code),
				zap.Int("attempt", attempt))
			return nil
		}
		l.log.Debug("acknowledgment timeout",
			zap.Stringer("target", target),
			zap.Uint8("code", code),
			zap.Int("attempt", attempt))
	}

	l.stats.recordAck(false)
	l.observer.AckResult(code, l.opts.MaxRetries, false)
	return &DeliveryError{Target: target, Code: code, Attempts: l.opts.MaxRetries}
}

// Poll dispatches frames kept from earlier waits, then reads the port once
// and dispatches whatever completed. It returns the number of frames
// handed to h.
func (s *Session) Poll(h FrameHandler) (int, error) {
	l := s.l
	if _, err := s.read(false); err != nil {
		return 0, err
	}

	dispatched := 0
	limit := 2 * l.opts.BacklogSize
	for len(l.backlog) > 0 && dispatched < limit {
		f := l.backlog[0]
		l.backlog[0] = nil
		l.backlog = l.backlog[1:]
		h.HandleFrame(s, f)
		dispatched++
	}
	return dispatched, nil
}

// WriteRaw writes bytes to the modem as they are
func (s *Session) WriteRaw(p []byte) error {
	if _, err := s.l.port.Write(p); err != nil {
		return fmt.Errorf("modem write: %w", err)
	}
	return nil
}

func (s *Session) transmit(target hplc.Address, frame []byte) error {
	if err := s.WriteRaw(hplc.EncodeSendCommand(target, frame)); err != nil {
		return err
	}
	s.l.stats.recordSent()
	return nil
}

// awaitCode reads until a frame with control code expect arrives or
// timeout elapses. Other frames go to the backlog.
func (s *Session) awaitCode(expect byte, matchable bool, timeout time.Duration) bool {
	l := s.l
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frames, err := s.read(false)
		if err != nil {
			l.log.Warn("modem read failed", zap.Error(err))
			time.Sleep(l.opts.PollInterval)
			continue
		}
		if !matchable {
			continue
		}
		for _, f := range frames {
			if f.ControlCode() == expect {
				l.remove(f)
				return true
			}
		}
	}
	return false
}

// read performs one bounded read from the port, feeding the decoder and,
// when text is set, the AT response buffer. Completed frames are queued
// on the backlog and also returned.
func (s *Session) read(text bool) ([]*hplc.Frame, error) {
	l := s.l
	if l.timeout != l.opts.PollInterval {
		if err := l.port.SetReadTimeout(l.opts.PollInterval); err != nil {
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
		l.timeout = l.opts.PollInterval
	}

	start := time.Now()
	n, err := l.port.Read(l.readBuf)
	if err != nil {
		return nil, fmt.Errorf("modem read: %w", err)
	}
	if n == 0 {
		// Ports that return early without data still yield for one interval
		if rest := l.opts.PollInterval - time.Since(start); rest > 0 {
			time.Sleep(rest)
		}
		return nil, nil
	}

	chunk := l.readBuf[:n]
	if text {
		l.text = append(l.text, chunk...)
	}
	var frames []*hplc.Frame
	for _, b := range chunk {
		if f := l.decoder.DecodeByte(b); f != nil {
			l.enqueue(f)
			frames = append(frames, f)
		}
	}
	l.stats.recordDecoder(l.decoder.Stats())
	return frames, nil
}

func (l *Link) enqueue(f *hplc.Frame) {
	l.observer.FrameReceived(f.ControlCode())
	if len(l.backlog) >= l.opts.BacklogSize {
		dropped := l.backlog[0]
		l.backlog[0] = nil
		l.backlog = l.backlog[1:]
		l.stats.recordBacklogDrop()
		l.observer.BacklogDropped()
		l.log.Warn("frame backlog full, dropping oldest frame",
			zap.Uint8("code", dropped.ControlCode()),
			zap.Int("capacity", l.opts.BacklogSize))
	}
	l.backlog = append(l.backlog, f)
}

// remove takes f off the backlog if it is still queued
func (l *Link) remove(f *hplc.Frame) {
	for i, q := range l.backlog {
		if q == f {
			copy(l.backlog[i:], l.backlog[i+1:])
			l.backlog[len(l.backlog)-1] = nil
			l.backlog = l.backlog[:len(l.backlog)-1]
			return
		}
	}
}

// Pending returns the number of frames waiting for dispatch
func (s *Session) Pending() int {
	return len(s.l.backlog)
}
