// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linktest provides an in-memory PLC modem for tests.
package linktest

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Sent is one frame the modem was asked to transmit
type Sent struct {
	Target hplc.Address
	Frame  *hplc.Frame
}

// AckPolicy decides whether the modem answers a reliable frame. nth is the
// 1-based number of times a frame with this control code has been sent.
type AckPolicy func(s Sent, nth int) bool

// AckAll acknowledges every frame that has a reply code
func AckAll(Sent, int) bool { return true }

// AckOnAttempt acknowledges a code from its n-th transmission onward
func AckOnAttempt(n int) AckPolicy {
	return func(_ Sent, nth int) bool { return nth >= n }
}

// Modem emulates a PLC modem serial port. It parses AT+SEND commands,
// answers topology queries and optionally acknowledges reliable frames.
type Modem struct {
	mu       sync.Mutex
	rx       []byte
	writes   [][]byte
	sent     []Sent
	perCode  map[byte]int
	ack      AckPolicy
	follow   func(s Sent) []byte
	topoNum  string
	topoInfo []string
	timeout  time.Duration
	closed   bool
}

// NewModem creates a modem that never acknowledges and never answers
// topology queries
func NewModem() *Modem {
	return &Modem{perCode: map[byte]int{}}
}

// SetAckPolicy installs p; nil disables acknowledgments
func (m *Modem) SetAckPolicy(p AckPolicy) {
	m.mu.Lock()
	m.ack = p
	m.mu.Unlock()
}

// SetFollow installs fn, whose bytes are queued after the reply to every
// transmitted frame; nil removes it
func (m *Modem) SetFollow(fn func(s Sent) []byte) {
	m.mu.Lock()
	m.follow = fn
	m.mu.Unlock()
}

// SetTopology sets the reply to AT+TOPONUM? and the lines sent for
// AT+TOPOINFO. An empty count leaves the count query unanswered.
func (m *Modem) SetTopology(count string, lines ...string) {
	m.mu.Lock()
	m.topoNum = count
	m.topoInfo = lines
	m.mu.Unlock()
}

// Inject queues bytes for the link to read
func (m *Modem) Inject(p []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, p...)
	m.mu.Unlock()
}

// InjectFrame queues a checksummed frame
func (m *Modem) InjectFrame(code byte, data []byte) {
	raw, err := hplc.Encode(code, data)
	if err != nil {
		panic(err)
	}
	m.Inject(raw)
}

// Close makes further reads and writes fail
func (m *Modem) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Read implements io.Reader. With nothing queued it waits briefly and
// returns (0, nil) like a serial port whose read timeout expired.
func (m *Modem) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errClosed
	}
	if len(m.rx) > 0 {
		n := copy(p, m.rx)
		m.rx = m.rx[n:]
		m.mu.Unlock()
		return n, nil
	}
	wait := m.timeout
	m.mu.Unlock()

	if wait <= 0 || wait > time.Millisecond {
		wait = time.Millisecond
	}
	time.Sleep(wait)
	return 0, nil
}

// SetReadTimeout records the timeout
func (m *Modem) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	m.timeout = t
	m.mu.Unlock()
	return nil
}

// Write implements io.Writer
func (m *Modem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}
	m.writes = append(m.writes, append([]byte(nil), p...))

	switch {
	case bytes.HasPrefix(p, []byte("AT+SEND=")):
		m.handleSend(p)
	case bytes.Equal(p, []byte("AT+TOPONUM?\r\n")):
		if m.topoNum != "" {
			m.rx = append(m.rx, "\r+ok="+m.topoNum+"\r\n"...)
		}
	case bytes.HasPrefix(p, []byte("AT+TOPOINFO=")):
		for _, line := range m.topoInfo {
			m.rx = append(m.rx, "\r+ok="+line+"\r\n"...)
		}
	}
	return len(p), nil
}

func (m *Modem) handleSend(p []byte) {
	body := strings.TrimSuffix(string(p[len("AT+SEND="):]), "\r\n")
	parts := strings.SplitN(body, ",", 3)
	if len(parts) != 3 {
		return
	}
	target, err := hplc.ParseAddress(parts[0])
	if err != nil {
		return
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n != len(parts[2]) {
		return
	}
	frames := hplc.NewDecoder().Decode([]byte(parts[2]))
	if len(frames) != 1 {
		return
	}

	s := Sent{Target: target, Frame: frames[0]}
	m.sent = append(m.sent, s)
	code := s.Frame.ControlCode()
	m.perCode[code]++

	reply, ok := hplc.ReplyCode(code)
	if ok && m.ack != nil && m.ack(s, m.perCode[code]) {
		raw, _ := hplc.Encode(reply, nil)
		m.rx = append(m.rx, raw...)
	}
	if m.follow != nil {
		m.rx = append(m.rx, m.follow(s)...)
	}
}

// Sent returns the frames transmitted so far
func (m *Modem) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// SentWithCode returns the transmitted frames carrying code
func (m *Modem) SentWithCode(code byte) []Sent {
	var out []Sent
	for _, s := range m.Sent() {
		if s.Frame.ControlCode() == code {
			out = append(out, s)
		}
	}
	return out
}

// Writes returns every raw write, AT commands included
func (m *Modem) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.writes...)
}

// Reset forgets recorded writes and transmissions
func (m *Modem) Reset() {
	m.mu.Lock()
	m.writes = nil
	m.sent = nil
	m.perCode = map[byte]int{}
	m.mu.Unlock()
}
