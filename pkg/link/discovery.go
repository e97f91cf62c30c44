// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Modem AT commands
const (
	CmdTopologyCount = "AT+TOPONUM?\r\n"
	cmdTopologyInfo  = "AT+TOPOINFO=1,%d\r\n"

	// responses start a line
	okPrefix = "\r+ok="

	stageCount = "count"
	stageInfo  = "info"

	maxTextBuffer = 1024
)

// TopologyInfoCommand returns the AT command listing n topology entries
func TopologyInfoCommand(n int) string {
	return fmt.Sprintf(cmdTopologyInfo, n)
}

// Discover asks the modem for the nodes on the network and returns their
// addresses. A zero node count is an empty success. Each response line
// must arrive within LineTimeout or the whole discovery fails.
func (s *Session) Discover() ([]hplc.Address, error) {
	l := s.l
	addrs, err := s.discover()
	if err != nil {
		l.log.Warn("topology discovery failed", zap.Error(err))
	} else {
		l.log.Debug("topology discovered", zap.Int("nodes", len(addrs)))
	}
	l.observer.DiscoveryResult(len(addrs), err)
	return addrs, err
}

func (s *Session) discover() ([]hplc.Address, error) {
	l := s.l
	l.text = l.text[:0]

	if err := s.WriteRaw([]byte(CmdTopologyCount)); err != nil {
		return nil, err
	}
	line, ok := s.readResponse(l.opts.LineTimeout)
	if !ok {
		return nil, &DiscoveryError{Stage: stageCount}
	}
	count, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadNodeCount, line)
	}
	if count == 0 {
		return []hplc.Address{}, nil
	}

	if err := s.WriteRaw([]byte(TopologyInfoCommand(count))); err != nil {
		return nil, err
	}

	addrs := make([]hplc.Address, 0, count)
	for i := 1; i <= count; i++ {
		line, ok := s.readResponse(l.opts.LineTimeout)
		if !ok {
			return nil, &DiscoveryError{Stage: stageInfo, Line: i}
		}
		mac := line
		if comma := strings.IndexByte(line, ','); comma >= 0 {
			mac = line[:comma]
		}
		addr, err := hplc.ParseAddress(mac)
		if err != nil {
			l.log.Warn("skipping topology entry", zap.Int("line", i), zap.Error(err))
			continue
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}

// readResponse waits up to timeout for a "\r+ok=<payload>\r\n" response and
// returns the payload. Bytes before the response are discarded.
func (s *Session) readResponse(timeout time.Duration) (string, bool) {
	l := s.l
	deadline := time.Now().Add(timeout)
	for {
		if payload, ok := l.takeResponse(); ok {
			return payload, true
		}
		if !time.Now().Before(deadline) {
			return "", false
		}
		if _, err := s.read(true); err != nil {
			l.log.Warn("modem read failed", zap.Error(err))
			time.Sleep(l.opts.PollInterval)
		}
	}
}

func (l *Link) takeResponse() (string, bool) {
	start := bytes.Index(l.text, []byte(okPrefix))
	if start < 0 {
		if len(l.text) > maxTextBuffer {
			l.text = append(l.text[:0], l.text[len(l.text)-len(okPrefix):]...)
		}
		return "", false
	}
	end := bytes.Index(l.text[start:], []byte("\r\n"))
	if end < 0 {
		return "", false
	}
	end += start
	payload := string(l.text[start+len(okPrefix) : end])
	l.text = append(l.text[:0], l.text[end+2:]...)
	return payload, true
}
