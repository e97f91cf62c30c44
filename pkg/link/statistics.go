// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Counters is a point-in-time copy of link statistics
type Counters struct {
	StartTime time.Time

	FramesReceived uint64
	FramesSent     uint64
	ChecksumErrors uint64
	FramingErrors  uint64
	AckSuccesses   uint64
	AckTimeouts    uint64
	BacklogDrops   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec received
	ErrorRate float64 // errors/sec
}

// Statistics tracks link traffic and error rates
type Statistics struct {
	mu      sync.Mutex
	c       Counters
	decoder hplc.DecoderStats
	base    hplc.DecoderStats
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

func (s *Statistics) recordSent() {
	s.mu.Lock()
	s.c.FramesSent++
	s.mu.Unlock()
}

func (s *Statistics) recordAck(ok bool) {
	s.mu.Lock()
	if ok {
		s.c.AckSuccesses++
	} else {
		s.c.AckTimeouts++
	}
	s.mu.Unlock()
}

func (s *Statistics) recordBacklogDrop() {
	s.mu.Lock()
	s.c.BacklogDrops++
	s.mu.Unlock()
}

// recordDecoder takes the decoder's cumulative counters
func (s *Statistics) recordDecoder(d hplc.DecoderStats) {
	s.mu.Lock()
	s.decoder = d
	s.mu.Unlock()
}

// Snapshot returns the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	c.FramesReceived = s.decoder.Frames - s.base.Frames
	c.ChecksumErrors = s.decoder.ChecksumErrors - s.base.ChecksumErrors
	c.FramingErrors = s.decoder.FramingErrors - s.base.FramingErrors

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.FrameRate = float64(c.FramesReceived) / elapsed
		c.ErrorRate = float64(c.ChecksumErrors+c.FramingErrors+c.AckTimeouts) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var validPercent, checksumPercent float64
	if total := c.FramesReceived + c.ChecksumErrors + c.FramingErrors; total > 0 {
		validPercent = float64(c.FramesReceived) * 100.0 / float64(total)
		checksumPercent = float64(c.ChecksumErrors) * 100.0 / float64(total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Link Statistics (%.0f seconds) ===\n", time.Since(c.StartTime).Seconds())
	fmt.Fprintf(&b, "Frames Received: %8d (%.1f%%)\n", c.FramesReceived, validPercent)
	fmt.Fprintf(&b, "Frames Sent:     %8d\n", c.FramesSent)
	if c.ChecksumErrors > 0 {
		fmt.Fprintf(&b, "Checksum Errors: %8d (%.1f%%)\n", c.ChecksumErrors, checksumPercent)
	}
	if c.FramingErrors > 0 {
		fmt.Fprintf(&b, "Framing Errors:  %8d\n", c.FramingErrors)
	}
	fmt.Fprintf(&b, "ACK Success:     %8d\n", c.AckSuccesses)
	if c.AckTimeouts > 0 {
		fmt.Fprintf(&b, "ACK Timeouts:    %8d\n", c.AckTimeouts)
	}
	if c.BacklogDrops > 0 {
		fmt.Fprintf(&b, "Backlog Drops:   %8d\n", c.BacklogDrops)
	}
	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	b.WriteString("=====================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{StartTime: time.Now()}
	s.base = s.decoder
}
