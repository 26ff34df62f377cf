// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of link statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Commands
	Commands    uint64
	AckTimeouts uint64

	// Transfers
	Transfers      uint64
	Truncations    uint64
	Aborts         uint64
	ChunksAccepted uint64
	ChunksRejected uint64
	SoftEmpty      uint64
	Resyncs        uint64
	ResyncMisses   uint64 // resyncs that ended on timeout, not the sentinel
	PayloadBytes   uint64

	// Telemetry
	Locations uint64

	// Connection tests
	PingTests    uint64
	PingFailures uint64
	LastPingMean time.Duration

	// Rates (calculated)
	ChunkRate float64 // accepted chunks/sec
	ErrorRate float64 // rejected chunks + timeouts/sec
}

// Statistics tracks link activity across operations. It is safe for
// concurrent use; the console reads it while the dispatcher updates it.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

func (s *Statistics) update(fn func(c *Counters)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.c)
	s.c.LastUpdateTime = time.Now()
}

// Snapshot returns a copy of the counters with rates calculated.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.ChunkRate = float64(c.ChunksAccepted) / elapsed
		c.ErrorRate = float64(c.ChunksRejected+c.AckTimeouts+c.PingFailures) / elapsed
	}
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var acceptedPercent float64
	if total := c.ChunksAccepted + c.ChunksRejected; total > 0 {
		acceptedPercent = float64(c.ChunksAccepted) * 100.0 / float64(total)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", c.Commands)
	if c.AckTimeouts > 0 {
		result += fmt.Sprintf("Ack Timeouts:    %8d\n", c.AckTimeouts)
	}
	result += fmt.Sprintf("Transfers:       %8d\n", c.Transfers)
	if c.Truncations > 0 {
		result += fmt.Sprintf("  Truncated:        %5d\n", c.Truncations)
	}
	if c.Aborts > 0 {
		result += fmt.Sprintf("  Aborted:          %5d\n", c.Aborts)
	}
	result += fmt.Sprintf("Chunks Accepted: %8d (%.1f%%)\n", c.ChunksAccepted, acceptedPercent)
	if c.ChunksRejected > 0 {
		result += fmt.Sprintf("Chunks Rejected: %8d\n", c.ChunksRejected)
	}
	if c.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d (%d without sentinel)\n", c.Resyncs, c.ResyncMisses)
	}
	if c.SoftEmpty > 0 {
		result += fmt.Sprintf("Empty Reads:     %8d\n", c.SoftEmpty)
	}
	result += fmt.Sprintf("Payload Bytes:   %8d\n", c.PayloadBytes)
	result += fmt.Sprintf("Locations:       %8d\n", c.Locations)
	if c.PingTests > 0 {
		result += fmt.Sprintf("Ping Tests:      %8d (%d failed, last mean %v)\n",
			c.PingTests, c.PingFailures, c.LastPingMean.Round(time.Millisecond))
	}
	result += fmt.Sprintf("Chunk Rate:      %8.1f chunks/sec\n", c.ChunkRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "====================================\n"

	return result
}
