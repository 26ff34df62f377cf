// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Fake Port
// ============================================================

// fakeClock is advanced only by timed-out reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 30, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePort replays a script of arrivals. Each non-nil segment is a burst of
// bytes; a nil segment is a read that times out. Once the script runs out
// every read times out. A timed-out read advances the clock by the current
// read timeout.
type fakePort struct {
	clock   *fakeClock
	script  [][]byte
	seg     int
	off     int
	timeout time.Duration

	writes        bytes.Buffer
	consumed      int
	inputFlushes  int
	outputFlushes int
	closed        bool
	readErr       error
}

func newFakePort(clock *fakeClock, script ...[]byte) *fakePort {
	return &fakePort{clock: clock, script: script}
}

func (p *fakePort) Read(b []byte) (int, error) {
	for p.seg < len(p.script) {
		cur := p.script[p.seg]
		if cur == nil {
			p.seg++
			p.off = 0
			p.clock.Advance(p.timeout)
			return 0, nil
		}
		if p.off >= len(cur) {
			p.seg++
			p.off = 0
			continue
		}
		n := copy(b, cur[p.off:])
		p.off += n
		p.consumed += n
		if p.off >= len(cur) {
			p.seg++
			p.off = 0
		}
		return n, nil
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	p.clock.Advance(p.timeout)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.writes.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

// ResetInputBuffer drops the unread rest of a partially read burst.
func (p *fakePort) ResetInputBuffer() error {
	p.inputFlushes++
	if p.seg < len(p.script) && p.off > 0 {
		p.seg++
		p.off = 0
	}
	return nil
}

func (p *fakePort) ResetOutputBuffer() error {
	p.outputFlushes++
	return nil
}

func (p *fakePort) Written() string {
	return p.writes.String()
}

// ============================================================
// Script Helpers
// ============================================================

func newTestTransport(t *testing.T, script ...[]byte) (*Transport, *fakePort, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	port := newFakePort(clock, script...)
	link, err := NewTransport(port, DefaultReadTimeout, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	return link, port, clock
}

// testTransferConfig keeps payloads small enough to read in test output.
func testTransferConfig() TransferConfig {
	cfg := DefaultTransferConfig()
	cfg.WordLength = 64
	return cfg
}

func locationBlock(cfg TransferConfig, text string) []byte {
	return []byte(fmt.Sprintf("%-*s", cfg.LocationLength, text))
}

// goodChunk scripts a chunk whose checksum matches. A short payload is
// followed by the sender going quiet while it waits for the verdict.
func goodChunk(cfg TransferConfig, loc string, payload []byte) [][]byte {
	l := locationBlock(cfg, loc)
	segs := [][]byte{[]byte(ChunkDigest(l, payload)), l, payload}
	if len(payload) < cfg.WordLength {
		segs = append(segs, nil)
	}
	return segs
}

// badChunk scripts a corrupted chunk followed by the sender's resync
// sentinel.
func badChunk(cfg TransferConfig, loc string, payload []byte) [][]byte {
	l := locationBlock(cfg, loc)
	segs := [][]byte{[]byte(strings.Repeat("0", cfg.ChecksumLength)), l, payload}
	if len(payload) < cfg.WordLength {
		segs = append(segs, nil)
	}
	return append(segs, []byte(SyncSentinel))
}

func script(parts ...[][]byte) [][]byte {
	var out [][]byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func seg(s string) [][]byte {
	return [][]byte{[]byte(s)}
}

// ============================================================
// Transport Tests
// ============================================================

func TestTransport_ReadAcrossBursts(t *testing.T) {
	link, _, _ := newTestTransport(t, []byte("ab"), []byte("cd"), nil, []byte("ef"))

	got, err := link.Read(3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("expected 'abc', got %q", got)
	}

	got, err = link.Read(10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "d" {
		t.Errorf("expected short read 'd' before the timeout, got %q", got)
	}
}

func TestTransport_ReadTimeoutIsEmpty(t *testing.T) {
	link, _, clock := newTestTransport(t)
	start := clock.Now()

	got, err := link.Read(32)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty read, got %q", got)
	}
	if elapsed := clock.Now().Sub(start); elapsed != DefaultReadTimeout {
		t.Errorf("expected one read timeout (%v), clock moved %v", DefaultReadTimeout, elapsed)
	}
}

func TestTransport_ReadLine(t *testing.T) {
	link, _, _ := newTestTransport(t, []byte("first\r\nsec"), []byte("ond\n"))

	line, err := link.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != "first\r\n" {
		t.Errorf("expected 'first\\r\\n', got %q", line)
	}

	line, _ = link.ReadLine()
	if string(line) != "second\n" {
		t.Errorf("expected 'second\\n', got %q", line)
	}

	line, _ = link.ReadLine()
	if len(line) != 0 {
		t.Errorf("expected empty line on timeout, got %q", line)
	}
}

func TestTransport_ReadUntil(t *testing.T) {
	link, _, _ := newTestTransport(t, []byte("1\n2\n\rtrailing"))

	got, err := link.ReadUntil('\r')
	if err != nil {
		t.Fatalf("ReadUntil failed: %v", err)
	}
	if string(got) != "1\n2\n" {
		t.Errorf("expected terminator excluded, got %q", got)
	}
}

func TestTransport_Counters(t *testing.T) {
	link, _, _ := newTestTransport(t, []byte("hello"))

	link.Read(5)
	link.Write([]byte("abc"))
	link.WriteByte('Y')

	read, written := link.Counters()
	if read != 5 || written != 4 {
		t.Errorf("expected read=5 written=4, got read=%d written=%d", read, written)
	}
}

func TestTransport_ReadError(t *testing.T) {
	link, port, _ := newTestTransport(t)
	port.readErr = fmt.Errorf("device unplugged")

	if _, err := link.Read(1); err == nil {
		t.Error("expected error from failing port")
	}
}

func TestNewTransport_NilPort(t *testing.T) {
	if _, err := NewTransport(nil, time.Second); err == nil {
		t.Error("expected error for nil port")
	}
}
