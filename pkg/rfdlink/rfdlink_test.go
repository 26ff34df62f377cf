// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Checksum Tests
// ============================================================

func TestDigest_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected string
	}{
		{"empty", "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"abc", "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{"fox", "The quick brown fox jumps over the lazy dog", "9e107d9d372bb6826bd81d3542a419d6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Digest([]byte(tt.data))
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
			if len(got) != DefaultChecksumLength {
				t.Errorf("expected %d characters, got %d", DefaultChecksumLength, len(got))
			}
		})
	}
}

func TestChunkDigest_CoversLocationAndPayload(t *testing.T) {
	loc := []byte("52.1,4.3")
	payload := []byte("payload")

	if ChunkDigest(loc, payload) != Digest([]byte("52.1,4.3payload")) {
		t.Error("chunk digest should equal digest of location followed by payload")
	}
	if ChunkDigest(loc, payload) == ChunkDigest([]byte("52.1,4.4"), payload) {
		t.Error("chunk digest should change with the location block")
	}
}

// ============================================================
// Resync Tests
// ============================================================

func TestResync_FindsSentinel(t *testing.T) {
	link, port, _ := newTestTransport(t, []byte("xxsysync"), []byte("next"))

	res, err := Resync(link)
	if err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	if !res.Matched {
		t.Error("expected sentinel match")
	}
	if res.Consumed != 8 {
		t.Errorf("expected 8 bytes consumed, got %d", res.Consumed)
	}
	if port.Written() != "S" {
		t.Errorf("expected 'S' written, got %q", port.Written())
	}
	if port.inputFlushes != 1 || port.outputFlushes != 1 {
		t.Errorf("expected both directions flushed once, got in=%d out=%d", port.inputFlushes, port.outputFlushes)
	}

	// Nothing past the sentinel was read.
	b, ok, _ := link.ReadOne()
	if !ok || b != 'n' {
		t.Errorf("expected next byte 'n', got %q (ok=%v)", b, ok)
	}
}

func TestResync_Timeout(t *testing.T) {
	link, port, _ := newTestTransport(t, []byte("syn"))

	res, err := Resync(link)
	if err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	if res.Matched {
		t.Error("partial sentinel should not match")
	}
	if res.Consumed != 3 {
		t.Errorf("expected 3 bytes consumed, got %d", res.Consumed)
	}
	if port.Written() != "S" {
		t.Errorf("expected 'S' written even on timeout, got %q", port.Written())
	}
}

func TestResync_ImmediateSilence(t *testing.T) {
	link, port, _ := newTestTransport(t)

	res, err := Resync(link)
	if err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	if res.Matched || res.Consumed != 0 {
		t.Errorf("expected no match and nothing consumed, got %+v", res)
	}
	if port.Written() != "S" {
		t.Errorf("expected 'S' written, got %q", port.Written())
	}
}

// ============================================================
// Settings Tests
// ============================================================

func TestSettings_RoundTrip(t *testing.T) {
	s := Settings{Width: 2592, Height: 1944, Sharpness: -100, Brightness: 100, Contrast: 25, Saturation: -7, ISO: 800}

	text, err := s.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "2592\n1944\n-100\n100\n25\n-7\n800\n" {
		t.Errorf("unexpected record %q", text)
	}

	var back Settings
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if back != s {
		t.Errorf("round trip mismatch: %+v != %+v", back, s)
	}
}

func TestParseSettings_LineEndings(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"LF", "650\n450\n0\n50\n0\n0\n400\n"},
		{"CRLF", "650\r\n450\r\n0\r\n50\r\n0\r\n0\r\n400\r\n"},
		{"no trailing newline", "650\n450\n0\n50\n0\n0\n400"},
		{"trailing blank lines", "650\n450\n0\n50\n0\n0\n400\n\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettings([]byte(tt.text))
			if err != nil {
				t.Fatalf("ParseSettings failed: %v", err)
			}
			if s != DefaultSettings() {
				t.Errorf("expected defaults, got %+v", s)
			}
		})
	}
}

func TestParseSettings_Errors(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field string
		check func(error) bool
	}{
		{
			name:  "empty",
			text:  "",
			field: "width",
			check: func(err error) bool { return errors.Is(err, errMissingField) },
		},
		{
			name:  "missing iso",
			text:  "650\n450\n0\n50\n0\n0\n",
			field: "iso",
			check: func(err error) bool { return errors.Is(err, errMissingField) },
		},
		{
			name:  "non-numeric",
			text:  "650\n450\nsharp\n50\n0\n0\n400\n",
			field: "sharpness",
			check: func(err error) bool {
				var ne *strconv.NumError
				return errors.As(err, &ne)
			},
		},
		{
			name:  "brightness out of range",
			text:  "650\n450\n0\n101\n0\n0\n400\n",
			field: "brightness",
			check: func(err error) bool {
				var re *RangeError
				return errors.As(err, &re) && re.Max == 100
			},
		},
		{
			name:  "iso below range",
			text:  "650\n450\n0\n50\n0\n0\n99\n",
			field: "iso",
			check: func(err error) bool {
				var re *RangeError
				return errors.As(err, &re) && re.Min == 100
			},
		},
		{
			name:  "extra line",
			text:  "650\n450\n0\n50\n0\n0\n400\n7\n",
			field: "line 8",
			check: func(err error) bool { return errors.Is(err, errExtraField) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.text))
			var se *SettingsError
			if !errors.As(err, &se) {
				t.Fatalf("expected SettingsError, got %v", err)
			}
			if se.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, se.Field)
			}
			if !tt.check(err) {
				t.Errorf("unexpected cause: %v", err)
			}
		})
	}
}

func TestSettings_Set(t *testing.T) {
	s := DefaultSettings()

	if err := s.Set("contrast", -50); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if s.Contrast != -50 {
		t.Errorf("expected contrast -50, got %d", s.Contrast)
	}
	if err := s.Set("width", 0); err == nil {
		t.Error("expected range error for width 0")
	}
	if err := s.Set("gamma", 1); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestSettings_Fields(t *testing.T) {
	fields := DefaultSettings().Fields()
	if len(fields) != SettingsFieldCount {
		t.Fatalf("expected %d fields, got %d", SettingsFieldCount, len(fields))
	}
	want := []string{"width", "height", "sharpness", "brightness", "contrast", "saturation", "iso"}
	for i, name := range want {
		if fields[i].Name != name {
			t.Errorf("field %d: expected %s, got %s", i, name, fields[i].Name)
		}
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatTransfer(t *testing.T) {
	r := &TransferResult{
		SessionID: "abc",
		Data:      []byte("hello"),
		Truncated: true,
		Chunks:    1,
		Rejected:  6,
		Duration:  90 * time.Second,
	}
	out := FormatTransfer(r)
	for _, want := range []string{"TRUNCATED", "Bytes:    5", "1 accepted, 6 rejected", "1 minute and 30 seconds"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{250 * time.Millisecond, "250 ms"},
		{time.Second, "1 second"},
		{2 * time.Minute, "2 minutes"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1 hour, 2 minutes, and 3 seconds"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%v): expected %q, got %q", tt.d, tt.expected, got)
		}
	}
}

func TestFormatTimeSync_Direction(t *testing.T) {
	r := &TimeSyncResult{Remote: "x", Parsed: true, Drift: -5 * time.Second}
	if out := FormatTimeSync(r); !strings.Contains(out, "5 seconds ahead") {
		t.Errorf("negative drift should read as ahead:\n%s", out)
	}
	r.Parsed = false
	if out := FormatTimeSync(r); !strings.Contains(out, "unknown") {
		t.Errorf("unparsed clock should report unknown drift:\n%s", out)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_NilSafe(t *testing.T) {
	var s *Statistics
	s.update(func(c *Counters) { c.Commands++ })
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.update(func(c *Counters) { c.ChunksAccepted = 10 })
	s.Reset()
	if c := s.Snapshot(); c.ChunksAccepted != 0 {
		t.Errorf("expected counters cleared, got %d", c.ChunksAccepted)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.update(func(c *Counters) {
		c.ChunksAccepted = 3
		c.ChunksRejected = 1
	})
	out := s.String()
	if !strings.Contains(out, "(75.0%)") {
		t.Errorf("expected acceptance percentage in summary:\n%s", out)
	}
}
