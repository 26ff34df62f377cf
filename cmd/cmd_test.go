// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/rfdlink/internal/store"
	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

// ============================================================
// Exit Code Tests
// ============================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"success", nil, 0},
		{"truncated", errTruncated, 1},
		{"settings", &rfdlink.SettingsError{Field: "iso"}, 1},
		{"ack timeout", &rfdlink.AckTimeoutError{Command: rfdlink.RequestGPS, Timeout: time.Second}, 2},
		{"ping timeout", &rfdlink.PingTimeoutError{Sample: 3, Count: 5}, 2},
		{"open failure", fmt.Errorf("%w: no such port", rfdlink.ErrConnection), 2},
		{"busy", rfdlink.ErrLinkBusy, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, got)
			}
		})
	}
}

func TestReportTransfer(t *testing.T) {
	if err := reportTransfer(&rfdlink.TransferResult{SessionID: "a"}); err != nil {
		t.Errorf("complete transfer should succeed, got %v", err)
	}
	if err := reportTransfer(&rfdlink.TransferResult{SessionID: "b", Truncated: true}); !errors.Is(err, errTruncated) {
		t.Errorf("expected errTruncated, got %v", err)
	}
}

// ============================================================
// Settings Flag Tests
// ============================================================

func newSettingsFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	for _, f := range rfdlink.DefaultSettings().Fields() {
		flags.Int(f.Name, f.Value, "")
	}
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return flags
}

func TestApplySettingsFlags(t *testing.T) {
	s := rfdlink.DefaultSettings()
	s.Width = 1024

	flags := newSettingsFlags(t, "--iso=400", "--brightness=55")
	if err := applySettingsFlags(flags, &s); err != nil {
		t.Fatalf("applySettingsFlags failed: %v", err)
	}

	if s.ISO != 400 || s.Brightness != 55 {
		t.Errorf("flags not applied: %+v", s)
	}
	if s.Width != 1024 {
		t.Errorf("unchanged flag overwrote width: %d", s.Width)
	}
}

func TestApplySettingsFlags_OutOfRange(t *testing.T) {
	s := rfdlink.DefaultSettings()
	flags := newSettingsFlags(t, "--iso=3200")

	var se *rfdlink.SettingsError
	if err := applySettingsFlags(flags, &s); !errors.As(err, &se) {
		t.Errorf("expected SettingsError, got %v", err)
	}
}

func TestSettingsSummary(t *testing.T) {
	got := settingsSummary(rfdlink.DefaultSettings())
	if !strings.HasPrefix(got, "width=650 height=450") || !strings.Contains(got, "iso=") {
		t.Errorf("unexpected summary %q", got)
	}
}

// ============================================================
// Raw Log Tests
// ============================================================

func TestFormatHexLine(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	got := formatHexLine(ts, []byte("sync\x00A"))

	if !strings.HasPrefix(got, "[15:04:05.000] 73 79 6E 63 00 41") {
		t.Errorf("unexpected hex line %q", got)
	}
	if !strings.HasSuffix(got, "sync.A\n") {
		t.Errorf("unexpected ASCII column %q", got)
	}
}

// ============================================================
// Telemetry Fan-out Tests
// ============================================================

func TestTelemetrySink(t *testing.T) {
	rt := &runtime{}
	if rt.telemetrySink() != nil {
		t.Error("expected no sink without forwarder or observers")
	}

	var a, b int
	rt.observers = []rfdlink.TelemetrySink{
		rfdlink.TelemetryFunc(func(rfdlink.Location) { a++ }),
		rfdlink.TelemetryFunc(func(rfdlink.Location) { b++ }),
	}
	rt.telemetrySink().Forward(rfdlink.Location{Block: []byte("loc")})
	if a != 1 || b != 1 {
		t.Errorf("expected both observers called once, got %d and %d", a, b)
	}
}

// ============================================================
// Console Tests
// ============================================================

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m consoleModel, msg tea.Msg) consoleModel {
	t.Helper()
	next, _ := m.Update(msg)
	cm, ok := next.(consoleModel)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return cm
}

func lastEvent(m consoleModel) eventEntry {
	if len(m.events) == 0 {
		return eventEntry{}
	}
	return m.events[len(m.events)-1]
}

func TestConsole_ListingPopulatesImages(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m.busy = actionListing

	m = update(t, m, opDoneMsg{
		op:     actionListing,
		lines:  []string{"Listing: 2 entries"},
		images: []string{"image_0001b.png", "image_0001a.png"},
	})

	if m.busy != "" {
		t.Errorf("expected link idle, got %q", m.busy)
	}
	items := m.images.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 images, got %d", len(items))
	}
	if items[0].(imageEntry).highRes || !items[1].(imageEntry).highRes {
		t.Errorf("resolution flags wrong: %+v", items)
	}
}

func TestConsole_RejectsWhileBusy(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m.busy = actionLatest

	if cmd := m.start(actionPing); cmd != nil {
		t.Error("expected no command while busy")
	}
	if e := lastEvent(m); !e.isError || !strings.Contains(e.message, "busy") {
		t.Errorf("expected busy error event, got %+v", e)
	}
}

func TestConsole_OperationError(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m.busy = actionGPS

	m = update(t, m, opDoneMsg{op: actionGPS, err: rfdlink.ErrConnection})
	if e := lastEvent(m); !e.isError || !strings.HasPrefix(e.message, "gps failed") {
		t.Errorf("expected failure event, got %+v", e)
	}
}

func TestConsole_HighResolutionNeedsConfirmation(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m = update(t, m, opDoneMsg{op: actionListing, images: []string{"image_0001a.png"}})

	m = update(t, m, key("tab"))
	if m.focus != focusImages {
		t.Fatal("tab should focus the image list")
	}

	m = update(t, m, key("enter"))
	if m.pendingFetch != "image_0001a.png" {
		t.Fatalf("expected pending confirmation, got %q", m.pendingFetch)
	}
	if m.busy != "" {
		t.Error("fetch must not start before confirmation")
	}

	m = update(t, m, key("n"))
	if m.pendingFetch != "" {
		t.Error("n should cancel the pending fetch")
	}
}

func TestConsole_LocationsKeepLatest(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	for i := 0; i < maxLocations+3; i++ {
		m = update(t, m, locationMsg(rfdlink.Location{Block: []byte(fmt.Sprintf("loc-%d", i))}))
	}

	if len(m.locations) != maxLocations {
		t.Fatalf("expected %d locations, got %d", maxLocations, len(m.locations))
	}
	if got := string(m.locations[maxLocations-1].Block); got != fmt.Sprintf("loc-%d", maxLocations+2) {
		t.Errorf("expected newest location last, got %s", got)
	}
}

func TestConsole_ConnectionLost(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m = update(t, m, connectionLostMsg{})

	if cmd := m.start(actionLatest); cmd != nil {
		t.Error("expected no command while disconnected")
	}

	m = update(t, m, reconnectedMsg{connInfo: "WebSocket: ws://bridge"})
	if m.connectionLost || m.connInfo != "WebSocket: ws://bridge" {
		t.Errorf("reconnect not applied: lost=%v info=%s", m.connectionLost, m.connInfo)
	}
}

func TestConsole_ToggleGPSPolling(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: test")
	m = update(t, m, key("g"))
	if !m.gpsPolling {
		t.Fatal("g should start GPS polling")
	}
	m = update(t, m, key("g"))
	if m.gpsPolling {
		t.Error("second g should stop GPS polling")
	}
}

func TestConsole_View(t *testing.T) {
	m := initialConsoleModel(nil, "Serial: /dev/ttyUSB0 @ 38400 baud")
	m.stats = rfdlink.NewStatistics()
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, locationMsg(rfdlink.Location{Block: []byte("4807.038N01131.000E"), Source: rfdlink.SourceGPS}))

	view := m.View()
	for _, want := range []string{"RFDLINK CONSOLE", "/dev/ttyUSB0", "4807.038N01131.000E", "Commands:"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

// ============================================================
// Image Save Tests
// ============================================================

func TestImageDone(t *testing.T) {
	st, err := store.Open(afero.NewMemMapFs(), store.Options{Root: "/data"}, time.Now())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	r := &rfdlink.TransferResult{
		Data:   []byte(base64.StdEncoding.EncodeToString([]byte("hi"))),
		Chunks: 1,
	}
	msg := imageDone(st, r, "image_0001.png", nil)
	if msg.err != nil {
		t.Fatalf("unexpected error: %v", msg.err)
	}
	if len(msg.lines) != 2 || !strings.HasPrefix(msg.lines[1], "Saved ") {
		t.Errorf("unexpected summary %q", msg.lines)
	}

	empty := imageDone(st, &rfdlink.TransferResult{Truncated: true}, "x.png", nil)
	if len(empty.lines) != 1 || !strings.Contains(empty.lines[0], "truncated") {
		t.Errorf("unexpected summary for empty transfer %q", empty.lines)
	}
}

func TestLinkLost(t *testing.T) {
	tests := []struct {
		err  error
		lost bool
	}{
		{nil, false},
		{rfdlink.ErrLinkBusy, false},
		{&rfdlink.AckTimeoutError{Command: rfdlink.RequestLatest}, false},
		{fmt.Errorf("link read failed: %w", io.EOF), true},
		{fmt.Errorf("%w: reset", ErrConnectionClosed), true},
	}
	for _, tt := range tests {
		if got := linkLost(tt.err); got != tt.lost {
			t.Errorf("linkLost(%v): expected %v, got %v", tt.err, tt.lost, got)
		}
	}
}
