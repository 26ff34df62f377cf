// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var testNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := Open(fs, Options{Root: "/data"}, testNow)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, fs
}

// ============================================================
// Session Directory Tests
// ============================================================

func TestOpen_CreatesSessionDir(t *testing.T) {
	s, fs := openTestStore(t)

	want := filepath.Join("/data", "SESSIONS", "Session_2026-01-02-15-04-05")
	if s.Dir() != want {
		t.Errorf("expected %s, got %s", want, s.Dir())
	}
	if ok, _ := afero.DirExists(fs, want); !ok {
		t.Error("session directory was not created")
	}
	if s.EventLogPath() != filepath.Join(want, "event.log") {
		t.Errorf("unexpected event log path %s", s.EventLogPath())
	}
}

func TestOpen_ReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	if _, err := Open(fs, Options{Root: "/data"}, testNow); err == nil {
		t.Error("expected error on read-only filesystem")
	}
}

// ============================================================
// Filename Resolution Tests
// ============================================================

func TestResolveImageName(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		hint     string
		expected string
	}{
		{"user name wins", "moon", "image_0001.png", "moon.png"},
		{"hint starting with i", "", "image_0001.png", "image_0001.png"},
		{"hint without extension", "", "img_0042", "img_0042.png"},
		{"padded hint", "", "image_0001.png\x00", "image_0001.png"},
		{"garbage hint", "", "\x07\x08junk", "image_20260102_T150405.png"},
		{"empty hint", "", "", "image_20260102_T150405.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveImageName(tt.user, tt.hint, testNow, ".png")
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Image Save Tests
// ============================================================

func TestDecodeImage(t *testing.T) {
	raw := []byte("\x89PNG\r\n\x1a\nhello image")
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name string
		text string
		want []byte
	}{
		{"padded", enc, raw},
		{"with line breaks", enc[:8] + "\r\n" + enc[8:16] + "\n" + enc[16:], raw},
		{"truncated to lone char", enc[:len(enc)-3], raw[:len(raw)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImage([]byte(tt.text))
			if err != nil {
				t.Fatalf("DecodeImage failed: %v", err)
			}
			if string(got) != string(tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecodeImage_Corrupt(t *testing.T) {
	if _, err := DecodeImage([]byte("aGVs*G8=")); err == nil {
		t.Error("expected error for invalid character")
	}
}

func TestSaveImage(t *testing.T) {
	s, fs := openTestStore(t)
	data := []byte("image bytes")

	path, err := s.SaveImage("image_0001.png", []byte(base64.StdEncoding.EncodeToString(data)))
	if err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if path != filepath.Join(s.Dir(), "image_0001.png") {
		t.Errorf("unexpected path %s", path)
	}
	got, _ := afero.ReadFile(fs, path)
	if string(got) != string(data) {
		t.Errorf("expected %q on disk, got %q", data, got)
	}
}

func TestSaveImage_StaysInSessionDir(t *testing.T) {
	s, _ := openTestStore(t)

	path, err := s.SaveImage("../../escape.png", []byte("aGk="))
	if err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if filepath.Dir(path) != s.Dir() {
		t.Errorf("image escaped the session directory: %s", path)
	}
}

func TestSaveImage_Fallback(t *testing.T) {
	s, fs := openTestStore(t)

	path, err := s.SaveImage("bad\x00name.png", []byte("aGk="))

	var se *SaveError
	if !errors.As(err, &se) {
		t.Fatalf("expected SaveError, got %v", err)
	}
	want := filepath.Join(s.Dir(), "newimage.png")
	if path != want || se.Fallback != want {
		t.Errorf("expected fallback %s, got path=%s fallback=%s", want, path, se.Fallback)
	}
	got, _ := afero.ReadFile(fs, want)
	if string(got) != "hi" {
		t.Errorf("expected fallback contents 'hi', got %q", got)
	}
}

func TestSaveImage_UndecodableUsesFallback(t *testing.T) {
	s, fs := openTestStore(t)

	path, err := s.SaveImage("partial.png", []byte("aGVsbG8gd29y*garbage"))

	var se *SaveError
	if !errors.As(err, &se) {
		t.Fatalf("expected SaveError for undecodable data, got %v", err)
	}
	want := filepath.Join(s.Dir(), "newimage.png")
	if path != want || se.Fallback != want {
		t.Errorf("expected fallback %s, got path=%s fallback=%s", want, path, se.Fallback)
	}
	if ok, _ := afero.Exists(fs, filepath.Join(s.Dir(), "partial.png")); ok {
		t.Error("undecodable image written under its resolved name")
	}
	got, _ := afero.ReadFile(fs, want)
	if string(got) != "hello wor" {
		t.Errorf("expected decoded prefix 'hello wor', got %q", got)
	}
}

// ============================================================
// Listing Tests
// ============================================================

func TestCreateListing(t *testing.T) {
	s, fs := openTestStore(t)

	w, path, err := s.CreateListing("")
	if err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	w.Write([]byte("image_0001.png\r\n"))
	w.Close()

	if filepath.Base(path) != "imagedata.txt" {
		t.Errorf("expected default listing name, got %s", path)
	}
	got, _ := afero.ReadFile(fs, path)
	if string(got) != "image_0001.png\r\n" {
		t.Errorf("unexpected listing contents %q", got)
	}
}

func TestIsHighResolution(t *testing.T) {
	tests := []struct {
		entry    string
		expected bool
	}{
		{"image_0001b.png", false},
		{"image_0001a.png", true},
		{"short", false},
	}
	for _, tt := range tests {
		if got := IsHighResolution(tt.entry); got != tt.expected {
			t.Errorf("IsHighResolution(%q): expected %v, got %v", tt.entry, tt.expected, got)
		}
	}
}

// ============================================================
// Settings File Tests
// ============================================================

func TestSettingsFile_RoundTrip(t *testing.T) {
	s, fs := openTestStore(t)

	want := rfdlink.DefaultSettings()
	want.ISO = 800
	if err := s.SaveSettings(want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/data/camerasettings.txt"); !ok {
		t.Error("settings file should live in the store root")
	}

	got, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	s, fs := openTestStore(t)
	afero.WriteFile(fs, s.SettingsPath(), []byte("650\n450\n"), 0o644)

	var se *rfdlink.SettingsError
	if _, err := s.LoadSettings(); !errors.As(err, &se) {
		t.Errorf("expected SettingsError, got %v", err)
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.LoadSettings(); err == nil {
		t.Error("expected error for missing settings file")
	}
}
