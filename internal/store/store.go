// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists what a ground-station run receives: images, image
// listings, camera settings and the event log, grouped under one session
// directory per run.
package store

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

const (
	// SessionsDir holds one directory per run.
	SessionsDir = "SESSIONS"
	// SessionLayout names a session directory after the run's start time.
	SessionLayout = "2006-01-02-15-04-05"
	// ImageLayout names an image when the payload gave no usable hint.
	ImageLayout = "20060102_T150405"

	DefaultExtension    = ".png"
	DefaultListingName  = "imagedata"
	DefaultSettingsFile = "camerasettings.txt"
	FallbackImageName   = "newimage"
	EventLogName        = "event.log"
)

// SaveError reports an image that could not be written under its resolved
// name. The data was written to Fallback instead when Fallback is non-empty.
type SaveError struct {
	Name     string
	Fallback string
	Err      error
}

func (e *SaveError) Error() string {
	if e.Fallback == "" {
		return fmt.Sprintf("failed to save image %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("failed to save image %s, saved as %s: %v", e.Name, e.Fallback, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Options configures a Store.
type Options struct {
	Root         string // parent of SESSIONS and the settings file
	Extension    string // image extension, with the dot
	ListingName  string // listing file name without extension
	SettingsFile string
}

// Store is one run's session directory.
type Store struct {
	fs   afero.Fs
	opts Options
	dir  string
}

// Open creates the session directory for a run started at now.
func Open(fs afero.Fs, opts Options, now time.Time) (*Store, error) {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.ListingName == "" {
		opts.ListingName = DefaultListingName
	}
	if opts.SettingsFile == "" {
		opts.SettingsFile = DefaultSettingsFile
	}

	dir := filepath.Join(opts.Root, SessionsDir, "Session_"+now.Format(SessionLayout))
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	return &Store{fs: fs, opts: opts, dir: dir}, nil
}

// Dir returns the session directory.
func (s *Store) Dir() string {
	return s.dir
}

// EventLogPath returns where the run's event log is written.
func (s *Store) EventLogPath() string {
	return filepath.Join(s.dir, EventLogName)
}

// ResolveImageName picks the file name for a received image. A user-supplied
// name wins and gets the extension appended. Otherwise the payload's hint is
// used if it looks like an image name (starts with 'i'); otherwise the name
// is derived from now.
func ResolveImageName(user, hint string, now time.Time, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	if user = strings.TrimSpace(user); user != "" {
		return user + ext
	}
	hint = strings.TrimRight(hint, "\x00 \r\n")
	if strings.HasPrefix(hint, "i") {
		if filepath.Ext(hint) == "" {
			return hint + ext
		}
		return hint
	}
	return "image_" + now.Format(ImageLayout) + ext
}

// ResolveImageName resolves a name with the store's extension.
func (s *Store) ResolveImageName(user, hint string, now time.Time) string {
	return ResolveImageName(user, hint, now, s.opts.Extension)
}

// DecodeImage decodes base64 image text. Whitespace is ignored and a
// truncated tail is cut back to the last complete quantum, so a truncated
// transfer still yields a partial image.
func DecodeImage(text []byte) ([]byte, error) {
	clean := bytes.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', 0:
			return -1
		}
		return r
	}, text)

	clean = bytes.TrimRight(clean, "=")
	if len(clean)%4 == 1 {
		// A lone trailing character carries no complete byte.
		clean = clean[:len(clean)-1]
	}
	out, err := base64.RawStdEncoding.DecodeString(string(clean))
	if err != nil {
		return out, fmt.Errorf("invalid image data: %w", err)
	}
	return out, nil
}

// SaveImage decodes text and writes it to the session directory as name.
// If decoding or writing fails the data that did decode goes to the fallback
// name and a *SaveError describing the failure is returned with the fallback
// path.
func (s *Store) SaveImage(name string, text []byte) (string, error) {
	data, werr := DecodeImage(text)

	if werr == nil {
		werr = validName(name)
	}
	if werr == nil {
		path := filepath.Join(s.dir, filepath.Base(name))
		if werr = s.write(path, data); werr == nil {
			return path, nil
		}
	}

	fallback := filepath.Join(s.dir, FallbackImageName+s.opts.Extension)
	if err := s.write(fallback, data); err != nil {
		return "", &SaveError{Name: name, Err: errors.Join(werr, err)}
	}
	return fallback, &SaveError{Name: name, Fallback: fallback, Err: werr}
}

func validName(name string) error {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || strings.ContainsRune(base, 0) {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

func (s *Store) write(path string, data []byte) error {
	return afero.WriteFile(s.fs, path, data, 0o644)
}

// CreateListing opens the listing file for the raw lines of an image
// listing. name may be empty for the default.
func (s *Store) CreateListing(name string) (io.WriteCloser, string, error) {
	if name = strings.TrimSpace(name); name == "" {
		name = s.opts.ListingName
	}
	path := filepath.Join(s.dir, filepath.Base(name)+".txt")
	f, err := s.fs.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open listing file: %w", err)
	}
	return f, path, nil
}

// IsHighResolution reports whether a listing entry names a full-resolution
// image. Thumbnail entries carry a 'b' at offset 10.
func IsHighResolution(entry string) bool {
	return len(entry) > 10 && entry[10] != 'b'
}

// SettingsPath returns the camera settings file location.
func (s *Store) SettingsPath() string {
	return filepath.Join(s.opts.Root, s.opts.SettingsFile)
}

// SaveSettings writes a settings record to the settings file.
func (s *Store) SaveSettings(settings rfdlink.Settings) error {
	text, err := settings.MarshalText()
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, s.SettingsPath(), text, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// LoadSettings reads and validates the settings file.
func (s *Store) LoadSettings() (rfdlink.Settings, error) {
	text, err := afero.ReadFile(s.fs, s.SettingsPath())
	if err != nil {
		return rfdlink.Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	return rfdlink.ParseSettings(text)
}
