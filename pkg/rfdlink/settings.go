// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Settings is the camera configuration record exchanged with the payload.
// On the wire and on disk it is seven newline-delimited decimal integers in
// field order.
type Settings struct {
	Width      int
	Height     int
	Sharpness  int
	Brightness int
	Contrast   int
	Saturation int
	ISO        int
}

// settingsField describes one line of the settings text.
type settingsField struct {
	name     string
	min, max int
	ref      func(*Settings) *int
}

// Field order is the wire order.
var settingsFields = []settingsField{
	{"width", 1, 2592, func(s *Settings) *int { return &s.Width }},
	{"height", 1, 1944, func(s *Settings) *int { return &s.Height }},
	{"sharpness", -100, 100, func(s *Settings) *int { return &s.Sharpness }},
	{"brightness", 0, 100, func(s *Settings) *int { return &s.Brightness }},
	{"contrast", -100, 100, func(s *Settings) *int { return &s.Contrast }},
	{"saturation", -100, 100, func(s *Settings) *int { return &s.Saturation }},
	{"iso", 100, 800, func(s *Settings) *int { return &s.ISO }},
}

// SettingsFieldCount is the number of lines in a settings record.
var SettingsFieldCount = len(settingsFields)

var (
	errMissingField = errors.New("missing")
	errExtraField   = errors.New("unexpected extra line")
)

// DefaultSettings returns the camera defaults used before any download.
func DefaultSettings() Settings {
	return Settings{
		Width:      650,
		Height:     450,
		Sharpness:  0,
		Brightness: 50,
		Contrast:   0,
		Saturation: 0,
		ISO:        400,
	}
}

// Validate checks every field against its range.
func (s Settings) Validate() error {
	for _, f := range settingsFields {
		v := *f.ref(&s)
		if v < f.min || v > f.max {
			return &SettingsError{
				Field: f.name,
				Value: strconv.Itoa(v),
				Err:   &RangeError{Value: v, Min: f.min, Max: f.max},
			}
		}
	}
	return nil
}

// MarshalText encodes the record as seven "%d\n" lines.
func (s Settings) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, f := range settingsFields {
		fmt.Fprintf(&buf, "%d\n", *f.ref(&s))
	}
	return buf.Bytes(), nil
}

// UnmarshalText parses seven newline-delimited integers in field order.
// Out-of-range or malformed values fail; nothing is clamped.
func (s *Settings) UnmarshalText(text []byte) error {
	parsed, err := ParseSettings(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSettings parses a settings record. Line endings may be "\n" or
// "\r\n"; trailing blank lines are ignored.
func ParseSettings(text []byte) (Settings, error) {
	var s Settings

	lines := strings.Split(strings.TrimRight(string(text), "\r\n \t"), "\n")
	if len(lines) == 1 && strings.TrimSpace(lines[0]) == "" {
		lines = nil
	}

	for i, f := range settingsFields {
		if i >= len(lines) {
			return Settings{}, &SettingsError{Field: f.name, Err: errMissingField}
		}
		raw := strings.TrimSpace(lines[i])
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, &SettingsError{Field: f.name, Value: raw, Err: err}
		}
		if v < f.min || v > f.max {
			return Settings{}, &SettingsError{
				Field: f.name,
				Value: raw,
				Err:   &RangeError{Value: v, Min: f.min, Max: f.max},
			}
		}
		*f.ref(&s) = v
	}

	if len(lines) > len(settingsFields) {
		extra := strings.TrimSpace(lines[len(settingsFields)])
		return Settings{}, &SettingsError{Field: "line 8", Value: extra, Err: errExtraField}
	}

	return s, nil
}

// Fields returns name/value pairs in wire order.
func (s Settings) Fields() []SettingsValue {
	out := make([]SettingsValue, 0, len(settingsFields))
	for _, f := range settingsFields {
		out = append(out, SettingsValue{Name: f.name, Value: *f.ref(&s), Min: f.min, Max: f.max})
	}
	return out
}

// SettingsValue is one named settings field with its valid range.
type SettingsValue struct {
	Name     string
	Value    int
	Min, Max int
}

// Set assigns one field by name. The value is range checked.
func (s *Settings) Set(name string, v int) error {
	for _, f := range settingsFields {
		if f.name != name {
			continue
		}
		if v < f.min || v > f.max {
			return &SettingsError{
				Field: f.name,
				Value: strconv.Itoa(v),
				Err:   &RangeError{Value: v, Min: f.min, Max: f.max},
			}
		}
		*f.ref(s) = v
		return nil
	}
	return &SettingsError{Field: name, Err: errors.New("unknown field")}
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Settings) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, f := range settingsFields {
		enc.AddInt(f.name, *f.ref(&s))
	}
	return nil
}
