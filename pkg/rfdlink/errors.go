// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLinkBusy is returned when an operation is started while another
	// exchange still owns the link.
	ErrLinkBusy = errors.New("link busy: another exchange is in progress")

	// ErrConnection classifies timeout and connection failures. Use
	// errors.Is(err, ErrConnection) to detect them.
	ErrConnection = errors.New("connection error")

	// ErrSettingsMismatch is returned when settings read back from the
	// payload differ from the ones just uploaded.
	ErrSettingsMismatch = errors.New("settings read back differ from settings sent")
)

// AckTimeoutError indicates that a command was not acknowledged within its
// bounded window.
type AckTimeoutError struct {
	Command Command
	Timeout time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("no acknowledge received for %s within %v", e.Command, e.Timeout)
}

// Is reports AckTimeoutError as a connection error.
func (e *AckTimeoutError) Is(target error) bool {
	return target == ErrConnection
}

// PingTimeoutError indicates that a ping during a connection test was not
// echoed in time. The test is abandoned without a partial average.
type PingTimeoutError struct {
	Sample  int // 1-based index of the ping that timed out
	Count   int
	Timeout time.Duration
}

func (e *PingTimeoutError) Error() string {
	return fmt.Sprintf("no return ping %d/%d within %v", e.Sample, e.Count, e.Timeout)
}

// Is reports PingTimeoutError as a connection error.
func (e *PingTimeoutError) Is(target error) bool {
	return target == ErrConnection
}

// SettingsError indicates that a settings field was missing, non-numeric or
// out of range.
type SettingsError struct {
	Field string
	Value string
	Err   error
}

func (e *SettingsError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("settings field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("settings field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *SettingsError) Unwrap() error {
	return e.Err
}

// RangeError reports a settings value outside its valid interval.
type RangeError struct {
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%d out of range [%d, %d]", e.Value, e.Min, e.Max)
}
