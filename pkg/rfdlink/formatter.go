// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"fmt"
	"strings"
	"time"
)

// FormatLocation formats a location block into a one-line string
func FormatLocation(loc Location) string {
	block := strings.TrimRight(string(loc.Block), "\x00 \r\n")
	return fmt.Sprintf("[%s] %-8s %s", loc.Received.Format("15:04:05.000"), strings.ToUpper(loc.Source), block)
}

// FormatTransfer formats a transfer result into a human-readable summary
func FormatTransfer(r *TransferResult) string {
	if r == nil {
		return "  (no transfer)\n"
	}

	status := "COMPLETE"
	switch {
	case r.Aborted:
		status = "ABORTED"
	case r.Truncated:
		status = "TRUNCATED"
	}

	result := fmt.Sprintf("Transfer %s: %s\n", r.SessionID, status)
	result += fmt.Sprintf("  Bytes:    %d\n", len(r.Data))
	result += fmt.Sprintf("  Chunks:   %d accepted, %d rejected\n", r.Chunks, r.Rejected)
	if r.Resyncs > 0 {
		result += fmt.Sprintf("  Resyncs:  %d\n", r.Resyncs)
	}
	if len(r.LastLocation) > 0 {
		result += fmt.Sprintf("  Location: %s\n", strings.TrimRight(string(r.LastLocation), "\x00 \r\n"))
	}
	result += fmt.Sprintf("  Duration: %s\n", formatDuration(r.Duration))
	return result
}

// FormatSettings formats a settings record, one field per line
func FormatSettings(s Settings) string {
	var b strings.Builder
	for _, f := range s.Fields() {
		fmt.Fprintf(&b, "  %-11s %5d  [%d, %d]\n", f.Name+":", f.Value, f.Min, f.Max)
	}
	return b.String()
}

// FormatPing formats a connection test result
func FormatPing(r *PingResult) string {
	if r == nil || len(r.Samples) == 0 {
		return "  (no samples)\n"
	}

	var b strings.Builder
	for i, s := range r.Samples {
		fmt.Fprintf(&b, "  ping %2d: %v\n", i+1, s.RTT().Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "  %d pings: mean=%v min=%v max=%v\n",
		len(r.Samples),
		r.Mean.Round(time.Millisecond),
		r.Min.Round(time.Millisecond),
		r.Max.Round(time.Millisecond),
	)
	return b.String()
}

// FormatTimeSync formats a time sync result without its connection test
func FormatTimeSync(r *TimeSyncResult) string {
	if r == nil {
		return "  (no time sync)\n"
	}
	result := fmt.Sprintf("  Payload clock: %s\n", r.Remote)
	result += fmt.Sprintf("  Local clock:   %s\n", r.LocalTime.Format(RemoteTimeLayout))
	if !r.Parsed {
		result += "  Drift:         unknown (unrecognized clock format)\n"
		return result
	}
	drift := r.Drift
	direction := "behind"
	if drift < 0 {
		drift = -drift
		direction = "ahead"
	}
	result += fmt.Sprintf("  Drift:         payload %s %s\n", formatDuration(drift), direction)
	return result
}

// formatDuration converts a duration to a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}

	seconds := int64(d / time.Second)
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	parts := []string{}
	for _, p := range []struct {
		n    int64
		unit string
	}{
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	} {
		switch {
		case p.n == 1:
			parts = append(parts, "1 "+p.unit)
		case p.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
