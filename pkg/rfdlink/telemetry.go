// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import "time"

// Location sources
const (
	SourceTransfer = "transfer" // embedded in a transfer chunk
	SourceGPS      = "gps"      // dedicated GPS request
)

// Location is a fixed-length location block received from the payload.
type Location struct {
	Block    []byte
	Source   string
	Received time.Time
}

// TelemetrySink receives location blocks.
//
// Forward is called on the transfer path and must return quickly; delivery is
// best-effort and failures are never reported back to the caller. Forward is
// called for every chunk whose location block is non-empty, whether or not
// the chunk is accepted. An empty block (the payload went quiet) is not
// forwarded.
type TelemetrySink interface {
	Forward(loc Location)
}

// TelemetryFunc adapts a function to a TelemetrySink.
type TelemetryFunc func(loc Location)

// Forward calls f(loc).
func (f TelemetryFunc) Forward(loc Location) { f(loc) }

type nopSink struct{}

func (nopSink) Forward(Location) {}

// NopTelemetry discards every location block.
var NopTelemetry TelemetrySink = nopSink{}
