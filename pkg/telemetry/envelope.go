// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry forwards payload location blocks to downstream consumers
// such as a mapping tool or tracking antenna controller.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

// Format selects the wire encoding of forwarded blocks.
type Format string

const (
	// FormatRaw sends the location block bytes unchanged.
	FormatRaw Format = "raw"
	// FormatCBOR wraps the block in a CBOR envelope with source and time.
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatRaw:
		return FormatRaw, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown telemetry format: %q (use raw or cbor)", s)
	}
}

// Envelope is the CBOR record for one location block. Integer keys keep the
// encoding compact on constrained consumers.
type Envelope struct {
	Seq      uint64 `cbor:"0,keyasint"`
	Source   string `cbor:"1,keyasint"`
	Received int64  `cbor:"2,keyasint"` // unix milliseconds
	Block    []byte `cbor:"3,keyasint"`
}

// Encode renders loc in format f.
func Encode(f Format, seq uint64, loc rfdlink.Location) ([]byte, error) {
	switch f {
	case FormatRaw, "":
		return append([]byte(nil), loc.Block...), nil
	case FormatCBOR:
		data, err := cbor.Marshal(Envelope{
			Seq:      seq,
			Source:   loc.Source,
			Received: loc.Received.UnixMilli(),
			Block:    loc.Block,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode CBOR envelope: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown telemetry format: %q", f)
	}
}

// Decode parses a CBOR envelope back into a location.
func Decode(data []byte) (uint64, rfdlink.Location, error) {
	if len(data) == 0 {
		return 0, rfdlink.Location{}, fmt.Errorf("empty CBOR payload")
	}
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return 0, rfdlink.Location{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return env.Seq, rfdlink.Location{
		Block:    env.Block,
		Source:   env.Source,
		Received: time.UnixMilli(env.Received),
	}, nil
}
