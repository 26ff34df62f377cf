// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rfdlink implements the ground-station side of the RFD900 payload
// link protocol.
//
// The payload is reached through a half-duplex serial radio modem that offers
// no framing, acknowledgment or error correction. This package layers a
// stop-and-wait transport on top of the raw byte stream: one-byte commands
// gated by an acknowledgment, checksum-verified chunked image transfer with
// bounded retry, and a sentinel-based resynchronizer that recovers byte
// alignment after corruption.
package rfdlink

import "time"

// Command bytes (ground station → payload)
const (
	CmdRequestLatest   = '1'
	CmdRequestListing  = '2'
	CmdRequestSpecific = '3'
	CmdGetSettings     = '4'
	CmdSetSettings     = '5'
	CmdConnectionTest  = '6'
	CmdTimeSync        = 'T'
	CmdRequestGPS      = 'G'
	CmdPing            = 'P'
	CmdDone            = 'D'
)

// Handshake bytes
const (
	AckByte    = 'A' // command acknowledged
	ChunkAck   = 'Y' // chunk accepted
	ChunkNack  = 'N' // chunk rejected, resend
	ResyncAck  = 'S' // resynchronized
	SettingEOT = '\r'
)

// SyncSentinel realigns sender and receiver after a protocol violation.
const SyncSentinel = "sync"

// Wire field sizes
const (
	DefaultChecksumLength = 32
	DefaultLocationLength = 35
	DefaultWordLength     = 3000
	DefaultFilenameLength = 15
	DefaultMaxRetries     = 5
)

// Timing defaults
const (
	DefaultReadTimeout        = 3 * time.Second
	DefaultGetSettingsTimeout = 10 * time.Second
	DefaultSetSettingsTimeout = 10 * time.Second
	DefaultConnTestTimeout    = 20 * time.Second
	DefaultTimeSyncTimeout    = 20 * time.Second
	DefaultGPSTimeout         = 5 * time.Second
	DefaultPingTimeout        = 10 * time.Second
	DefaultPingCount          = 10
)

// RemoteTimeLayout is the clock format reported by the payload on time sync.
const RemoteTimeLayout = "01/02/2006 15:04:05"
