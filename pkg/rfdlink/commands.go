// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"fmt"
	"time"
)

// Command is a one-byte request from the ground station to the payload.
type Command byte

const (
	RequestLatest   Command = CmdRequestLatest
	RequestListing  Command = CmdRequestListing
	RequestSpecific Command = CmdRequestSpecific
	GetSettings     Command = CmdGetSettings
	SetSettings     Command = CmdSetSettings
	ConnectionTest  Command = CmdConnectionTest
	TimeSync        Command = CmdTimeSync
	RequestGPS      Command = CmdRequestGPS
)

// Commands lists every acknowledged command in wire-byte order.
var Commands = []Command{
	RequestLatest,
	RequestListing,
	RequestSpecific,
	GetSettings,
	SetSettings,
	ConnectionTest,
	TimeSync,
	RequestGPS,
}

// String returns the human-readable name for a command
func (c Command) String() string {
	switch c {
	case RequestLatest:
		return "REQUEST_LATEST"
	case RequestListing:
		return "REQUEST_LISTING"
	case RequestSpecific:
		return "REQUEST_SPECIFIC"
	case GetSettings:
		return "GET_SETTINGS"
	case SetSettings:
		return "SET_SETTINGS"
	case ConnectionTest:
		return "CONNECTION_TEST"
	case TimeSync:
		return "TIME_SYNC"
	case RequestGPS:
		return "REQUEST_GPS"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// AckTimeout returns the acknowledgment window configured for c.
// Zero means unbounded.
func (t Timeouts) AckTimeout(c Command) (timeout time.Duration) {
	switch c {
	case RequestLatest:
		return t.RequestLatest
	case RequestListing:
		return t.RequestListing
	case RequestSpecific:
		return t.RequestSpecific
	case GetSettings:
		return t.GetSettings
	case SetSettings:
		return t.SetSettings
	case ConnectionTest:
		return t.ConnectionTest
	case TimeSync:
		return t.TimeSync
	case RequestGPS:
		return t.RequestGPS
	}
	return 0
}
