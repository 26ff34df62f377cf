// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"time"

	"go.uber.org/zap"
)

// TransferConfig holds the chunk layout negotiated with the payload.
type TransferConfig struct {
	ChecksumLength int // bytes of hex digest per chunk
	LocationLength int // bytes of location block per chunk
	WordLength     int // maximum payload bytes per chunk
	MaxRetries     int // checksum retries per chunk before truncating
	FilenameLength int // bytes of filename hint before an image transfer
}

// DefaultTransferConfig returns the stock RFD900 payload layout.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		ChecksumLength: DefaultChecksumLength,
		LocationLength: DefaultLocationLength,
		WordLength:     DefaultWordLength,
		MaxRetries:     DefaultMaxRetries,
		FilenameLength: DefaultFilenameLength,
	}
}

// Timeouts holds the acknowledgment windows per command. Zero means the
// dispatcher waits for the acknowledgment indefinitely.
type Timeouts struct {
	RequestLatest   time.Duration
	RequestListing  time.Duration
	RequestSpecific time.Duration
	GetSettings     time.Duration
	SetSettings     time.Duration // first acknowledgment of '5'
	SetSettingsDone time.Duration // acknowledgment after the record was sent
	ConnectionTest  time.Duration
	TimeSync        time.Duration
	RequestGPS      time.Duration
	Ping            time.Duration // per ping echo
}

// DefaultTimeouts returns the ground station's stock acknowledgment windows.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		GetSettings:     DefaultGetSettingsTimeout,
		SetSettingsDone: DefaultSetSettingsTimeout,
		ConnectionTest:  DefaultConnTestTimeout,
		TimeSync:        DefaultTimeSyncTimeout,
		RequestGPS:      DefaultGPSTimeout,
		Ping:            DefaultPingTimeout,
	}
}

type options struct {
	logger   *zap.Logger
	sink     TelemetrySink
	stats    *Statistics
	transfer TransferConfig
	timeouts Timeouts
	pings    int
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		sink:     NopTelemetry,
		transfer: DefaultTransferConfig(),
		timeouts: DefaultTimeouts(),
		pings:    DefaultPingCount,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Dispatcher or a standalone transfer Session.
type Option func(*options)

// WithLogger sets the logger for protocol events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTelemetry sets the sink that receives location blocks.
func WithTelemetry(sink TelemetrySink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithStatistics records link activity into stats.
func WithStatistics(stats *Statistics) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithTransferConfig overrides the chunk layout.
func WithTransferConfig(cfg TransferConfig) Option {
	return func(o *options) {
		o.transfer = cfg
	}
}

// WithTimeouts overrides the acknowledgment windows.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) {
		o.timeouts = t
	}
}

// WithPingCount sets the number of pings in a time-sync connection test.
func WithPingCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pings = n
		}
	}
}
