// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher issues commands to the payload and runs the sub-protocol that
// follows each acknowledgment. Only one exchange may own the link at a time;
// a second caller gets ErrLinkBusy instead of waiting.
type Dispatcher struct {
	mu     sync.Mutex
	link   *Transport
	opts   options
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over link.
func NewDispatcher(link *Transport, opts ...Option) *Dispatcher {
	o := buildOptions(opts)
	return &Dispatcher{
		link:   link,
		opts:   o,
		logger: o.logger,
	}
}

// Link returns the underlying transport.
func (d *Dispatcher) Link() *Transport {
	return d.link
}

// Statistics returns the tracker passed with WithStatistics, or nil.
func (d *Dispatcher) Statistics() *Statistics {
	return d.opts.stats
}

func (d *Dispatcher) acquire() (release func(), err error) {
	if !d.mu.TryLock() {
		return nil, ErrLinkBusy
	}
	return d.mu.Unlock, nil
}

// handshake writes cmd and waits for AckByte, rewriting cmd after every
// silent or foreign read. timeout bounds the wait; zero waits until ctx is
// done.
func (d *Dispatcher) handshake(ctx context.Context, cmd Command) error {
	d.opts.stats.update(func(c *Counters) { c.Commands++ })
	d.logger.Debug("Sending command", zap.Stringer("command", cmd))

	if err := d.link.WriteByte(byte(cmd)); err != nil {
		return err
	}
	return d.awaitAck(ctx, cmd, d.opts.timeouts.AckTimeout(cmd), true)
}

func (d *Dispatcher) awaitAck(ctx context.Context, cmd Command, timeout time.Duration, resend bool) error {
	start := d.link.Now()
	for {
		b, ok, err := d.link.ReadOne()
		if err != nil {
			return err
		}
		if ok && b == AckByte {
			d.logger.Debug("Acknowledged", zap.Stringer("command", cmd))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if timeout > 0 && d.link.Now().Sub(start) > timeout {
			d.opts.stats.update(func(c *Counters) { c.AckTimeouts++ })
			d.logger.Error("No acknowledge received, connection error",
				zap.Stringer("command", cmd),
				zap.Duration("timeout", timeout),
			)
			return &AckTimeoutError{Command: cmd, Timeout: timeout}
		}
		if !resend {
			continue
		}
		d.logger.Debug("Waiting for acknowledge", zap.Stringer("command", cmd))
		if err := d.link.WriteByte(byte(cmd)); err != nil {
			return err
		}
	}
}

// ImageTransfer is the outcome of an image request.
type ImageTransfer struct {
	Hint   string // filename hint sent by the payload before the data
	Name   string // name requested by RequestSpecific
	Result *TransferResult
}

// RequestLatest asks the payload for its most recent image and receives it.
// The payload sends a fixed-length filename hint before the first chunk.
func (d *Dispatcher) RequestLatest(ctx context.Context) (*ImageTransfer, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Requested most recent image")
	if err := d.link.FlushInput(); err != nil {
		return nil, err
	}
	if err := d.handshake(ctx, RequestLatest); err != nil {
		return nil, err
	}

	hint, err := d.link.Read(d.opts.transfer.FilenameLength)
	if err != nil {
		return nil, err
	}
	out := &ImageTransfer{Hint: strings.TrimRight(string(hint), "\x00 ")}
	d.logger.Debug("Image name hint", zap.String("hint", out.Hint))

	out.Result, err = newSession(d.link, d.opts).Run(ctx)
	return out, err
}

// RequestSpecific asks the payload for the image called name, as listed by
// RequestListing. Names longer than the filename field are cut to fit.
func (d *Dispatcher) RequestSpecific(ctx context.Context, name string) (*ImageTransfer, error) {
	if name == "" {
		return nil, fmt.Errorf("image name is empty")
	}
	if n := d.opts.transfer.FilenameLength; len(name) > n {
		name = name[:n]
	}

	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Requested specific image", zap.String("name", name))
	if err := d.handshake(ctx, RequestSpecific); err != nil {
		return nil, err
	}
	if _, err := Resync(d.link); err != nil {
		return nil, err
	}
	if err := d.link.Write([]byte(name)); err != nil {
		return nil, err
	}

	out := &ImageTransfer{Name: name}
	out.Result, err = newSession(d.link, d.opts).Run(ctx)
	return out, err
}

// RequestListing asks the payload for its image directory. Each raw line is
// copied to w as it arrives (w may be nil); the returned entries have their
// line endings trimmed. The listing ends at the first silent read.
func (d *Dispatcher) RequestListing(ctx context.Context, w io.Writer) ([]string, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Requested image listing")
	if err := d.link.FlushInput(); err != nil {
		return nil, err
	}
	if err := d.handshake(ctx, RequestListing); err != nil {
		return nil, err
	}

	var entries []string
	for {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		line, err := d.link.ReadLine()
		if err != nil {
			return entries, err
		}
		if len(line) == 0 {
			break
		}
		if w != nil {
			if _, err := w.Write(line); err != nil {
				return entries, fmt.Errorf("failed to store listing: %w", err)
			}
		}
		if entry := strings.TrimRight(string(line), "\r\n"); entry != "" {
			entries = append(entries, entry)
		}
	}

	d.logger.Info("Image listing received", zap.Int("entries", len(entries)))
	return entries, nil
}

// SettingsDownload is the payload's camera configuration as received.
type SettingsDownload struct {
	Raw      []byte // record text up to the terminator
	Settings Settings
}

// GetSettings downloads and parses the payload's camera settings.
func (d *Dispatcher) GetSettings(ctx context.Context) (*SettingsDownload, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Requesting camera settings")
	if err := d.handshake(ctx, GetSettings); err != nil {
		return nil, err
	}

	raw, err := d.link.ReadUntil(SettingEOT)
	if err != nil {
		return nil, err
	}
	s, err := ParseSettings(raw)
	if err != nil {
		d.logger.Error("Invalid settings record", zap.ByteString("raw", raw), zap.Error(err))
		return &SettingsDownload{Raw: raw}, err
	}
	d.logger.Info("Camera settings received", zap.Object("settings", s))
	return &SettingsDownload{Raw: raw, Settings: s}, nil
}

// SetSettings validates s and uploads it to the payload. Nothing is sent when
// validation fails.
func (d *Dispatcher) SetSettings(ctx context.Context, s Settings) error {
	record, err := s.MarshalText()
	if err != nil {
		return err
	}

	release, err := d.acquire()
	if err != nil {
		return err
	}
	defer release()

	d.logger.Info("Sending camera settings", zap.Object("settings", s))
	if err := d.handshake(ctx, SetSettings); err != nil {
		return err
	}
	if err := d.link.Write(record); err != nil {
		return err
	}
	if err := d.awaitAck(ctx, SetSettings, d.opts.timeouts.SetSettingsDone, false); err != nil {
		return err
	}
	d.logger.Info("Camera settings applied")
	return nil
}

// TimeSyncResult reports the payload clock and the connection test that
// follows a time sync.
type TimeSyncResult struct {
	Remote    string        // clock text as reported
	Parsed    bool          // Remote matched RemoteTimeLayout
	Drift     time.Duration // local minus remote; advisory only
	LocalTime time.Time
	Ping      *PingResult
}

// TimeSync reads the payload clock, reports the drift against the local
// clock, and then runs a connection test. The drift is informational; the
// payload clock is not corrected.
func (d *Dispatcher) TimeSync(ctx context.Context) (*TimeSyncResult, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Starting time sync")
	if err := d.handshake(ctx, TimeSync); err != nil {
		return nil, err
	}

	res := &TimeSyncResult{LocalTime: d.link.Now()}
	line, err := d.link.ReadLine()
	if err != nil {
		return res, err
	}
	res.Remote = string(bytes.TrimSpace(line))
	if remote, perr := time.ParseInLocation(RemoteTimeLayout, res.Remote, res.LocalTime.Location()); perr == nil {
		res.Parsed = true
		res.Drift = res.LocalTime.Sub(remote)
	}
	d.logger.Info("Payload clock",
		zap.String("remote", res.Remote),
		zap.Bool("parsed", res.Parsed),
		zap.Duration("drift", res.Drift),
	)

	// The payload returns to command mode after the clock line.
	if err := d.handshake(ctx, ConnectionTest); err != nil {
		return res, err
	}
	res.Ping, err = d.connectionTest(ctx, d.opts.pings)
	return res, err
}

// RequestGPS asks the payload for a location fix and forwards it to the
// telemetry sink.
func (d *Dispatcher) RequestGPS(ctx context.Context) (*Location, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Requesting GPS fix")
	if err := d.link.FlushInput(); err != nil {
		return nil, err
	}
	if err := d.handshake(ctx, RequestGPS); err != nil {
		return nil, err
	}

	block, err := d.link.Read(d.opts.transfer.LocationLength)
	if err != nil {
		return nil, err
	}
	if len(block) == 0 {
		d.logger.Warn("No location block received")
		return nil, fmt.Errorf("%w: no location block received", ErrConnection)
	}

	loc := Location{Block: block, Source: SourceGPS, Received: d.link.Now()}
	d.opts.stats.update(func(c *Counters) { c.Locations++ })
	d.opts.sink.Forward(loc)
	d.logger.Info("GPS fix received", zap.ByteString("location", block))
	return &loc, nil
}
