// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PingSample is one echoed ping.
type PingSample struct {
	Sent     time.Time
	Received time.Time
}

// RTT returns the round-trip time for the sample.
func (p PingSample) RTT() time.Duration {
	return p.Received.Sub(p.Sent)
}

// PingResult is a completed connection test.
type PingResult struct {
	Samples []PingSample
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
}

func newPingResult(samples []PingSample) *PingResult {
	r := &PingResult{Samples: samples}
	if len(samples) == 0 {
		return r
	}
	var total time.Duration
	r.Min = samples[0].RTT()
	for _, s := range samples {
		rtt := s.RTT()
		total += rtt
		r.Min = min(r.Min, rtt)
		r.Max = max(r.Max, rtt)
	}
	r.Mean = total / time.Duration(len(samples))
	return r
}

// ConnectionTest measures round-trip latency with n pings. If any ping goes
// unanswered the test stops, the payload is released with CmdDone and a
// *PingTimeoutError is returned; no partial average is reported.
func (d *Dispatcher) ConnectionTest(ctx context.Context, n int) (*PingResult, error) {
	release, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	d.logger.Info("Starting connection test", zap.Int("pings", n))
	if err := d.handshake(ctx, ConnectionTest); err != nil {
		return nil, err
	}
	return d.connectionTest(ctx, n)
}

// connectionTest runs the ping loop after the payload entered test mode.
func (d *Dispatcher) connectionTest(ctx context.Context, n int) (*PingResult, error) {
	if n <= 0 {
		n = DefaultPingCount
	}
	d.opts.stats.update(func(c *Counters) { c.PingTests++ })

	samples := make([]PingSample, 0, n)
	for i := 1; i <= n; i++ {
		sample, err := d.ping(ctx, i, n)
		if err != nil {
			d.opts.stats.update(func(c *Counters) { c.PingFailures++ })
			if derr := d.link.WriteByte(CmdDone); derr != nil {
				d.logger.Warn("Failed to end connection test", zap.Error(derr))
			}
			d.logger.Error("Connection test failed", zap.Int("ping", i), zap.Error(err))
			return nil, err
		}
		d.logger.Debug("Ping returned", zap.Int("ping", i), zap.Duration("rtt", sample.RTT()))
		samples = append(samples, sample)
	}

	if err := d.link.WriteByte(CmdDone); err != nil {
		return nil, err
	}

	result := newPingResult(samples)
	d.opts.stats.update(func(c *Counters) { c.LastPingMean = result.Mean })
	d.logger.Info("Connection test complete",
		zap.Int("pings", n),
		zap.Duration("mean", result.Mean),
		zap.Duration("min", result.Min),
		zap.Duration("max", result.Max),
	)
	return result, nil
}

// ping sends CmdPing until the payload echoes it or the ping window closes.
func (d *Dispatcher) ping(ctx context.Context, i, n int) (PingSample, error) {
	timeout := d.opts.timeouts.Ping
	sent := d.link.Now()
	for {
		if err := d.link.WriteByte(CmdPing); err != nil {
			return PingSample{}, err
		}
		b, ok, err := d.link.ReadOne()
		if err != nil {
			return PingSample{}, err
		}
		if ok && b == CmdPing {
			return PingSample{Sent: sent, Received: d.link.Now()}, nil
		}
		if err := ctx.Err(); err != nil {
			return PingSample{}, err
		}
		if d.link.Now().Sub(sent) > timeout {
			return PingSample{}, &PingTimeoutError{Sample: i, Count: n, Timeout: timeout}
		}
	}
}
