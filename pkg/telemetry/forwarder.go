// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

// DefaultQueueSize is the number of blocks buffered ahead of a slow sender.
const DefaultQueueSize = 64

// Sender delivers one encoded block downstream.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Stats counts forwarder activity.
type Stats struct {
	Queued    uint64
	Delivered uint64
	Dropped   uint64 // queue full, forwarder closed, or drain abandoned
	Failed    uint64 // encode or send errors
}

// Forwarder is an rfdlink.TelemetrySink that hands blocks to a Sender on a
// background goroutine. Forward never blocks: when the queue is full the
// block is dropped and counted.
type Forwarder struct {
	sender  Sender
	format  Format
	timeout time.Duration
	logger  *zap.Logger

	queue  chan rfdlink.Location
	done   chan struct{}
	ctx    context.Context // cancelled when the drain is abandoned
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	seq    atomic.Uint64

	queued    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithFormat sets the wire encoding.
func WithFormat(f Format) ForwarderOption {
	return func(fw *Forwarder) {
		fw.format = f
	}
}

// WithQueueSize sets the number of buffered blocks.
func WithQueueSize(n int) ForwarderOption {
	return func(fw *Forwarder) {
		if n > 0 {
			fw.queue = make(chan rfdlink.Location, n)
		}
	}
}

// WithSendTimeout bounds each delivery.
func WithSendTimeout(d time.Duration) ForwarderOption {
	return func(fw *Forwarder) {
		fw.timeout = d
	}
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *zap.Logger) ForwarderOption {
	return func(fw *Forwarder) {
		if logger != nil {
			fw.logger = logger
		}
	}
}

// NewForwarder starts a forwarder delivering through sender.
func NewForwarder(sender Sender, opts ...ForwarderOption) *Forwarder {
	fw := &Forwarder{
		sender:  sender,
		format:  FormatRaw,
		timeout: 2 * time.Second,
		logger:  zap.NewNop(),
		queue:   make(chan rfdlink.Location, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	fw.logger = fw.logger.With(zap.String("component", "telemetry"))
	fw.ctx, fw.cancel = context.WithCancel(context.Background())
	go fw.run()
	return fw
}

// Forward queues loc for delivery.
func (fw *Forwarder) Forward(loc rfdlink.Location) {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	if fw.closed {
		fw.dropped.Add(1)
		return
	}

	// The session may reuse its read buffers.
	loc.Block = append([]byte(nil), loc.Block...)

	select {
	case fw.queue <- loc:
		fw.queued.Add(1)
	default:
		fw.dropped.Add(1)
		fw.logger.Warn("Telemetry queue full, dropping location block",
			zap.String("source", loc.Source),
		)
	}
}

func (fw *Forwarder) run() {
	defer close(fw.done)
	for loc := range fw.queue {
		if fw.ctx.Err() != nil {
			fw.dropped.Add(1)
			continue
		}
		fw.deliver(loc)
	}
}

func (fw *Forwarder) deliver(loc rfdlink.Location) {
	payload, err := Encode(fw.format, fw.seq.Add(1), loc)
	if err != nil {
		fw.failed.Add(1)
		fw.logger.Error("Failed to encode location block", zap.Error(err))
		return
	}

	ctx := fw.ctx
	if fw.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fw.timeout)
		defer cancel()
	}

	if err := fw.sender.Send(ctx, payload); err != nil {
		if fw.ctx.Err() != nil {
			fw.dropped.Add(1)
			return
		}
		fw.failed.Add(1)
		fw.logger.Warn("Failed to forward location block", zap.Error(err))
		return
	}
	fw.delivered.Add(1)
}

// Stats returns a snapshot of the forwarder counters.
func (fw *Forwarder) Stats() Stats {
	return Stats{
		Queued:    fw.queued.Load(),
		Delivered: fw.delivered.Load(),
		Dropped:   fw.dropped.Load(),
		Failed:    fw.failed.Load(),
	}
}

// Close stops accepting blocks, delivers what is queued, then closes the
// sender. ctx bounds the drain: when it expires the in-flight send is
// cancelled and the rest of the queue is dropped. The sender is closed only
// after the delivery goroutine has exited.
func (fw *Forwarder) Close(ctx context.Context) error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	close(fw.queue)
	fw.mu.Unlock()

	var drainErr error
	select {
	case <-fw.done:
	case <-ctx.Done():
		drainErr = ctx.Err()
		fw.cancel()
		<-fw.done
	}
	fw.cancel()

	s := fw.Stats()
	fw.logger.Info("Telemetry forwarder stopped",
		zap.Uint64("delivered", s.Delivered),
		zap.Uint64("dropped", s.Dropped),
		zap.Uint64("failed", s.Failed),
	)
	return errors.Join(drainErr, fw.sender.Close())
}
