// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Port is the byte pipe to the radio modem.
//
// go.bug.st/serial.Port satisfies it directly. A Read that returns (0, nil)
// means the read timeout elapsed with no data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Transport wraps a Port with the read semantics the protocol relies on:
// a bounded read returns whatever arrived before the timeout, and an empty
// result is a timeout rather than an error.
type Transport struct {
	port    Port
	timeout time.Duration
	now     func() time.Time

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithClock replaces the wall clock used for read deadlines and latency
// measurements.
func WithClock(now func() time.Time) TransportOption {
	return func(t *Transport) {
		t.now = now
	}
}

// NewTransport creates a Transport over port with the given read timeout.
func NewTransport(port Port, readTimeout time.Duration, opts ...TransportOption) (*Transport, error) {
	if port == nil {
		return nil, errors.New("rfdlink: nil port")
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	t := &Transport{
		port:    port,
		timeout: readTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return t, nil
}

// Timeout returns the configured read timeout.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// Now returns the transport clock's current time.
func (t *Transport) Now() time.Time {
	return t.now()
}

// Read reads up to n bytes, blocking until n bytes arrived or the read
// timeout elapsed. The returned slice may be shorter than n or empty.
func (t *Transport) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	got := 0
	deadline := t.now().Add(t.timeout)

	for got < n {
		remaining := deadline.Sub(t.now())
		if remaining <= 0 {
			break
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return buf[:got], fmt.Errorf("failed to set read timeout: %w", err)
		}

		k, err := t.port.Read(buf[got:])
		got += k
		if err != nil {
			t.bytesRead.Add(uint64(got))
			return buf[:got], fmt.Errorf("link read failed: %w", err)
		}
		if k == 0 {
			// Timeout with no data
			break
		}
	}

	t.bytesRead.Add(uint64(got))
	return buf[:got], nil
}

// ReadOne reads a single byte. ok is false when the read timed out.
func (t *Transport) ReadOne() (b byte, ok bool, err error) {
	data, err := t.Read(1)
	if err != nil || len(data) == 0 {
		return 0, false, err
	}
	return data[0], true, nil
}

// ReadLine reads until a '\n' (included in the result) or until a byte read
// times out. An empty result means nothing arrived.
func (t *Transport) ReadLine() ([]byte, error) {
	var line []byte
	for {
		b, ok, err := t.ReadOne()
		if err != nil {
			return line, err
		}
		if !ok {
			return line, nil
		}
		line = append(line, b)
		if b == '\n' {
			return line, nil
		}
	}
}

// ReadUntil reads single bytes until terminator (not included) or a read
// times out.
func (t *Transport) ReadUntil(terminator byte) ([]byte, error) {
	var out []byte
	for {
		b, ok, err := t.ReadOne()
		if err != nil {
			return out, err
		}
		if !ok || b == terminator {
			return out, nil
		}
		out = append(out, b)
	}
}

// Write writes all of p to the link.
func (t *Transport) Write(p []byte) error {
	for len(p) > 0 {
		n, err := t.port.Write(p)
		t.bytesWritten.Add(uint64(n))
		if err != nil {
			return fmt.Errorf("link write failed: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("link write failed: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// WriteByte writes a single control byte.
func (t *Transport) WriteByte(b byte) error {
	return t.Write([]byte{b})
}

// FlushInput discards received but unread bytes.
func (t *Transport) FlushInput() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush input: %w", err)
	}
	return nil
}

// FlushOutput discards written but unsent bytes.
func (t *Transport) FlushOutput() error {
	if err := t.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Counters returns the total bytes read from and written to the link.
func (t *Transport) Counters() (read, written uint64) {
	return t.bytesRead.Load(), t.bytesWritten.Load()
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	return t.port.Close()
}
