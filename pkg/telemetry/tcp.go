// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTCPAddr is where the ground station's mapping tool listens.
const DefaultTCPAddr = "localhost:5000"

// TCPSender writes each block to a TCP consumer. The connection is dialed on
// first use and redialed after any failure.
type TCPSender struct {
	addr   string
	dialer net.Dialer
	logger *zap.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPSender creates a sender for addr.
func NewTCPSender(addr string, logger *zap.Logger) *TCPSender {
	if addr == "" {
		addr = DefaultTCPAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TCPSender{
		addr:   addr,
		dialer: net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second},
		logger: logger.With(zap.String("protocol", "tcp"), zap.String("addr", addr)),
	}
}

// Send writes payload, dialing first if needed.
func (s *TCPSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", s.addr, err)
		}
		s.logger.Info("Telemetry consumer connected")
		s.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	} else {
		s.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := s.conn.Write(payload); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("failed to write to %s: %w", s.addr, err)
	}
	return nil
}

// Close closes the current connection, if any.
func (s *TCPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
