// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketSender publishes each block as one WebSocket message: binary for
// CBOR envelopes, text for raw blocks.
type WebSocketSender struct {
	url    string
	format Format
	dialer websocket.Dialer
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSender creates a sender for a ws:// or wss:// URL.
func NewWebSocketSender(wsURL string, format Format, skipSSLVerify bool, logger *zap.Logger) (*WebSocketSender, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	return &WebSocketSender{
		url:    wsURL,
		format: format,
		dialer: dialer,
		logger: logger.With(zap.String("protocol", "websocket"), zap.String("url", wsURL)),
	}, nil
}

// Send writes payload as one message, dialing first if needed.
func (s *WebSocketSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
			}
			return fmt.Errorf("WebSocket connection failed: %w", err)
		}
		s.logger.Info("Telemetry consumer connected")
		s.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}

	messageType := websocket.TextMessage
	if s.format == FormatCBOR {
		messageType = websocket.BinaryMessage
	}
	if err := s.conn.WriteMessage(messageType, payload); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("WebSocket write failed: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection, if any.
func (s *WebSocketSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}
