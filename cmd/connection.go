// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/rfdlink/internal/config"
	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketPort carries the modem byte stream over a WebSocket bridge. Each
// message is a burst of modem bytes. It implements rfdlink.Port: a Read that
// sees no message within the read timeout returns (0, nil).
type WebSocketPort struct {
	conn     *websocket.Conn
	messages chan []byte
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	err     error
	timeout time.Duration

	buf []byte
}

// NewWebSocketPort starts reading from conn.
func NewWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	w := &WebSocketPort{
		conn:     conn,
		messages: make(chan []byte, 64),
		done:     make(chan struct{}),
		timeout:  rfdlink.DefaultReadTimeout,
	}
	go w.readLoop()
	return w
}

// readLoop owns conn reads. A read deadline would leave the gorilla
// connection unusable after the first timeout, so timeouts are applied to the
// channel instead.
func (w *WebSocketPort) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	if len(w.buf) == 0 {
		w.mu.Lock()
		timeout := w.timeout
		w.mu.Unlock()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case data, ok := <-w.messages:
			if !ok {
				return 0, w.closedErr()
			}
			w.buf = data
		case <-timer.C:
			return 0, nil
		}
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *WebSocketPort) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, w.err)
	}
	return ErrConnectionClosed
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout sets how long Read waits for the next message.
func (w *WebSocketPort) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = t
	return nil
}

// ResetInputBuffer discards buffered and queued messages.
func (w *WebSocketPort) ResetInputBuffer() error {
	w.buf = nil
	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// ResetOutputBuffer is a no-op; writes are not buffered.
func (w *WebSocketPort) ResetOutputBuffer() error {
	return nil
}

func (w *WebSocketPort) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}

// OpenSerialPort opens the radio modem serial port
func OpenSerialPort(portName string, baudRate int) (rfdlink.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return port, nil
}

// OpenWebSocketPort opens a WebSocket bridge to the modem with HTTP Basic auth
func OpenWebSocketPort(wsURL, username, password string, skipSSLVerify bool, handshakeTimeout time.Duration) (*WebSocketPort, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketPort(conn), nil
}

// GetPassword returns password when set, otherwise prompts the user
func GetPassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenPort opens either a serial or WebSocket link based on configuration
func OpenPort(cfg *config.Config) (rfdlink.Port, string, error) {
	link := cfg.Link
	if link.URL != "" {
		password := ""
		if link.Username != "" {
			var err error
			password, err = GetPassword(cfg.Password())
			if err != nil {
				return nil, "", err
			}
		}

		port, err := OpenWebSocketPort(link.URL, link.Username, password, link.NoSSLVerify, link.HandshakeWait)
		if err != nil {
			return nil, "", err
		}

		return port, fmt.Sprintf("WebSocket: %s", link.URL), nil
	}

	if link.Port != "" {
		port, err := OpenSerialPort(link.Port, link.Baud)
		if err != nil {
			return nil, "", err
		}

		return port, fmt.Sprintf("Serial: %s @ %d baud", link.Port, link.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
