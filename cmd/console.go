// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive operator console",
	Long: `Drive the payload from an interactive terminal UI.

Every ground-station operation is available from the menu: latest image,
listing, fetch by name, camera settings, connection test, time sync and GPS.
Images from the last listing can be fetched directly. Location blocks and link
statistics are shown live, and GPS polling can be toggled with 'g'.

Only one operation runs at a time; starting another while the link is busy is
rejected. Console logging is disabled while the UI is up; the session event
log still records everything. WebSocket links reconnect automatically.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// linkManager owns the dispatcher and its reconnection for the console
type linkManager struct {
	rt   *runtime
	mu   sync.RWMutex
	d    *rfdlink.Dispatcher
	p    *tea.Program
	ctx  context.Context
	stop context.CancelFunc

	reconnecting sync.Mutex
}

func (lm *linkManager) dispatcher() *rfdlink.Dispatcher {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.d
}

func (lm *linkManager) setDispatcher(d *rfdlink.Dispatcher) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.d = d
}

func (lm *linkManager) send(msg tea.Msg) {
	if lm.p != nil {
		lm.p.Send(msg)
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	// The console core would draw over the UI.
	v.Set("logging.console", false)

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	lm := &linkManager{rt: rt}
	lm.ctx, lm.stop = signalContext(cmd)
	defer lm.stop()

	rt.observers = append(rt.observers, rfdlink.TelemetryFunc(func(loc rfdlink.Location) {
		loc.Block = append([]byte(nil), loc.Block...)
		lm.send(locationMsg(loc))
	}))

	d, err := rt.dispatcher()
	if err != nil {
		return err
	}
	lm.setDispatcher(d)

	m := initialConsoleModel(lm, rt.connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(lm.ctx))
	lm.p = p

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// linkLost reports whether err means the underlying connection is gone
// rather than the payload being silent.
func linkLost(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// do runs fn on the dispatcher off the UI goroutine and reports the outcome
// as an opDoneMsg.
func (lm *linkManager) do(op string, fn func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg) tea.Cmd {
	return func() tea.Msg {
		d := lm.dispatcher()
		if d == nil {
			return opDoneMsg{op: op, err: errors.New("connection lost")}
		}
		msg := fn(lm.ctx, d)
		msg.op = op
		if linkLost(msg.err) {
			go lm.reconnect()
		}
		return msg
	}
}

// reconnect reopens the link with exponential backoff.
func (lm *linkManager) reconnect() {
	if !lm.reconnecting.TryLock() {
		return
	}
	defer lm.reconnecting.Unlock()

	lm.setDispatcher(nil)
	lm.send(connectionLostMsg{})

	if lm.rt.link != nil {
		lm.rt.link.Close()
		lm.rt.link = nil
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-lm.ctx.Done():
			return
		case <-time.After(backoff):
		}

		d, err := lm.rt.dispatcher()
		if err == nil {
			lm.setDispatcher(d)
			lm.send(reconnectedMsg{connInfo: lm.rt.connInfo})
			return
		}
		lm.rt.logger.Warn("Reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
