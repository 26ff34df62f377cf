// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/internal/config"
	"github.com/Thermoquad/rfdlink/internal/logging"
	"github.com/Thermoquad/rfdlink/internal/store"
	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
	"github.com/Thermoquad/rfdlink/pkg/telemetry"
)

var (
	cfgFile string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Output flags
	logLevel    string
	noTelemetry bool

	v = config.New()
)

// errTruncated marks a transfer that completed with partial data.
var errTruncated = errors.New("transfer truncated after exhausting retries")

var rootCmd = &cobra.Command{
	Use:   "rfdlink",
	Short: "RFD900 payload ground station",
	Long: `rfdlink - Ground station for a camera/GPS payload behind an RFD900 radio modem.

Requests images, listings, camera settings, GPS fixes and link tests over a
half-duplex serial radio link. Every location block received is forwarded to
the telemetry sink (TCP localhost:5000 by default).

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 38400]
  WebSocket: --url ws://host/path [--username user]

Configuration is read from rfdlink.yaml (current directory or
~/.config/rfdlink), RFDLINK_* environment variables and flags, in increasing
order of precedence. For WebSocket authentication, the password is read from
RFDLINK_PASSWORD, or prompted interactively if not set.

Exit codes:
  0 - Success
  1 - Protocol failure or truncated transfer
  2 - Connection error`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default rfdlink.yaml in . or ~/.config/rfdlink)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Console log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "Do not forward location blocks")

	bindFlag("link.port", "port")
	bindFlag("link.baud", "baud")
	bindFlag("link.url", "url")
	bindFlag("link.username", "username")
	bindFlag("link.no_ssl_verify", "no-ssl-verify")
	bindFlag("logging.level", "log-level")
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, rfdlink.ErrConnection):
		return 2
	default:
		return 1
	}
}

// runtime holds everything a link command needs for one process run.
type runtime struct {
	cfg       *config.Config
	store     *store.Store
	logs      *logging.Manager
	logger    *zap.Logger
	stats     *rfdlink.Statistics
	forwarder *telemetry.Forwarder
	observers []rfdlink.TelemetrySink
	link      *rfdlink.Transport
	connInfo  string
}

// newRuntime loads configuration, opens the session directory and event log,
// and starts the telemetry forwarder. It does not open the link.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(afero.NewOsFs(), store.Options{
		Root:         cfg.Session.Root,
		Extension:    cfg.Session.Extension,
		ListingName:  cfg.Session.ListingName,
		SettingsFile: cfg.Session.SettingsFile,
	}, time.Now())
	if err != nil {
		return nil, err
	}

	logs, err := logging.New(cfg.Logging, os.Stderr, st.EventLogPath())
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		store:  st,
		logs:   logs,
		logger: logs.Logger(),
		stats:  rfdlink.NewStatistics(),
	}

	if cfg.Telemetry.Enabled && !noTelemetry {
		fw, err := rt.newForwarder()
		if err != nil {
			logs.Close()
			return nil, err
		}
		rt.forwarder = fw
	}

	rt.logger.Info("Session started", zap.String("dir", st.Dir()))
	return rt, nil
}

func (rt *runtime) newForwarder() (*telemetry.Forwarder, error) {
	tc := rt.cfg.Telemetry
	format, err := telemetry.ParseFormat(tc.Format)
	if err != nil {
		return nil, err
	}

	var sender telemetry.Sender
	if tc.URL != "" {
		sender, err = telemetry.NewWebSocketSender(tc.URL, format, rt.cfg.Link.NoSSLVerify, rt.logger)
		if err != nil {
			return nil, err
		}
	} else {
		sender = telemetry.NewTCPSender(tc.Addr, rt.logger)
	}

	return telemetry.NewForwarder(sender,
		telemetry.WithFormat(format),
		telemetry.WithQueueSize(tc.QueueSize),
		telemetry.WithSendTimeout(tc.WriteTimeout),
		telemetry.WithLogger(rt.logger),
	), nil
}

// dispatcher opens the configured link and returns a dispatcher over it.
func (rt *runtime) dispatcher() (*rfdlink.Dispatcher, error) {
	if rt.link == nil {
		port, info, err := OpenPort(rt.cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", rfdlink.ErrConnection, err)
		}
		link, err := rfdlink.NewTransport(port, rt.cfg.Link.ReadTimeout)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: %v", rfdlink.ErrConnection, err)
		}
		rt.link = link
		rt.connInfo = info
		rt.logger.Info("Link open", zap.String("connection", info))
	}
	return rt.newDispatcher(rt.link), nil
}

func (rt *runtime) newDispatcher(link *rfdlink.Transport) *rfdlink.Dispatcher {
	opts := []rfdlink.Option{
		rfdlink.WithLogger(rt.logger),
		rfdlink.WithStatistics(rt.stats),
		rfdlink.WithTransferConfig(rt.cfg.TransferConfig()),
		rfdlink.WithTimeouts(rt.cfg.Timeouts()),
		rfdlink.WithPingCount(rt.cfg.Protocol.PingCount),
	}
	if sink := rt.telemetrySink(); sink != nil {
		opts = append(opts, rfdlink.WithTelemetry(sink))
	}
	return rfdlink.NewDispatcher(link, opts...)
}

// telemetrySink fans location blocks out to the forwarder and any observers.
func (rt *runtime) telemetrySink() rfdlink.TelemetrySink {
	var sinks []rfdlink.TelemetrySink
	if rt.forwarder != nil {
		sinks = append(sinks, rt.forwarder)
	}
	sinks = append(sinks, rt.observers...)

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return rfdlink.TelemetryFunc(func(loc rfdlink.Location) {
		for _, s := range sinks {
			s.Forward(loc)
		}
	})
}

// Close drains telemetry, closes the link and flushes the event log.
func (rt *runtime) Close() {
	if rt.forwarder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rt.forwarder.Close(ctx); err != nil {
			rt.logger.Warn("Telemetry shutdown incomplete", zap.Error(err))
		}
		cancel()
	}
	if rt.link != nil {
		if err := rt.link.Close(); err != nil {
			rt.logger.Warn("Link close failed", zap.Error(err))
		}
	}
	rt.logger.Info("Session ended", zap.Stringer("stats", rt.stats))
	rt.logs.Close()
}

// reportTransfer prints a transfer summary and maps truncation to an error.
func reportTransfer(r *rfdlink.TransferResult) error {
	fmt.Print(rfdlink.FormatTransfer(r))
	if r.Truncated {
		return errTruncated
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
