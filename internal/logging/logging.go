// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the ground station's event logger: a console core
// for the operator and a rotating event-log file in the session directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/rfdlink/internal/config"
)

// Manager owns the logger and its rotating file.
type Manager struct {
	logger *zap.Logger
	config config.LoggingConfig
	file   *lumberjack.Logger
}

// New creates a logger from cfg. Console output goes to console (stderr when
// nil). When cfg.EventLog is set and eventLog is non-empty, every record is
// also written to eventLog with rotation.
func New(cfg config.LoggingConfig, console io.Writer, eventLog string) (*Manager, error) {
	m := &Manager{config: cfg}

	level, err := m.getLogLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var cores []zapcore.Core
	if cfg.Console {
		if console == nil {
			console = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(m.consoleEncoder(), zapcore.AddSync(console), level))
	}

	if cfg.EventLog && eventLog != "" {
		syncer, err := m.getFileSyncer(eventLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create event log: %w", err)
		}
		// The event log records everything at debug and above regardless of
		// the console level.
		cores = append(cores, zapcore.NewCore(m.fileEncoder(), syncer, zapcore.DebugLevel))
	}

	if len(cores) == 0 {
		m.logger = zap.NewNop()
		return m, nil
	}

	m.logger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return m, nil
}

// Logger returns the configured logger.
func (m *Manager) Logger() *zap.Logger {
	return m.logger
}

// Close flushes buffered records and closes the event log file.
func (m *Manager) Close() error {
	// Sync on a terminal stderr returns EINVAL on some platforms; ignore it.
	_ = m.logger.Sync()
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

func (m *Manager) encoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"
	return config
}

func (m *Manager) consoleEncoder() zapcore.Encoder {
	config := m.encoderConfig()
	if m.config.Format == "json" {
		return zapcore.NewJSONEncoder(config)
	}
	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	return zapcore.NewConsoleEncoder(config)
}

func (m *Manager) fileEncoder() zapcore.Encoder {
	config := m.encoderConfig()
	if m.config.Format == "json" {
		return zapcore.NewJSONEncoder(config)
	}
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	return zapcore.NewConsoleEncoder(config)
}

// getFileSyncer returns a rotating writer for path
func (m *Manager) getFileSyncer(path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	m.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    m.config.MaxSize, // MB
		MaxBackups: m.config.MaxBackups,
		MaxAge:     m.config.MaxAge, // days
		Compress:   m.config.Compress,
	}
	return zapcore.AddSync(m.file), nil
}

// getLogLevel parses and returns log level
func (m *Manager) getLogLevel() (zapcore.Level, error) {
	switch m.config.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", m.config.Level)
	}
}
