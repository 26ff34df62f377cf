// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads ground-station configuration from an optional YAML
// file, RFDLINK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
	"github.com/Thermoquad/rfdlink/pkg/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. RFDLINK_LINK_PORT.
const EnvPrefix = "RFDLINK"

// Config represents the application configuration
type Config struct {
	Link      LinkConfig      `mapstructure:"link"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// LinkConfig selects the radio modem connection
type LinkConfig struct {
	Port          string        `mapstructure:"port"`
	Baud          int           `mapstructure:"baud"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	NoSSLVerify   bool          `mapstructure:"no_ssl_verify"`
	PasswordEnv   string        `mapstructure:"password_env"`
	HandshakeWait time.Duration `mapstructure:"handshake_timeout"`
}

// ProtocolConfig holds the chunk layout and acknowledgment windows
type ProtocolConfig struct {
	WordLength     int            `mapstructure:"word_length"`
	ChecksumLength int            `mapstructure:"checksum_length"`
	LocationLength int            `mapstructure:"location_length"`
	FilenameLength int            `mapstructure:"filename_length"`
	MaxRetries     int            `mapstructure:"max_retries"`
	PingCount      int            `mapstructure:"ping_count"`
	Timeouts       TimeoutsConfig `mapstructure:"timeouts"`
}

// TimeoutsConfig holds per-command acknowledgment windows. Zero waits
// indefinitely.
type TimeoutsConfig struct {
	RequestLatest   time.Duration `mapstructure:"request_latest"`
	RequestListing  time.Duration `mapstructure:"request_listing"`
	RequestSpecific time.Duration `mapstructure:"request_specific"`
	GetSettings     time.Duration `mapstructure:"get_settings"`
	SetSettings     time.Duration `mapstructure:"set_settings"`
	SetSettingsDone time.Duration `mapstructure:"set_settings_done"`
	ConnectionTest  time.Duration `mapstructure:"connection_test"`
	TimeSync        time.Duration `mapstructure:"time_sync"`
	RequestGPS      time.Duration `mapstructure:"request_gps"`
	Ping            time.Duration `mapstructure:"ping"`
}

// TelemetryConfig represents location forwarding configuration
type TelemetryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	URL          string        `mapstructure:"url"`
	Format       string        `mapstructure:"format"`
	QueueSize    int           `mapstructure:"queue_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig represents where received data is stored
type SessionConfig struct {
	Root         string `mapstructure:"root"`
	ListingName  string `mapstructure:"listing_name"`
	SettingsFile string `mapstructure:"settings_file"`
	Extension    string `mapstructure:"extension"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Console    bool   `mapstructure:"console"`
	EventLog   bool   `mapstructure:"event_log"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// New returns a viper instance with defaults and environment overrides
// registered. Callers bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("rfdlink")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "rfdlink"))
	}

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads configFile (or rfdlink.yaml from the search path when empty)
// and decodes the merged configuration. A missing search-path file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Link defaults
	v.SetDefault("link.port", "")
	v.SetDefault("link.baud", 38400)
	v.SetDefault("link.read_timeout", rfdlink.DefaultReadTimeout)
	v.SetDefault("link.url", "")
	v.SetDefault("link.username", "")
	v.SetDefault("link.no_ssl_verify", false)
	v.SetDefault("link.password_env", "RFDLINK_PASSWORD")
	v.SetDefault("link.handshake_timeout", "10s")

	// Protocol defaults
	v.SetDefault("protocol.word_length", rfdlink.DefaultWordLength)
	v.SetDefault("protocol.checksum_length", rfdlink.DefaultChecksumLength)
	v.SetDefault("protocol.location_length", rfdlink.DefaultLocationLength)
	v.SetDefault("protocol.filename_length", rfdlink.DefaultFilenameLength)
	v.SetDefault("protocol.max_retries", rfdlink.DefaultMaxRetries)
	v.SetDefault("protocol.ping_count", rfdlink.DefaultPingCount)

	t := rfdlink.DefaultTimeouts()
	v.SetDefault("protocol.timeouts.request_latest", t.RequestLatest)
	v.SetDefault("protocol.timeouts.request_listing", t.RequestListing)
	v.SetDefault("protocol.timeouts.request_specific", t.RequestSpecific)
	v.SetDefault("protocol.timeouts.get_settings", t.GetSettings)
	v.SetDefault("protocol.timeouts.set_settings", t.SetSettings)
	v.SetDefault("protocol.timeouts.set_settings_done", t.SetSettingsDone)
	v.SetDefault("protocol.timeouts.connection_test", t.ConnectionTest)
	v.SetDefault("protocol.timeouts.time_sync", t.TimeSync)
	v.SetDefault("protocol.timeouts.request_gps", t.RequestGPS)
	v.SetDefault("protocol.timeouts.ping", t.Ping)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.addr", telemetry.DefaultTCPAddr)
	v.SetDefault("telemetry.url", "")
	v.SetDefault("telemetry.format", string(telemetry.FormatRaw))
	v.SetDefault("telemetry.queue_size", telemetry.DefaultQueueSize)
	v.SetDefault("telemetry.write_timeout", "2s")

	// Session defaults
	v.SetDefault("session.root", ".")
	v.SetDefault("session.listing_name", "imagedata")
	v.SetDefault("session.settings_file", "camerasettings.txt")
	v.SetDefault("session.extension", ".png")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.event_log", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Link.Baud <= 0 {
		return fmt.Errorf("link.baud must be positive")
	}
	if config.Link.ReadTimeout <= 0 {
		return fmt.Errorf("link.read_timeout must be positive")
	}

	p := config.Protocol
	if p.WordLength <= 0 || p.ChecksumLength <= 0 || p.LocationLength <= 0 || p.FilenameLength <= 0 {
		return fmt.Errorf("protocol field lengths must be positive")
	}
	if p.ChecksumLength != rfdlink.DefaultChecksumLength {
		return fmt.Errorf("protocol.checksum_length must be %d for an MD5 hex digest", rfdlink.DefaultChecksumLength)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("protocol.max_retries must not be negative")
	}
	if p.PingCount <= 0 {
		return fmt.Errorf("protocol.ping_count must be positive")
	}
	if p.Timeouts.Ping <= 0 {
		return fmt.Errorf("protocol.timeouts.ping must be positive")
	}

	if _, err := telemetry.ParseFormat(config.Telemetry.Format); err != nil {
		return fmt.Errorf("telemetry.format: %w", err)
	}
	if config.Telemetry.QueueSize <= 0 {
		return fmt.Errorf("telemetry.queue_size must be positive")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	validFormats := []string{"console", "json"}
	if !slices.Contains(validFormats, config.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	return nil
}

// TransferConfig returns the chunk layout for the protocol engine.
func (c *Config) TransferConfig() rfdlink.TransferConfig {
	return rfdlink.TransferConfig{
		ChecksumLength: c.Protocol.ChecksumLength,
		LocationLength: c.Protocol.LocationLength,
		WordLength:     c.Protocol.WordLength,
		MaxRetries:     c.Protocol.MaxRetries,
		FilenameLength: c.Protocol.FilenameLength,
	}
}

// Timeouts returns the acknowledgment windows for the dispatcher.
func (c *Config) Timeouts() rfdlink.Timeouts {
	t := c.Protocol.Timeouts
	return rfdlink.Timeouts{
		RequestLatest:   t.RequestLatest,
		RequestListing:  t.RequestListing,
		RequestSpecific: t.RequestSpecific,
		GetSettings:     t.GetSettings,
		SetSettings:     t.SetSettings,
		SetSettingsDone: t.SetSettingsDone,
		ConnectionTest:  t.ConnectionTest,
		TimeSync:        t.TimeSync,
		RequestGPS:      t.RequestGPS,
		Ping:            t.Ping,
	}
}

// Password returns the WebSocket password from the configured environment
// variable, if set.
func (c *Config) Password() string {
	if c.Link.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Link.PasswordEnv)
}
