// Package config loads netspeed TOML files for the server and the client.
// Only keys present in a file override the in-code defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/netspeed/internal/client"
	"github.com/danmuck/netspeed/internal/server"
)

// ServerFile is the server config.toml key mapping.
type ServerFile struct {
	Addr            string   `toml:"addr"`
	MaxThreads      uint32   `toml:"max_threads"`
	AdminAddr       string   `toml:"admin_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	ReadTimeout     string   `toml:"read_timeout"`
	DrainTimeout    string   `toml:"drain_timeout"`
	WriteLimitBytes int      `toml:"write_limit_bytes"`
	ReadLimitBytes  int      `toml:"read_limit_bytes"`
}

// ClientFile is the client config.toml key mapping. Duration is in whole
// seconds.
type ClientFile struct {
	Addr               string `toml:"addr"`
	Duration           int    `toml:"duration"`
	Pings              int    `toml:"pings"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ConnectAttempts    int    `toml:"connect_attempts"`
	ReadTimeout        string `toml:"read_timeout"`
	UploadLimitBytes   int    `toml:"upload_limit_bytes"`
	DownloadLimitBytes int    `toml:"download_limit_bytes"`
}

// LoadServerConfig overlays the keys defined in path onto DefaultServiceConfig and validates the result.
func LoadServerConfig(path string) (server.ServiceConfig, error) {
	cfg := server.DefaultServiceConfig()

	var raw ServerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("max_threads") {
		cfg.MaxThreads = raw.MaxThreads
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return server.ServiceConfig{}, fmt.Errorf("load server config: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("drain_timeout") {
		d, err := parseDuration("drain_timeout", raw.DrainTimeout)
		if err != nil {
			return server.ServiceConfig{}, fmt.Errorf("load server config: %w", err)
		}
		cfg.DrainTimeout = d
	}
	if meta.IsDefined("write_limit_bytes") {
		cfg.WriteLimitBytes = raw.WriteLimitBytes
	}
	if meta.IsDefined("read_limit_bytes") {
		cfg.ReadLimitBytes = raw.ReadLimitBytes
	}

	if err := ValidateServerConfig(cfg); err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load server config: %w", err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

// LoadClientConfig overlays the keys defined in path onto DefaultDriverConfig and validates the result.
func LoadClientConfig(path string) (client.DriverConfig, error) {
	cfg := client.DefaultDriverConfig()

	var raw ClientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.DriverConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("duration") {
		cfg.Duration = time.Duration(raw.Duration) * time.Second
	}
	if meta.IsDefined("pings") {
		cfg.ExtraPings = raw.Pings
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return client.DriverConfig{}, fmt.Errorf("load client config: %w", err)
		}
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("connect_attempts") {
		cfg.Session.ConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return client.DriverConfig{}, fmt.Errorf("load client config: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("upload_limit_bytes") {
		cfg.UploadLimitBytes = raw.UploadLimitBytes
	}
	if meta.IsDefined("download_limit_bytes") {
		cfg.DownloadLimitBytes = raw.DownloadLimitBytes
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return client.DriverConfig{}, fmt.Errorf("load client config: %w", err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

// ValidateServerConfig rejects an empty address, zero capacity and negative limits.
func ValidateServerConfig(cfg server.ServiceConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.MaxThreads == 0 {
		return fmt.Errorf("max_threads must be at least 1")
	}
	if cfg.WriteLimitBytes < 0 || cfg.ReadLimitBytes < 0 {
		return fmt.Errorf("bandwidth limits must not be negative")
	}
	if cfg.Session.ReadTimeout < 0 || cfg.DrainTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// ValidateClientConfig applies the driver checks plus the file-only fields.
func ValidateClientConfig(cfg client.DriverConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Session.ConnectAttempts < 0 {
		return fmt.Errorf("connect_attempts must not be negative")
	}
	if cfg.UploadLimitBytes < 0 || cfg.DownloadLimitBytes < 0 {
		return fmt.Errorf("bandwidth limits must not be negative")
	}
	return nil
}

// parseDuration accepts Go duration strings; an empty value means zero.
func parseDuration(key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative: %s", key, value)
	}
	return d, nil
}
