package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/netspeed/internal/client"
	"github.com/danmuck/netspeed/internal/server"
	"github.com/pelletier/go-toml/v2"
)

const (
	KindServer = "server"
	KindClient = "client"
)

// DefaultServerFile mirrors server.DefaultServiceConfig in file form.
func DefaultServerFile() ServerFile {
	def := server.DefaultServiceConfig()
	return ServerFile{
		Addr:         def.ListenAddr,
		MaxThreads:   def.MaxThreads,
		CorsOrigins:  []string{"http://localhost:3000"},
		ReadTimeout:  "0s",
		DrainTimeout: def.DrainTimeout.String(),
	}
}

// DefaultClientFile mirrors client.DefaultDriverConfig in file form.
func DefaultClientFile() ClientFile {
	def := client.DefaultDriverConfig()
	return ClientFile{
		Addr:            def.Address,
		Duration:        int(def.Duration.Seconds()),
		ConnectTimeout:  def.Session.ConnectTimeout.String(),
		ConnectAttempts: def.Session.ConnectAttempts,
		ReadTimeout:     "0s",
	}
}

// Template renders the default config file for kind (server or client).
func Template(kind string) (string, error) {
	var v any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		v = DefaultServerFile()
	case KindClient:
		v = DefaultClientFile()
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return string(out), nil
}

// WriteTemplate writes Template(kind) to path, refusing to replace a file unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as the given kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		_, err := LoadServerConfig(path)
		return err
	case KindClient:
		_, err := LoadClientConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}
