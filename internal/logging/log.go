package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := newLogger(os.Stdout, defaultConfig(ProfileRuntime))
	current.Store(&l)
}

// Apply installs cfg immediately, bypassing the configure-once guard.
func Apply(cfg Config) {
	var out io.Writer = os.Stdout
	if !cfg.NoColor && !cfg.Bypass {
		out = colorable.NewColorableStdout()
	}
	l := newLogger(out, cfg)
	current.Store(&l)
}

// SetOutput redirects the logger to w, keeping cfg semantics. Used by tests.
func SetOutput(w io.Writer, cfg Config) {
	l := newLogger(w, cfg)
	current.Store(&l)
}

// Logger returns the process-wide zerolog logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

func newLogger(out io.Writer, cfg Config) zerolog.Logger {
	if !cfg.Bypass {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
			PartsExclude: func() []string {
				if cfg.Timestamp {
					return nil
				}
				return []string{zerolog.TimestampFieldName}
			}(),
		}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Tracef logs at trace level.
func Tracef(format string, args ...any) {
	l := Logger()
	l.Trace().Msgf(format, args...)
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// Infof logs at info level.
func Infof(format string, args ...any) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// Warnf logs at warn level.
func Warnf(format string, args ...any) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// Errf logs at error level.
func Errf(format string, args ...any) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// Logf writes at no level; it shows regardless of the configured threshold
// unless logging is disabled.
func Logf(format string, args ...any) {
	l := Logger()
	l.Log().Msgf(format, args...)
}
