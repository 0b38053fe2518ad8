package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection-level defaults shared by client and server.
type Config struct {
	ConnectTimeout  time.Duration
	ConnectAttempts int
	// ReadTimeout bounds every read once a session started. Zero keeps reads
	// unbounded, so a stalled peer can hold its Endpoint indefinitely.
	ReadTimeout time.Duration
	Backoff     BackoffConfig
}

// DefaultConfig uses a 3s connect timeout, one attempt and unbounded reads.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  3 * time.Second,
		ConnectAttempts: 1,
		ReadTimeout:     0,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = def.ConnectAttempts
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
