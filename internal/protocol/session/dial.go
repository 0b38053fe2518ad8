package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/protocol"
)

// Dial connects to addr over TCP. Each attempt is bounded by cfg.ConnectTimeout;
// failed attempts are retried up to cfg.ConnectAttempts with backoff between them.
func Dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = classifyDialError(addr, err)
		logging.Warnf("session.Dial attempt=%d/%d addr=%q err=%v", attempt, cfg.ConnectAttempts, addr, err)
		if attempt == cfg.ConnectAttempts || ctx.Err() != nil {
			break
		}
		delay := retryDelay(cfg.Backoff, attempt, rng)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, protocol.ConnectionError(fmt.Sprintf("dial %s", addr), ctx.Err())
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func classifyDialError(addr string, err error) error {
	op := fmt.Sprintf("dial %s", addr)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return protocol.ConnectTimeoutError(op, err)
	}
	return protocol.ConnectionError(op, err)
}

// retryDelay returns the wait after failed attempt N (1-based).
func retryDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	mult := math.Max(cfg.Multiplier, 1.0)
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	return time.Duration(delay)
}
