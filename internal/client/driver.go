// Package client drives one netspeed session from the connecting side:
// connect, read the server status, ping, downstream test, upstream test.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conduitio/bwlimit"
	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/measure"
	"github.com/danmuck/netspeed/internal/protocol"
	"github.com/danmuck/netspeed/internal/protocol/session"
)

const (
	DefaultAddress  = "localhost:5555"
	DefaultDuration = 3 * time.Second
	MaxDuration     = 10 * time.Second
)

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrInvalidDuration = errors.New("client: invalid duration")
)

// DriverConfig configures one client run.
type DriverConfig struct {
	Address string
	// Duration is the length of each directional test, in whole seconds.
	Duration time.Duration
	// ExtraPings adds ping rounds after the handshake and before the tests.
	ExtraPings         int
	UploadLimitBytes   int
	DownloadLimitBytes int
	Session            session.Config
}

// DefaultDriverConfig targets localhost:5555 with 3s tests in each direction.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Address:  DefaultAddress,
		Duration: DefaultDuration,
		Session:  session.DefaultConfig(),
	}
}

// Validate checks the address and that Duration is whole seconds within MaxDuration.
func (c DriverConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if c.Duration < 0 || c.Duration > MaxDuration {
		return fmt.Errorf("%w: %s (max %s)", ErrInvalidDuration, c.Duration, MaxDuration)
	}
	if c.Duration%time.Second != 0 {
		return fmt.Errorf("%w: %s is not whole seconds", ErrInvalidDuration, c.Duration)
	}
	if c.ExtraPings < 0 {
		return fmt.Errorf("client: extra pings must not be negative: %d", c.ExtraPings)
	}
	return nil
}

// Report is the outcome of a full run. It is only produced when every step
// succeeded.
type Report struct {
	Address    string
	Downstream measure.Throughput
	Upstream   measure.Throughput
	Elapsed    time.Duration
}

// Driver owns one Endpoint for the whole session. It is not safe for
// concurrent use.
type Driver struct {
	cfg      DriverConfig
	endpoint *session.Endpoint
	buf      []byte
}

// Run executes the full sequence and reports both directions. Any failure
// aborts the run and no partial result is returned.
func Run(ctx context.Context, cfg DriverConfig) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	d, err := Connect(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	defer d.Close()

	if err := d.Ping(); err != nil {
		return Report{}, err
	}
	logging.Debugf("client.Run ping ok addr=%q", cfg.Address)
	for i := 0; i < cfg.ExtraPings; i++ {
		if err := d.Ping(); err != nil {
			return Report{}, err
		}
	}

	down, err := d.Downstream(cfg.Duration)
	if err != nil {
		return Report{}, err
	}
	logging.Infof("client.Run downstream %s", down)

	up, err := d.Upstream(cfg.Duration)
	if err != nil {
		return Report{}, err
	}
	logging.Infof("client.Run upstream %s", up)

	return Report{
		Address:    cfg.Address,
		Downstream: down,
		Upstream:   up,
		Elapsed:    time.Since(start),
	}, nil
}

// Connect dials the server and reads its initial status. A Decline surfaces
// as a capacity error carrying the server's reason.
func Connect(ctx context.Context, cfg DriverConfig) (*Driver, error) {
	cfg.Session = cfg.Session.WithDefaults()
	logging.Infof("client.Connect addr=%q", cfg.Address)
	conn, err := session.Dial(ctx, cfg.Address, cfg.Session)
	if err != nil {
		return nil, err
	}
	if cfg.UploadLimitBytes > 0 || cfg.DownloadLimitBytes > 0 {
		conn = bwlimit.NewConn(conn, bwlimit.Byte(cfg.UploadLimitBytes), bwlimit.Byte(cfg.DownloadLimitBytes))
	}

	d := &Driver{cfg: cfg, endpoint: session.NewEndpoint(conn, cfg.Session)}
	if err := d.readStatus(); err != nil {
		_ = d.endpoint.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) readStatus() error {
	cmd, err := d.endpoint.ReadCommand()
	if err != nil {
		return err
	}
	switch cmd {
	case protocol.Ready:
		logging.Debugf("client.Driver.readStatus ready addr=%q", d.cfg.Address)
		return nil
	case protocol.Decline:
		reason, err := d.endpoint.ReadDeclineReason()
		if err != nil {
			return err
		}
		logging.Warnf("client.Driver.readStatus declined addr=%q reason=%q", d.cfg.Address, reason.String())
		return protocol.CapacityError("read status", reason)
	case protocol.Close:
		return protocol.ConnectionError("read status", io.ErrUnexpectedEOF)
	default:
		return protocol.ProtocolError("read status", &protocol.UnexpectedCommandError{Got: cmd, Want: protocol.Ready})
	}
}

// Ping runs one write-then-read ping round.
func (d *Driver) Ping() error {
	return d.endpoint.PingInitiate()
}

// Downstream asks the server to send for dur and counts received bytes until
// Complete.
func (d *Driver) Downstream(dur time.Duration) (measure.Throughput, error) {
	if err := d.endpoint.WriteRequest(protocol.RequestDownstream, protocol.DurationOf(dur)); err != nil {
		return measure.Throughput{}, err
	}
	buf := d.chunk()
	var received uint64
	start := time.Now()
	for {
		cmd, err := d.endpoint.ReadCommand()
		if err != nil {
			return measure.Throughput{}, err
		}
		switch cmd {
		case protocol.SendBuffer:
			if err := d.endpoint.ReceiveChunk(buf); err != nil {
				return measure.Throughput{}, err
			}
			received += protocol.ChunkSize
		case protocol.Complete:
			return measure.Throughput{Bytes: received, Elapsed: time.Since(start)}, nil
		case protocol.Close:
			return measure.Throughput{}, protocol.ConnectionError("downstream", io.ErrUnexpectedEOF)
		default:
			return measure.Throughput{}, protocol.ProtocolError("downstream", &protocol.UnexpectedCommandError{Got: cmd})
		}
	}
}

// Upstream announces a test of dur, sends chunks until dur elapsed, then
// writes Complete.
func (d *Driver) Upstream(dur time.Duration) (measure.Throughput, error) {
	if err := d.endpoint.WriteRequest(protocol.RequestUpstream, protocol.DurationOf(dur)); err != nil {
		return measure.Throughput{}, err
	}
	buf := d.chunk()
	var sent uint64
	start := time.Now()
	for {
		if err := d.endpoint.SendChunk(buf); err != nil {
			return measure.Throughput{}, err
		}
		sent += protocol.ChunkSize
		if time.Since(start) >= dur {
			break
		}
	}
	if err := d.endpoint.WriteCommand(protocol.Complete); err != nil {
		return measure.Throughput{}, err
	}
	return measure.Throughput{Bytes: sent, Elapsed: time.Since(start)}, nil
}

// Close tells the server the session is over and releases the connection.
func (d *Driver) Close() error {
	if err := d.endpoint.WriteCommand(protocol.Close); err != nil {
		logging.Debugf("client.Driver.Close write close err=%v", err)
	}
	return d.endpoint.Close()
}

func (d *Driver) chunk() []byte {
	if d.buf == nil {
		d.buf = make([]byte, protocol.ChunkSize)
	}
	return d.buf
}
