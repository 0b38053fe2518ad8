package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/conduitio/bwlimit"
	"github.com/danmuck/netspeed/internal/admission"
	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/observability"
	"github.com/danmuck/netspeed/internal/protocol"
	"github.com/danmuck/netspeed/internal/protocol/session"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultListenAddr = "localhost:5555"
	DefaultMaxThreads = 100

	declineWriteTimeout = time.Second
)

// ServiceConfig configures one netspeed server.
type ServiceConfig struct {
	ListenAddr string
	MaxThreads uint32
	// AdminListenAddr enables the admin HTTP surface when set.
	AdminListenAddr string
	CorsOrigins     []string
	// WriteLimitBytes and ReadLimitBytes cap per-connection bandwidth in
	// bytes per second. Zero means unlimited.
	WriteLimitBytes int
	ReadLimitBytes  int
	// DrainTimeout bounds how long Run waits for running Workers after the
	// listener stops.
	DrainTimeout time.Duration
	Session      session.Config
}

// DefaultServiceConfig listens on localhost:5555 with 100 session slots and no admin HTTP.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:   DefaultListenAddr,
		MaxThreads:   DefaultMaxThreads,
		DrainTimeout: 15 * time.Second,
		Session:      session.DefaultConfig(),
	}
}

// Service accepts connections, admits them against capacity and runs one
// Worker per admitted connection.
type Service struct {
	cfg       ServiceConfig
	admission *admission.Controller
	started   time.Time

	workers sync.WaitGroup
}

// NewService builds a Service from DefaultServiceConfig.
func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

// NewServiceWithConfig builds a Service whose admission capacity is cfg.MaxThreads.
func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	observability.RegisterMetrics()
	return &Service{
		cfg:       cfg,
		admission: admission.NewController(cfg.MaxThreads),
		started:   time.Now(),
	}
}

// Admission exposes the controller shared by this service's Workers.
func (s *Service) Admission() *admission.Controller {
	return s.admission
}

// Run listens, serves until ctx is done, then waits up to DrainTimeout for
// running Workers. Workers are never interrupted.
func (s *Service) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	logging.Infof("server.Service.Run listening addr=%q max_threads=%d", ln.Addr().String(), s.cfg.MaxThreads)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return s.serveAdmin(gctx, addr)
		})
	}
	err = g.Wait()
	s.drain(s.cfg.DrainTimeout)
	return err
}

// Listen binds the configured address, applying bandwidth caps when set.
func (s *Service) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return nil, protocol.ConnectionError("listen "+s.cfg.ListenAddr, err)
	}
	if s.cfg.WriteLimitBytes > 0 || s.cfg.ReadLimitBytes > 0 {
		logging.Infof(
			"server.Service.Listen bandwidth cap write_bytes=%d read_bytes=%d",
			s.cfg.WriteLimitBytes,
			s.cfg.ReadLimitBytes,
		)
		return bwlimit.NewListener(ln, bwlimit.Byte(s.cfg.WriteLimitBytes), bwlimit.Byte(s.cfg.ReadLimitBytes)), nil
	}
	return ln, nil
}

// Serve runs the accept loop on ln until ctx is done or ln fails.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return protocol.ConnectionError("accept", err)
		}
		s.handleConn(conn)
	}
}

// Wait blocks until every Worker started so far has returned.
func (s *Service) Wait() {
	s.workers.Wait()
}

func (s *Service) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	release, reason, ok := s.admission.TryAcquire()
	observability.RecordAdmission(ok)
	if !ok {
		logging.Warnf("server.Service.handleConn decline remote=%q reason=%q", remote, reason.String())
		s.decline(conn, reason)
		return
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer func() {
			release()
			observability.SessionEnded()
			logging.Infof("server.Service.handleConn session ended remote=%q active=%d", remote, s.admission.Active())
		}()
		defer func() {
			if r := recover(); r != nil {
				logging.Errf("server.Service.handleConn worker panic remote=%q panic=%v", remote, r)
				observability.RecordWorkerError("panic")
				_ = conn.Close()
			}
		}()

		w := NewWorker(session.NewEndpoint(conn, s.cfg.Session))
		logging.Infof("server.Service.handleConn accept remote=%q session=%s active=%d", remote, w.ID(), s.admission.Active())
		if err := w.Run(); err != nil {
			kind := protocol.KindOf(err)
			observability.RecordWorkerError(kind.String())
			logging.Errf("server.Worker session=%s remote=%q kind=%s err=%v", w.ID(), remote, kind, err)
		}
	}()
}

// decline answers a connection that was refused admission and closes it.
func (s *Service) decline(conn net.Conn, reason protocol.DeclineReason) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(declineWriteTimeout))
	ep := session.NewEndpoint(conn, s.cfg.Session)
	if err := ep.WriteDecline(reason); err != nil {
		logging.Warnf("server.Service.decline write remote=%q err=%v", conn.RemoteAddr().String(), err)
	}
}

func (s *Service) drain(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		logging.Infof("server.Service.drain all sessions finished")
	case <-timer.C:
		logging.Warnf("server.Service.drain timeout active=%d", s.admission.Active())
	}
}
