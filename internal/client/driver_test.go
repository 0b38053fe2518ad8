package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/netspeed/internal/protocol"
	"github.com/danmuck/netspeed/internal/server"
	"github.com/danmuck/netspeed/internal/testutil/testlog"
)

func startServer(t *testing.T, capacity uint32) (*server.Service, string) {
	t.Helper()
	cfg := server.DefaultServiceConfig()
	cfg.MaxThreads = capacity
	svc := server.NewServiceWithConfig(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
		svc.Wait()
	})
	return svc, ln.Addr().String()
}

func testDriverConfig(addr string) DriverConfig {
	cfg := DefaultDriverConfig()
	cfg.Address = addr
	cfg.Duration = 0
	cfg.Session.ConnectTimeout = 2 * time.Second
	return cfg
}

func TestDriverConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*DriverConfig)
		wantErr error
	}{
		{name: "defaults"},
		{name: "max duration", mutate: func(c *DriverConfig) { c.Duration = MaxDuration }},
		{name: "zero duration", mutate: func(c *DriverConfig) { c.Duration = 0 }},
		{name: "empty address", mutate: func(c *DriverConfig) { c.Address = "  " }, wantErr: ErrAddressRequired},
		{name: "too long", mutate: func(c *DriverConfig) { c.Duration = 11 * time.Second }, wantErr: ErrInvalidDuration},
		{name: "negative", mutate: func(c *DriverConfig) { c.Duration = -time.Second }, wantErr: ErrInvalidDuration},
		{name: "fractional", mutate: func(c *DriverConfig) { c.Duration = 1500 * time.Millisecond }, wantErr: ErrInvalidDuration},
	}
	for _, tc := range cases {
		cfg := DefaultDriverConfig()
		if tc.mutate != nil {
			tc.mutate(&cfg)
		}
		err := cfg.Validate()
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: got=%v want=%v", tc.name, err, tc.wantErr)
		}
	}

	cfg := DefaultDriverConfig()
	cfg.ExtraPings = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative extra pings to fail")
	}
}

func TestRunReportsBothDirections(t *testing.T) {
	testlog.Start(t)
	svc, addr := startServer(t, 2)

	cfg := testDriverConfig(addr)
	cfg.ExtraPings = 3
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Address != addr {
		t.Fatalf("report address: got=%q want=%q", report.Address, addr)
	}
	// a zero-second test moves exactly one chunk each way
	if report.Downstream.Bytes != protocol.ChunkSize {
		t.Fatalf("downstream bytes: got=%d want=%d", report.Downstream.Bytes, protocol.ChunkSize)
	}
	if report.Upstream.Bytes != protocol.ChunkSize {
		t.Fatalf("upstream bytes: got=%d want=%d", report.Upstream.Bytes, protocol.ChunkSize)
	}
	if report.Downstream.BitsPerSecond() <= 0 || report.Upstream.BitsPerSecond() <= 0 {
		t.Fatalf("throughput must be positive: %+v", report)
	}

	deadline := time.Now().Add(5 * time.Second)
	for svc.Admission().Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := svc.Admission().Active(); got != 0 {
		t.Fatalf("server still holds sessions after run: %d", got)
	}
}

func TestRunOneSecondDownstreamAndUpstream(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t, 1)

	cfg := testDriverConfig(addr)
	cfg.Duration = time.Second
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for name, tp := range map[string]uint64{"downstream": report.Downstream.Bytes, "upstream": report.Upstream.Bytes} {
		if tp == 0 || tp%protocol.ChunkSize != 0 {
			t.Fatalf("%s bytes must be a positive multiple of the chunk size: %d", name, tp)
		}
	}
	if report.Downstream.Elapsed < time.Second || report.Upstream.Elapsed < time.Second {
		t.Fatalf("tests finished early: down=%s up=%s", report.Downstream.Elapsed, report.Upstream.Elapsed)
	}
}

func TestConnectDeclinedAtCapacity(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t, 1)

	holder, err := Connect(context.Background(), testDriverConfig(addr))
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	defer holder.Close()
	if err := holder.Ping(); err != nil {
		t.Fatalf("holder ping: %v", err)
	}

	_, err = Connect(context.Background(), testDriverConfig(addr))
	if err == nil {
		t.Fatalf("expected second connect to be declined")
	}
	if kind := protocol.KindOf(err); kind != protocol.KindCapacity {
		t.Fatalf("error kind: got=%s want=%s", kind, protocol.KindCapacity)
	}
	reason, ok := protocol.DeclineReasonOf(err)
	if !ok || reason != protocol.MaxThreadsExceeded(1) {
		t.Fatalf("decline reason: got=%s ok=%v", reason, ok)
	}
	if !errors.Is(err, protocol.ErrDeclined) {
		t.Fatalf("expected ErrDeclined in chain: %v", err)
	}
}

func TestRunDeclinedProducesNoReport(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t, 0)

	report, err := Run(context.Background(), testDriverConfig(addr))
	if protocol.KindOf(err) != protocol.KindCapacity {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if report != (Report{}) {
		t.Fatalf("declined run returned a report: %+v", report)
	}
}

func TestConnectRefused(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = Connect(context.Background(), testDriverConfig(addr))
	if err == nil {
		t.Fatalf("expected connect to closed port to fail")
	}
	if kind := protocol.KindOf(err); kind != protocol.KindConnection {
		t.Fatalf("error kind: got=%s want=%s", kind, protocol.KindConnection)
	}
}

func TestRunWithBandwidthCaps(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t, 1)

	cfg := testDriverConfig(addr)
	cfg.UploadLimitBytes = 256 * 1024 * 1024
	cfg.DownloadLimitBytes = 256 * 1024 * 1024
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Downstream.Bytes != protocol.ChunkSize || report.Upstream.Bytes != protocol.ChunkSize {
		t.Fatalf("capped run moved unexpected bytes: %+v", report)
	}
}

func TestDriverRejectsUnexpectedStatus(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte{byte(protocol.Complete)})
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	}()

	_, err = Connect(context.Background(), testDriverConfig(ln.Addr().String()))
	if !errors.Is(err, protocol.ErrUnexpectedCommand) {
		t.Fatalf("expected unexpected command, got %v", err)
	}
}
