package server

import (
	"fmt"
	"time"

	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/observability"
	"github.com/danmuck/netspeed/internal/protocol"
	"github.com/danmuck/netspeed/internal/protocol/session"
	"github.com/google/uuid"
)

// State is a Worker protocol phase.
type State uint8

const (
	StateAwaitReady State = iota
	StateReadying
	StatePinging
	StateCommandLoop
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateAwaitReady:
		return "await_ready"
	case StateReadying:
		return "readying"
	case StatePinging:
		return "pinging"
	case StateCommandLoop:
		return "command_loop"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// WorkerStats counts what one Worker did over its session.
type WorkerStats struct {
	Pings           int
	DownstreamTests int
	UpstreamTests   int
	BytesSent       uint64
	BytesReceived   uint64
}

// Worker runs the server side of one session. It owns its Endpoint and its
// chunk buffer exclusively.
type Worker struct {
	id       string
	endpoint *session.Endpoint
	state    State
	buf      []byte
	stats    WorkerStats
}

// NewWorker wraps an admitted connection. The Worker takes ownership of ep.
func NewWorker(ep *session.Endpoint) *Worker {
	return &Worker{
		id:       uuid.NewString(),
		endpoint: ep,
		state:    StateAwaitReady,
	}
}

// ID is the per-session identifier used in logs.
func (w *Worker) ID() string {
	return w.id
}

// State reports the current phase. Read it only after Run returned.
func (w *Worker) State() State {
	return w.state
}

// Stats reports what the session did. Read it only after Run returned.
func (w *Worker) Stats() WorkerStats {
	return w.stats
}

// Run drives the session to a terminal state and closes the Endpoint on every
// exit path. A clean peer close returns nil.
func (w *Worker) Run() error {
	defer w.endpoint.Close()
	if err := w.run(); err != nil {
		w.transition(StateError)
		return err
	}
	w.transition(StateClosed)
	logging.Infof(
		"server.Worker.Run session=%s closed downstream_tests=%d upstream_tests=%d sent=%d received=%d",
		w.id,
		w.stats.DownstreamTests,
		w.stats.UpstreamTests,
		w.stats.BytesSent,
		w.stats.BytesReceived,
	)
	return nil
}

func (w *Worker) run() error {
	w.transition(StateReadying)
	if err := w.endpoint.WriteCommand(protocol.Ready); err != nil {
		return err
	}

	w.transition(StatePinging)
	if err := w.endpoint.PingRespond(); err != nil {
		return err
	}
	w.stats.Pings++
	logging.Infof("server.Worker.run session=%s remote=%q ping ok", w.id, w.endpoint.RemoteAddr())

	w.transition(StateCommandLoop)
	for {
		cmd, err := w.endpoint.ReadCommand()
		if err != nil {
			return err
		}
		switch cmd {
		case protocol.RequestDownstream:
			if err := w.handleDownstream(); err != nil {
				return err
			}
		case protocol.RequestUpstream:
			closed, err := w.handleUpstream()
			if err != nil {
				return err
			}
			if closed {
				logging.Infof("server.Worker.run session=%s closed by remote during upstream", w.id)
				return nil
			}
		case protocol.Ping:
			if err := w.endpoint.WriteCommand(protocol.Ping); err != nil {
				return err
			}
			w.stats.Pings++
			logging.Debugf("server.Worker.run session=%s ping round=%d", w.id, w.stats.Pings)
		case protocol.Close:
			logging.Debugf("server.Worker.run session=%s close", w.id)
			return nil
		default:
			return protocol.ProtocolError("command loop", &protocol.UnexpectedCommandError{Got: cmd})
		}
	}
}

// handleDownstream sends chunks until the requested duration elapsed, then
// Complete. At least one chunk is always sent and the last one may overshoot
// the target by its own transmission time.
func (w *Worker) handleDownstream() error {
	d, err := w.endpoint.ReadDuration()
	if err != nil {
		return err
	}
	logging.Infof("server.Worker.handleDownstream session=%s duration=%s", w.id, d)

	limit := d.Std()
	buf := w.chunk()
	var sent uint64
	start := time.Now()
	for {
		if err := w.endpoint.SendChunk(buf); err != nil {
			return err
		}
		sent += protocol.ChunkSize
		if time.Since(start) >= limit {
			break
		}
	}
	if err := w.endpoint.WriteCommand(protocol.Complete); err != nil {
		return err
	}
	elapsed := time.Since(start)

	w.stats.DownstreamTests++
	w.stats.BytesSent += sent
	observability.RecordTransfer(observability.DirectionDownstream, sent, elapsed)
	logging.Infof("server.Worker.handleDownstream session=%s complete bytes=%d elapsed=%s", w.id, sent, elapsed)
	return nil
}

// handleUpstream receives chunks until Complete. closed is true when the
// peer went away cleanly instead.
func (w *Worker) handleUpstream() (closed bool, err error) {
	d, err := w.endpoint.ReadDuration()
	if err != nil {
		return false, err
	}
	logging.Infof("server.Worker.handleUpstream session=%s duration=%s", w.id, d)

	buf := w.chunk()
	var received uint64
	start := time.Now()
	defer func() {
		w.stats.BytesReceived += received
		observability.RecordTransfer(observability.DirectionUpstream, received, time.Since(start))
	}()
	for {
		cmd, err := w.endpoint.ReadCommand()
		if err != nil {
			return false, err
		}
		switch cmd {
		case protocol.SendBuffer:
			if err := w.endpoint.ReceiveChunk(buf); err != nil {
				return false, err
			}
			received += protocol.ChunkSize
		case protocol.Complete:
			w.stats.UpstreamTests++
			logging.Infof(
				"server.Worker.handleUpstream session=%s complete bytes=%d elapsed=%s",
				w.id,
				received,
				time.Since(start),
			)
			return false, nil
		case protocol.Close:
			return true, nil
		default:
			return false, protocol.ProtocolError("upstream", &protocol.UnexpectedCommandError{Got: cmd})
		}
	}
}

func (w *Worker) chunk() []byte {
	if w.buf == nil {
		w.buf = make([]byte, protocol.ChunkSize)
	}
	return w.buf
}

func (w *Worker) transition(to State) {
	logging.Tracef("server.Worker.transition session=%s from=%s to=%s", w.id, w.state, to)
	w.state = to
}
