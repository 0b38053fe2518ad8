package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/netspeed/internal/protocol"
)

var ErrChunkSize = errors.New("session: chunk buffer must be exactly protocol.ChunkSize bytes")

// Endpoint wraps one TCP connection with command-level I/O. Every logical
// message is written with a single flush.
type Endpoint struct {
	conn        net.Conn
	rw          *bufio.ReadWriter
	readTimeout time.Duration
}

// NewEndpoint takes ownership of conn. cfg.ReadTimeout arms a deadline before every read when set.
func NewEndpoint(conn net.Conn, cfg Config) *Endpoint {
	return &Endpoint{
		conn:        conn,
		rw:          bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		readTimeout: cfg.WithDefaults().ReadTimeout,
	}
}

// RemoteAddr is the peer address, or empty when the conn has none.
func (e *Endpoint) RemoteAddr() string {
	if addr := e.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// WriteCommand writes a command that carries no trailing fields.
func (e *Endpoint) WriteCommand(c protocol.Command) error {
	switch c {
	case protocol.RequestDownstream, protocol.RequestUpstream, protocol.Decline, protocol.SendBuffer:
		return protocol.ProtocolError("write command", fmt.Errorf("%s requires trailing fields", c))
	}
	return e.writeMessage(c)
}

// WriteRequest writes RequestDownstream or RequestUpstream followed by d.
func (e *Endpoint) WriteRequest(c protocol.Command, d protocol.Duration) error {
	if c != protocol.RequestDownstream && c != protocol.RequestUpstream {
		return protocol.ProtocolError("write request", &protocol.UnexpectedCommandError{Got: c})
	}
	field := protocol.EncodeDuration(d)
	return e.writeMessage(c, field[:])
}

// WriteDecline writes Decline followed by the packed reason.
func (e *Endpoint) WriteDecline(reason protocol.DeclineReason) error {
	field := protocol.EncodeDeclineReason(reason)
	return e.writeMessage(protocol.Decline, field[:])
}

// SendChunk writes SendBuffer followed by buf, which must be ChunkSize long.
func (e *Endpoint) SendChunk(buf []byte) error {
	if len(buf) != protocol.ChunkSize {
		return protocol.ProtocolError("send chunk", ErrChunkSize)
	}
	return e.writeMessage(protocol.SendBuffer, buf)
}

func (e *Endpoint) writeMessage(c protocol.Command, trailing ...[]byte) error {
	tag, err := protocol.EncodeCommand(c)
	if err != nil {
		return protocol.ProtocolError("write command", err)
	}
	if err := e.rw.WriteByte(tag); err != nil {
		return protocol.ConnectionError(fmt.Sprintf("write %s", c), err)
	}
	for _, field := range trailing {
		if _, err := e.rw.Write(field); err != nil {
			return protocol.ConnectionError(fmt.Sprintf("write %s", c), err)
		}
	}
	if err := e.rw.Flush(); err != nil {
		return protocol.ConnectionError(fmt.Sprintf("flush %s", c), err)
	}
	return nil
}

// ReadCommand blocks for the next tag. A peer that closed the connection
// cleanly yields protocol.Close with a nil error; an unmapped tag yields a
// protocol error wrapping *protocol.InvalidCommandError.
func (e *Endpoint) ReadCommand() (protocol.Command, error) {
	if err := e.armReadDeadline(); err != nil {
		return 0, err
	}
	b, err := e.rw.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return protocol.Close, nil
		}
		return 0, protocol.ConnectionError("read command", err)
	}
	c, err := protocol.DecodeCommand(b)
	if err != nil {
		return 0, protocol.ProtocolError("read command", err)
	}
	return c, nil
}

// Expect reads one command and fails unless it is want. A peer that closed
// while want was still due is a connection error over io.ErrUnexpectedEOF,
// not an unexpected Close.
func (e *Endpoint) Expect(want protocol.Command) error {
	got, err := e.ReadCommand()
	if err != nil {
		return err
	}
	if got == protocol.Close && want != protocol.Close {
		return protocol.ConnectionError(
			fmt.Sprintf("expect %s", want),
			fmt.Errorf("peer closed: %w", io.ErrUnexpectedEOF),
		)
	}
	if got != want {
		return protocol.ProtocolError("expect", &protocol.UnexpectedCommandError{Got: got, Want: want})
	}
	return nil
}

// ReadDuration reads the field following a request command.
func (e *Endpoint) ReadDuration() (protocol.Duration, error) {
	var buf [protocol.DurationLen]byte
	if err := e.readField("read duration", buf[:]); err != nil {
		return 0, err
	}
	d, err := protocol.DecodeDuration(buf[:])
	if err != nil {
		return 0, protocol.ProtocolError("read duration", err)
	}
	return d, nil
}

// ReadDeclineReason reads the field following Decline.
func (e *Endpoint) ReadDeclineReason() (protocol.DeclineReason, error) {
	var buf [protocol.DeclineDetailLen]byte
	if err := e.readField("read decline", buf[:]); err != nil {
		return protocol.DeclineReason{}, err
	}
	reason, err := protocol.DecodeDeclineReason(buf[:])
	if err != nil {
		return protocol.DeclineReason{}, protocol.ProtocolError("read decline", err)
	}
	return reason, nil
}

// ReceiveChunk reads the payload after a SendBuffer tag was already consumed.
func (e *Endpoint) ReceiveChunk(buf []byte) error {
	if len(buf) != protocol.ChunkSize {
		return protocol.ProtocolError("receive chunk", ErrChunkSize)
	}
	return e.readField("receive chunk", buf)
}

func (e *Endpoint) readField(op string, buf []byte) error {
	if err := e.armReadDeadline(); err != nil {
		return err
	}
	if _, err := io.ReadFull(e.rw, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.ProtocolError(op, fmt.Errorf("%w: %w", protocol.ErrTruncated, err))
		}
		return protocol.ConnectionError(op, err)
	}
	return nil
}

func (e *Endpoint) armReadDeadline() error {
	if e.readTimeout <= 0 {
		return nil
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(e.readTimeout)); err != nil {
		return protocol.ConnectionError("set read deadline", err)
	}
	return nil
}
