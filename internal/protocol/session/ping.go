package session

import (
	"fmt"

	"github.com/danmuck/netspeed/internal/protocol"
)

// PingInitiate is the client-side exchange: write Ping, then read Ping.
func (e *Endpoint) PingInitiate() error {
	if err := e.WriteCommand(protocol.Ping); err != nil {
		return pingFailure(err)
	}
	if err := e.Expect(protocol.Ping); err != nil {
		return pingFailure(err)
	}
	return nil
}

// PingRespond is the server-side exchange: read Ping, then write Ping.
func (e *Endpoint) PingRespond() error {
	if err := e.Expect(protocol.Ping); err != nil {
		return pingFailure(err)
	}
	if err := e.WriteCommand(protocol.Ping); err != nil {
		return pingFailure(err)
	}
	return nil
}

func pingFailure(err error) error {
	return &protocol.Error{
		Kind: protocol.KindOf(err),
		Op:   "ping",
		Err:  fmt.Errorf("%w: %w", protocol.ErrPingFailure, err),
	}
}
