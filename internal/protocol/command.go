package protocol

import "fmt"

// ChunkSize is the payload length following every SendBuffer tag.
const ChunkSize = 1024 * 1024

// Command is the one-byte message tag.
type Command uint8

const (
	Ping              Command = 1
	RequestDownstream Command = 2
	RequestUpstream   Command = 3
	SendBuffer        Command = 4
	Complete          Command = 5
	Ready             Command = 6
	Decline           Command = 7
	Close             Command = 100
)

// Commands lists every valid command in wire-code order.
var Commands = []Command{
	Ping,
	RequestDownstream,
	RequestUpstream,
	SendBuffer,
	Complete,
	Ready,
	Decline,
	Close,
}

// Valid reports whether c is one of the canonical command codes.
func (c Command) Valid() bool {
	switch c {
	case Ping, RequestDownstream, RequestUpstream, SendBuffer, Complete, Ready, Decline, Close:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	switch c {
	case Ping:
		return "Ping"
	case RequestDownstream:
		return "RequestDownstream"
	case RequestUpstream:
		return "RequestUpstream"
	case SendBuffer:
		return "SendBuffer"
	case Complete:
		return "Complete"
	case Ready:
		return "Ready"
	case Decline:
		return "Decline"
	case Close:
		return "Close"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// EncodeCommand returns the wire byte for c.
func EncodeCommand(c Command) (byte, error) {
	if !c.Valid() {
		return 0, &InvalidCommandError{Code: byte(c)}
	}
	return byte(c), nil
}

// DecodeCommand maps a wire byte to its Command. Unmapped codes fail with
// *InvalidCommandError and are never coerced.
func DecodeCommand(b byte) (Command, error) {
	c := Command(b)
	if !c.Valid() {
		return 0, &InvalidCommandError{Code: b}
	}
	return c, nil
}
