// Package session owns one TCP connection at the command level.
//
// Ownership boundary:
// - Endpoint: command read/write, trailing fields, chunk transfer
// - ping handshake helpers (initiator and responder variants)
// - connect timeout, retry backoff and optional read deadlines
//
// An Endpoint is owned by exactly one goroutine for its whole life. It does no
// locking.
package session
