// Package protocol owns the netspeed wire contract.
//
// Ownership boundary:
// - command tags (one byte per message)
// - fixed-width trailing fields (duration, decline detail)
// - the closed error taxonomy shared by server and client
//
// Every message starts with a one-byte command tag. RequestDownstream and
// RequestUpstream carry an 8-byte big-endian duration in whole seconds. Decline
// carries an 8-byte big-endian detail (high 32 bits reason, low 32 bits value).
// SendBuffer carries ChunkSize opaque payload bytes.
package protocol
