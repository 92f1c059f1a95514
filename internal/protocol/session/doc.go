// Package session owns transfer reliability primitives.
//
// Ownership boundary:
// - ack-wait, idle and termination timeouts
// - retry backoff
// - in-flight chunk outbox
//
// Packet layout lives in internal/protocol/packet; the send and receive loops
// that use these primitives live in internal/transport.
package session
