// Package transport moves one payload from a Sender to a Receiver over an
// unreliable channel.Channel.
//
// Sender splits the payload into fixed-size chunks, queues every index once,
// and runs a bounded worker pool. Each worker owns one chunk at a time and
// resends it until its index shows up in the shared AckRegistry. Any worker
// may apply any ack it reads, since all workers drain one inbound channel.
// Only when the queue is drained and every index is acknowledged does the
// sender emit the termination sentinel.
//
// Receiver is a single loop: validate, upsert into Reassembly, ack. On the
// sentinel it assembles the payload, echoes the sentinel and stops.
//
// State:
// - RECEIVING -> FLUSHING -> TERMINATED
// - RECEIVING -> ABORTED on inactivity timeout; no partial output.
package transport
