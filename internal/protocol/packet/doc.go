// Package packet owns the datagram wire format.
//
// Ownership boundary:
// - data/ack packet encode and decode
// - integrity digest selection and verification
// - termination sentinel shape
//
// Layout of every data or ack packet, split from the tail on decode:
//
//	[payload 0..ChunkSize] [index IndexWidth bytes, big-endian] [digest DigestWidth bytes]
//
// An ack is a data packet with an empty payload. The sentinel is a zero-filled message
// of exactly IndexWidth+DigestWidth bytes.
package packet
