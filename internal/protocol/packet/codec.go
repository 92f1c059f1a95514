package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Packet is one decoded data or ack packet.
type Packet struct {
	Index   uint64
	Payload []byte
	Digest  []byte
}

func (p Packet) IsAck() bool {
	return len(p.Payload) == 0
}

// Codec encodes and validates packets for one Format. It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	format   Format
	sentinel []byte
}

func NewCodec(f Format) (*Codec, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		format:   f,
		sentinel: make([]byte, f.SentinelLen()),
	}, nil
}

func (c *Codec) Format() Format {
	return c.format
}

func (c *Codec) Checksum(b []byte) []byte {
	return c.format.Digest.Sum(b)
}

func (c *Codec) Encode(index uint64, payload []byte) ([]byte, error) {
	if len(payload) > c.format.ChunkSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.format.ChunkSize)
	}
	if index > c.format.MaxIndex() {
		return nil, fmt.Errorf("%w: index=%d width=%d", ErrIndexOverflow, index, c.format.IndexWidth)
	}

	out := make([]byte, 0, len(payload)+c.format.HeaderLen())
	out = append(out, payload...)
	out = append(out, c.indexField(index)...)
	out = append(out, c.Checksum(c.covered(out, len(payload)))...)
	return out, nil
}

// EncodeAck returns the ack for index. Indices are produced by Decode, so they
// always fit the index width.
func (c *Codec) EncodeAck(index uint64) []byte {
	field := c.indexField(index)
	out := make([]byte, 0, c.format.HeaderLen())
	out = append(out, field...)
	return append(out, c.Checksum(field)...)
}

func (c *Codec) Decode(msg []byte) (Packet, error) {
	hdr := c.format.HeaderLen()
	if len(msg) < hdr {
		return Packet{}, fmt.Errorf("%w: length %d < header %d", ErrMalformedPacket, len(msg), hdr)
	}
	payloadLen := len(msg) - hdr
	if payloadLen > c.format.ChunkSize {
		return Packet{}, fmt.Errorf("%w: payload %d > chunk size %d", ErrMalformedPacket, payloadLen, c.format.ChunkSize)
	}

	digestAt := len(msg) - c.format.Digest.Width
	want := msg[digestAt:]
	got := c.Checksum(c.covered(msg[:digestAt], payloadLen))
	if !bytes.Equal(want, got) {
		return Packet{}, ErrChecksumMismatch
	}

	payload := make([]byte, payloadLen)
	copy(payload, msg[:payloadLen])
	digest := make([]byte, len(want))
	copy(digest, want)
	return Packet{
		Index:   c.parseIndex(msg[payloadLen:digestAt]),
		Payload: payload,
		Digest:  digest,
	}, nil
}

func (c *Codec) DecodeAck(msg []byte) (Packet, error) {
	if len(msg) != c.format.HeaderLen() {
		return Packet{}, fmt.Errorf("%w: ack length %d", ErrMalformedPacket, len(msg))
	}
	return c.Decode(msg)
}

// Sentinel returns a fresh copy of the termination marker.
func (c *Codec) Sentinel() []byte {
	out := make([]byte, len(c.sentinel))
	copy(out, c.sentinel)
	return out
}

// IsSentinel matches by length only. Data packets always carry payload, so
// they are strictly longer.
func (c *Codec) IsSentinel(msg []byte) bool {
	return len(msg) == len(c.sentinel)
}

// IsSentinelEcho matches the exact marker. A valid ack never equals it because
// the digest of the zero index is not all zeros.
func (c *Codec) IsSentinelEcho(msg []byte) bool {
	return bytes.Equal(msg, c.sentinel)
}

// covered returns the bytes the digest is computed over; head is payload||index.
func (c *Codec) covered(head []byte, payloadLen int) []byte {
	if c.format.Scope == ScopeIndex {
		return head[payloadLen:]
	}
	return head
}

func (c *Codec) indexField(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	out := make([]byte, c.format.IndexWidth)
	copy(out, buf[8-c.format.IndexWidth:])
	return out
}

func (c *Codec) parseIndex(field []byte) uint64 {
	var buf [8]byte
	copy(buf[8-len(field):], field)
	return binary.BigEndian.Uint64(buf[:])
}
