package packet

import (
	"bytes"
	"errors"
	"testing"
)

func mustCodec(t *testing.T, f Format) *Codec {
	t.Helper()
	c, err := NewCodec(f)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestEncodeDecodeDataPacket(t *testing.T) {
	c := mustCodec(t, DefaultFormat())
	msg, err := c.Encode(7, []byte("HELL"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(msg) != 4+4+32 {
		t.Fatalf("unexpected packet length: %d", len(msg))
	}
	if !bytes.Equal(msg[4:8], []byte{0, 0, 0, 7}) {
		t.Fatalf("index field is not big-endian: %x", msg[4:8])
	}
	got, err := c.Decode(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Index != 7 || string(got.Payload) != "HELL" || got.IsAck() {
		t.Fatalf("unexpected packet: %+v", got)
	}
}

func TestAckHasEmptyPayload(t *testing.T) {
	c := mustCodec(t, DefaultFormat())
	ack := c.EncodeAck(513)
	if len(ack) != c.Format().HeaderLen() {
		t.Fatalf("unexpected ack length: %d", len(ack))
	}
	got, err := c.DecodeAck(ack)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if got.Index != 513 || !got.IsAck() {
		t.Fatalf("unexpected ack: %+v", got)
	}
	data, _ := c.Encode(513, []byte("x"))
	if _, err := c.DecodeAck(data); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected data packet rejected as ack, got %v", err)
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	c := mustCodec(t, DefaultFormat())
	_, err := c.Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
	if !IsNoise(err) {
		t.Fatalf("short packet should be noise")
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	f := DefaultFormat()
	f.ChunkSize = 4
	c := mustCodec(t, f)
	wide := DefaultFormat()
	wide.ChunkSize = 8
	msg, err := mustCodec(t, wide).Encode(1, []byte("TOOLONG!"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(msg); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}

func TestDecodeDetectsIndexCorruption(t *testing.T) {
	for _, scope := range []ChecksumScope{ScopeIndex, ScopePacket} {
		f := DefaultFormat()
		f.Scope = scope
		c := mustCodec(t, f)
		msg, _ := c.Encode(3, []byte("OWOR"))
		msg[len(msg)-f.Digest.Width-1] ^= 0x01
		if _, err := c.Decode(msg); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("scope=%s: expected ErrChecksumMismatch, got %v", scope, err)
		}
	}
}

func TestPayloadCorruptionDependsOnScope(t *testing.T) {
	f := DefaultFormat()
	f.Scope = ScopePacket
	strong := mustCodec(t, f)
	msg, _ := strong.Encode(2, []byte("LD"))
	msg[0] ^= 0xFF
	if _, err := strong.Decode(msg); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("packet scope must reject payload corruption, got %v", err)
	}

	f.Scope = ScopeIndex
	weak := mustCodec(t, f)
	msg, _ = weak.Encode(2, []byte("LD"))
	msg[0] ^= 0xFF
	got, err := weak.Decode(msg)
	if err != nil {
		t.Fatalf("index scope accepts payload corruption by construction, got %v", err)
	}
	if got.Index != 2 {
		t.Fatalf("unexpected index: %d", got.Index)
	}
}

func TestAckIdenticalAcrossScopes(t *testing.T) {
	a := DefaultFormat()
	a.Scope = ScopeIndex
	b := DefaultFormat()
	b.Scope = ScopePacket
	if !bytes.Equal(mustCodec(t, a).EncodeAck(9), mustCodec(t, b).EncodeAck(9)) {
		t.Fatalf("acks must not depend on checksum scope")
	}
}

func TestEncodeRejectsOverflowAndOversize(t *testing.T) {
	f := DefaultFormat()
	f.IndexWidth = 1
	f.ChunkSize = 2
	c := mustCodec(t, f)
	if _, err := c.Encode(256, []byte("a")); !errors.Is(err, ErrIndexOverflow) {
		t.Fatalf("expected ErrIndexOverflow, got %v", err)
	}
	if _, err := c.Encode(255, []byte("abc")); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	msg, err := c.Encode(255, []byte("ab"))
	if err != nil {
		t.Fatalf("encode max index: %v", err)
	}
	got, err := c.Decode(msg)
	if err != nil || got.Index != 255 {
		t.Fatalf("decode max index: %+v err=%v", got, err)
	}
}

func TestSentinelShape(t *testing.T) {
	c := mustCodec(t, DefaultFormat())
	s := c.Sentinel()
	if len(s) != 36 || !c.IsSentinel(s) || !c.IsSentinelEcho(s) {
		t.Fatalf("unexpected sentinel: len=%d", len(s))
	}
	ack := c.EncodeAck(0)
	if !c.IsSentinel(ack) {
		t.Fatalf("ack and sentinel share a length")
	}
	if c.IsSentinelEcho(ack) {
		t.Fatalf("ack for index 0 must not match the sentinel echo")
	}
	if _, err := c.DecodeAck(s); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("sentinel must not validate as an ack, got %v", err)
	}
	data, _ := c.Encode(0, []byte("H"))
	if c.IsSentinel(data) {
		t.Fatalf("data packet misread as sentinel")
	}
}

func TestDigestWidths(t *testing.T) {
	for _, name := range DigestNames() {
		d, err := LookupDigest(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if got := len(d.Sum([]byte("abc"))); got != d.Width {
			t.Fatalf("%s: sum width %d != %d", name, got, d.Width)
		}
	}
	if _, err := LookupDigest("crc32"); !errors.Is(err, ErrUnknownDigest) {
		t.Fatalf("expected ErrUnknownDigest, got %v", err)
	}
	d, err := LookupDigest("")
	if err != nil || d.Name != DigestMD5Hex {
		t.Fatalf("empty name should default to md5-hex, got %q err=%v", d.Name, err)
	}
}

func TestFormatValidate(t *testing.T) {
	f := DefaultFormat()
	f.ChunkSize = 0
	if err := f.Validate(); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	f = DefaultFormat()
	f.IndexWidth = 9
	if _, err := NewCodec(f); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := ParseScope("everything"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat for scope, got %v", err)
	}
	if got := DefaultFormat().MaxPacketLen(); got != 1024 {
		t.Fatalf("unexpected default max packet len: %d", got)
	}
}
