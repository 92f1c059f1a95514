package packet

import (
	"fmt"
	"strings"
)

// ChecksumScope selects which bytes the digest covers.
type ChecksumScope string

const (
	// ScopeIndex digests only the index field. Payload corruption is undetectable.
	ScopeIndex ChecksumScope = "index"
	// ScopePacket digests payload||index.
	ScopePacket ChecksumScope = "packet"
)

const (
	MinIndexWidth = 1
	MaxIndexWidth = 8
)

// Format is the wire profile shared by sender and receiver.
type Format struct {
	ChunkSize  int
	IndexWidth int
	Digest     Digest
	Scope      ChecksumScope
}

// DefaultFormat mirrors the reference deployment: 988-byte chunks, 4-byte index,
// 32-byte hex md5, for a 1024-byte maximum message.
func DefaultFormat() Format {
	d, _ := LookupDigest(DigestMD5Hex)
	return Format{
		ChunkSize:  988,
		IndexWidth: 4,
		Digest:     d,
		Scope:      ScopePacket,
	}
}

func ParseScope(raw string) (ChecksumScope, error) {
	switch ChecksumScope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopePacket:
		return ScopePacket, nil
	case ScopeIndex:
		return ScopeIndex, nil
	default:
		return "", fmt.Errorf("%w: checksum scope %q", ErrInvalidFormat, raw)
	}
}

func (f Format) Validate() error {
	if f.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidFormat, f.ChunkSize)
	}
	if f.IndexWidth < MinIndexWidth || f.IndexWidth > MaxIndexWidth {
		return fmt.Errorf("%w: index width must be in [%d,%d], got %d", ErrInvalidFormat, MinIndexWidth, MaxIndexWidth, f.IndexWidth)
	}
	if !f.Digest.valid() {
		return fmt.Errorf("%w: digest not set", ErrInvalidFormat)
	}
	if f.Scope != ScopeIndex && f.Scope != ScopePacket {
		return fmt.Errorf("%w: checksum scope %q", ErrInvalidFormat, f.Scope)
	}
	return nil
}

// HeaderLen is the fixed trailer carried by every packet: index plus digest.
func (f Format) HeaderLen() int {
	return f.IndexWidth + f.Digest.Width
}

func (f Format) MaxPacketLen() int {
	return f.ChunkSize + f.HeaderLen()
}

func (f Format) SentinelLen() int {
	return f.HeaderLen()
}

// MaxIndex is the largest index representable in IndexWidth bytes.
func (f Format) MaxIndex() uint64 {
	if f.IndexWidth >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*uint(f.IndexWidth)) - 1
}
