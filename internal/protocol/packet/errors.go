package packet

import "errors"

var (
	ErrMalformedPacket  = errors.New("packet: malformed packet")
	ErrChecksumMismatch = errors.New("packet: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("packet: payload exceeds chunk size")
	ErrIndexOverflow    = errors.New("packet: index does not fit index width")
	ErrInvalidFormat    = errors.New("packet: invalid format")
	ErrUnknownDigest    = errors.New("packet: unknown digest")
)

// IsNoise reports whether err is a per-packet rejection that callers drop silently.
func IsNoise(err error) bool {
	return errors.Is(err, ErrMalformedPacket) || errors.Is(err, ErrChecksumMismatch)
}
