package transport

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig     = errors.New("transport: invalid config")
	ErrInactivityTimeout = errors.New("transport: channel inactivity timeout")
	ErrReassemblyGap     = errors.New("transport: reassembly gap")
	ErrIncomplete        = errors.New("transport: unacknowledged chunks at completion")
	ErrReceiverDone      = errors.New("transport: receiver already finished")
	ErrPayloadTooLarge   = errors.New("transport: payload exceeds index space")
)

// GapError reports indices missing at flush time. The assembled output it
// accompanies is zero-filled at those indices and must not be treated as a
// successful delivery.
type GapError struct {
	Missing []uint64
}

func (e *GapError) Error() string {
	const show = 8
	if len(e.Missing) <= show {
		return fmt.Sprintf("transport: reassembly gap: missing indices %v", e.Missing)
	}
	return fmt.Sprintf("transport: reassembly gap: %d missing indices, first %v", len(e.Missing), e.Missing[:show])
}

func (e *GapError) Unwrap() error {
	return ErrReassemblyGap
}
