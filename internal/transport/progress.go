package transport

import (
	"time"

	"github.com/danmuck/shuttle/internal/protocol/session"
)

// Progress is a point-in-time view of a transfer, served by the status endpoint.
type Progress struct {
	Role        string                 `json:"role"`
	TransferID  string                 `json:"transfer_id"`
	Phase       string                 `json:"phase"`
	Chunks      int                    `json:"chunks"`
	Completed   int                    `json:"completed"`
	Pending     int                    `json:"pending"`
	InFlight    []session.PendingChunk `json:"in_flight,omitempty"`
	Retransmits int64                  `json:"retransmits"`
	Dropped     int64                  `json:"dropped"`
	MinIndex    uint64                 `json:"min_index"`
	MaxIndex    uint64                 `json:"max_index"`
	StartedAt   time.Time              `json:"started_at"`
	Elapsed     string                 `json:"elapsed"`
}

// ProgressSource is implemented by Sender and Receiver.
type ProgressSource interface {
	Progress() Progress
}
