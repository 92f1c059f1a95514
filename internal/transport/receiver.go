package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/observability"
	"github.com/danmuck/shuttle/internal/protocol/packet"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the receiver lifecycle position.
type State int32

const (
	StateReceiving State = iota
	StateFlushing
	StateTerminated
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateFlushing:
		return "flushing"
	case StateTerminated:
		return "terminated"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Receiver runs the single inbound loop for one transfer.
type Receiver struct {
	ch    channel.Channel
	cfg   Config
	codec *packet.Codec
	id    string
	log   zerolog.Logger

	state   atomic.Int32
	started atomic.Pointer[time.Time]
	dropped atomic.Int64
	acks    atomic.Int64

	// mu guards buf for Progress readers; the loop is the only writer.
	mu  sync.Mutex
	buf *Reassembly
}

func NewReceiver(ch channel.Channel, cfg Config) (*Receiver, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := packet.NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Receiver{
		ch:    ch,
		cfg:   cfg,
		codec: codec,
		id:    id,
		log:   observability.TransferLogger(observability.RoleReceiver, id),
		buf:   NewReassembly(cfg.Format.ChunkSize),
	}, nil
}

func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Receive runs until the sentinel arrives or the channel goes quiet, and
// returns the reassembled payload. A *GapError comes back alongside a
// zero-filled payload; an inactivity timeout returns no payload at all.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	if r.State() != StateReceiving {
		return nil, ErrReceiverDone
	}
	now := time.Now()
	r.started.Store(&now)
	r.log.Info().
		Int("chunk_size", r.cfg.Format.ChunkSize).
		Dur("idle_timeout", r.cfg.Session.IdleTimeout).
		Msg("receiving")

	timeout := r.cfg.Session.StartTimeout
	for {
		msg, err := r.ch.Receive(ctx, timeout)
		if err != nil {
			if errors.Is(err, channel.ErrTimeout) {
				err = fmt.Errorf("%w: nothing received for %v", ErrInactivityTimeout, timeout)
			}
			return nil, r.abort(err)
		}
		timeout = r.cfg.Session.IdleTimeout

		if r.codec.IsSentinel(msg) {
			return r.flush()
		}
		if err := r.handleData(msg); err != nil {
			return nil, r.abort(err)
		}
	}
}

// handleData validates msg, stores it and acks it. Rejected packets are
// dropped with no ack so the sender retries.
func (r *Receiver) handleData(msg []byte) error {
	pkt, err := r.codec.Decode(msg)
	if err != nil {
		r.dropped.Add(1)
		reason := observability.ReasonMalformed
		if errors.Is(err, packet.ErrChecksumMismatch) {
			reason = observability.ReasonChecksum
		}
		observability.RecordPacketDropped(observability.RoleReceiver, reason)
		r.log.Debug().Err(err).Int("bytes", len(msg)).Msg("packet dropped")
		return nil
	}

	r.mu.Lock()
	res := r.buf.Upsert(pkt.Index, pkt.Payload)
	r.mu.Unlock()

	observability.RecordChunkStored(res != UpsertInserted)
	if res == UpsertConflict {
		r.log.Warn().Uint64("index", pkt.Index).Msg("conflicting payload for stored chunk ignored")
	}

	if err := r.ch.Send(r.codec.EncodeAck(pkt.Index)); err != nil {
		return fmt.Errorf("send ack %d: %w", pkt.Index, err)
	}
	r.acks.Add(1)
	observability.RecordPacketSent(observability.RoleReceiver, observability.KindAck)
	r.log.Trace().Uint64("index", pkt.Index).Str("upsert", res.String()).Msg("chunk acked")
	return nil
}

func (r *Receiver) flush() ([]byte, error) {
	r.state.Store(int32(StateFlushing))

	r.mu.Lock()
	out, err := r.buf.Assemble()
	chunks := r.buf.Len()
	r.mu.Unlock()

	var gap *GapError
	if errors.As(err, &gap) {
		r.log.Error().
			Int("missing", len(gap.Missing)).
			Uints64("first_missing", gap.Missing[:min(len(gap.Missing), 8)]).
			Msg("reassembly gap at flush")
	}

	sentinel := r.codec.Sentinel()
	for i := 0; i < r.cfg.Session.SentinelBurst; i++ {
		if serr := r.ch.Send(sentinel); serr != nil {
			r.log.Warn().Err(serr).Msg("sentinel echo failed")
			break
		}
		observability.RecordPacketSent(observability.RoleReceiver, observability.KindSentinel)
	}

	r.state.Store(int32(StateTerminated))
	outcome := "ok"
	if err != nil {
		outcome = "gap"
	}
	elapsed := r.elapsed()
	observability.RecordTransfer(observability.RoleReceiver, outcome, elapsed)
	r.log.Info().
		Int("chunks", chunks).
		Int("bytes", len(out)).
		Int64("dropped", r.dropped.Load()).
		Dur("duration", elapsed).
		Msg("transfer flushed")
	return out, err
}

func (r *Receiver) abort(err error) error {
	r.state.Store(int32(StateAborted))
	observability.RecordTransfer(observability.RoleReceiver, "aborted", r.elapsed())
	r.log.Error().Err(err).Msg("transfer aborted")
	return err
}

func (r *Receiver) elapsed() time.Duration {
	if t := r.started.Load(); t != nil {
		return time.Since(*t)
	}
	return 0
}

func (r *Receiver) Progress() Progress {
	r.mu.Lock()
	stored := r.buf.Len()
	minIndex, maxIndex, _ := r.buf.Bounds()
	r.mu.Unlock()

	p := Progress{
		Role:       observability.RoleReceiver,
		TransferID: r.id,
		Phase:      r.State().String(),
		Completed:  stored,
		Dropped:    r.dropped.Load(),
		MinIndex:   minIndex,
		MaxIndex:   maxIndex,
	}
	if t := r.started.Load(); t != nil {
		p.StartedAt = *t
		p.Elapsed = time.Since(*t).Round(time.Millisecond).String()
	}
	return p
}
