package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/observability"
	"github.com/danmuck/shuttle/internal/protocol/packet"
	"github.com/danmuck/shuttle/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	PhaseIdle        = "idle"
	PhaseSending     = "sending"
	PhaseTerminating = "terminating"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// Report summarizes one completed Send.
type Report struct {
	TransferID  string
	Chunks      int
	Bytes       int
	Packets     int64
	Retransmits int64
	Noise       int64
	// Confirmed is false when the sentinel echo never arrived within the
	// configured rounds. Every chunk was still acknowledged.
	Confirmed      bool
	SentinelRounds int
	Duration       time.Duration
}

// Sender delivers one payload at a time. Send must not be called concurrently.
type Sender struct {
	ch    channel.Channel
	cfg   Config
	codec *packet.Codec

	current atomic.Pointer[outbound]
}

// outbound is the state shared by the workers of one transfer.
type outbound struct {
	id      string
	log     zerolog.Logger
	chunks  []Chunk
	queue   *WorkQueue
	acks    *AckRegistry
	outbox  *session.ChunkOutbox
	started time.Time

	phase       atomic.Value
	packets     atomic.Int64
	retransmits atomic.Int64
	noise       atomic.Int64
}

func NewSender(ch channel.Channel, cfg Config) (*Sender, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := packet.NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	return &Sender{ch: ch, cfg: cfg, codec: codec}, nil
}

func (s *Sender) Config() Config {
	return s.cfg
}

// Send blocks until every chunk of payload is acknowledged and the
// termination handshake has run.
func (s *Sender) Send(ctx context.Context, payload []byte) (Report, error) {
	chunks := Split(payload, s.cfg.Format.ChunkSize)
	if len(chunks) > 0 && uint64(len(chunks)-1) > s.cfg.Format.MaxIndex() {
		return Report{}, fmt.Errorf("%w: %d chunks, index width %d", ErrPayloadTooLarge, len(chunks), s.cfg.Format.IndexWidth)
	}

	id := uuid.NewString()
	tr := &outbound{
		id:      id,
		log:     observability.TransferLogger(observability.RoleSender, id),
		chunks:  chunks,
		queue:   NewWorkQueue(len(chunks)),
		acks:    NewAckRegistry(),
		outbox:  session.NewChunkOutbox(),
		started: time.Now(),
	}
	tr.phase.Store(PhaseSending)
	s.current.Store(tr)

	tr.log.Info().
		Int("bytes", len(payload)).
		Int("chunks", len(chunks)).
		Int("workers", s.cfg.Workers).
		Int("chunk_size", s.cfg.Format.ChunkSize).
		Msg("transfer started")

	if err := s.runWorkers(ctx, tr); err != nil {
		return s.fail(tr, err)
	}
	if missing := tr.acks.Missing(len(chunks)); tr.queue.Len() > 0 || len(missing) > 0 {
		return s.fail(tr, fmt.Errorf("%w: queued=%d missing=%d", ErrIncomplete, tr.queue.Len(), len(missing)))
	}

	tr.phase.Store(PhaseTerminating)
	confirmed, rounds, err := s.terminate(ctx, tr)
	if err != nil {
		return s.fail(tr, err)
	}
	tr.phase.Store(PhaseDone)

	report := Report{
		TransferID:     id,
		Chunks:         len(chunks),
		Bytes:          len(payload),
		Packets:        tr.packets.Load(),
		Retransmits:    tr.retransmits.Load(),
		Noise:          tr.noise.Load(),
		Confirmed:      confirmed,
		SentinelRounds: rounds,
		Duration:       time.Since(tr.started),
	}
	observability.RecordTransfer(observability.RoleSender, "ok", report.Duration)
	event := tr.log.Info()
	if !confirmed {
		event = tr.log.Warn()
	}
	event.
		Int("chunks", report.Chunks).
		Int64("retransmits", report.Retransmits).
		Int64("noise", report.Noise).
		Bool("confirmed", confirmed).
		Int("sentinel_rounds", rounds).
		Dur("duration", report.Duration).
		Msg("transfer finished")
	return report, nil
}

func (s *Sender) fail(tr *outbound, err error) (Report, error) {
	tr.phase.Store(PhaseFailed)
	observability.RecordTransfer(observability.RoleSender, "failed", time.Since(tr.started))
	tr.log.Error().Err(err).Msg("transfer failed")
	return Report{TransferID: tr.id, Chunks: len(tr.chunks)}, err
}

func (s *Sender) runWorkers(ctx context.Context, tr *outbound) error {
	workers := min(s.cfg.Workers, len(tr.chunks))
	if workers == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			return s.work(gctx, tr, worker)
		})
	}
	return g.Wait()
}

// work claims indices until the queue is drained. It never sends an index it
// did not dequeue.
func (s *Sender) work(ctx context.Context, tr *outbound, worker int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
	for {
		idx, ok := tr.queue.Next()
		if !ok {
			return nil
		}
		if err := s.deliver(ctx, tr, idx, rng); err != nil {
			return fmt.Errorf("chunk %d: %w", idx, err)
		}
	}
}

// deliver sends chunk idx and resends it each time its ack wait expires.
// Every inbound message read meanwhile is applied to the shared registry.
func (s *Sender) deliver(ctx context.Context, tr *outbound, idx uint64, rng *rand.Rand) error {
	msg, err := s.codec.Encode(idx, tr.chunks[idx].Payload)
	if err != nil {
		return err
	}
	if err := s.transmit(tr, msg, observability.KindData); err != nil {
		return err
	}
	tr.outbox.Dispatch(idx, time.Now())

	attempt := 1
	deadline := time.Now().Add(session.NextBackoffDelay(s.cfg.Session.Backoff, attempt, rng))
	for !tr.acks.Has(idx) {
		wait := time.Until(deadline)
		if wait > 0 {
			in, err := s.ch.Receive(ctx, wait)
			if err == nil {
				s.applyAck(tr, in)
				continue
			}
			if !errors.Is(err, channel.ErrTimeout) {
				return err
			}
			if tr.acks.Has(idx) {
				break
			}
		}

		attempt++
		if err := s.transmit(tr, msg, observability.KindData); err != nil {
			return err
		}
		tr.retransmits.Add(1)
		observability.RecordRetransmit()
		tr.outbox.MarkAttempt(idx, time.Now())
		tr.log.Debug().Uint64("index", idx).Int("attempt", attempt).Msg("ack wait expired, chunk resent")
		deadline = time.Now().Add(session.NextBackoffDelay(s.cfg.Session.Backoff, attempt, rng))
	}
	tr.outbox.Remove(idx)
	return nil
}

// applyAck validates msg and records its index. Anything that is not a valid
// ack for this transfer is noise.
func (s *Sender) applyAck(tr *outbound, msg []byte) {
	ack, err := s.codec.DecodeAck(msg)
	if err != nil {
		tr.noise.Add(1)
		reason := observability.ReasonMalformed
		if errors.Is(err, packet.ErrChecksumMismatch) {
			reason = observability.ReasonChecksum
		}
		observability.RecordPacketDropped(observability.RoleSender, reason)
		tr.log.Debug().Err(err).Int("bytes", len(msg)).Msg("inbound message ignored")
		return
	}
	if ack.Index >= uint64(len(tr.chunks)) {
		tr.noise.Add(1)
		observability.RecordPacketDropped(observability.RoleSender, observability.ReasonStale)
		tr.log.Debug().Uint64("index", ack.Index).Msg("ack outside transfer ignored")
		return
	}
	if tr.acks.Add(ack.Index) {
		observability.RecordAckApplied()
		tr.log.Trace().Uint64("index", ack.Index).Int("acked", tr.acks.Len()).Msg("ack applied")
	}
}

// terminate sends the sentinel burst and waits for its echo. Acks still in
// flight are applied and otherwise ignored.
func (s *Sender) terminate(ctx context.Context, tr *outbound) (bool, int, error) {
	sentinel := s.codec.Sentinel()
	limit := s.cfg.Session.TerminationRounds
	for round := 1; ; round++ {
		for i := 0; i < s.cfg.Session.SentinelBurst; i++ {
			if err := s.transmit(tr, sentinel, observability.KindSentinel); err != nil {
				return false, round, err
			}
		}
		deadline := time.Now().Add(s.cfg.Session.TerminationWait)
		for {
			wait := time.Until(deadline)
			if wait <= 0 {
				break
			}
			in, err := s.ch.Receive(ctx, wait)
			if errors.Is(err, channel.ErrTimeout) {
				break
			}
			if err != nil {
				return false, round, err
			}
			if s.codec.IsSentinelEcho(in) {
				tr.log.Debug().Int("round", round).Msg("sentinel echo received")
				return true, round, nil
			}
			s.applyAck(tr, in)
		}
		tr.log.Debug().Int("round", round).Msg("sentinel echo wait expired")
		if limit > 0 && round >= limit {
			return false, round, nil
		}
	}
}

func (s *Sender) transmit(tr *outbound, msg []byte, kind string) error {
	if err := s.ch.Send(msg); err != nil {
		return err
	}
	if kind == observability.KindData {
		tr.packets.Add(1)
	}
	observability.RecordPacketSent(observability.RoleSender, kind)
	return nil
}

func (s *Sender) Progress() Progress {
	tr := s.current.Load()
	if tr == nil {
		return Progress{Role: observability.RoleSender, Phase: PhaseIdle}
	}
	phase, _ := tr.phase.Load().(string)
	var maxIndex uint64
	if n := len(tr.chunks); n > 0 {
		maxIndex = uint64(n - 1)
	}
	return Progress{
		Role:        observability.RoleSender,
		TransferID:  tr.id,
		Phase:       phase,
		Chunks:      len(tr.chunks),
		Completed:   tr.acks.Len(),
		Pending:     tr.queue.Len(),
		InFlight:    tr.outbox.List(),
		Retransmits: tr.retransmits.Load(),
		Dropped:     tr.noise.Load(),
		MaxIndex:    maxIndex,
		StartedAt:   tr.started,
		Elapsed:     time.Since(tr.started).Round(time.Millisecond).String(),
	}
}
