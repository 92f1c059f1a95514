package transport

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/protocol/packet"
	"github.com/danmuck/shuttle/internal/protocol/session"
	"github.com/danmuck/shuttle/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func testConfig(chunkSize int) Config {
	cfg := DefaultConfig()
	cfg.Format.ChunkSize = chunkSize
	cfg.MaxMessageSize = cfg.Format.MaxPacketLen()
	cfg.Workers = 8
	cfg.Session.IdleTimeout = 3 * time.Second
	cfg.Session.StartTimeout = 3 * time.Second
	cfg.Session.TerminationWait = 100 * time.Millisecond
	cfg.Session.TerminationRounds = 50
	cfg.Session.Backoff = session.BackoffConfig{
		InitialDelay: 50 * time.Millisecond,
		Multiplier:   1.0,
	}
	return cfg
}

type receiveResult struct {
	out []byte
	err error
}

// transfer runs one Send/Receive pair over the given channel ends.
func transfer(t *testing.T, cfg Config, sendEnd, recvEnd channel.Channel, payload []byte) (Report, []byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rcv, err := NewReceiver(recvEnd, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	snd, err := NewSender(sendEnd, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	done := make(chan receiveResult, 1)
	go func() {
		out, err := rcv.Receive(ctx)
		done <- receiveResult{out: out, err: err}
	}()

	report, err := snd.Send(ctx, payload)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	res := <-done
	if rcv.State() != StateTerminated && res.err == nil {
		t.Fatalf("receiver finished in state %s", rcv.State())
	}
	return report, res.out, res.err
}

func TestTransferHelloWorld(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	a, b := channel.NewPipe(256, cfg.MaxMessageSize)

	report, out, err := transfer(t, cfg, a, b, []byte("HELLOWORLD"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(out) != "HELLOWORLD" {
		t.Fatalf("unexpected output %q", out)
	}
	if report.Chunks != 3 || !report.Confirmed {
		t.Fatalf("unexpected report: %+v", report)
	}
	log.Debug().Int("chunks", report.Chunks).Msg("transport/hello: delivered")
}

func TestTransferResendsAfterDroppedAck(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	codec, err := packet.NewCodec(cfg.Format)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	a, b := channel.NewPipe(256, cfg.MaxMessageSize)
	recvSide, _ := channel.NewImpaired(b, channel.Impairment{})
	ackOne := codec.EncodeAck(1)
	var dropped atomic.Bool
	recvSide.DropFunc = func(msg []byte) bool {
		return bytes.Equal(msg, ackOne) && dropped.CompareAndSwap(false, true)
	}

	var chunkOneSends atomic.Int32
	sendSide, _ := channel.NewImpaired(a, channel.Impairment{})
	sendSide.DropFunc = func(msg []byte) bool {
		if pkt, err := codec.Decode(msg); err == nil && pkt.Index == 1 && !pkt.IsAck() {
			chunkOneSends.Add(1)
		}
		return false
	}

	report, out, err := transfer(t, cfg, sendSide, recvSide, []byte("HELLOWORLD"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(out) != "HELLOWORLD" {
		t.Fatalf("unexpected output %q", out)
	}
	if !dropped.Load() {
		t.Fatalf("ack for index 1 was never dropped")
	}
	if chunkOneSends.Load() < 2 || report.Retransmits < 1 {
		t.Fatalf("chunk 1 not resent: sends=%d report=%+v", chunkOneSends.Load(), report)
	}
}

func TestTransferSurvivesImpairedChannel(t *testing.T) {
	testlog.Start(t)
	payload := make([]byte, 24*1024)
	rand.New(rand.NewSource(1)).Read(payload)

	for _, seed := range []int64{1, 2, 3} {
		cfg := testConfig(256)
		a, b := channel.NewPipe(4096, cfg.MaxMessageSize)
		imp := channel.Impairment{Loss: 0.2, Corrupt: 0.1, Duplicate: 0.1, Seed: seed}
		sendSide, err := channel.NewImpaired(a, imp)
		if err != nil {
			t.Fatalf("impair: %v", err)
		}
		imp.Seed = seed + 100
		recvSide, _ := channel.NewImpaired(b, imp)

		report, out, err := transfer(t, cfg, sendSide, recvSide, payload)
		if err != nil {
			t.Fatalf("seed=%d receive: %v", seed, err)
		}
		if !bytes.Equal(out, payload) {
			t.Fatalf("seed=%d output mismatch: got %d bytes", seed, len(out))
		}
		log.Debug().
			Int64("seed", seed).
			Int64("retransmits", report.Retransmits).
			Int64("noise", report.Noise).
			Msg("transport/impaired: delivered")
	}
}

func TestTransferDefaultConfigSurvivesHeavyLoss(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	payload := make([]byte, 5*cfg.Format.ChunkSize+100)
	rand.New(rand.NewSource(9)).Read(payload)

	for seed := int64(1); seed <= 6; seed++ {
		a, b := channel.NewPipe(4096, cfg.MaxMessageSize)
		imp := channel.Impairment{Loss: 0.3, Duplicate: 0.05, Seed: seed}
		sendSide, err := channel.NewImpaired(a, imp)
		if err != nil {
			t.Fatalf("impair: %v", err)
		}
		imp.Seed = seed + 1000
		recvSide, _ := channel.NewImpaired(b, imp)

		report, out, err := transfer(t, cfg, sendSide, recvSide, payload)
		if err != nil {
			t.Fatalf("seed=%d receive with default config: %v", seed, err)
		}
		if !bytes.Equal(out, payload) || report.Chunks != 6 {
			t.Fatalf("seed=%d output mismatch: got %d bytes, report=%+v", seed, len(out), report)
		}
	}
}

func TestTransferIndexScopeOverCleanChannel(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(16)
	cfg.Format.Scope = packet.ScopeIndex
	a, b := channel.NewPipe(256, cfg.MaxMessageSize)
	payload := bytes.Repeat([]byte("shuttle-"), 40)
	_, out, err := transfer(t, cfg, a, b, payload)
	if err != nil || !bytes.Equal(out, payload) {
		t.Fatalf("index scope round trip failed: err=%v len=%d", err, len(out))
	}
}

func TestTransferEmptyPayload(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	a, b := channel.NewPipe(16, cfg.MaxMessageSize)
	report, out, err := transfer(t, cfg, a, b, nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(out) != 0 || report.Chunks != 0 || !report.Confirmed {
		t.Fatalf("unexpected empty transfer: out=%q report=%+v", out, report)
	}
}

func TestTerminationConvergesAfterLostSentinels(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	codec, _ := packet.NewCodec(cfg.Format)
	a, b := channel.NewPipe(256, cfg.MaxMessageSize)
	sendSide, _ := channel.NewImpaired(a, channel.Impairment{})
	var lost atomic.Int32
	sendSide.DropFunc = func(msg []byte) bool {
		if codec.IsSentinelEcho(msg) && lost.Load() < int32(cfg.Session.SentinelBurst) {
			lost.Add(1)
			return true
		}
		return false
	}

	report, out, err := transfer(t, cfg, sendSide, b, []byte("HELLOWORLD"))
	if err != nil || string(out) != "HELLOWORLD" {
		t.Fatalf("receive: out=%q err=%v", out, err)
	}
	if !report.Confirmed || report.SentinelRounds != 2 {
		t.Fatalf("expected confirmation on round 2, got %+v", report)
	}
}

func TestSenderUnconfirmedAfterRoundLimit(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	cfg.Session.TerminationRounds = 2
	cfg.Session.TerminationWait = 20 * time.Millisecond
	a, b := channel.NewPipe(64, cfg.MaxMessageSize)
	defer b.Close()

	snd, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	report, err := snd.Send(context.Background(), nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if report.Confirmed || report.SentinelRounds != 2 {
		t.Fatalf("expected unconfirmed after 2 rounds, got %+v", report)
	}
	if p := snd.Progress(); p.Phase != PhaseDone {
		t.Fatalf("unexpected phase %q", p.Phase)
	}
}

func TestReceiverDropsCorruptPacketWithoutAck(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	codec, _ := packet.NewCodec(cfg.Format)
	sendEnd, recvEnd := channel.NewPipe(64, cfg.MaxMessageSize)

	good, _ := codec.Encode(0, []byte("HELL"))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0x01
	_ = sendEnd.Send(bad)
	_ = sendEnd.Send([]byte{0x01})
	_ = sendEnd.Send(codec.Sentinel())

	rcv, err := NewReceiver(recvEnd, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	out, err := rcv.Receive(context.Background())
	if err != nil || len(out) != 0 {
		t.Fatalf("corrupt packet must not be stored: out=%q err=%v", out, err)
	}
	if p := rcv.Progress(); p.Completed != 0 || p.Dropped != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	for i := 0; i < cfg.Session.SentinelBurst; i++ {
		msg, err := sendEnd.Receive(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("echo %d: %v", i, err)
		}
		if !codec.IsSentinelEcho(msg) {
			t.Fatalf("receiver answered a corrupt packet: %x", msg)
		}
	}
	if _, err := sendEnd.Receive(context.Background(), 20*time.Millisecond); !errors.Is(err, channel.ErrTimeout) {
		t.Fatalf("expected nothing after echoes, got %v", err)
	}
}

func TestReceiverAcksDuplicates(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	codec, _ := packet.NewCodec(cfg.Format)
	sendEnd, recvEnd := channel.NewPipe(64, cfg.MaxMessageSize)
	msg, _ := codec.Encode(0, []byte("HELL"))
	_ = sendEnd.Send(msg)
	_ = sendEnd.Send(msg)
	_ = sendEnd.Send(codec.Sentinel())

	rcv, _ := NewReceiver(recvEnd, cfg)
	out, err := rcv.Receive(context.Background())
	if err != nil || string(out) != "HELL" {
		t.Fatalf("unexpected output %q err=%v", out, err)
	}
	want := codec.EncodeAck(0)
	for i := 0; i < 2; i++ {
		got, err := sendEnd.Receive(context.Background(), time.Second)
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("ack %d: %x err=%v", i, got, err)
		}
	}
}

func TestReceiverKeepsFirstPayloadUnderIndexScope(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	cfg.Format.Scope = packet.ScopeIndex
	codec, _ := packet.NewCodec(cfg.Format)
	sendEnd, recvEnd := channel.NewPipe(64, cfg.MaxMessageSize)
	first, _ := codec.Encode(0, []byte("HELL"))
	late, _ := codec.Encode(0, []byte("HXLL"))
	_ = sendEnd.Send(first)
	_ = sendEnd.Send(late)
	_ = sendEnd.Send(codec.Sentinel())

	rcv, _ := NewReceiver(recvEnd, cfg)
	out, err := rcv.Receive(context.Background())
	if err != nil || string(out) != "HELL" {
		t.Fatalf("late payload must not replace the stored chunk: out=%q err=%v", out, err)
	}
	want := codec.EncodeAck(0)
	for i := 0; i < 2; i++ {
		got, err := sendEnd.Receive(context.Background(), time.Second)
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("ack %d: %x err=%v", i, got, err)
		}
	}
}

func TestReceiverSurfacesGap(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	codec, _ := packet.NewCodec(cfg.Format)
	sendEnd, recvEnd := channel.NewPipe(64, cfg.MaxMessageSize)
	for _, c := range []Chunk{{0, []byte("HELL")}, {2, []byte("LD")}} {
		msg, _ := codec.Encode(c.Index, c.Payload)
		_ = sendEnd.Send(msg)
	}
	_ = sendEnd.Send(codec.Sentinel())

	rcv, _ := NewReceiver(recvEnd, cfg)
	out, err := rcv.Receive(context.Background())
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("gap must be reported, got %v", err)
	}
	if len(gap.Missing) != 1 || gap.Missing[0] != 1 || len(out) != 10 {
		t.Fatalf("unexpected gap result: missing=%v len=%d", gap.Missing, len(out))
	}
	if rcv.State() != StateTerminated {
		t.Fatalf("unexpected state %s", rcv.State())
	}
}

func TestReceiverAbortsOnInactivity(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	cfg.Session.StartTimeout = 30 * time.Millisecond
	_, recvEnd := channel.NewPipe(4, cfg.MaxMessageSize)
	rcv, _ := NewReceiver(recvEnd, cfg)

	out, err := rcv.Receive(context.Background())
	if !errors.Is(err, ErrInactivityTimeout) || out != nil {
		t.Fatalf("expected inactivity abort without output, got out=%q err=%v", out, err)
	}
	if rcv.State() != StateAborted {
		t.Fatalf("unexpected state %s", rcv.State())
	}
	if _, err := rcv.Receive(context.Background()); !errors.Is(err, ErrReceiverDone) {
		t.Fatalf("terminal state must be final, got %v", err)
	}
}

func TestReceiverAbortsOnIdleAfterData(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4)
	cfg.Session.IdleTimeout = 30 * time.Millisecond
	cfg.Session.TerminationWait = 5 * time.Millisecond
	cfg.Session.Backoff.InitialDelay = 5 * time.Millisecond
	codec, _ := packet.NewCodec(cfg.Format)
	sendEnd, recvEnd := channel.NewPipe(4, cfg.MaxMessageSize)
	msg, _ := codec.Encode(0, []byte("HELL"))
	_ = sendEnd.Send(msg)

	rcv, _ := NewReceiver(recvEnd, cfg)
	out, err := rcv.Receive(context.Background())
	if !errors.Is(err, ErrInactivityTimeout) || out != nil {
		t.Fatalf("partial output must not be emitted: out=%q err=%v", out, err)
	}
}

func TestConfigRejectsOversizedPackets(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Format.ChunkSize = 1000
	cfg.MaxMessageSize = 1024
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewSender(nil, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("sender must validate config, got %v", err)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSenderRejectsIndexSpaceOverflow(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(1)
	cfg.Format.IndexWidth = 1
	cfg.MaxMessageSize = cfg.Format.MaxPacketLen()
	a, _ := channel.NewPipe(4, cfg.MaxMessageSize)
	snd, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if _, err := snd.Send(context.Background(), make([]byte, 257)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
