// loopctl runs a sender and a receiver in one process over an impaired pipe
// and checks that the bytes that come out hash the same as the bytes that
// went in.
package main

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/config"
	"github.com/danmuck/shuttle/internal/logging"
	"github.com/danmuck/shuttle/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type options struct {
	input      string
	size       int
	profile    string
	workers    int
	ackTimeout time.Duration
	impairment channel.Impairment
}

type loopResult struct {
	Report  transport.Report
	InMD5   string
	OutMD5  string
	OutSize int
	Stats   channel.ImpairmentStats
}

func (r loopResult) Match() bool {
	return r.InMD5 == r.OutMD5
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "in", "", "payload file; random bytes when empty")
	flag.IntVar(&opts.size, "size", 1<<20, "random payload size when -in is empty")
	flag.StringVar(&opts.profile, "profile", "", "wire profile toml")
	flag.IntVar(&opts.workers, "workers", 24, "sender workers")
	flag.DurationVar(&opts.ackTimeout, "ack-timeout", 200*time.Millisecond, "ack wait before resend")
	flag.Float64Var(&opts.impairment.Loss, "loss", 0.1, "per-message loss probability")
	flag.Float64Var(&opts.impairment.Corrupt, "corrupt", 0.05, "per-message corruption probability")
	flag.Float64Var(&opts.impairment.Duplicate, "duplicate", 0.05, "per-message duplication probability")
	flag.Int64Var(&opts.impairment.Seed, "seed", 0, "impairment seed, 0 picks one from the clock")
	flag.Parse()

	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	payload, err := loadPayload(opts)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, err := loopConfig(opts)
	if err != nil {
		fatalf("%v", err)
	}
	res, err := runLoop(ctx, cfg, opts.impairment, payload)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("in  %s %d bytes\n", res.InMD5, len(payload))
	fmt.Printf("out %s %d bytes\n", res.OutMD5, res.OutSize)
	fmt.Printf("packets=%d retransmits=%d noise=%d dropped=%d corrupted=%d duplicated=%d confirmed=%t duration=%s\n",
		res.Report.Packets, res.Report.Retransmits, res.Report.Noise,
		res.Stats.Dropped, res.Stats.Corrupted, res.Stats.Duplicated,
		res.Report.Confirmed, res.Report.Duration.Round(time.Millisecond))
	if !res.Match() {
		fatalf("md5 mismatch")
	}
	fmt.Println("MATCH")
}

func loadPayload(opts options) ([]byte, error) {
	if opts.input != "" {
		return os.ReadFile(opts.input)
	}
	if opts.size < 0 {
		return nil, fmt.Errorf("size must not be negative")
	}
	buf := make([]byte, opts.size)
	rand.New(rand.NewSource(time.Now().UnixNano())).Read(buf)
	return buf, nil
}

func loopConfig(opts options) (transport.Config, error) {
	cfg := transport.DefaultConfig()
	if opts.profile != "" {
		profile, err := config.LoadProfile(opts.profile)
		if err != nil {
			return transport.Config{}, err
		}
		if cfg.Format, err = profile.Format(); err != nil {
			return transport.Config{}, err
		}
		cfg.MaxMessageSize = profile.MaxMessageSize
	}
	cfg.Workers = opts.workers
	cfg.Session.Backoff.InitialDelay = opts.ackTimeout
	cfg.Session.TerminationWait = opts.ackTimeout
	return cfg.WithDefaults(), nil
}

// runLoop wires both ends over one pipe. Each direction gets its own
// impairment seed so loss on data and on acks is independent.
func runLoop(ctx context.Context, cfg transport.Config, imp channel.Impairment, payload []byte) (loopResult, error) {
	if imp.Seed == 0 {
		imp.Seed = time.Now().UnixNano()
	}
	a, b := channel.NewPipe(8192, cfg.MaxMessageSize)
	defer a.Close()
	defer b.Close()

	sendSide, err := channel.NewImpaired(a, imp)
	if err != nil {
		return loopResult{}, err
	}
	imp.Seed++
	recvSide, err := channel.NewImpaired(b, imp)
	if err != nil {
		return loopResult{}, err
	}

	snd, err := transport.NewSender(sendSide, cfg)
	if err != nil {
		return loopResult{}, err
	}
	rcv, err := transport.NewReceiver(recvSide, cfg)
	if err != nil {
		return loopResult{}, err
	}

	var (
		report transport.Report
		out    []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out, err = rcv.Receive(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		report, err = snd.Send(gctx, payload)
		return err
	})
	if err := g.Wait(); err != nil {
		return loopResult{}, err
	}

	log.Debug().Interface("stats", sendSide.Stats()).Msg("loopctl: sender side impairment")
	return loopResult{
		Report:  report,
		InMD5:   md5Hex(payload),
		OutMD5:  md5Hex(out),
		OutSize: len(out),
		Stats:   sendSide.Stats(),
	}, nil
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "loopctl: "+format+"\n", args...)
	os.Exit(1)
}
