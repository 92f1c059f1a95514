package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/logging"
	"github.com/danmuck/shuttle/internal/status"
	"github.com/danmuck/shuttle/internal/transport"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "sender config (defaults apply when empty)")
	input := flag.String("in", "-", "payload file, - for stdin")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath, *input); err != nil {
		fmt.Fprintf(os.Stderr, "sendctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, input string) error {
	cfg, err := loadSenderConfig(configPath)
	if err != nil {
		return err
	}
	payload, err := readInput(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep, err := channel.ListenUDP(cfg.Endpoint)
	if err != nil {
		return err
	}
	defer ep.Close()

	var ch channel.Channel = ep
	if cfg.Impairment.Active() {
		if ch, err = channel.NewImpaired(ep, cfg.Impairment); err != nil {
			return err
		}
		log.Warn().Interface("impairment", cfg.Impairment).Msg("sendctl: outbound impairment enabled")
	}

	sender, err := transport.NewSender(ch, cfg.Transport)
	if err != nil {
		return err
	}

	if cfg.StatusEnabled {
		srv := status.New(cfg.Status, sender)
		if _, err := srv.Start(); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer shutdown(srv)
	}

	log.Info().
		Str("listen", ep.LocalAddr().String()).
		Str("peer", cfg.Endpoint.Peer).
		Int("bytes", len(payload)).
		Msg("sendctl: sending")

	report, err := sender.Send(ctx, payload)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted after %d packets", report.Packets)
		}
		return err
	}
	printReport(os.Stderr, report)
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printReport(w io.Writer, r transport.Report) {
	rate := 0.0
	if secs := r.Duration.Seconds(); secs > 0 {
		rate = float64(r.Bytes) / secs
	}
	fmt.Fprintf(w, "transfer %s: %d bytes in %d chunks, %d packets (%d retransmits, %d noise) in %s, %.0f B/s, confirmed=%t after %d sentinel round(s)\n",
		r.TransferID, r.Bytes, r.Chunks, r.Packets, r.Retransmits, r.Noise,
		r.Duration.Round(time.Millisecond), rate, r.Confirmed, r.SentinelRounds)
}

func shutdown(srv *status.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("sendctl: status shutdown")
	}
}
