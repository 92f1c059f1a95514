package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
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
	configPath := flag.String("config", "", "receiver config (defaults apply when empty)")
	output := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath, *output); err != nil {
		fmt.Fprintf(os.Stderr, "recvctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, output string) error {
	cfg, err := loadReceiverConfig(configPath)
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
		log.Warn().Interface("impairment", cfg.Impairment).Msg("recvctl: outbound impairment enabled")
	}

	receiver, err := transport.NewReceiver(ch, cfg.Transport)
	if err != nil {
		return err
	}

	if cfg.StatusEnabled {
		srv := status.New(cfg.Status, receiver)
		if _, err := srv.Start(); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer shutdown(srv)
	}

	log.Info().
		Str("listen", ep.LocalAddr().String()).
		Str("peer", cfg.Endpoint.Peer).
		Msg("recvctl: waiting for transfer")

	payload, err := receiver.Receive(ctx)
	if err != nil {
		var gap *transport.GapError
		if errors.As(err, &gap) {
			return fmt.Errorf("transfer incomplete, %d chunk(s) missing: %w", len(gap.Missing), err)
		}
		return err
	}
	if err := writeOutput(output, payload); err != nil {
		return err
	}
	log.Info().Int("bytes", len(payload)).Str("out", output).Msg("recvctl: transfer written")
	return nil
}

// writeOutput emits payload once; nothing is written for a failed transfer.
func writeOutput(path string, payload []byte) error {
	if path != "" && path != "-" {
		return os.WriteFile(path, payload, 0o644)
	}
	_, err := os.Stdout.Write(payload)
	return err
}

func shutdown(srv *status.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("recvctl: status shutdown")
	}
}
