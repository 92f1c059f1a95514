package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/config"
	"github.com/danmuck/shuttle/internal/status"
	"github.com/danmuck/shuttle/internal/transport"
)

type fileConfig struct {
	Profile           string                  `toml:"profile"`
	Workers           int                     `toml:"workers"`
	Listen            string                  `toml:"listen"`
	Peer              string                  `toml:"peer"`
	AckTimeout        string                  `toml:"ack_timeout"`
	AckTimeoutMax     string                  `toml:"ack_timeout_max"`
	AckBackoff        float64                 `toml:"ack_backoff"`
	AckJitter         bool                    `toml:"ack_jitter"`
	TerminationWait   string                  `toml:"termination_wait"`
	TerminationRounds int                     `toml:"termination_rounds"`
	SentinelBurst     int                     `toml:"sentinel_burst"`
	Impairment        config.ImpairmentConfig `toml:"impairment"`
	Status            config.StatusConfig     `toml:"status"`
}

type senderConfig struct {
	Transport     transport.Config
	Endpoint      channel.EndpointConfig
	Impairment    channel.Impairment
	Status        status.Config
	StatusEnabled bool
}

func defaultSenderConfig() senderConfig {
	tc := transport.DefaultConfig()
	return senderConfig{
		Transport: tc,
		Endpoint: channel.EndpointConfig{
			Listen:         "127.0.0.1:50006",
			Peer:           "127.0.0.1:50005",
			MaxMessageSize: tc.MaxMessageSize,
		},
	}
}

// loadSenderConfig overlays the keys present in path onto the defaults. An
// empty path yields the defaults.
func loadSenderConfig(path string) (senderConfig, error) {
	cfg := defaultSenderConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return senderConfig{}, fmt.Errorf("load sender config: %w", err)
	}

	if meta.IsDefined("profile") {
		profile, err := config.LoadProfile(config.ResolvePath(path, raw.Profile))
		if err != nil {
			return senderConfig{}, err
		}
		format, err := profile.Format()
		if err != nil {
			return senderConfig{}, err
		}
		cfg.Transport.Format = format
		cfg.Transport.MaxMessageSize = profile.MaxMessageSize
		cfg.Endpoint.MaxMessageSize = profile.MaxMessageSize
	}

	if meta.IsDefined("workers") {
		cfg.Transport.Workers = raw.Workers
	}
	if meta.IsDefined("listen") {
		cfg.Endpoint.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("peer") {
		cfg.Endpoint.Peer = strings.TrimSpace(raw.Peer)
	}

	backoff := &cfg.Transport.Session.Backoff
	if meta.IsDefined("ack_timeout") {
		if backoff.InitialDelay, err = parseDuration("ack_timeout", raw.AckTimeout); err != nil {
			return senderConfig{}, err
		}
	}
	if meta.IsDefined("ack_timeout_max") {
		if backoff.MaxDelay, err = parseDuration("ack_timeout_max", raw.AckTimeoutMax); err != nil {
			return senderConfig{}, err
		}
	}
	if meta.IsDefined("ack_backoff") {
		backoff.Multiplier = raw.AckBackoff
	}
	if meta.IsDefined("ack_jitter") {
		backoff.Jitter = raw.AckJitter
	}

	if meta.IsDefined("termination_wait") {
		if cfg.Transport.Session.TerminationWait, err = parseDuration("termination_wait", raw.TerminationWait); err != nil {
			return senderConfig{}, err
		}
	}
	if meta.IsDefined("termination_rounds") {
		cfg.Transport.Session.TerminationRounds = raw.TerminationRounds
	}
	if meta.IsDefined("sentinel_burst") {
		cfg.Transport.Session.SentinelBurst = raw.SentinelBurst
	}

	cfg.Impairment = raw.Impairment.Impairment()
	if err := cfg.Impairment.Validate(); err != nil {
		return senderConfig{}, err
	}
	cfg.StatusEnabled = raw.Status.Enabled()
	cfg.Status = raw.Status.Server("sendctl")

	if err := cfg.Transport.WithDefaults().Validate(); err != nil {
		return senderConfig{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
