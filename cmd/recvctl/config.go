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
	Profile       string                  `toml:"profile"`
	Listen        string                  `toml:"listen"`
	Peer          string                  `toml:"peer"`
	IdleTimeout   string                  `toml:"idle_timeout"`
	StartTimeout  string                  `toml:"start_timeout"`
	SentinelBurst int                     `toml:"sentinel_burst"`
	Impairment    config.ImpairmentConfig `toml:"impairment"`
	Status        config.StatusConfig     `toml:"status"`
}

type receiverConfig struct {
	Transport     transport.Config
	Endpoint      channel.EndpointConfig
	Impairment    channel.Impairment
	Status        status.Config
	StatusEnabled bool
}

func defaultReceiverConfig() receiverConfig {
	tc := transport.DefaultConfig()
	return receiverConfig{
		Transport: tc,
		Endpoint: channel.EndpointConfig{
			Listen:         "127.0.0.1:50005",
			Peer:           "127.0.0.1:50006",
			MaxMessageSize: tc.MaxMessageSize,
		},
	}
}

func loadReceiverConfig(path string) (receiverConfig, error) {
	cfg := defaultReceiverConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return receiverConfig{}, fmt.Errorf("load receiver config: %w", err)
	}

	if meta.IsDefined("profile") {
		profile, err := config.LoadProfile(config.ResolvePath(path, raw.Profile))
		if err != nil {
			return receiverConfig{}, err
		}
		format, err := profile.Format()
		if err != nil {
			return receiverConfig{}, err
		}
		cfg.Transport.Format = format
		cfg.Transport.MaxMessageSize = profile.MaxMessageSize
		cfg.Endpoint.MaxMessageSize = profile.MaxMessageSize
	}
	if meta.IsDefined("listen") {
		cfg.Endpoint.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("peer") {
		cfg.Endpoint.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return receiverConfig{}, fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.Transport.Session.IdleTimeout = d
	}
	if meta.IsDefined("start_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StartTimeout))
		if err != nil {
			return receiverConfig{}, fmt.Errorf("parse start_timeout: %w", err)
		}
		cfg.Transport.Session.StartTimeout = d
	}
	if meta.IsDefined("sentinel_burst") {
		cfg.Transport.Session.SentinelBurst = raw.SentinelBurst
	}

	cfg.Impairment = raw.Impairment.Impairment()
	if err := cfg.Impairment.Validate(); err != nil {
		return receiverConfig{}, err
	}
	cfg.StatusEnabled = raw.Status.Enabled()
	cfg.Status = raw.Status.Server("recvctl")

	if err := cfg.Transport.WithDefaults().Validate(); err != nil {
		return receiverConfig{}, err
	}
	return cfg, nil
}
