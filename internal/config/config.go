// Package config owns the protocol profile: the wire parameters sender and
// receiver must agree on, kept in one TOML file both sides load.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/shuttle/internal/protocol/packet"
	"github.com/pelletier/go-toml/v2"
)

type ProfileConfig struct {
	ChunkSize      int    `toml:"chunk_size"`
	IndexWidth     int    `toml:"index_width"`
	Checksum       string `toml:"checksum"`
	ChecksumScope  string `toml:"checksum_scope"`
	MaxMessageSize int    `toml:"max_message_size"`
}

func DefaultProfile() ProfileConfig {
	f := packet.DefaultFormat()
	return ProfileConfig{
		ChunkSize:      f.ChunkSize,
		IndexWidth:     f.IndexWidth,
		Checksum:       f.Digest.Name,
		ChecksumScope:  string(f.Scope),
		MaxMessageSize: f.MaxPacketLen(),
	}
}

// LoadProfile reads path over DefaultProfile and validates the result.
func LoadProfile(path string) (ProfileConfig, error) {
	cfg := DefaultProfile()
	if err := loadToml(path, &cfg); err != nil {
		return ProfileConfig{}, err
	}
	if err := ValidateProfile(cfg); err != nil {
		return ProfileConfig{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateProfile(cfg ProfileConfig) error {
	f, err := cfg.Format()
	if err != nil {
		return err
	}
	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive")
	}
	if f.MaxPacketLen() > cfg.MaxMessageSize {
		return fmt.Errorf("chunk_size %d + header %d exceeds max_message_size %d",
			f.ChunkSize, f.HeaderLen(), cfg.MaxMessageSize)
	}
	return nil
}

// Format converts the profile into the codec's wire format.
func (cfg ProfileConfig) Format() (packet.Format, error) {
	digest, err := packet.LookupDigest(cfg.Checksum)
	if err != nil {
		return packet.Format{}, err
	}
	scope, err := packet.ParseScope(cfg.ChecksumScope)
	if err != nil {
		return packet.Format{}, err
	}
	f := packet.Format{
		ChunkSize:  cfg.ChunkSize,
		IndexWidth: cfg.IndexWidth,
		Digest:     digest,
		Scope:      scope,
	}
	if err := f.Validate(); err != nil {
		return packet.Format{}, err
	}
	return f, nil
}

// RenderProfile encodes cfg as TOML, e.g. to pin the profile a sender used.
func RenderProfile(cfg ProfileConfig) ([]byte, error) {
	cfg.Checksum = strings.ToLower(strings.TrimSpace(cfg.Checksum))
	return toml.Marshal(cfg)
}
