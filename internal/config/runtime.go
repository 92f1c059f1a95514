package config

import (
	"path/filepath"
	"strings"

	"github.com/danmuck/shuttle/internal/channel"
	"github.com/danmuck/shuttle/internal/status"
)

// ImpairmentConfig is the [impairment] table shared by sendctl and recvctl.
type ImpairmentConfig struct {
	Loss      float64 `toml:"loss"`
	Corrupt   float64 `toml:"corrupt"`
	Duplicate float64 `toml:"duplicate"`
	Seed      int64   `toml:"seed"`
}

func (c ImpairmentConfig) Impairment() channel.Impairment {
	return channel.Impairment{
		Loss:      c.Loss,
		Corrupt:   c.Corrupt,
		Duplicate: c.Duplicate,
		Seed:      c.Seed,
	}
}

// StatusConfig is the [status] table. An empty addr disables the listener.
type StatusConfig struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

func (c StatusConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

func (c StatusConfig) Server(node string) status.Config {
	return status.Config{
		Node:        node,
		Addr:        strings.TrimSpace(c.Addr),
		CorsOrigins: c.CorsOrigins,
		Token:       strings.TrimSpace(c.Token),
	}
}

// ResolvePath joins a relative path onto the directory of the file that named it.
func ResolvePath(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
