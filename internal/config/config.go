package config

import (
	"encoding/json"
	"time"
)

type Config struct {
	ListenAddr string `json:"listen_addr"`
	Origin     string `json:"origin"`
	App        string `json:"app"`
	Version    string `json:"version"`

	DataDir      string `json:"data_dir"`
	QueueDir     string `json:"queue_dir"`
	ManifestPath string `json:"manifest_path"`

	FetchTimeoutMS    int `json:"fetch_timeout_ms"`
	ReplayTimeoutMS   int `json:"replay_timeout_ms"`
	RefreshIntervalMS int `json:"refresh_interval_ms"`
	ProbeIntervalMS   int `json:"probe_interval_ms"`
	MaxReplayAttempts int `json:"max_replay_attempts"`

	Limits   LimitsConfig   `json:"limits"`
	Shutdown ShutdownConfig `json:"shutdown"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int    `json:"max_header_bytes"`
	MaxBodyBytes        *int64 `json:"max_body_bytes"`
	ReadHeaderTimeoutMS int    `json:"read_header_timeout_ms"`
	IdleTimeoutMS       int    `json:"idle_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `json:"drain_ms"`
	GracefulTimeoutMS int `json:"graceful_timeout_ms"`
}

const (
	DefaultApp            = "noctun"
	DefaultVersion        = "v1"
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultDataDir        = "./data"
	DefaultFetchTimeout   = 5 * time.Second
	DefaultReplayTimeout  = 10 * time.Second
	DefaultRefreshPeriod  = 24 * time.Hour
	DefaultProbeInterval  = 30 * time.Second
	DefaultReplayAttempts = 25
)

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) FetchTimeout() time.Duration {
	return durationOr(c.FetchTimeoutMS, DefaultFetchTimeout)
}

func (c *Config) ReplayTimeout() time.Duration {
	return durationOr(c.ReplayTimeoutMS, DefaultReplayTimeout)
}

func (c *Config) RefreshInterval() time.Duration {
	return durationOr(c.RefreshIntervalMS, DefaultRefreshPeriod)
}

func (c *Config) ProbeInterval() time.Duration {
	return durationOr(c.ProbeIntervalMS, DefaultProbeInterval)
}

func (c *Config) ReplayAttempts() int {
	if c.MaxReplayAttempts > 0 {
		return c.MaxReplayAttempts
	}
	return DefaultReplayAttempts
}

func durationOr(milliseconds int, fallback time.Duration) time.Duration {
	if milliseconds <= 0 {
		return fallback
	}
	return time.Duration(milliseconds) * time.Millisecond
}
