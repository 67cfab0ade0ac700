package config

import (
	"fmt"
	"net/url"
	"path/filepath"
)

// Validate normalizes defaults in place and rejects configurations the
// worker cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	origin, err := url.Parse(c.Origin)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https, got %q", origin.Scheme)
	}
	if origin.Host == "" {
		return fmt.Errorf("origin host is required")
	}
	if origin.Path != "" && origin.Path != "/" {
		return fmt.Errorf("origin must not carry a path, got %q", origin.Path)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.App == "" {
		c.App = DefaultApp
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(c.DataDir, "syncQueueDB")
	}

	if c.FetchTimeoutMS < 0 {
		return fmt.Errorf("fetch_timeout_ms must be non-negative")
	}
	if c.ReplayTimeoutMS < 0 {
		return fmt.Errorf("replay_timeout_ms must be non-negative")
	}
	if c.RefreshIntervalMS < 0 {
		return fmt.Errorf("refresh_interval_ms must be non-negative")
	}
	if c.MaxReplayAttempts < 0 {
		return fmt.Errorf("max_replay_attempts must be non-negative")
	}
	return nil
}

// OriginURL returns the parsed origin. Validate must have succeeded first.
func (c *Config) OriginURL() (*url.URL, error) {
	return url.Parse(c.Origin)
}

// CacheDir is where the generation store keeps its database.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// GenerationName follows the "<app>-site-<version>" cache naming pattern.
func (c *Config) GenerationName() string {
	return c.App + "-site-" + c.Version
}
