// Package manifest holds the fixed list of URLs required for the offline
// experience. The list is static: defined at build time (or loaded once from
// a YAML file at startup), never mutated while the worker runs.
package manifest

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ShellPage        = "/"
	IndexPage        = "/index.html"
	OfflinePage      = "/offline.html"
	ContactPage      = "/contact.html"
	Stylesheet       = "/styles/main.css"
	ScriptBundle     = "/scripts/main.js"
	WebAppManifest   = "/manifest.json"
	PlaceholderImage = "/assets/images/placeholder.jpg"
	OfflinePDF       = "/assets/docs/offline.pdf"
)

type Manifest struct {
	Assets []string `yaml:"assets"`
}

// Default returns the built-in asset list: shell and fallback documents,
// stylesheet, script bundle, web-app manifest, icons, screenshots, category
// icons and the generic offline media.
func Default() Manifest {
	return Manifest{Assets: []string{
		ShellPage,
		IndexPage,
		OfflinePage,
		ContactPage,
		Stylesheet,
		ScriptBundle,
		WebAppManifest,
		PlaceholderImage,
		"/assets/icons/noc-logo-192x192.png",
		"/assets/icons/noc-logo-512x512.png",
		"/assets/screenshots/home-narrow.png",
		"/assets/screenshots/home-wide.png",
		"/assets/icons/category-pdf.png",
		"/assets/icons/category-image.png",
		"/assets/icons/category-video.png",
		OfflinePDF,
	}}
}

// Load reads a manifest from a YAML file. An empty path yields the default
// manifest.
func Load(path string) (Manifest, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m Manifest) Validate() error {
	if len(m.Assets) == 0 {
		return fmt.Errorf("manifest has no assets")
	}
	seen := make(map[string]struct{}, len(m.Assets))
	for _, asset := range m.Assets {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("manifest asset %q must be an absolute path", asset)
		}
		if _, dup := seen[asset]; dup {
			return fmt.Errorf("manifest asset %q listed twice", asset)
		}
		seen[asset] = struct{}{}
	}
	return nil
}

// Contains reports whether path is part of the manifest.
func (m Manifest) Contains(path string) bool {
	for _, asset := range m.Assets {
		if asset == path {
			return true
		}
	}
	return false
}

// AbsoluteURLs resolves every asset path against the origin, preserving the
// manifest order.
func (m Manifest) AbsoluteURLs(origin *url.URL) []string {
	out := make([]string, 0, len(m.Assets))
	for _, asset := range m.Assets {
		ref := &url.URL{Path: asset}
		out = append(out, origin.ResolveReference(ref).String())
	}
	return out
}
