package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is the file and flag representation of the server configuration.
type Config struct {
	Listen            []string `yaml:"listen"`
	OutgoingAddresses []string `yaml:"outgoing_addresses"`
	AllowSOCKS4       bool     `yaml:"allow_socks4"`
	AllowSOCKS5       bool     `yaml:"allow_socks5"`
	Backlog           int      `yaml:"backlog"`
}

// Default returns the configuration used when neither flags nor a file say
// otherwise.
func Default() Config {
	return Config{
		Listen:            []string{"127.0.0.1:1080"},
		OutgoingAddresses: []string{"0.0.0.0", "::"},
		AllowSOCKS4:       true,
		AllowSOCKS5:       true,
		Backlog:           100,
	}
}

// LoadFile decodes the YAML file at path on top of base. Keys missing from the
// file keep their value from base.
func LoadFile(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := base
	cfg.Listen = slices.Clone(base.Listen)
	cfg.OutgoingAddresses = slices.Clone(base.OutgoingAddresses)
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Snapshot is a validated, read-only view of Config. Callers must not modify
// the slices it holds.
type Snapshot struct {
	Listen            []string
	OutgoingAddresses []netip.Addr
	AllowSOCKS4       bool
	AllowSOCKS5       bool
	Backlog           int
}

// Snapshot validates c and converts it into an immutable Snapshot.
func (c Config) Snapshot() (*Snapshot, error) {
	if c.Backlog <= 0 {
		return nil, fmt.Errorf("backlog must be > 0, got %d", c.Backlog)
	}
	if !c.AllowSOCKS4 && !c.AllowSOCKS5 {
		return nil, errors.New("both SOCKS4 and SOCKS5 are disabled")
	}

	s := &Snapshot{
		AllowSOCKS4: c.AllowSOCKS4,
		AllowSOCKS5: c.AllowSOCKS5,
		Backlog:     c.Backlog,
	}

	for _, l := range c.Listen {
		if _, _, err := net.SplitHostPort(l); err != nil {
			return nil, fmt.Errorf("listen address %q: %w", l, err)
		}
		if !slices.Contains(s.Listen, l) {
			s.Listen = append(s.Listen, l)
		}
	}

	for _, a := range c.OutgoingAddresses {
		ip, err := netip.ParseAddr(a)
		if err != nil {
			return nil, fmt.Errorf("outgoing address %q: %w", a, err)
		}
		s.OutgoingAddresses = append(s.OutgoingAddresses, ip.Unmap())
	}

	return s, nil
}
