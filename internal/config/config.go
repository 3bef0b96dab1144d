// Package config loads and persists shrtool's TOML configuration: the set
// of rings a host provisions and the flags each is created with.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"

	shr "github.com/paultag/go-shr"
)

// Ring describes one ring shrtool knows how to create or open.
type Ring struct {
	// Path is the backing file's location on disk (or a hugetlbfs/tmpfs
	// mount for a ramdisk-backed ring; provisioning that mount is left to
	// the operator).
	Path string `toml:"path"`
	// DataBytes is the data-area capacity passed to shr.Init.
	DataBytes uint64 `toml:"data_bytes"`
	// Flags lists the init-time flag names (see flagNames) ORed together
	// to build shr.Init's flags argument.
	Flags []string `toml:"flags"`
	// MaxMessages overrides the default index slot count; zero means use
	// the default. Requires "max_msgs" in Flags.
	MaxMessages uint64 `toml:"max_messages,omitempty"`
}

// Config is the top-level shrtool configuration: a named set of rings.
type Config struct {
	Rings map[string]Ring `toml:"rings"`
}

var flagNames = map[string]uint32{
	"keep_existing": shr.FlagKeepExisting,
	"drop":          shr.FlagDrop,
	"app_data":      shr.FlagAppData,
	"farm":          shr.FlagFarm,
	"max_msgs":      shr.FlagMaxMsgs,
	"sync":          shr.FlagSync,
	"mlock":         shr.FlagMlock,
}

// Bits ORs together the init-time flag bits named in r.Flags.
func (r Ring) Bits() (uint32, error) {
	return ParseFlagNames(r.Flags)
}

// ParseFlagNames ORs together the init-time flag bits named in names (see
// flagNames for the accepted spellings). Shared by the config file loader
// and shrtool's --flags command-line option.
func ParseFlagNames(names []string) (uint32, error) {
	var bits uint32
	for _, name := range names {
		bit, ok := flagNames[strings.TrimSpace(name)]
		if !ok {
			return 0, fmt.Errorf("config: unknown ring flag %q", name)
		}
		bits |= bit
	}
	return bits, nil
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save serializes cfg and writes it to path atomically (rename over a temp
// file), so a reader never observes a partially-written config.
func Save(path string, cfg *Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return atomic.WriteFile(path, strings.NewReader(string(buf)))
}
