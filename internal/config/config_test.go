package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paultag/go-shr/internal/config"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rings.toml")

	cfg := &config.Config{
		Rings: map[string]config.Ring{
			"events": {
				Path:      "/dev/shm/events",
				DataBytes: 1 << 20,
				Flags:     []string{"drop", "farm"},
			},
		},
	}
	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Rings, loaded.Rings)
}

func TestParseFlagNamesRejectsUnknown(t *testing.T) {
	t.Parallel()
	_, err := config.ParseFlagNames([]string{"drop", "bogus"})
	require.Error(t, err)
}

func TestRingBitsOrsFlags(t *testing.T) {
	t.Parallel()
	r := config.Ring{Flags: []string{"drop", "app_data"}}
	bits, err := r.Bits()
	require.NoError(t, err)
	require.NotZero(t, bits)
}
