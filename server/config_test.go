package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "127.0.0.1:6667", cfg.Addr)
	require.Equal(t, "#&", cfg.ChanTypes)
	require.Equal(t, 10, cfg.CommandsPerInterval)
	require.Equal(t, 5, cfg.IntervalSeconds)
}

func TestLoadConfigEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ircd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7000\"\nname: myirc.example\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, "myirc.example", cfg.Name)
	// fields absent from the override file keep their defaults
	require.Equal(t, "#&", cfg.ChanTypes)
	require.Equal(t, 10, cfg.CommandsPerInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

