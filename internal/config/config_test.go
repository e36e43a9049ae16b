package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/sysvalidate"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, sysvalidate.MaxEntrySize, cfg.Limits.MaxEntrySize)
	assert.Equal(t, sysvalidate.MaxTagSize, cfg.Limits.MaxTagSize)
	assert.Equal(t, uint32(sysvalidate.DefaultRetryCeiling), cfg.Retry.Ceiling)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Empty(t, cfg.Network.Peers)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FullFile(t *testing.T) {
	path := filepath.Join("testdata", "node.toml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "node.db"), cfg.Database, "relative to the config file")
	assert.Equal(t, "/etc/sysval/forum.cue", cfg.Manifest)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 1024, cfg.Limits.MaxEntrySize)
	assert.Equal(t, 64, cfg.Limits.MaxTagSize)
	assert.Equal(t, uint32(3), cfg.Retry.Ceiling)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Retry.BackoffMax)
	assert.Equal(t, 2*time.Second, cfg.Network.Timeout)
	assert.Equal(t, []string{filepath.Join("testdata", "peer.db"), "/var/lib/sysval/other.db"}, cfg.Network.Peers)
	assert.Equal(t, ":9464", cfg.Metrics.Listen)
	assert.Equal(t, []dht.AgentPubKey{"abcdef"}, cfg.Revoked)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "partial.toml"))
	require.NoError(t, err)

	want := Default()
	want.Retry.Ceiling = 0
	assert.Equal(t, want, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"missing.toml", "load config"},
		{"unknown_key.toml", "unknown keys: retry.ceilling"},
		{"bad_duration.toml", "parse network.timeout"},
		{"invalid.toml", "log.format must be text or json"},
		{"invalid.toml", "limits.max_tag_size must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := Load(filepath.Join("testdata", tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Database = " "
	cfg.Log.Level = "loud"
	cfg.Retry.BackoffBase = time.Minute
	cfg.Retry.BackoffMax = time.Second
	cfg.Network.Timeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"database must not be empty",
		"log.level must be",
		"retry.backoff_max 1s is below retry.backoff_base 1m0s",
		"network.timeout must be positive",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
