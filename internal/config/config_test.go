package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CREWCLOCK_HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, home, cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "pending_uploads.json"), cfg.QueueFile)
	assert.Equal(t, "groups", cfg.Zone)
	assert.Equal(t, 5*time.Minute, cfg.DrainInterval.Duration)
	assert.False(t, cfg.RemoteIsHTTP())
}

func TestLoad_FileThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CREWCLOCK_HOME", home)

	file := filepath.Join(home, ConfigFile)
	content := `
zone = "team"
remote = "http://10.0.0.5:7420"
drain_interval = "90s"
log_level = "debug"
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	t.Setenv("CREWCLOCK_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "team", cfg.Zone)
	assert.True(t, cfg.RemoteIsHTTP())
	assert.Equal(t, 90*time.Second, cfg.DrainInterval.Duration)
	assert.Equal(t, "warn", cfg.LogLevel, "env must win over the file")
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	t.Setenv("CREWCLOCK_HOME", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_DataDirRebasesDefaultPaths(t *testing.T) {
	home := t.TempDir()
	moved := filepath.Join(t.TempDir(), "elsewhere")
	t.Setenv("CREWCLOCK_HOME", home)

	file := filepath.Join(home, ConfigFile)
	require.NoError(t, os.WriteFile(file, []byte("data_dir = \""+filepath.ToSlash(moved)+"\"\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(moved, "crewclock.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(moved, "remote.db"), cfg.Remote)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty zone", mutate: func(c *Config) { c.Zone = " " }, wantErr: true},
		{name: "zero drain interval", mutate: func(c *Config) { c.DrainInterval.Duration = 0 }, wantErr: true},
		{name: "negative probe interval", mutate: func(c *Config) { c.ProbeInterval.Duration = -time.Second }, wantErr: true},
		{name: "empty remote", mutate: func(c *Config) { c.Remote = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 2m ")))
	assert.Equal(t, 2*time.Minute, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
