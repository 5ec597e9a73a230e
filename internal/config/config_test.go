package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/paths"
)

func TestConfigLoad_Defaults(t *testing.T) {
	cfg, err := New(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "AI Conversations", cfg.ConversationFolder)
	assert.Equal(t, "json", cfg.StateDriver)
	assert.Equal(t, "none", cfg.DatePrefix)
	assert.True(t, cfg.IncrementalSave)
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHATVAULT_DATE_PREFIX", "YYYYMMDD")
	t.Setenv("CHATVAULT_STATE_DRIVER", "sqlite")

	cfg, err := New(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "YYYYMMDD", cfg.DatePrefix)
	assert.Equal(t, "sqlite", cfg.StateDriver)

	opts, err := cfg.NamingOptions()
	require.NoError(t, err)
	assert.Equal(t, paths.PrefixCompact, opts.DatePrefix)
}

func TestConfigLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CHATVAULT_CONVERSATION_FOLDER=Chats\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("CHATVAULT_CONVERSATION_FOLDER") })

	cfg, err := New(envFile)
	require.NoError(t, err)
	assert.Equal(t, "Chats", cfg.ConversationFolder)
}

func TestValidate_RejectsUnknownValues(t *testing.T) {
	cfg := NewForTesting(t.TempDir())
	cfg.StateDriver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = NewForTesting(t.TempDir())
	cfg.DatePrefix = "DD-MM"
	assert.Error(t, cfg.Validate())

	cfg = NewForTesting(t.TempDir())
	cfg.TimeZone = "Nowhere/Land"
	assert.Error(t, cfg.Validate())
}

func TestResolvedStatePath(t *testing.T) {
	cfg := NewForTesting("/vault")
	assert.Equal(t, filepath.Join("/vault", ".chatvault", "state.json"), cfg.ResolvedStatePath())

	cfg.StatePath = "/var/state.json"
	assert.Equal(t, "/var/state.json", cfg.ResolvedStatePath())
}
