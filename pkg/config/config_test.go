package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 10.0, cfg.LLM.MaxCostUSD)
	assert.Equal(t, "./metadata", cfg.Metadata.OutputDir)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialWaitMS)
	assert.False(t, cfg.LLMEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LLM_MAX_COST_USD", "0.5")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("SERVER_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.LLM.MaxCostUSD)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.True(t, cfg.LLMEnabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7070"
llm:
  model: gpt-4o
  max_cost_usd: 2.5
  price_per_k:
    my-local-model: 0.0001
metadata:
  output_dir: /var/lib/tablesage
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 2.5, cfg.LLM.MaxCostUSD)
	assert.Equal(t, 0.0001, cfg.LLM.PricePerK["my-local-model"])
	assert.Equal(t, "/var/lib/tablesage", cfg.Metadata.OutputDir)
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
