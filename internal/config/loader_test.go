package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("COPY_TEST_SET", "from-env")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${COPY_TEST_SET}", "key: from-env"},
		{"set variable ignores default", "key: ${COPY_TEST_SET:fallback}", "key: from-env"},
		{"unset with default", "key: ${COPY_TEST_UNSET:fallback}", "key: fallback"},
		{"unset with empty default", "key: ${COPY_TEST_UNSET:}", "key: "},
		{"unset without default is kept", "key: ${COPY_TEST_UNSET}", "key: ${COPY_TEST_UNSET}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestLoadFrom_DefaultsWithoutFiles(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "product-copy-api", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 3, cfg.Generation.TargetCount)
	assert.Equal(t, 60, cfg.Generation.MaxNameLength)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, "gpt-4-turbo", cfg.LLM.Providers["openai"].Model)
	assert.Equal(t, "/metrics", cfg.Observability.Metrics.Path)
}

func TestLoadFrom_EnvironmentFileOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("COPY_TEST_MODEL", "gemini-2.0-flash")

	writeFile(t, dir, "config.yaml", `
llm:
  default_provider: gemini
  providers:
    gemini:
      type: gemini
      model: ${COPY_TEST_MODEL:gemini-pro}
generation:
  timeout: 10s
`)
	writeFile(t, dir, "config.staging.yaml", `
generation:
  timeout: 45s
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, "gemini", cfg.LLM.DefaultProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Providers["gemini"].Model)
	assert.Equal(t, ProviderTypeGemini, cfg.LLM.Providers["gemini"].ProviderType())
}

func TestLoadFrom_RejectsUnknownProviderType(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeFile(t, dir, "config.yaml", `
llm:
  default_provider: custom
  providers:
    custom:
      type: carrier-pigeon
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestProviderType_DefaultsToOpenAI(t *testing.T) {
	assert.Equal(t, ProviderTypeOpenAI, ProviderConfig{}.ProviderType())
	assert.Equal(t, ProviderTypeOllama, ProviderConfig{Type: " Ollama "}.ProviderType())
}
