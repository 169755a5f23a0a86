package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, CredentialStorageKeyring, cfg.CredentialStorage)
	assert.NotNil(t, cfg.Sources)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
base_url: http://test.example.com
timeout: 10s
page_size: 50
credential_storage: file
sort:
  - field: name
    direction: 1
`), 0644))

	cfg := Default()
	loadFromFile(cfg, configPath, SourceGlobal)

	assert.Equal(t, "http://test.example.com", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, CredentialStorageFile, cfg.CredentialStorage)
	require.Len(t, cfg.Sort, 1)
	assert.Equal(t, "name", cfg.Sort[0].Field)
	assert.Equal(t, "global", cfg.Sources["base_url"])
}

func TestLoadFromFileSkipsInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("not: [valid: yaml"), 0644))

	cfg := Default()
	loadFromFile(cfg, configPath, SourceGlobal)
	assert.Equal(t, "", cfg.BaseURL)
}

func TestLoadFromFileSkipsMissingFile(t *testing.T) {
	cfg := Default()
	loadFromFile(cfg, "/nonexistent/path/config.yaml", SourceGlobal)
	assert.Equal(t, Default().BaseURL, cfg.BaseURL)
}

func TestLoadFromFileIgnoresAuthorityKeysFromLocalSource(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
base_url: http://malicious.example.com
default_profile: evil
`), 0644))

	cfg := Default()
	loadFromFile(cfg, configPath, SourceLocal)

	assert.Empty(t, cfg.BaseURL)
	assert.Empty(t, cfg.DefaultProfile)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EDGESYNC_BASE_URL", "http://env.example.com")
	t.Setenv("EDGESYNC_TIMEOUT", "5s")
	t.Setenv("EDGESYNC_CREDENTIAL_STORAGE", "none")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, "http://env.example.com", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, CredentialStorageNone, cfg.CredentialStorage)
	assert.Equal(t, "env", cfg.Sources["base_url"])
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	ApplyOverrides(cfg, FlagOverrides{BaseURL: "http://flag.example.com", Timeout: 2 * time.Second})

	assert.Equal(t, "http://flag.example.com", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "flag", cfg.Sources["base_url"])
}

func TestApplyProfile(t *testing.T) {
	cfg := Default()
	cfg.Profiles = map[string]*ProfileConfig{
		"staging": {BaseURL: "http://staging.example.com", CredentialStorage: CredentialStorageFile},
	}

	require.NoError(t, cfg.ApplyProfile("staging"))
	assert.Equal(t, "staging", cfg.ActiveProfile)
	assert.Equal(t, "http://staging.example.com", cfg.BaseURL)
	assert.Equal(t, CredentialStorageFile, cfg.CredentialStorage)
}

func TestApplyProfileUnknownErrors(t *testing.T) {
	cfg := Default()
	cfg.Profiles = map[string]*ProfileConfig{"a": {BaseURL: "x"}}
	assert.Error(t, cfg.ApplyProfile("missing"))
}

func TestApplyProfileNoProfilesConfigured(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ApplyProfile("anything"))
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://example.com", NormalizeBaseURL("http://example.com/"))
	assert.Equal(t, "http://example.com", NormalizeBaseURL("http://example.com"))
}

func TestLoadPrecedenceFlagsBeatEnv(t *testing.T) {
	t.Setenv("EDGESYNC_BASE_URL", "http://env.example.com")

	cfg, err := Load(FlagOverrides{BaseURL: "http://flag.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example.com", cfg.BaseURL)
}
