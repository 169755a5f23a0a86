package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestWatchReloadsTimeoutOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "base_url: http://example.com\ntimeout: 1s\n")

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)

	w, err := Watch(path, cfg, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, time.Second, w.Timeout())

	writeConfig(t, path, "base_url: http://example.com\ntimeout: 9s\n")

	require.Eventually(t, func() bool {
		return w.Timeout() == 9*time.Second
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchIgnoresMalformedRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "timeout: 3s\n")

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)

	w, err := Watch(path, cfg, nil)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, path, "not: [valid: yaml")

	// Give the watcher a moment to process the malformed rewrite, then
	// confirm the last-good value survived.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3*time.Second, w.Timeout())
}
