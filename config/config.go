// Package config provides layered configuration loading for an edgesync
// client: remote base URL, request timeout, publication filter, sort
// order, and credential storage mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgesync/edgesync/query"
)

// CredentialStorage selects how remote credentials are persisted.
type CredentialStorage string

const (
	CredentialStorageKeyring CredentialStorage = "keyring"
	CredentialStorageFile    CredentialStorage = "file"
	CredentialStorageNone    CredentialStorage = "none"
)

// Config holds the resolved configuration for an edgesync client.
type Config struct {
	// Remote settings
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// PublicationMatch is a query-style match document selecting which
	// remote records belong to this client's view. An empty map
	// publishes everything.
	PublicationMatch map[string]any `yaml:"publication_match,omitempty"`

	// Sort orders the snapshot and Find results.
	Sort query.SortSpec `yaml:"sort,omitempty"`

	// CredentialStorage selects where bearer credentials are persisted.
	CredentialStorage CredentialStorage `yaml:"credential_storage"`

	// CacheDir is where the queue-persistence file and plaintext
	// credential fallback live.
	CacheDir string `yaml:"cache_dir"`

	// PageSize bounds how many records are requested per snapshot page.
	// 0 disables client-side paging.
	PageSize int `yaml:"page_size"`

	// Profiles holds named identity+environment bundles.
	Profiles       map[string]*ProfileConfig `yaml:"profiles,omitempty"`
	DefaultProfile string                    `yaml:"default_profile,omitempty"`
	ActiveProfile  string                    `yaml:"-"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-"`
}

// ProfileConfig holds configuration for a named profile.
type ProfileConfig struct {
	BaseURL           string            `yaml:"base_url"`
	CredentialStorage CredentialStorage `yaml:"credential_storage,omitempty"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceRepo    Source = "repo"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
	SourceProfile Source = "profile"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL string
	Profile string
	Timeout time.Duration
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		Timeout:           30 * time.Second,
		CredentialStorage: CredentialStorageKeyring,
		CacheDir:          filepath.Join(cacheDir, "edgesync"),
		Sources:           make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > env > local > repo > global > system > defaults.
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	repoPath := repoConfigPath()
	if repoPath != "" {
		loadFromFile(cfg, repoPath, SourceRepo)
	}
	for _, path := range localConfigPaths(repoPath) {
		loadFromFile(cfg, path, SourceLocal)
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

type fileConfig struct {
	BaseURL           string                    `yaml:"base_url"`
	Timeout           string                    `yaml:"timeout"`
	PublicationMatch  map[string]any            `yaml:"publication_match"`
	Sort              query.SortSpec            `yaml:"sort"`
	CredentialStorage string                    `yaml:"credential_storage"`
	CacheDir          string                    `yaml:"cache_dir"`
	PageSize          int                       `yaml:"page_size"`
	Profiles          map[string]*ProfileConfig `yaml:"profiles"`
	DefaultProfile    string                    `yaml:"default_profile"`
}

func loadFromFile(cfg *Config, path string, source Source) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config locations
	if err != nil {
		return
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	// Authority keys (base_url, profiles, default_profile) control where
	// credentials are sent. Local/repo config must not set these — a
	// malicious config in a cloned repo or parent directory could
	// redirect authenticated traffic to an attacker-controlled host.
	untrusted := source == SourceLocal || source == SourceRepo

	if fc.BaseURL != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring base_url %q from %s config at %s (authority keys are not trusted from local/repo config)\n", fc.BaseURL, source, path)
		} else {
			cfg.BaseURL = fc.BaseURL
			cfg.Sources["base_url"] = string(source)
		}
	}
	if fc.Timeout != "" {
		if d, err := time.ParseDuration(fc.Timeout); err == nil {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		}
	}
	if fc.PublicationMatch != nil {
		cfg.PublicationMatch = fc.PublicationMatch
		cfg.Sources["publication_match"] = string(source)
	}
	if len(fc.Sort) > 0 {
		cfg.Sort = fc.Sort
		cfg.Sources["sort"] = string(source)
	}
	if fc.CredentialStorage != "" {
		cfg.CredentialStorage = CredentialStorage(fc.CredentialStorage)
		cfg.Sources["credential_storage"] = string(source)
	}
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
		cfg.Sources["cache_dir"] = string(source)
	}
	if fc.PageSize > 0 {
		cfg.PageSize = fc.PageSize
		cfg.Sources["page_size"] = string(source)
	}
	if fc.DefaultProfile != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring default_profile %q from %s config at %s (authority keys are not trusted from local/repo config)\n", fc.DefaultProfile, source, path)
		} else {
			cfg.DefaultProfile = fc.DefaultProfile
			cfg.Sources["default_profile"] = string(source)
		}
	}
	if fc.Profiles != nil {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring profiles from %s config at %s (authority keys are not trusted from local/repo config)\n", source, path)
		} else {
			if cfg.Profiles == nil {
				cfg.Profiles = make(map[string]*ProfileConfig)
			}
			for name, p := range fc.Profiles {
				if p == nil || p.BaseURL == "" {
					continue
				}
				cfg.Profiles[name] = p
			}
			cfg.Sources["profiles"] = string(source)
		}
	}
}

// LoadFromEnv loads configuration from environment variables. Exported so
// callers can re-apply after profile overlay.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EDGESYNC_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("EDGESYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("EDGESYNC_CREDENTIAL_STORAGE"); v != "" {
		cfg.CredentialStorage = CredentialStorage(v)
		cfg.Sources["credential_storage"] = string(SourceEnv)
	}
	if v := os.Getenv("EDGESYNC_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(SourceEnv)
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg. Exported so
// callers can re-apply after profile overlay.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
		cfg.Sources["timeout"] = string(SourceFlag)
	}
}

// ApplyProfile overlays profile values onto the config.
//
// This is the first pass of a two-pass precedence system: profile values
// unconditionally overwrite config fields here; the caller must then
// re-invoke LoadFromEnv and ApplyOverrides so flags and env vars keep
// final precedence: flags > env > profile > file > defaults.
func (cfg *Config) ApplyProfile(name string) error {
	if cfg.Profiles == nil {
		return fmt.Errorf("no profiles configured")
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found", name)
	}

	cfg.ActiveProfile = name
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
		cfg.Sources["base_url"] = string(SourceProfile)
	}
	if p.CredentialStorage != "" {
		cfg.CredentialStorage = p.CredentialStorage
		cfg.Sources["credential_storage"] = string(SourceProfile)
	}
	return nil
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}

// Path helpers

func systemConfigPath() string {
	return "/etc/edgesync/config.yaml"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "edgesync")
}

// repoConfigPath walks up from the working directory looking for a
// .git directory with a sibling .edgesync/config.yaml. The search is
// bounded by $HOME: a CWD outside the home tree trusts no repo config,
// preventing a malicious .git placed in, say, /tmp from anchoring a
// repo root an attacker controls.
func repoConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}
	dir = resolved

	home, _ := os.UserHomeDir()
	if resolved, err := filepath.EvalSymlinks(home); err == nil {
		home = resolved
	}
	if home != "" && !isInsideDir(dir, home) {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			cfgPath := filepath.Join(dir, ".edgesync", "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return cfgPath
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		if home != "" && dir == home {
			return ""
		}
		dir = parent
	}
}

func isInsideDir(child, parent string) bool {
	if child == parent {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// localConfigPaths returns .edgesync/config.yaml paths within the trust
// boundary, excluding repoConfigPath (already loaded as SourceRepo).
// Paths are ordered from furthest ancestor to closest so closer configs
// override. Inside a git repo the boundary is the repo root; outside
// one, only the current directory is trusted (no parent traversal).
func localConfigPaths(repoConfigPath string) []string {
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	dir = resolved

	var boundary string
	if repoConfigPath != "" {
		boundary = filepath.Dir(filepath.Dir(repoConfigPath))
	} else {
		boundary = dir
	}
	if resolved, err := filepath.EvalSymlinks(boundary); err == nil {
		boundary = resolved
	}

	var paths []string
	for {
		cfgPath := filepath.Join(dir, ".edgesync", "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil && cfgPath != repoConfigPath {
			paths = append(paths, cfgPath)
		}
		parent := filepath.Dir(dir)
		if parent == dir || dir == boundary {
			break
		}
		dir = parent
	}

	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}
