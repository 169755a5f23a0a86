// Package keyringstore persists remote-service credentials, preferring
// the host system keychain via github.com/zalando/go-keyring and falling
// back to a warned plaintext file when no keychain is available (CI
// containers, headless Linux with no secret service running).
package keyringstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"
)

const serviceName = "edgesync"

// Credentials are bearer credentials. The fields match
// httpjson.Credentials, but this is a distinct type.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Store persists Credentials keyed by origin (typically a remote base
// URL), preferring the system keychain.
type Store struct {
	useKeyring  bool
	fallbackDir string
}

// New probes the system keychain and returns a Store. If the keychain is
// unavailable it falls back to a plaintext file under fallbackDir and
// warns once on stderr.
func New(fallbackDir string) *Store {
	if os.Getenv("EDGESYNC_NO_KEYRING") != "" {
		return &Store{useKeyring: false, fallbackDir: fallbackDir}
	}

	testKey := "edgesync::test"
	if err := keyring.Set(serviceName, testKey, "test"); err == nil {
		_ = keyring.Delete(serviceName, testKey)
		return &Store{useKeyring: true, fallbackDir: fallbackDir}
	}
	fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
		filepath.Join(fallbackDir, "credentials.json"))
	return &Store{useKeyring: false, fallbackDir: fallbackDir}
}

func key(origin string) string {
	return fmt.Sprintf("edgesync::%s", origin)
}

// Load retrieves credentials for origin.
func (s *Store) Load(origin string) (Credentials, error) {
	if s.useKeyring {
		return s.loadFromKeyring(origin)
	}
	return s.loadFromFile(origin)
}

// Save stores credentials for origin.
func (s *Store) Save(origin string, creds Credentials) error {
	if s.useKeyring {
		return s.saveToKeyring(origin, creds)
	}
	return s.saveToFile(origin, creds)
}

// Delete removes stored credentials for origin.
func (s *Store) Delete(origin string) error {
	if s.useKeyring {
		return keyring.Delete(serviceName, key(origin))
	}
	return s.deleteFile(origin)
}

// UsingKeyring reports whether the store is backed by the system keychain.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

func (s *Store) loadFromKeyring(origin string) (Credentials, error) {
	data, err := keyring.Get(serviceName, key(origin))
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials not found: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return Credentials{}, fmt.Errorf("invalid credentials: %w", err)
	}
	return creds, nil
}

func (s *Store) saveToKeyring(origin string, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, key(origin), string(data))
}

func (s *Store) credentialsPath() string {
	return filepath.Join(s.fallbackDir, "credentials.json")
}

func (s *Store) loadAllFromFile() (map[string]Credentials, error) {
	data, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Credentials), nil
		}
		return nil, err
	}
	var all map[string]Credentials
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Store) saveAllToFile(all map[string]Credentials) error {
	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	destPath := s.credentialsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) loadFromFile(origin string) (Credentials, error) {
	all, err := s.loadAllFromFile()
	if err != nil {
		return Credentials{}, err
	}
	creds, ok := all[origin]
	if !ok {
		return Credentials{}, fmt.Errorf("credentials not found for %s", origin)
	}
	return creds, nil
}

func (s *Store) saveToFile(origin string, creds Credentials) error {
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	all[origin] = creds
	return s.saveAllToFile(all)
}

func (s *Store) deleteFile(origin string) error {
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	delete(all, origin)
	return s.saveAllToFile(all)
}

// MigrateToKeyring copies any plaintext-stored credentials into the
// system keychain and removes the plaintext file on success. A no-op
// when the store is not backed by a keychain.
func (s *Store) MigrateToKeyring() error {
	if !s.useKeyring {
		return nil
	}
	all, err := s.loadAllFromFile()
	if err != nil {
		return nil //nolint:nilerr // no plaintext file to migrate is not an error
	}
	for origin, creds := range all {
		if err := s.saveToKeyring(origin, creds); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", origin, err)
		}
	}
	_ = os.Remove(s.credentialsPath())
	return nil
}
