package keyringstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("EDGESYNC_NO_KEYRING", "1")
	return New(t.TempDir())
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	s := newFileStore(t)
	creds := Credentials{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 123}
	require.NoError(t, s.Save("https://api.example.com", creds))

	got, err := s.Load("https://api.example.com")
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestLoadMissingOriginErrors(t *testing.T) {
	s := newFileStore(t)
	_, err := s.Load("https://nowhere.example.com")
	require.Error(t, err)
}

func TestDeleteRemovesOrigin(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, s.Save("origin", Credentials{AccessToken: "a"}))
	require.NoError(t, s.Delete("origin"))
	_, err := s.Load("origin")
	require.Error(t, err)
}

func TestSaveKeepsOtherOrigins(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, s.Save("a", Credentials{AccessToken: "a"}))
	require.NoError(t, s.Save("b", Credentials{AccessToken: "b"}))

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
}

func TestUsingKeyringFalseWhenDisabled(t *testing.T) {
	s := newFileStore(t)
	assert.False(t, s.UsingKeyring())
}
