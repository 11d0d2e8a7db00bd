package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	fs := NewFileStore(path)

	s, err := fs.Load()
	require.NoError(t, err)
	assert.Nil(t, s)

	want := &Session{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		UserID:       "u1",
	}
	require.NoError(t, fs.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := fs.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, want.UserID, got.UserID)

	// overwrite leaves no temp files behind
	require.NoError(t, fs.Save(&Session{AccessToken: "b"}))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear())
	got, err = fs.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)

	_, err = NewTokenManager(NewFileStore(path))
	require.Error(t, err)
}
