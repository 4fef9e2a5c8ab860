package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDirFiles(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files [][]byte
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}

func flipLastByte(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data[len(data)-1] ^= 0xff
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
	}
	return nil
}

func sampleTokens() *Tokens {
	return &Tokens{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scopes:       []string{"read", "write"},
	}
}

func TestTokens_Valid(t *testing.T) {
	assert.True(t, sampleTokens().Valid())

	expired := sampleTokens()
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	assert.False(t, expired.Valid())

	empty := sampleTokens()
	empty.AccessToken = ""
	assert.False(t, empty.Valid())

	var nilTokens *Tokens
	assert.False(t, nilTokens.Valid())
}

// exerciseStore runs the shared Store contract against an implementation.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Absent client id yields (nil, nil).
	got, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := sampleTokens()
	require.NoError(t, store.Set(ctx, "c1", want))
	require.NoError(t, store.Set(ctx, "c2", sampleTokens()))

	got, err = store.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.Scopes, got.Scopes)
	assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Second)

	// Clear removes one client only.
	require.NoError(t, store.Clear(ctx, "c1"))
	got, err = store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = store.Get(ctx, "c2")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Clearing an absent client is not an error.
	require.NoError(t, store.Clear(ctx, "absent"))

	require.NoError(t, store.ClearAll(ctx))
	got, err = store.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "c1", sampleTokens()))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "at-1", got.AccessToken)
}

func TestSecureStore(t *testing.T) {
	store, err := NewSecureStore(t.TempDir(), "correct horse battery staple")
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestSecureStore_RequiresSecret(t *testing.T) {
	_, err := NewSecureStore(t.TempDir(), "")
	assert.Error(t, err)
}

func TestSecureStore_WrongSecretReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writer, err := NewSecureStore(dir, "secret-a")
	require.NoError(t, err)
	require.NoError(t, writer.Set(ctx, "c1", sampleTokens()))

	reader, err := NewSecureStore(dir, "secret-b")
	require.NoError(t, err)
	got, err := reader.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got, "wrong secret must behave as if nothing is stored")
}

func TestSecureStore_CiphertextOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewSecureStore(dir, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "c1", sampleTokens()))

	entries, err := readDirFiles(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, string(entries[0]), "at-1", "access token must not appear in plaintext")
}

func TestSecureStore_TamperedRecordReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewSecureStore(dir, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "c1", sampleTokens()))

	require.NoError(t, flipLastByte(dir))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
