package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miratopia/credvault/internal/account"
)

func TestOfflineUUID(t *testing.T) {
	id := OfflineUUID("Steve")
	assert.Equal(t, uuid.Version(3), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
	assert.Equal(t, id, OfflineUUID("Steve"), "derivation is deterministic")
	assert.NotEqual(t, id, OfflineUUID("steve"), "names are case sensitive")
}

func TestOfflineAuthenticate(t *testing.T) {
	issued := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	o := &Offline{Now: func() time.Time { return issued }}

	rec, err := o.Authenticate(context.Background(), " Steve ")
	require.NoError(t, err)
	assert.Equal(t, "Steve", rec.Username)
	assert.Equal(t, OfflineUUID("Steve").String(), rec.UUID)
	assert.Len(t, rec.AccessToken, 32)
	assert.NotContains(t, rec.AccessToken, "-")
	assert.Equal(t, issued, rec.IssuedAt)
	assert.Equal(t, account.ProviderOffline, rec.Provider)
	assert.False(t, rec.Expired(issued.Add(24*365*time.Hour)))
}

func TestOfflineRejectsBadNames(t *testing.T) {
	o := NewOffline()
	for _, name := range []string{"", "ab", "this_name_is_too_long", "bad name", "émile"} {
		_, err := o.Authenticate(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidUsername, name)
	}
}

func TestOfflineRefreshIsNoop(t *testing.T) {
	rec, err := NewOffline().Authenticate(context.Background(), "Alex")
	require.NoError(t, err)

	got, err := NewOffline().Refresh(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, rec.Equal(got))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewOffline().Refresh(ctx, rec)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileImport(t *testing.T) {
	path := writeFile(t, `{
		"username": "Notch",
		"uuid": "069a79f4-44e9-4726-a5be-fca90e38aaf5",
		"access_token": "eyJ.token",
		"refresh_token": "M.refresh",
		"expires_in": 86400,
		"issued_at": "2026-10-14T09:00:00Z",
		"provider": "custom"
	}`)

	rec, err := NewFileImport(path, account.ProviderMicrosoft).Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Notch", rec.Username)
	assert.Equal(t, "M.refresh", rec.RefreshToken)
	assert.Equal(t, uint64(86400), rec.ExpiresIn)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), rec.IssuedAt.UTC())
	assert.Equal(t, account.ProviderMicrosoft, rec.Provider, "provider is forced")
}

func TestFileImportErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFileImport("", account.ProviderMicrosoft).Authenticate(ctx, "")
	assert.Error(t, err)

	_, err = NewFileImport(filepath.Join(t.TempDir(), "missing.json"), account.ProviderMicrosoft).Authenticate(ctx, "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewFileImport(writeFile(t, "{"), account.ProviderMicrosoft).Authenticate(ctx, "")
	assert.Error(t, err)

	_, err = NewFileImport(writeFile(t, `{"username":"Notch"}`), account.ProviderMicrosoft).Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestPassthrough(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := account.Record{Username: "Notch", IssuedAt: issued, ExpiresIn: 60, Provider: account.ProviderMicrosoft}
	p := &Passthrough{Now: func() time.Time { return issued.Add(time.Hour) }}

	got, err := p.Refresh(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, rec.Equal(got))
}
