package account

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miratopia/credvault/internal/snapshot"
	"github.com/miratopia/credvault/internal/store"
	"github.com/miratopia/credvault/internal/vault"
)

func newTestManager(t *testing.T) (*store.Manager, store.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := store.Paths{
		VaultPath: filepath.Join(dir, "vault.hold"),
		SaltPath:  filepath.Join(dir, "salt.txt"),
	}
	m := store.NewManager(store.WithKDFParams(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}))
	require.NoError(t, m.EnsureOpen(paths, "test-password"))
	return m, paths
}

func newTestStore(t *testing.T) (*Store, *store.Manager) {
	t.Helper()
	m, _ := newTestManager(t)
	return NewStore(m, nil), m
}

func sampleRecord(name string) Record {
	return Record{
		Username:     name,
		UUID:         "069a79f4-44e9-4726-a5be-fca90e38aaf5",
		AccessToken:  "access-" + name,
		RefreshToken: "refresh-" + name,
		ExpiresIn:    86400,
		IssuedAt:     time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC),
		Provider:     ProviderMicrosoft,
	}
}

func TestAddGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	for _, p := range []Provider{ProviderOffline, ProviderMicrosoft, ProviderAzuriom, ProviderCustom} {
		t.Run(p.String(), func(t *testing.T) {
			rec := sampleRecord("player_" + p.String())
			rec.Provider = p
			require.NoError(t, s.Add(rec.Username, rec))

			got, err := s.Get(rec.Username)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, rec.Equal(*got), "got %+v, want %+v", *got, rec)
		})
	}
}

func TestAddPersistsAcrossReopen(t *testing.T) {
	m, paths := newTestManager(t)
	s := NewStore(m, nil)
	require.NoError(t, s.Add("alice", sampleRecord("alice")))

	reopened := store.NewManager(store.WithKDFParams(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}))
	require.NoError(t, reopened.EnsureOpen(paths, "test-password"))
	other := NewStore(reopened, nil)

	names, err := other.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)

	got, err := other.Get("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-alice", got.AccessToken)
}

func TestAddIsIdempotentInIndex(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Add("alice", sampleRecord("alice")))
	require.NoError(t, s.Add("bob", sampleRecord("bob")))
	updated := sampleRecord("alice")
	updated.AccessToken = "new-token"
	require.NoError(t, s.Add("alice", updated))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "new-token", got.AccessToken)
}

func TestAddRejectsEmptyName(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Add("  ", sampleRecord("x")), ErrInvalidName)
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Get("nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetPartialRecordIsAbsent(t *testing.T) {
	s, m := newTestStore(t)

	require.NoError(t, m.WithNamespace(CredentialNamespace("half"), func(ns *snapshot.Namespace) error {
		ns.Insert([]byte("username"), []byte("half"))
		ns.Insert([]byte("uuid"), []byte("1234"))
		return nil
	}))

	got, err := s.Get("half")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetProviderHandling(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("legacy", sampleRecord("legacy")))
	require.NoError(t, s.Add("weird", sampleRecord("weird")))

	require.NoError(t, m.WithNamespace(CredentialNamespace("legacy"), func(ns *snapshot.Namespace) error {
		ns.Delete([]byte("provider"))
		return nil
	}))
	require.NoError(t, m.WithNamespace(CredentialNamespace("weird"), func(ns *snapshot.Namespace) error {
		ns.Insert([]byte("provider"), []byte("unknown"))
		return nil
	}))

	got, err := s.Get("legacy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ProviderOffline, got.Provider, "missing provider defaults to offline")

	_, err = s.Get("weird")
	assert.ErrorIs(t, err, vault.ErrUnknownProvider)

	// The bad record does not affect other accounts.
	names, err := s.List()
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestGetEncodingErrors(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("a", sampleRecord("a")))

	cases := map[string][]byte{
		"expires_in":   []byte("soon"),
		"emited_at":    []byte("yesterday"),
		"access_token": {0xff, 0xfe},
	}
	for field, value := range cases {
		t.Run(field, func(t *testing.T) {
			require.NoError(t, s.Add("a", sampleRecord("a")))
			require.NoError(t, m.WithNamespace(CredentialNamespace("a"), func(ns *snapshot.Namespace) error {
				ns.Insert([]byte(field), value)
				return nil
			}))

			_, err := s.Get("a")
			assert.ErrorIs(t, err, vault.ErrEncoding)
		})
	}
}

func TestEmptyIssuedAtReadsAsZero(t *testing.T) {
	s, _ := newTestStore(t)
	rec := sampleRecord("a")
	rec.IssuedAt = time.Time{}
	require.NoError(t, s.Add("a", rec))

	got, err := s.Get("a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IssuedAt.IsZero())
}

func TestCorruptIndexIsEncodingError(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, m.WithNamespace(AccountsNamespace, func(ns *snapshot.Namespace) error {
		ns.Insert([]byte("accounts"), []byte("{not json"))
		return nil
	}))

	_, err := s.List()
	assert.ErrorIs(t, err, vault.ErrEncoding)
	assert.ErrorIs(t, s.Add("a", sampleRecord("a")), vault.ErrEncoding)
}

func TestListNotInitialized(t *testing.T) {
	s := NewStore(store.NewManager(), nil)

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NotNil(t, names)

	_, err = s.Get("a")
	assert.ErrorIs(t, err, vault.ErrNotInitialized)
}

func TestDeleteRemovesEverything(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("alice", sampleRecord("alice")))
	require.NoError(t, s.Add("bob", sampleRecord("bob")))
	require.NoError(t, s.SwitchActive("alice"))

	require.NoError(t, s.Delete("alice"))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names)

	require.NoError(t, m.WithSnapshot(func(snap *snapshot.Snapshot) error {
		_, ok := snap.Lookup(CredentialNamespace("alice"))
		assert.False(t, ok, "no stale fields may survive a delete")
		_, ok = readActive(snap)
		assert.False(t, ok, "active pointer to a deleted account is cleared")
		return nil
	}))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Delete("never-existed"))
}

func TestActiveAccount(t *testing.T) {
	s, _ := newTestStore(t)

	name, rec, err := s.Active()
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Nil(t, rec)

	require.NoError(t, s.Add("a", sampleRecord("a")))
	require.NoError(t, s.Add("b", sampleRecord("b")))

	name, rec, err = s.Active()
	require.NoError(t, err)
	assert.Equal(t, "a", name, "no pointer falls back to the first account")
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.Username)

	require.NoError(t, s.SwitchActive("b"))
	name, err = s.ActiveName()
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	assert.ErrorIs(t, s.SwitchActive("ghost"), vault.ErrNotFound)
}

func TestActivePointerToUnindexedAccountFallsBack(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("a", sampleRecord("a")))
	require.NoError(t, m.WithNamespace(ActiveNamespace, func(ns *snapshot.Namespace) error {
		ns.Insert([]byte("active_account"), []byte("gone"))
		return nil
	}))

	name, err := s.ActiveName()
	require.NoError(t, err)
	assert.Equal(t, "a", name)
}

func TestReplace(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Add("a", sampleRecord("a")))

	rec := sampleRecord("a")
	rec.AccessToken = "rotated"
	ok, err := s.Replace("a", rec)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.AccessToken)

	ok, err = s.Replace("ghost", rec)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = s.Get("ghost")
	require.NoError(t, err)
	assert.Nil(t, got, "replace must not resurrect unindexed accounts")
}

func TestReindex(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("kept", sampleRecord("kept")))

	// Simulate a crash between the record write and the index write, plus
	// an index entry whose record is gone.
	require.NoError(t, m.WithSnapshot(func(snap *snapshot.Snapshot) error {
		writeRecord(snap.Namespace(CredentialNamespace("orphan")), sampleRecord("orphan"))
		return writeIndex(snap, []string{"kept", "dangling", "kept"})
	}))

	added, removed, err := s.Reindex()
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, added)
	assert.Equal(t, []string{"dangling"}, removed)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept", "orphan"}, names)

	added, removed, err = s.Reindex()
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestReindexKeepsUnreadableAccounts(t *testing.T) {
	s, m := newTestStore(t)
	require.NoError(t, s.Add("weird", sampleRecord("weird")))
	require.NoError(t, m.WithNamespace(CredentialNamespace("weird"), func(ns *snapshot.Namespace) error {
		ns.Insert([]byte("provider"), []byte("unknown"))
		return nil
	}))

	added, removed, err := s.Reindex()
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed, "an undecodable record is not a dangling entry")

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"weird"}, names)

	_, err = s.Get("weird")
	assert.ErrorIs(t, err, vault.ErrUnknownProvider)
}

func TestFailedCommitDiscardsMutation(t *testing.T) {
	m, paths := newTestManager(t)
	s := NewStore(m, nil)
	require.NoError(t, s.Add("alice", sampleRecord("alice")))

	// A directory in place of the blob makes every commit fail.
	require.NoError(t, os.Remove(paths.VaultPath))
	require.NoError(t, os.Mkdir(paths.VaultPath, 0o700))

	assert.Error(t, s.Add("bob", sampleRecord("bob")))
	assert.Error(t, s.SwitchActive("alice"))
	assert.Error(t, s.Delete("alice"))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
	got, err := s.Get("bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, os.Remove(paths.VaultPath))
	require.NoError(t, s.Add("carol", sampleRecord("carol")))

	reopened := store.NewManager(store.WithKDFParams(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}))
	require.NoError(t, reopened.EnsureOpen(paths, "test-password"))
	other := NewStore(reopened, nil)

	names, err = other.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, names, "failed mutations must not ride along with a later commit")

	require.NoError(t, reopened.WithSnapshot(func(snap *snapshot.Snapshot) error {
		_, ok := readActive(snap)
		assert.False(t, ok, "the failed switch must not set the active pointer")
		return nil
	}))
	got, err = other.Get("bob")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConcurrentAdds(t *testing.T) {
	s, _ := newTestStore(t)

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("player%02d", i)
			errs <- s.Add(name, sampleRecord(name))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	names, err := s.List()
	require.NoError(t, err)
	assert.Len(t, names, n)
	for i := 0; i < n; i++ {
		assert.Contains(t, names, fmt.Sprintf("player%02d", i))
	}
}

func TestCorruptVaultStartsEmpty(t *testing.T) {
	m, paths := newTestManager(t)
	s := NewStore(m, nil)
	require.NoError(t, s.Add("alice", sampleRecord("alice")))

	// Reopen with a different password: the blob no longer decrypts.
	other := store.NewManager(store.WithKDFParams(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}))
	require.NoError(t, other.EnsureOpen(paths, "another-password"))

	names, err := NewStore(other, nil).List()
	require.NoError(t, err)
	assert.Empty(t, names)
}
