package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/miratopia/credvault/internal/snapshot"
	"github.com/miratopia/credvault/internal/store"
	"github.com/miratopia/credvault/internal/vault"
)

// Well-known namespaces and keys.
const (
	CredentialPrefix  = "minecraft/"
	AccountsNamespace = "metadata/accounts"
	ActiveNamespace   = "metadata/active_account"

	accountsKey = "accounts"
	activeKey   = "active_account"
)

// Record field keys as stored inside a credential namespace.
const (
	fieldUsername     = "username"
	fieldUUID         = "uuid"
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresIn    = "expires_in"
	fieldIssuedAt     = "emited_at"
	fieldProvider     = "provider"
)

// requiredFields must all be present for a record to be readable.
var requiredFields = []string{
	fieldUsername,
	fieldUUID,
	fieldAccessToken,
	fieldRefreshToken,
	fieldExpiresIn,
	fieldIssuedAt,
}

// ErrInvalidName is returned for empty profile names.
var ErrInvalidName = errors.New("invalid account name")

// CredentialNamespace returns the namespace holding the named account.
func CredentialNamespace(name string) string {
	return CredentialPrefix + name
}

// Store implements account operations on top of a store.Manager. Every
// mutating operation ends with exactly one commit, and a mutation whose
// commit fails is not kept in memory.
type Store struct {
	vault  *store.Manager
	logger *slog.Logger
}

// NewStore returns an account store backed by m.
func NewStore(m *store.Manager, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{vault: m, logger: logger}
}

// Add writes rec under name and appends name to the accounts index if it is
// not there yet. Both writes are persisted by a single commit.
func (s *Store) Add(name string, rec Record) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := s.vault.Update(func(snap *snapshot.Snapshot) error {
		index, err := readIndex(snap)
		if err != nil {
			return err
		}

		writeRecord(snap.Namespace(CredentialNamespace(name)), rec)

		if !slices.Contains(index, name) {
			index = append(index, name)
		}
		return writeIndex(snap, index)
	})
	if err != nil {
		return fmt.Errorf("add account %q: %w", name, err)
	}
	s.logger.Info("account saved", "account", name)
	return nil
}

// Replace overwrites the record of an existing account. It reports false,
// without writing, when the account is no longer indexed.
func (s *Store) Replace(name string, rec Record) (bool, error) {
	var replaced bool
	err := s.vault.Update(func(snap *snapshot.Snapshot) error {
		index, err := readIndex(snap)
		if err != nil {
			return err
		}
		if !slices.Contains(index, name) {
			return store.ErrNoChange
		}
		writeRecord(snap.Namespace(CredentialNamespace(name)), rec)
		replaced = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update account %q: %w", name, err)
	}
	return replaced, nil
}

// Get returns the record stored under name, or nil if the account is absent
// or only partially written.
func (s *Store) Get(name string) (*Record, error) {
	var rec *Record
	err := s.vault.WithSnapshot(func(snap *snapshot.Snapshot) error {
		var err error
		rec, err = lookupRecord(snap, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get account %q: %w", name, err)
	}
	return rec, nil
}

// List returns the account names in insertion order. A vault that was never
// opened lists as empty.
func (s *Store) List() ([]string, error) {
	var index []string
	err := s.vault.WithSnapshot(func(snap *snapshot.Snapshot) error {
		var err error
		index, err = readIndex(snap)
		return err
	})
	if errors.Is(err, vault.ErrNotInitialized) {
		s.logger.Warn("vault not initialized when listing accounts")
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if index == nil {
		index = []string{}
	}
	return index, nil
}

// Delete removes every field of the account, drops it from the index and
// clears the active pointer if it named the account. Deleting an unknown
// account is not an error.
func (s *Store) Delete(name string) error {
	err := s.vault.Update(func(snap *snapshot.Snapshot) error {
		index, err := readIndex(snap)
		if err != nil {
			return err
		}

		snap.Drop(CredentialNamespace(name))

		if active, ok := readActive(snap); ok && active == name {
			snap.Namespace(ActiveNamespace).Delete([]byte(activeKey))
		}

		return writeIndex(snap, slices.DeleteFunc(index, func(n string) bool { return n == name }))
	})
	if err != nil {
		return fmt.Errorf("delete account %q: %w", name, err)
	}
	s.logger.Info("account deleted", "account", name)
	return nil
}

// SwitchActive makes name the default account. The account must be indexed.
func (s *Store) SwitchActive(name string) error {
	err := s.vault.Update(func(snap *snapshot.Snapshot) error {
		index, err := readIndex(snap)
		if err != nil {
			return err
		}
		if !slices.Contains(index, name) {
			return fmt.Errorf("account %q: %w", name, vault.ErrNotFound)
		}
		snap.Namespace(ActiveNamespace).Insert([]byte(activeKey), []byte(name))
		return nil
	})
	if err != nil {
		return fmt.Errorf("switch active account: %w", err)
	}
	s.logger.Info("active account switched", "account", name)
	return nil
}

// ActiveName returns the name of the default account: the active pointer
// when it names an indexed account, otherwise the first index entry. It
// returns "" when there are no accounts.
func (s *Store) ActiveName() (string, error) {
	var name string
	err := s.vault.WithSnapshot(func(snap *snapshot.Snapshot) error {
		var err error
		name, err = resolveActive(snap)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("resolve active account: %w", err)
	}
	return name, nil
}

// Active returns the name and record of the default account. The record is
// nil when there is no usable default account.
func (s *Store) Active() (string, *Record, error) {
	var (
		name string
		rec  *Record
	)
	err := s.vault.WithSnapshot(func(snap *snapshot.Snapshot) error {
		var err error
		name, err = resolveActive(snap)
		if err != nil || name == "" {
			return err
		}
		rec, err = lookupRecord(snap, name)
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("get active account: %w", err)
	}
	return name, rec, nil
}

// Reindex reconciles the accounts index with the credential namespaces
// after a crash left them out of sync: index entries whose namespace is
// missing or only partially written are dropped, and complete records
// missing from the index are appended in name order. Entries whose record
// exists but cannot be decoded are kept so they stay visible. It commits
// only when something changed.
func (s *Store) Reindex() (added, removed []string, err error) {
	err = s.vault.Update(func(snap *snapshot.Snapshot) error {
		changed := false
		index, readErr := readIndex(snap)
		if readErr != nil {
			s.logger.Warn("accounts index unreadable, rebuilding", "error", readErr)
			index = nil
			changed = true
		}

		var kept []string
		for _, name := range index {
			if slices.Contains(kept, name) {
				changed = true
				continue
			}
			rec, err := lookupRecord(snap, name)
			if err != nil {
				s.logger.Warn("keeping unreadable account in index", "account", name, "error", err)
			} else if rec == nil {
				removed = append(removed, name)
				continue
			}
			kept = append(kept, name)
		}

		for _, ns := range snap.Names() {
			name, ok := strings.CutPrefix(ns, CredentialPrefix)
			if !ok || slices.Contains(kept, name) {
				continue
			}
			if rec, err := lookupRecord(snap, name); err == nil && rec != nil {
				kept = append(kept, name)
				added = append(added, name)
			}
		}

		if !changed && len(added) == 0 && len(removed) == 0 {
			return store.ErrNoChange
		}
		return writeIndex(snap, kept)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reindex accounts: %w", err)
	}
	if len(added) > 0 || len(removed) > 0 {
		s.logger.Info("accounts index rebuilt", "added", len(added), "removed", len(removed))
	}
	return added, removed, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	return nil
}

func lookupRecord(snap *snapshot.Snapshot, name string) (*Record, error) {
	ns, ok := snap.Lookup(CredentialNamespace(name))
	if !ok {
		return nil, nil
	}
	return readRecord(ns)
}

func writeRecord(ns *snapshot.Namespace, rec Record) {
	issuedAt := ""
	if !rec.IssuedAt.IsZero() {
		issuedAt = rec.IssuedAt.UTC().Format(time.RFC3339Nano)
	}

	fields := map[string]string{
		fieldUsername:     rec.Username,
		fieldUUID:         rec.UUID,
		fieldAccessToken:  rec.AccessToken,
		fieldRefreshToken: rec.RefreshToken,
		fieldExpiresIn:    strconv.FormatUint(rec.ExpiresIn, 10),
		fieldIssuedAt:     issuedAt,
		fieldProvider:     rec.Provider.String(),
	}
	for k, v := range fields {
		ns.Insert([]byte(k), []byte(v))
	}
}

// readRecord returns nil when any required field is missing.
func readRecord(ns *snapshot.Namespace) (*Record, error) {
	values := make(map[string]string, len(requiredFields))
	for _, field := range requiredFields {
		raw, ok := ns.Get([]byte(field))
		if !ok {
			return nil, nil
		}
		text, err := decodeText(field, raw)
		if err != nil {
			return nil, err
		}
		values[field] = text
	}

	expiresIn, err := strconv.ParseUint(values[fieldExpiresIn], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", vault.ErrEncoding, fieldExpiresIn, err)
	}

	var issuedAt time.Time
	if v := values[fieldIssuedAt]; v != "" {
		issuedAt, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", vault.ErrEncoding, fieldIssuedAt, err)
		}
	}

	// Records written before the provider field existed are offline accounts.
	provider := ProviderOffline
	if raw, ok := ns.Get([]byte(fieldProvider)); ok {
		tag, err := decodeText(fieldProvider, raw)
		if err != nil {
			return nil, err
		}
		if provider, err = ParseProvider(tag); err != nil {
			return nil, err
		}
	}

	return &Record{
		Username:     values[fieldUsername],
		UUID:         values[fieldUUID],
		AccessToken:  values[fieldAccessToken],
		RefreshToken: values[fieldRefreshToken],
		ExpiresIn:    expiresIn,
		IssuedAt:     issuedAt,
		Provider:     provider,
	}, nil
}

func decodeText(field string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: field %s is not valid UTF-8", vault.ErrEncoding, field)
	}
	return string(raw), nil
}

func readIndex(snap *snapshot.Snapshot) ([]string, error) {
	ns, ok := snap.Lookup(AccountsNamespace)
	if !ok {
		return nil, nil
	}
	raw, ok := ns.Get([]byte(accountsKey))
	if !ok {
		return nil, nil
	}

	var index []string
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("%w: accounts index: %v", vault.ErrEncoding, err)
	}
	return index, nil
}

func writeIndex(snap *snapshot.Snapshot, index []string) error {
	if index == nil {
		index = []string{}
	}
	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("%w: accounts index: %v", vault.ErrEncoding, err)
	}
	snap.Namespace(AccountsNamespace).Insert([]byte(accountsKey), raw)
	return nil
}

func readActive(snap *snapshot.Snapshot) (string, bool) {
	ns, ok := snap.Lookup(ActiveNamespace)
	if !ok {
		return "", false
	}
	raw, ok := ns.Get([]byte(activeKey))
	if !ok || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

func resolveActive(snap *snapshot.Snapshot) (string, error) {
	index, err := readIndex(snap)
	if err != nil {
		return "", err
	}
	if active, ok := readActive(snap); ok && slices.Contains(index, active) {
		return active, nil
	}
	if len(index) == 0 {
		return "", nil
	}
	return index[0], nil
}
