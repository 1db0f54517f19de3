// Package store owns the decrypted vault for the lifetime of the process.
//
// Manager is a small state machine (Closed → Opening → Open, with Repairing
// reachable from a failed open) guarding a single in-memory snapshot behind
// one mutex. It remembers the last open context (paths and password) so that
// a later access can transparently reopen the vault after it was closed.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/miratopia/credvault/internal/snapshot"
	"github.com/miratopia/credvault/internal/vault"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateRepairing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateRepairing:
		return "repairing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Paths locates the encrypted snapshot blob and its companion salt file.
type Paths struct {
	VaultPath string
	SaltPath  string
}

type openContext struct {
	paths    Paths
	password string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle and repair events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithKDFParams overrides the Argon2id parameters used for new vaults. An
// existing blob is always opened with the parameters recorded in its header.
func WithKDFParams(params vault.Argon2Params) Option {
	return func(m *Manager) {
		m.params = params
	}
}

// ErrNoChange is returned by an Update callback that left the snapshot
// untouched. Update then returns nil without committing.
var ErrNoChange = errors.New("no change")

// Manager serializes all access to the open vault. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	mu        sync.Mutex
	state     State
	ctx       *openContext
	key       vault.Key
	keyParams vault.Argon2Params
	snap      *snapshot.Snapshot
	repairs   int

	params     vault.Argon2Params
	codec      *snapshot.Codec
	logger     *slog.Logger
	removeFile func(string) error
}

// NewManager returns a closed manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		params:     vault.DefaultArgon2Params(),
		logger:     slog.Default(),
		removeFile: os.Remove,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.codec = snapshot.NewCodec(m.logger)
	return m
}

// EnsureOpen opens the vault at paths with password unless it is already
// open. The context is remembered before the attempt so that later accesses
// can self-heal. A corrupted snapshot is discarded and replaced by an empty
// one; if that repair cannot complete the error wraps vault.ErrRepairFailed.
//
// Key derivation is deliberately slow. Callers on latency-sensitive paths
// should invoke this from their own goroutine.
func (m *Manager) EnsureOpen(paths Paths, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateOpen {
		return nil
	}

	m.ctx = &openContext{paths: paths, password: password}
	return m.openLocked()
}

// WithNamespace runs fn against the namespace called name, creating the
// namespace on first use. fn runs inside the manager's critical section and
// must not block on I/O or call back into the manager.
func (m *Manager) WithNamespace(name string, fn func(ns *snapshot.Namespace) error) error {
	return m.WithSnapshot(func(snap *snapshot.Snapshot) error {
		return fn(snap.Namespace(name))
	})
}

// WithSnapshot runs fn against the whole open snapshot in one critical
// section, for operations spanning several namespaces.
func (m *Manager) WithSnapshot(fn func(snap *snapshot.Snapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readyLocked(); err != nil {
		return err
	}
	return fn(m.snap)
}

// Update runs fn against a copy of the open snapshot and commits the copy
// in the same critical section. The copy becomes the in-memory snapshot
// only after the commit succeeds: when fn or the commit fails, the snapshot
// is left exactly as it was. fn may return ErrNoChange to skip the commit.
func (m *Manager) Update(fn func(snap *snapshot.Snapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readyLocked(); err != nil {
		return err
	}

	draft := m.snap.Clone()
	if err := fn(draft); err != nil {
		draft.Wipe()
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	if err := m.commitLocked(draft); err != nil {
		draft.Wipe()
		return err
	}

	m.snap.Wipe()
	m.snap = draft
	return nil
}

// Commit persists the full in-memory snapshot. It returns
// vault.ErrNotInitialized if the vault was never opened and vault.ErrNotFound
// if it was opened but is currently closed. Changes made through
// WithNamespace or WithSnapshot stay in memory when Commit fails; use Update
// to have them discarded instead.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return vault.ErrNotInitialized
	}
	if m.state != StateOpen {
		return fmt.Errorf("commit: no open snapshot: %w", vault.ErrNotFound)
	}
	return m.commitLocked(m.snap)
}

func (m *Manager) commitLocked(snap *snapshot.Snapshot) error {
	path := m.ctx.paths.VaultPath
	if err := m.codec.Commit(snap, path, m.key, m.keyParams); err != nil {
		m.logger.Error("failed to commit snapshot", "path", path, "error", err)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	m.logger.Info("snapshot committed", "path", path)
	return nil
}

// Close wipes the key and the decrypted snapshot. Uncommitted changes are
// lost. The open context is kept, so the next access reopens the vault.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Forget closes the vault and drops the remembered context, including the
// password. Subsequent accesses fail with vault.ErrNotInitialized.
func (m *Manager) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	m.ctx = nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Paths returns the remembered paths, if any.
func (m *Manager) Paths() (Paths, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return Paths{}, false
	}
	return m.ctx.paths, true
}

// KDFParams returns the Argon2id parameters of the open vault's key.
func (m *Manager) KDFParams() (vault.Argon2Params, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return vault.Argon2Params{}, false
	}
	return m.keyParams, true
}

// Repairs reports how many corrupted snapshots were discarded.
func (m *Manager) Repairs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repairs
}

// readyLocked guarantees the vault is open, reopening it from the
// remembered context when some other path closed it.
func (m *Manager) readyLocked() error {
	if m.state == StateOpen {
		return nil
	}
	if m.ctx == nil {
		return vault.ErrNotInitialized
	}

	m.logger.Info("vault not open, reopening from remembered context", "path", m.ctx.paths.VaultPath)
	if err := m.openLocked(); err != nil {
		return fmt.Errorf("reopen vault: %w", err)
	}
	return nil
}

// openLocked performs one open attempt with at most one repair. It never
// recurses: a failure after repair is returned to the caller.
//
// The key of an existing blob is derived with the KDF parameters recorded
// in its header, so changing the configured parameters never orphans a
// vault. The configured parameters apply to vaults created here, including
// the empty one that replaces a discarded blob.
func (m *Manager) openLocked() error {
	paths := m.ctx.paths
	m.state = StateOpening
	m.logger.Info("opening vault", "path", paths.VaultPath)

	envelope, err := m.codec.ReadEnvelope(paths.VaultPath)
	if err != nil && !errors.Is(err, vault.ErrCorrupt) {
		m.state = StateClosed
		return fmt.Errorf("open vault: %w", err)
	}

	params := m.params
	if envelope != nil {
		if verr := envelope.KDFParams.Validate(); verr != nil {
			envelope = nil
			err = fmt.Errorf("%w: stored kdf parameters: %v", vault.ErrCorrupt, verr)
		} else {
			params = envelope.KDFParams
		}
	}

	key, kerr := vault.NewCryptoEngine(params).DeriveKeyFromSaltFile(m.ctx.password, paths.SaltPath)
	if kerr != nil {
		m.state = StateClosed
		return kerr
	}

	if err == nil {
		snap := snapshot.New()
		if envelope != nil {
			snap, err = m.codec.Decrypt(envelope, key)
		} else {
			m.logger.Info("no existing snapshot, starting empty vault", "path", paths.VaultPath)
		}
		if err == nil {
			if params != m.params {
				m.logger.Info("opening vault with its stored kdf parameters",
					"memory", params.Memory, "iterations", params.Iterations, "parallelism", params.Parallelism)
			}
			m.install(key, params, snap)
			return nil
		}
	}

	m.state = StateRepairing
	m.logger.Warn("vault snapshot is corrupted, discarding it; stored accounts are lost",
		"path", paths.VaultPath, "error", err)

	if rmErr := m.removeFile(paths.VaultPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		key.Zeroize()
		m.state = StateClosed
		m.logger.Error("cannot remove corrupted snapshot", "path", paths.VaultPath, "error", rmErr)
		return fmt.Errorf("%w: remove corrupted snapshot: %v", vault.ErrRepairFailed, rmErr)
	}

	envelope, err = m.codec.ReadEnvelope(paths.VaultPath)
	if err == nil && envelope != nil {
		err = errors.New("corrupted snapshot is still present")
	}
	if err != nil {
		key.Zeroize()
		m.state = StateClosed
		m.logger.Error("vault still unreadable after repair", "path", paths.VaultPath, "error", err)
		return fmt.Errorf("%w: reopen after discard: %v", vault.ErrRepairFailed, err)
	}

	if params != m.params {
		key.Zeroize()
		params = m.params
		if key, err = vault.NewCryptoEngine(params).DeriveKeyFromSaltFile(m.ctx.password, paths.SaltPath); err != nil {
			m.state = StateClosed
			return fmt.Errorf("%w: %v", vault.ErrRepairFailed, err)
		}
	}

	m.repairs++
	m.install(key, params, snapshot.New())
	m.logger.Warn("vault reset to an empty snapshot", "path", paths.VaultPath)
	return nil
}

func (m *Manager) install(key vault.Key, params vault.Argon2Params, snap *snapshot.Snapshot) {
	m.key = key
	m.keyParams = params
	m.snap = snap
	m.state = StateOpen
}

func (m *Manager) closeLocked() {
	if m.key != nil {
		m.key.Zeroize()
		m.key = nil
	}
	if m.snap != nil {
		m.snap.Wipe()
		m.snap = nil
	}
	m.keyParams = vault.Argon2Params{}
	m.state = StateClosed
}
