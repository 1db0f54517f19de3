package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrVaultLocked is returned when another process holds the vault lock.
var ErrVaultLocked = errors.New("vault is locked by another process")

// VaultLock is an advisory, process-exclusive lock next to the vault blob.
type VaultLock struct {
	path  string
	flock *flock.Flock
}

// NewVaultLock returns an unheld lock for the vault at vaultPath.
func NewVaultLock(vaultPath string) *VaultLock {
	lockPath := vaultPath + ".lock"
	return &VaultLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Path returns the lock file path.
func (l *VaultLock) Path() string {
	return l.path
}

// TryLock acquires the lock without waiting.
func (l *VaultLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire vault lock: %w", err)
	}
	if !locked {
		return ErrVaultLocked
	}
	return nil
}

// Unlock releases the lock. Releasing an unheld lock is a no-op.
func (l *VaultLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	return l.flock.Unlock()
}
