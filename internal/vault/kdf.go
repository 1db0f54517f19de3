package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var errEmptySalt = errors.New("salt file is empty")

// LoadOrCreateSalt reads the salt stored at saltPath, creating it with fresh
// random bytes when it does not exist yet. The salt is never rotated.
//
// An empty salt file is what an interrupted creation left behind and is
// replaced; no key can have been derived from it.
func LoadOrCreateSalt(saltPath string) ([]byte, error) {
	cleanPath := filepath.Clean(saltPath)

	salt, err := readSalt(cleanPath)
	switch {
	case err == nil:
		return salt, nil
	case errors.Is(err, errEmptySalt):
		if err := os.Remove(cleanPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: remove empty salt file: %v", ErrKeyDerivationFailed, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	salt, err = GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create salt directory: %v", ErrKeyDerivationFailed, err)
	}

	err = publishSalt(cleanPath, salt)
	if errors.Is(err, fs.ErrExist) {
		// Another creator won the race; everyone uses its salt.
		return readSalt(cleanPath)
	}
	if err != nil {
		return nil, err
	}
	return salt, nil
}

func readSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: read salt file: %w", ErrKeyDerivationFailed, err)
	case len(salt) == 0:
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyDerivationFailed, path, errEmptySalt)
	case len(salt) != SaltSize:
		return nil, fmt.Errorf("%w: salt file %s has %d bytes, want %d",
			ErrKeyDerivationFailed, path, len(salt), SaltSize)
	}
	return salt, nil
}

// publishSalt writes salt to a temp file in the same directory and hard
// links it into place. path therefore never exists with partial content,
// and the link fails with fs.ErrExist if another creator got there first.
func publishSalt(path string, salt []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".salt-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp salt file: %v", ErrKeyDerivationFailed, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(salt); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write salt file: %v", ErrKeyDerivationFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync salt file: %v", ErrKeyDerivationFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close salt file: %v", ErrKeyDerivationFailed, err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("%w: link salt file: %v", ErrKeyDerivationFailed, err)
	}
	return nil
}

// DeriveKeyFromSaltFile turns a vault password plus the persisted salt into
// the snapshot key.
func (ce *CryptoEngine) DeriveKeyFromSaltFile(password, saltPath string) (Key, error) {
	salt, err := LoadOrCreateSalt(saltPath)
	if err != nil {
		return nil, err
	}
	return ce.DeriveKey(password, salt)
}
