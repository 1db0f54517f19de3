package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/miratopia/credvault/internal/vault"
)

// Codec seals snapshots into the on-disk blob and opens them again.
type Codec struct {
	logger *slog.Logger
}

// NewCodec returns a codec that logs to logger.
func NewCodec(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// ReadEnvelope loads and parses the blob at path without decrypting it, so
// the caller can derive the key with the KDF parameters recorded in its
// header. A missing file yields a nil envelope and no error. A file that
// does not parse yields an error wrapping vault.ErrCorrupt; other failures
// are plain I/O errors.
func (c *Codec) ReadEnvelope(path string) (*vault.Envelope, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	envelope := &vault.Envelope{}
	if err := envelope.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrCorrupt, err)
	}
	return envelope, nil
}

// Decrypt opens envelope with key and decodes the snapshot inside. Every
// failure wraps vault.ErrCorrupt.
func (c *Codec) Decrypt(envelope *vault.Envelope, key vault.Key) (*Snapshot, error) {
	plaintext, err := vault.NewCryptoEngine(envelope.KDFParams).Open(envelope, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrCorrupt, err)
	}
	defer vault.Zeroize(plaintext)

	snap, err := Unmarshal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrCorrupt, err)
	}
	return snap, nil
}

// OpenOrCreate loads the snapshot stored at path. A missing file yields an
// empty snapshot and created=true. A file that exists but cannot be
// decrypted or parsed yields an error wrapping vault.ErrCorrupt; other
// failures are plain I/O errors.
func (c *Codec) OpenOrCreate(path string, key vault.Key) (snap *Snapshot, created bool, err error) {
	envelope, err := c.ReadEnvelope(path)
	if err != nil {
		return nil, false, err
	}
	if envelope == nil {
		c.logger.Info("no existing snapshot, starting empty vault", "path", path)
		return New(), true, nil
	}

	snap, err = c.Decrypt(envelope, key)
	if err != nil {
		return nil, false, err
	}

	c.logger.Debug("snapshot loaded", "path", path, "namespaces", len(snap.namespaces))
	return snap, false, nil
}

// Commit serializes the whole snapshot, encrypts it and atomically replaces
// the blob at path. params must be the ones key was derived with; they are
// recorded in the envelope header. A crash mid-commit leaves the previous
// blob intact.
func (c *Codec) Commit(snap *Snapshot, path string, key vault.Key, params vault.Argon2Params) error {
	plaintext, err := Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	defer vault.Zeroize(plaintext)

	envelope, err := vault.NewCryptoEngine(params).Seal(plaintext, key)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	blob, err := envelope.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize envelope: %w", err)
	}

	if err := AtomicWriteFile(path, blob); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	c.logger.Debug("snapshot committed", "path", path, "bytes", len(blob))
	return nil
}
