// Package vault holds the cryptographic primitives of the credential vault:
// Argon2id key derivation from a password and a persisted salt file, the
// AES-256-GCM envelope used for the snapshot blob, and the error kinds that
// cross the vault manager boundary.
package vault

import "errors"

// Error kinds surfaced by the vault subsystem. Lower-level failures are
// wrapped into one of these before they leave the store package.
var (
	// ErrNotInitialized is returned when the vault was never opened and no
	// remembered open context exists.
	ErrNotInitialized = errors.New("vault not initialized")
	// ErrKeyDerivationFailed is returned when the salt file cannot be read or created.
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	// ErrCorrupt is returned when a snapshot exists but cannot be decrypted or parsed.
	ErrCorrupt = errors.New("vault snapshot is corrupted")
	// ErrRepairFailed is returned when auto-repair of a corrupted snapshot
	// could not complete. It is fatal for the open attempt.
	ErrRepairFailed = errors.New("vault repair failed")
	// ErrNotFound is returned when a requested account or entry is absent.
	ErrNotFound = errors.New("not found")
	// ErrEncoding is returned when stored bytes are not valid text/JSON where expected.
	ErrEncoding = errors.New("invalid stored encoding")
	// ErrUnknownProvider is returned when a stored provider tag is not recognised.
	ErrUnknownProvider = errors.New("unknown provider")
)
