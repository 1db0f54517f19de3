package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/miratopia/credvault/internal/account"
)

// ErrIncompleteRecord is returned when an imported record lacks identity or
// token material.
var ErrIncompleteRecord = errors.New("imported record is incomplete")

// FileImport authenticates by reading a record that an external login flow
// wrote as JSON. The provider is forced to Provider regardless of the file.
type FileImport struct {
	Path     string
	Provider account.Provider
}

// NewFileImport returns an authenticator reading path.
func NewFileImport(path string, provider account.Provider) *FileImport {
	return &FileImport{Path: path, Provider: provider}
}

// Authenticate loads the record. name is ignored; the stored username is
// used when the caller gives no profile name.
func (f *FileImport) Authenticate(ctx context.Context, _ string) (account.Record, error) {
	if err := ctx.Err(); err != nil {
		return account.Record{}, err
	}
	if f.Path == "" {
		return account.Record{}, errors.New("no credential file given (use --from-file)")
	}

	data, err := os.ReadFile(filepath.Clean(f.Path))
	if err != nil {
		return account.Record{}, fmt.Errorf("failed to read credential file: %w", err)
	}

	// The provider is overwritten below, so accept files without one.
	var raw struct {
		account.Record
		Provider json.RawMessage `json:"provider"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return account.Record{}, fmt.Errorf("failed to parse credential file: %w", err)
	}

	rec := raw.Record
	rec.Provider = f.Provider
	if rec.Username == "" || rec.UUID == "" || rec.AccessToken == "" {
		return account.Record{}, fmt.Errorf("%w: username, uuid and access_token are required", ErrIncompleteRecord)
	}
	return rec, nil
}

// Passthrough returns records unchanged. It is the refresher for providers
// whose token endpoint is not reachable from this tool; it only reports
// expired tokens.
type Passthrough struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Refresh returns rec as is.
func (p *Passthrough) Refresh(ctx context.Context, rec account.Record) (account.Record, error) {
	if err := ctx.Err(); err != nil {
		return account.Record{}, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if rec.Expired(now()) {
		logger := p.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("access token expired, re-import the account to renew it",
			"username", rec.Username, "provider", rec.Provider.String(), "expired_at", rec.ExpiresAt())
	}
	return rec, nil
}
