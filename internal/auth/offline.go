// Package auth provides the built-in account authenticators and token
// refreshers wired into account.Service.
package auth

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miratopia/credvault/internal/account"
)

// ErrInvalidUsername is returned for names an offline server would reject.
var ErrInvalidUsername = errors.New("invalid offline username")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Offline issues offline-mode credentials. Nothing leaves the machine: the
// UUID is derived from the username the same way offline servers do it.
type Offline struct {
	// Now returns the issue time. Defaults to time.Now.
	Now func() time.Time
}

// NewOffline returns an offline authenticator.
func NewOffline() *Offline {
	return &Offline{Now: time.Now}
}

// Authenticate builds an offline record for name.
func (o *Offline) Authenticate(ctx context.Context, name string) (account.Record, error) {
	if err := ctx.Err(); err != nil {
		return account.Record{}, err
	}

	name = strings.TrimSpace(name)
	if !usernamePattern.MatchString(name) {
		return account.Record{}, fmt.Errorf("%w: %q (3-16 letters, digits or underscores)", ErrInvalidUsername, name)
	}

	id := OfflineUUID(name)
	return account.Record{
		Username:    name,
		UUID:        id.String(),
		AccessToken: strings.ReplaceAll(id.String(), "-", ""),
		IssuedAt:    o.now(),
		Provider:    account.ProviderOffline,
	}, nil
}

// Refresh is a no-op: offline tokens never expire.
func (o *Offline) Refresh(ctx context.Context, rec account.Record) (account.Record, error) {
	return rec, ctx.Err()
}

func (o *Offline) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// OfflineUUID returns the name-based (version 3) UUID of
// "OfflinePlayer:<name>".
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
