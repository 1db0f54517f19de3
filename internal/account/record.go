// Package account stores per-account authentication material in the vault.
//
// Each account lives in its own namespace (minecraft/<profile>) as seven
// string entries. The ordered list of profile names is a JSON array in
// metadata/accounts and the default account is named by
// metadata/active_account.
package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/miratopia/credvault/internal/vault"
)

// Provider identifies who issued an account's credentials.
type Provider int

const (
	ProviderOffline Provider = iota
	ProviderMicrosoft
	ProviderAzuriom
	ProviderCustom
)

var providerTags = map[Provider]string{
	ProviderOffline:   "offline",
	ProviderMicrosoft: "microsoft",
	ProviderAzuriom:   "azuriom",
	ProviderCustom:    "custom",
}

// String returns the serialized tag.
func (p Provider) String() string {
	if tag, ok := providerTags[p]; ok {
		return tag
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// ParseProvider maps a stored tag to a Provider. Unrecognised tags return
// an error wrapping vault.ErrUnknownProvider.
func ParseProvider(tag string) (Provider, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	for p, t := range providerTags {
		if t == normalized {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", vault.ErrUnknownProvider, tag)
}

// MarshalText implements encoding.TextMarshaler.
func (p Provider) MarshalText() ([]byte, error) {
	tag, ok := providerTags[p]
	if !ok {
		return nil, fmt.Errorf("%w: %d", vault.ErrUnknownProvider, int(p))
	}
	return []byte(tag), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Record is the credential material for one account. The vault treats the
// tokens as opaque strings.
type Record struct {
	Username     string    `json:"username"`
	UUID         string    `json:"uuid"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    uint64    `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	Provider     Provider  `json:"provider"`
}

// ExpiresAt returns when the access token stops being valid. The zero time
// means the record carries no expiry.
func (r Record) ExpiresAt() time.Time {
	if r.IssuedAt.IsZero() || r.ExpiresIn == 0 {
		return time.Time{}
	}
	return r.IssuedAt.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// Expired reports whether the access token has expired at now.
func (r Record) Expired(now time.Time) bool {
	exp := r.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Equal reports whether two records hold the same material.
func (r Record) Equal(o Record) bool {
	return r.Username == o.Username &&
		r.UUID == o.UUID &&
		r.AccessToken == o.AccessToken &&
		r.RefreshToken == o.RefreshToken &&
		r.ExpiresIn == o.ExpiresIn &&
		r.IssuedAt.Equal(o.IssuedAt) &&
		r.Provider == o.Provider
}
