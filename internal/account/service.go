package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Account kinds accepted by AddAccount.
const (
	KindMicrosoft = "microsoft"
	KindOffline   = "offline"
)

var (
	// ErrUnknownKind is returned by AddAccount for an unsupported account kind.
	ErrUnknownKind = errors.New("unknown account type")
	// ErrNoRefresher is returned when no refresh capability matches a record's provider.
	ErrNoRefresher = errors.New("no refresh implementation for provider")
)

// Authenticator produces a credential record, typically through a login
// flow. It runs outside any vault lock.
type Authenticator interface {
	Authenticate(ctx context.Context, name string) (Record, error)
}

// TokenRefresher brings a record's tokens up to date. It may perform
// network I/O and is always called without the vault lock held.
type TokenRefresher interface {
	Refresh(ctx context.Context, rec Record) (Record, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuthenticator registers the authenticator used for an account kind.
func WithAuthenticator(kind string, a Authenticator) ServiceOption {
	return func(s *Service) {
		s.authenticators[kind] = a
	}
}

// WithRefresher registers the refresher used for records of provider p.
func WithRefresher(p Provider, r TokenRefresher) ServiceOption {
	return func(s *Service) {
		s.refreshers[p] = r
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service is the account operation surface used by command handlers.
// Reads and writes go through the Store's short critical sections; login
// and token refresh happen between them, never inside.
type Service struct {
	accounts       *Store
	authenticators map[string]Authenticator
	refreshers     map[Provider]TokenRefresher
	logger         *slog.Logger
}

// NewService returns a service over accounts.
func NewService(accounts *Store, opts ...ServiceOption) *Service {
	s := &Service{
		accounts:       accounts,
		authenticators: make(map[string]Authenticator),
		refreshers:     make(map[Provider]TokenRefresher),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAccount authenticates an account of the given kind and stores it under
// name, or under the authenticated username when name is empty. Offline
// accounts require a name. It returns the profile name used.
func (s *Service) AddAccount(ctx context.Context, kind, name string) (string, error) {
	auth, ok := s.authenticators[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if kind == KindOffline {
		if err := validateName(name); err != nil {
			return "", fmt.Errorf("profile name is required: %w", err)
		}
	}

	rec, err := auth.Authenticate(ctx, name)
	if err != nil {
		s.logger.Error("authentication failed", "kind", kind, "error", err)
		return "", fmt.Errorf("auth failed: %w", err)
	}

	profile := name
	if profile == "" {
		profile = rec.Username
	}
	if err := s.accounts.Add(profile, rec); err != nil {
		return "", err
	}
	return profile, nil
}

// GetAccount returns the refreshed record of name, or nil if absent.
func (s *Service) GetAccount(ctx context.Context, name string) (*Record, error) {
	rec, err := s.accounts.Get(name)
	if err != nil || rec == nil {
		return nil, err
	}
	return s.refresh(ctx, name, *rec)
}

// ListAccounts returns the account names.
func (s *Service) ListAccounts() ([]string, error) {
	return s.accounts.List()
}

// DelAccount removes an account.
func (s *Service) DelAccount(name string) error {
	return s.accounts.Delete(name)
}

// SwitchActiveAccount makes name the default account.
func (s *Service) SwitchActiveAccount(name string) error {
	return s.accounts.SwitchActive(name)
}

// GetActiveAccount returns the refreshed default account record, or nil
// when there is none.
func (s *Service) GetActiveAccount(ctx context.Context) (*Record, error) {
	name, rec, err := s.accounts.Active()
	if err != nil || rec == nil {
		return nil, err
	}
	return s.refresh(ctx, name, *rec)
}

// refresh runs the provider's refresher with no lock held and writes the
// result back only if it changed.
func (s *Service) refresh(ctx context.Context, name string, rec Record) (*Record, error) {
	refresher, ok := s.refreshers[rec.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRefresher, rec.Provider)
	}

	refreshed, err := refresher.Refresh(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh profile: %w", err)
	}

	if !refreshed.Equal(rec) {
		replaced, err := s.accounts.Replace(name, refreshed)
		if err != nil {
			return nil, err
		}
		if !replaced {
			s.logger.Warn("account removed during refresh, not persisting tokens", "account", name)
		}
	}
	return &refreshed, nil
}
