package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/miratopia/credvault/internal/account"
)

// MaxOutputSize is the maximum allowed size for output to prevent memory exhaustion
const MaxOutputSize = 10 * 1024 * 1024 // 10MB

// writeString writes a string to the writer with error checking and size limits
func writeString(w io.Writer, s string) error {
	if len(s) > MaxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum allowed size %d",
			len(s), MaxOutputSize)
	}

	n, err := fmt.Fprint(w, s)
	if err != nil {
		return fmt.Errorf("failed to write output (wrote %d bytes): %w", n, err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if flushErr := f.Flush(); flushErr != nil {
			return fmt.Errorf("failed to flush output: %w", flushErr)
		}
	}

	return nil
}

// writeOutput is a helper function to write formatted output with error checking and size limits
func writeOutput(w io.Writer, format string, args ...interface{}) error {
	return writeString(w, fmt.Sprintf(format, args...))
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// maskToken keeps the first and last four characters of long tokens.
func maskToken(token string) string {
	if token == "" {
		return "(none)"
	}
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}

// accountView is the JSON shape of an account. Tokens are only filled in
// when explicitly requested.
type accountView struct {
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	UUID         string     `json:"uuid"`
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresIn    uint64     `json:"expires_in"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Active       bool       `json:"active"`
}

func newAccountView(name string, rec *account.Record, active, withTokens bool) accountView {
	v := accountView{
		Name:      name,
		Username:  rec.Username,
		UUID:      rec.UUID,
		Provider:  rec.Provider.String(),
		ExpiresIn: rec.ExpiresIn,
		Active:    active,
	}
	if withTokens {
		v.AccessToken = rec.AccessToken
		v.RefreshToken = rec.RefreshToken
	}
	if !rec.IssuedAt.IsZero() {
		issued := rec.IssuedAt
		v.IssuedAt = &issued
	}
	if exp := rec.ExpiresAt(); !exp.IsZero() {
		v.ExpiresAt = &exp
	}
	return v
}

// writeAccount prints a record as aligned key/value lines.
func writeAccount(w io.Writer, name string, rec *account.Record, showTokens bool) error {
	access, refresh := maskToken(rec.AccessToken), maskToken(rec.RefreshToken)
	if showTokens {
		access, refresh = rec.AccessToken, rec.RefreshToken
	}

	expires := "never"
	if exp := rec.ExpiresAt(); !exp.IsZero() {
		expires = exp.Format(time.RFC3339)
		if rec.Expired(time.Now()) {
			expires += " (expired)"
		}
	}

	return writeOutput(w, "Account:       %s\nUsername:      %s\nUUID:          %s\nProvider:      %s\nAccess token:  %s\nRefresh token: %s\nExpires:       %s\n",
		name, rec.Username, rec.UUID, rec.Provider, access, refresh, expires)
}
