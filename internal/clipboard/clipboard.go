// Package clipboard copies secrets to the system clipboard and clears them
// after a timeout.
package clipboard

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Backend is the clipboard implementation. Tests replace it.
type Backend interface {
	WriteAll(text string) error
	ReadAll() (string, error)
}

type systemBackend struct{}

func (systemBackend) WriteAll(text string) error { return clipboard.WriteAll(text) }
func (systemBackend) ReadAll() (string, error)   { return clipboard.ReadAll() }

// System is the OS clipboard.
var System Backend = systemBackend{}

// CopyWithTimeout copies text to the clipboard and clears it after timeout,
// or as soon as ctx is done, unless something else was copied in between.
// The returned channel is closed once the clear check has run. A zero
// timeout never clears.
func CopyWithTimeout(ctx context.Context, b Backend, text string, timeout time.Duration) (<-chan struct{}, error) {
	if err := b.WriteAll(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	done := make(chan struct{})
	if timeout <= 0 {
		close(done)
		return done, nil
	}

	go func() {
		defer close(done)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		_ = ClearIf(b, text)
	}()

	return done, nil
}

// ClearIf empties the clipboard if it still holds text.
func ClearIf(b Backend, text string) error {
	current, err := b.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	if current != text {
		return nil
	}
	return b.WriteAll("")
}

// IsAvailable reports whether b can be read.
func IsAvailable(b Backend) bool {
	_, err := b.ReadAll()
	return err == nil
}
