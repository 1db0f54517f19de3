// Package util provides exit code handling shared by the credvault binary.
package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/miratopia/credvault/internal/vault"
)

// Exit codes returned by the credvault binary
const (
	ExitOK             = 0
	ExitError          = 1
	ExitInvalidInput   = 2
	ExitNotInitialized = 3
	ExitIntegrityErr   = 4
)

// ErrInvalidInput marks errors caused by bad arguments or flags.
var ErrInvalidInput = errors.New("invalid input")

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, vault.ErrNotInitialized):
		return ExitNotInitialized
	case errors.Is(err, vault.ErrCorrupt), errors.Is(err, vault.ErrRepairFailed):
		return ExitIntegrityErr
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	default:
		return ExitError
	}
}

// ExitWithCode exits the program with the specified code and message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// HandleError prints err and exits with the matching code
func HandleError(err error, context string) {
	if err == nil {
		return
	}
	code := ExitCodeFor(err)
	ExitWithCode(code, "%s", FormatError(err, context))
}

// FormatError renders err for the terminal, with a hint for integrity errors.
func FormatError(err error, context string) string {
	msg := fmt.Sprintf("Error: %v", err)
	if context != "" {
		msg = fmt.Sprintf("Error: %s - %v", context, err)
	}
	if ExitCodeFor(err) == ExitIntegrityErr {
		msg += "\nRun 'credvault doctor' to diagnose issues."
	}
	return msg
}

// PrintError writes the formatted error to w.
func PrintError(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintln(w, FormatError(err, ""))
	}
}

// InvalidInput returns an error that maps to ExitInvalidInput.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
