package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptPassword prompts for a password without echoing to terminal
func PromptPassword(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w) // Print newline after password input

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	return string(password), nil
}

// PromptPasswordConfirm prompts for a password and confirmation
func PromptPasswordConfirm(w io.Writer, prompt string) (string, error) {
	password, err := PromptPassword(w, prompt)
	if err != nil {
		return "", err
	}

	confirm, err := PromptPassword(w, "Confirm password: ")
	if err != nil {
		return "", err
	}

	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}

	return password, nil
}

// PromptInput prompts for regular input
func PromptInput(r io.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	reader := bufio.NewReader(r)
	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(input), nil
}

// PromptConfirm prompts for yes/no confirmation
func PromptConfirm(r io.Reader, w io.Writer, prompt string, defaultYes bool) (bool, error) {
	var suffix string
	if defaultYes {
		suffix = " [Y/n]: "
	} else {
		suffix = " [y/N]: "
	}

	input, err := PromptInput(r, w, prompt+suffix)
	if err != nil {
		return false, err
	}

	input = strings.ToLower(input)

	if input == "" {
		return defaultYes, nil
	}

	return input == "y" || input == "yes", nil
}
