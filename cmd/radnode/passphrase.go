package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// passphraseEnvVar lets a daemon managed by systemd or a process
// supervisor unseal its keystore without a controlling terminal.
const passphraseEnvVar = "RADNODE_PASSPHRASE"

// readPassphrase reads a passphrase from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv(passphraseEnvVar); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(passBytes), nil
}

// readPassphraseConfirm reads and confirms a new passphrase.
func readPassphraseConfirm() (string, error) {
	pass1, err := readPassphrase("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	if len(pass1) < 8 {
		return "", fmt.Errorf("passphrase must be at least 8 characters")
	}
	if os.Getenv(passphraseEnvVar) != "" {
		return pass1, nil
	}
	pass2, err := readPassphrase("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if pass1 != pass2 {
		return "", fmt.Errorf("passphrases do not match")
	}
	return pass1, nil
}
