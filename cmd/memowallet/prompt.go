package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/layer-3/memowallet/internal/eth"
	"golang.org/x/term"
)

// readSecret reads a line from passwordFile, or prompts on the terminal
// without echo when passwordFile is empty.
func readSecret(prompt, passwordFile string) (string, error) {
	if passwordFile != "" {
		raw, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", passwordFile, err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; pass --password-file")
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(raw), nil
}

// lazySigner answers handshake challenges once the keystore is unlocked
type lazySigner struct {
	mu     sync.Mutex
	signer *eth.Signer
}

func (l *lazySigner) set(s *eth.Signer) {
	l.mu.Lock()
	l.signer = s
	l.mu.Unlock()
}

func (l *lazySigner) SignChallenge(ctx context.Context, address, message string) (string, error) {
	l.mu.Lock()
	s := l.signer
	l.mu.Unlock()
	if s == nil {
		return "", errors.New("keystore is locked, run memowallet login")
	}
	return s.SignChallenge(ctx, address, message)
}
