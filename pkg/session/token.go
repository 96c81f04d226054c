package session

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrCredentialUnavailable is returned when the credential source cannot
// produce a token. Fatal for the secured path: no remote connection of any
// kind is attempted after it. Plain mode remains available as an explicit
// fallback.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// TokenSource yields a short-lived bearer token, invoked once per secured
// session start. The token is held only in process memory: implementations
// must not log it or write it anywhere.
type TokenSource interface {
	Token() (string, error)
}

// CommandTokenSource obtains the token by running an external command
// (default: `gh auth token`) and trimming its stdout.
type CommandTokenSource struct {
	// Argv is the command line to run. Must be non-empty.
	Argv []string
}

// NewTokenSource builds the credential source from config.
func NewTokenSource(cfg *Config) CommandTokenSource {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return CommandTokenSource{Argv: cfg.TokenCommand}
}

// Token runs the configured command and returns its trimmed stdout.
// A missing binary, non-zero exit, or empty output all map to
// ErrCredentialUnavailable (wrapped with detail).
func (s CommandTokenSource) Token() (string, error) {
	if len(s.Argv) == 0 {
		return "", fmt.Errorf("%w: no token command configured", ErrCredentialUnavailable)
	}
	name := s.Argv[0]
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%w: %s not found (install it and authenticate first)", ErrCredentialUnavailable, name)
	}

	cmd := exec.Command(name, s.Argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrCredentialUnavailable, name, msg)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrCredentialUnavailable, name, err)
	}

	tok := strings.TrimSpace(stdout.String())
	if tok == "" {
		return "", fmt.Errorf("%w: %s produced no token", ErrCredentialUnavailable, name)
	}
	return tok, nil
}
