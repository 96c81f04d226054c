package session

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// HandshakeCreateExitCode is the exit status the remote bootstrap reports
// when the rendezvous pipe cannot be created (no tmp access, permissions).
// It surfaces as the interactive session's exit status and is not retried.
const HandshakeCreateExitCode = 97

// Handshake models the single-use remote rendezvous pipe through which
// exactly one secret value crosses from the injector to the session.
//
// The pipe lives at a process-unique path under the configured remote temp
// directory. It has exactly one writer (the injector's remote `cat`) and one
// reader (the bootstrap's capture into an environment variable), guarded by
// mode 600, and is removed from the remote filesystem before the bootstrap
// completes — on both the success and failure path of the read.
type Handshake struct {
	// Path is the rendezvous pipe path on the remote host. Unique per
	// session attempt; never reused across retries.
	Path string

	// EnvVar is the remote environment variable the token is captured into.
	EnvVar string

	// Shell optionally overrides the remote login shell. Empty means
	// ${SHELL:-/bin/sh}.
	Shell string

	// DeliveryTimeoutSecs bounds the blocking read. 0 preserves the original
	// behavior: the read blocks until the injector writes or the transport
	// tears the session down.
	DeliveryTimeoutSecs int

	// PollIntervalMS / PollAttempts tune the injector's wait for the pipe to
	// exist before it writes. The poll replaces fixed-delay synchronization:
	// the writer cannot race ahead of pipe creation because it blocks on the
	// pipe's existence, bounded by PollAttempts.
	PollIntervalMS int
	PollAttempts   int
}

// NewHandshake generates a fresh rendezvous channel for one session attempt.
// The path suffix comes from a v4 UUID (crypto/rand backed), so sequential
// attempts never collide.
func NewHandshake(cfg *Config) Handshake {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return Handshake{
		Path:                path.Join(cfg.PipeDir, "gh-pipe-"+uuid.NewString()),
		EnvVar:              cfg.TokenEnv,
		Shell:               cfg.Shell,
		DeliveryTimeoutSecs: cfg.DeliveryTimeoutSecs,
		PollIntervalMS:      cfg.Injector.PollIntervalMS,
		PollAttempts:        cfg.Injector.PollAttempts,
	}
}

// BootstrapScript renders the remote command the interactive session runs
// before yielding a shell:
//
//  1. remove any stale object at the rendezvous path (must not fail if absent)
//  2. create the pipe, or abort the session with HandshakeCreateExitCode
//  3. restrict its mode so no other principal can read or write it
//  4. install a trap so the pipe is removed even when the transport tears the
//     session down during the blocking read
//  5. capture the pipe's entire contents into EnvVar (bounded by
//     DeliveryTimeoutSecs when configured)
//  6. remove the pipe unconditionally and clear the trap
//  7. configure the git credential-helper shim and exec the login shell
//
// The secret never appears in this text; only the pipe path and the variable
// name do.
func (h Handshake) BootstrapScript() string {
	p := ShellEscape(h.Path)

	read := fmt.Sprintf("cat %s", p)
	if h.DeliveryTimeoutSecs > 0 {
		// Bounded read: when nothing arrives in time the capture is empty and
		// the session degrades to a plain shell below.
		read = fmt.Sprintf("timeout %d cat %s 2>/dev/null || true", h.DeliveryTimeoutSecs, p)
	}

	steps := []string{
		fmt.Sprintf("rm -f %s", p),
		fmt.Sprintf("mkfifo %s || exit %d", p, HandshakeCreateExitCode),
		fmt.Sprintf("chmod 600 %s || { rm -f %s; exit %d; }", p, p, HandshakeCreateExitCode),
		// The path is already single-quoted, so the trap body is safe inside
		// double quotes.
		fmt.Sprintf(`trap "rm -f %s" INT TERM HUP`, p),
		fmt.Sprintf("export %s=\"$(%s)\"", h.EnvVar, read),
		fmt.Sprintf("rm -f %s", p),
		"trap - INT TERM HUP",
		fmt.Sprintf(
			"if [ -n \"$%s\" ]; then export GIT_CONFIG_COUNT=1 GIT_CONFIG_KEY_0=credential.helper GIT_CONFIG_VALUE_0=%s && echo 'remotekit: credential loaded into session environment'; else echo 'remotekit: warning: no credential delivered; starting plain shell' >&2; fi",
			h.EnvVar, ShellEscape(h.CredentialHelper()),
		),
		"exec " + h.shellExec(),
	}
	return strings.Join(steps, "; ")
}

// CredentialHelper returns the git credential-helper shim value exported by
// the bootstrap. When git invokes it, it emits the fixed principal identifier
// paired with the captured token, so downstream tools authenticate without a
// credential file ever existing.
func (h Handshake) CredentialHelper() string {
	return fmt.Sprintf(`!f() { echo "username=x-access-token"; echo "password=$%s"; }; f`, h.EnvVar)
}

// InjectorScript renders the remote command the injector runs on its own
// connection. It waits (bounded) for the rendezvous pipe to exist, then
// copies its stdin (the secret) into it. Writing before the reader's pipe
// exists is therefore impossible; if the pipe never appears the command exits
// non-zero and delivery is reported as failed.
//
// The write is re-verified afterwards: if the reader removed the pipe between
// the poll and the open (a bounded read that expired), the redirection
// creates a regular file holding the secret. The guard removes it and fails
// the delivery, so the secret can never persist on the remote filesystem.
func (h Handshake) InjectorScript() string {
	p := ShellEscape(h.Path)
	attempts := h.PollAttempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	intervalMS := h.PollIntervalMS
	if intervalMS <= 0 {
		intervalMS = DefaultPollIntervalMS
	}
	return fmt.Sprintf(
		"i=0; while [ ! -p %s ]; do i=$((i+1)); if [ \"$i\" -ge %d ]; then exit 1; fi; sleep %s; done; cat > %s; if [ -e %s ] && [ ! -p %s ]; then rm -f %s; exit 1; fi",
		p, attempts, formatSeconds(intervalMS), p, p, p, p,
	)
}

func (h Handshake) shellExec() string {
	if sh := strings.TrimSpace(h.Shell); sh != "" {
		return ShellEscape(sh) + " -l"
	}
	return `${SHELL:-/bin/sh} -l`
}

// formatSeconds renders a millisecond count as a sleep(1) argument.
func formatSeconds(ms int) string {
	if ms <= 0 {
		return "0"
	}
	if ms%1000 == 0 {
		return fmt.Sprintf("%d", ms/1000)
	}
	return strings.TrimRight(fmt.Sprintf("%.3f", float64(ms)/1000.0), "0")
}
