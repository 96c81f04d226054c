package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Target identifies a remote endpoint a session can be started against.
type Target struct {
	// Host is the destination token handed to the transport (ssh alias,
	// hostname, or Tailscale DNS name).
	Host string

	// User optionally overrides the remote username.
	User string

	// Source records where the target came from ("sshconfig", "tailscale",
	// "literal"). Informational only.
	Source string
}

// Dest renders the ssh destination ("user@host" or "host").
func (t Target) Dest() string {
	h := strings.TrimSpace(t.Host)
	if u := strings.TrimSpace(t.User); u != "" {
		return u + "@" + h
	}
	return h
}

// Transport is the remote-execution channel the session core is built on.
// Both modes connect to the same endpoint but over independent connections;
// implementations must not share per-call state between them.
type Transport interface {
	// Interactive connects with a TTY, runs remoteCmd (or a login shell when
	// empty) with local stdio attached, and returns the remote exit status.
	Interactive(target Target, remoteCmd string) (int, error)

	// Run executes remoteCmd non-interactively, streaming stdin (may be nil)
	// to it, and returns captured stdout.
	Run(target Target, remoteCmd string, stdin io.Reader) ([]byte, error)
}

// ErrTransportUnavailable is returned when the underlying ssh client binary
// cannot be found. Fatal for any session.
var ErrTransportUnavailable = errors.New("ssh client not found in PATH")

// SSHTransport implements Transport over the system OpenSSH client.
//
// Interactive sessions run ssh under a local PTY with raw-mode stdin and
// window-size propagation, so full-screen remote programs behave the same
// whether remotekit was started from a bare terminal, an alias, or tmux.
type SSHTransport struct{}

// Available checks for the ssh binary once, before any connection is made.
func (SSHTransport) Available() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return ErrTransportUnavailable
	}
	return nil
}

// Interactive starts `ssh -t <dest> [remoteCmd]` under a PTY and attaches the
// current terminal. Returns the remote command's exit status.
func (s SSHTransport) Interactive(target Target, remoteCmd string) (int, error) {
	if err := s.Available(); err != nil {
		return -1, err
	}
	dest := target.Dest()
	if dest == "" {
		return -1, errors.New("empty target")
	}

	argv := []string{"ssh", "-t", dest}
	if strings.TrimSpace(remoteCmd) != "" {
		argv = append(argv, remoteCmd)
	}

	// Drop any pending terminal-integration reply bytes queued on the local
	// tty so the remote shell doesn't receive them as typed input.
	flushTTYInput()

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, fmt.Errorf("interactive: pty start: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	// Seed PTY size from the terminal the user is actually looking at.
	// stdin may not be a tty in wrapped invocations; stdout usually is.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if cols, rows, sizeErr := term.GetSize(int(os.Stdout.Fd())); sizeErr == nil && rows > 0 && cols > 0 {
			_ = pty.Setsize(ptmx, &pty.Winsize{
				Rows: uint16(rows),
				Cols: uint16(cols),
			})
		}
	}
	startPTYResizeWatcher(ptmx)

	// Raw local mode: the remote side owns echo and line editing.
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		oldState, sErr := term.MakeRaw(fd)
		if sErr == nil {
			defer func() { _ = term.Restore(fd, oldState) }()
		}
	}

	go func() {
		_, _ = io.Copy(ptmx, os.Stdin)
	}()
	// PTY read returns io.EOF / EIO when the session ends; both are normal.
	_, _ = io.Copy(os.Stdout, ptmx)

	if err := cmd.Wait(); err != nil {
		return ExitStatus(err), err
	}
	return 0, nil
}

// Run executes a one-shot remote command: `ssh <dest> <remoteCmd>` with the
// provided stdin streamed to it. Output is captured, not echoed.
func (s SSHTransport) Run(target Target, remoteCmd string, stdin io.Reader) ([]byte, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}
	dest := target.Dest()
	if dest == "" {
		return nil, errors.New("empty target")
	}
	if strings.TrimSpace(remoteCmd) == "" {
		return nil, errors.New("empty remote command")
	}

	cmd := exec.Command("ssh", dest, remoteCmd)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("remote command failed: %w: %s", err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("remote command failed: %w", err)
	}
	return stdout.Bytes(), nil
}

// ExitStatus extracts a process exit status from an error returned by
// exec.Cmd.Wait/Run. Unknown errors map to 1.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if status, ok := ee.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}
	return 1
}

// ShellEscape escapes a single string for safe inclusion in a `sh` command
// line using single quotes; internal single quotes are closed, escaped, and
// reopened.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
