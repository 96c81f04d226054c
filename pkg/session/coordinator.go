package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Options selects the session variant.
type Options struct {
	// Plain requests the degraded variant: a direct interactive connection
	// with no handshake machinery. Mode-exclusive with the secured path.
	Plain bool

	// User optionally overrides the remote username for this session.
	User string
}

// Result describes one finished session.
type Result struct {
	// ExitStatus is the interactive transport's exit status. The injector's
	// outcome never affects it.
	ExitStatus int

	// RendezvousPath is the remote pipe path used for this attempt.
	// Empty in plain mode.
	RendezvousPath string

	// Injector is the supervised delivery task handle; nil in plain mode.
	Injector *InjectorTask
}

// Coordinator owns the lifecycle of one logical remote session: it spawns the
// interactive foreground session that consumes the secret and the background
// injector that delivers it, and defines the ordering contract between them.
type Coordinator struct {
	Transport Transport
	Tokens    TokenSource
	Config    *Config

	// Logf reports operator-facing status lines. Defaults to stderr.
	// Never receives the secret.
	Logf func(format string, args ...any)
}

// NewCoordinator wires a coordinator over the given transport and credential
// source with the provided (or default) configuration.
func NewCoordinator(tr Transport, tokens TokenSource, cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Coordinator{Transport: tr, Tokens: tokens, Config: cfg}
}

// Start runs one session against target and returns when the interactive
// transport exits. The secured path:
//
//  1. obtain the token (failure aborts before any remote connection)
//  2. generate a fresh rendezvous path for this attempt
//  3. start the injector as a supervised concurrent task
//  4. run the interactive session: handshake bootstrap, credential-helper
//     export, exec of the login shell
//
// The returned exit status is the interactive session's own. A failed
// delivery is reported but never propagated: the user keeps the shell (or
// the degraded plain shell, when a delivery timeout is configured).
func (c *Coordinator) Start(target Target, opts Options) (Result, error) {
	if strings.TrimSpace(target.Host) == "" {
		return Result{ExitStatus: -1}, errors.New("empty session target")
	}
	if u := strings.TrimSpace(opts.User); u != "" {
		target.User = u
	}

	if opts.Plain {
		status, err := c.Transport.Interactive(target, "")
		return Result{ExitStatus: status}, ignoreRemoteExit(err)
	}

	secret, err := c.Tokens.Token()
	if err != nil {
		return Result{ExitStatus: -1}, err
	}

	hs := NewHandshake(c.Config)
	c.logf("connecting to %s...", target.Dest())

	task := startInjector(c.Transport, target, hs, secret, c.startDelay())
	status, err := c.Transport.Interactive(target, hs.BootstrapScript())

	res := Result{
		ExitStatus:     status,
		RendezvousPath: hs.Path,
		Injector:       task,
	}

	if status == HandshakeCreateExitCode {
		c.logf("remote host could not create the rendezvous pipe under %s", c.Config.PipeDir)
	}

	// The session is over; give a just-finished injector a brief moment so
	// its failure (if any) can be reported, then report without blocking.
	task.Wait(100 * time.Millisecond)
	if outcome, done := task.Outcome(); done && outcome.Err != nil {
		c.logf("token delivery failed: %v", outcome.Err)
	}

	return res, ignoreRemoteExit(err)
}

// startDelay returns the optional injector start cushion from config.
func (c *Coordinator) startDelay() time.Duration {
	if c.Config == nil || c.Config.Injector.StartDelayMS <= 0 {
		return 0
	}
	return time.Duration(c.Config.Injector.StartDelayMS) * time.Millisecond
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "remotekit: "+format+"\n", args...)
}

// ignoreRemoteExit drops exec.ExitError: a non-zero remote exit (including
// operator interruption) is an exit status, not a coordinator failure.
func ignoreRemoteExit(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return nil
	}
	return err
}
