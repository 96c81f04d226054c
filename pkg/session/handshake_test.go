package session

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewHandshake_PathsAreUniqueAndUnderPipeDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PipeDir = "/tmp"

	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		hs := NewHandshake(cfg)
		if !strings.HasPrefix(hs.Path, "/tmp/gh-pipe-") {
			t.Fatalf("expected pipe path under /tmp/gh-pipe-, got %q", hs.Path)
		}
		if _, dup := seen[hs.Path]; dup {
			t.Fatalf("duplicate rendezvous path generated: %q", hs.Path)
		}
		seen[hs.Path] = struct{}{}
	}
}

func TestBootstrapScript_CreatesGuardsAndRemovesPipe(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	script := hs.BootstrapScript()

	mustContain := []string{
		"mkfifo",
		"chmod 600",
		fmt.Sprintf("exit %d", HandshakeCreateExitCode),
		fmt.Sprintf("export %s=\"$(cat", hs.EnvVar),
		"exec ${SHELL:-/bin/sh} -l",
	}
	for _, want := range mustContain {
		if !strings.Contains(script, want) {
			t.Fatalf("bootstrap missing %q:\n%s", want, script)
		}
	}

	// The pipe must be removed both before creation (stale object) and
	// unconditionally after the read.
	rm := "rm -f " + ShellEscape(hs.Path)
	if strings.Count(script, rm) < 2 {
		t.Fatalf("expected at least two %q steps in bootstrap:\n%s", rm, script)
	}
	readIdx := strings.Index(script, "$(cat")
	lastRm := strings.LastIndex(script, rm)
	if lastRm < readIdx {
		t.Fatalf("expected pipe removal after the read:\n%s", script)
	}
}

func TestBootstrapScript_TrapCleansUpInterruptedRead(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	script := hs.BootstrapScript()
	p := ShellEscape(hs.Path)

	install := fmt.Sprintf(`trap "rm -f %s" INT TERM HUP`, p)
	installIdx := strings.Index(script, install)
	if installIdx < 0 {
		t.Fatalf("expected cleanup trap in bootstrap:\n%s", script)
	}

	// The trap must guard the blocking read: installed before it, cleared
	// only after the pipe has been removed, so a session torn down mid-read
	// still leaves no rendezvous object behind.
	readIdx := strings.Index(script, "$(")
	if readIdx < 0 || installIdx > readIdx {
		t.Fatalf("trap must be installed before the blocking read:\n%s", script)
	}

	clearIdx := strings.Index(script, "trap - INT TERM HUP")
	rmAfterRead := strings.LastIndex(script, "rm -f "+p)
	execIdx := strings.Index(script, "exec ")
	if clearIdx < 0 || clearIdx < rmAfterRead || clearIdx > execIdx {
		t.Fatalf("trap must be cleared between pipe removal and exec:\n%s", script)
	}
}

func TestInjectorScript_RemovesStrayRegularFileAfterWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryTimeoutSecs = 5
	hs := NewHandshake(cfg)
	script := hs.InjectorScript()
	p := ShellEscape(hs.Path)

	// If the bounded read expires and the reader removes the pipe between the
	// injector's poll and its open, the redirection creates a regular file
	// holding the secret. The post-write guard must remove it and fail.
	guard := fmt.Sprintf("if [ -e %s ] && [ ! -p %s ]; then rm -f %s; exit 1; fi", p, p, p)
	guardIdx := strings.Index(script, guard)
	if guardIdx < 0 {
		t.Fatalf("expected post-write stray-file guard in injector:\n%s", script)
	}
	if writeIdx := strings.Index(script, "cat > "+p); writeIdx < 0 || guardIdx < writeIdx {
		t.Fatalf("guard must follow the write:\n%s", script)
	}
}

func TestBootstrapScript_ChecksDeliveryBeforeConfiguringGit(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	script := hs.BootstrapScript()

	if !strings.Contains(script, fmt.Sprintf(`if [ -n "$%s" ]`, hs.EnvVar)) {
		t.Fatalf("expected empty-capture guard in bootstrap:\n%s", script)
	}
	if !strings.Contains(script, "GIT_CONFIG_COUNT=1") ||
		!strings.Contains(script, "GIT_CONFIG_KEY_0=credential.helper") {
		t.Fatalf("expected git credential-helper export in bootstrap:\n%s", script)
	}
	if !strings.Contains(script, "no credential delivered") {
		t.Fatalf("expected degraded-shell warning in bootstrap:\n%s", script)
	}
}

func TestBootstrapScript_DeliveryTimeoutBoundsTheRead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryTimeoutSecs = 15
	hs := NewHandshake(cfg)

	script := hs.BootstrapScript()
	if !strings.Contains(script, "timeout 15 cat") {
		t.Fatalf("expected bounded read with timeout 15, got:\n%s", script)
	}
	if !strings.Contains(script, "|| true") {
		t.Fatalf("expected timed-out read to degrade, not abort:\n%s", script)
	}
}

func TestBootstrapScript_ZeroTimeoutBlocksIndefinitely(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	if strings.Contains(hs.BootstrapScript(), "timeout") {
		t.Fatalf("expected unbounded read with zero delivery timeout:\n%s", hs.BootstrapScript())
	}
}

func TestBootstrapScript_ShellOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shell = "/usr/bin/zsh"
	hs := NewHandshake(cfg)

	if !strings.Contains(hs.BootstrapScript(), "exec '/usr/bin/zsh' -l") {
		t.Fatalf("expected shell override in bootstrap:\n%s", hs.BootstrapScript())
	}
}

func TestCredentialHelper_EmitsFixedUsernameAndEnvPassword(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	helper := hs.CredentialHelper()

	if !strings.Contains(helper, `echo "username=x-access-token"`) {
		t.Fatalf("expected fixed username line in helper: %q", helper)
	}
	if !strings.Contains(helper, fmt.Sprintf(`echo "password=$%s"`, hs.EnvVar)) {
		t.Fatalf("expected password from env var in helper: %q", helper)
	}
	if !strings.HasPrefix(helper, "!f() {") {
		t.Fatalf("expected inline shell-function helper: %q", helper)
	}
}

func TestInjectorScript_PollsBeforeWriting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Injector.PollIntervalMS = 250
	cfg.Injector.PollAttempts = 40
	hs := NewHandshake(cfg)

	script := hs.InjectorScript()
	if !strings.Contains(script, "while [ ! -p "+ShellEscape(hs.Path)+" ]") {
		t.Fatalf("expected existence poll on the pipe:\n%s", script)
	}
	if !strings.Contains(script, "-ge 40") {
		t.Fatalf("expected bounded attempts (40):\n%s", script)
	}
	if !strings.Contains(script, "sleep 0.25") {
		t.Fatalf("expected 250ms poll interval:\n%s", script)
	}

	// The write happens only after the poll succeeds; a missing pipe means
	// a non-zero exit, never a write elsewhere.
	catIdx := strings.Index(script, "cat > ")
	doneIdx := strings.Index(script, "done;")
	if catIdx < 0 || doneIdx < 0 || catIdx < doneIdx {
		t.Fatalf("expected write after the poll loop:\n%s", script)
	}
	if !strings.Contains(script, "exit 1") {
		t.Fatalf("expected poll exhaustion to fail the injector:\n%s", script)
	}
}

func TestHandshakeScripts_NeverMentionATokenValue(t *testing.T) {
	hs := NewHandshake(DefaultConfig())
	for _, script := range []string{hs.BootstrapScript(), hs.InjectorScript()} {
		// Only the pipe path and the variable name may appear; the scripts are
		// rendered before the token is ever read.
		if strings.Contains(script, "ghp_") || strings.Contains(script, "token=") {
			t.Fatalf("script text must not carry credential material:\n%s", script)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		ms   int
		want string
	}{
		{0, "0"},
		{200, "0.2"},
		{250, "0.25"},
		{1000, "1"},
		{1500, "1.5"},
		{3000, "3"},
	}
	for _, c := range cases {
		if got := formatSeconds(c.ms); got != c.want {
			t.Fatalf("formatSeconds(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}
