package workspace

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"

	"remotekit/pkg/session"
)

// scriptedTransport answers one-shot commands from a canned table.
type scriptedTransport struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (s *scriptedTransport) Interactive(session.Target, string) (int, error) {
	return 0, fmt.Errorf("not used in these tests")
}

func (s *scriptedTransport) Run(_ session.Target, remoteCmd string, _ io.Reader) ([]byte, error) {
	s.calls = append(s.calls, remoteCmd)
	if err, ok := s.errs[remoteCmd]; ok {
		return nil, err
	}
	return []byte(s.responses[remoteCmd]), nil
}

func TestRemoteHome(t *testing.T) {
	tr := &scriptedTransport{responses: map[string]string{"echo $HOME": "/home/deploy\n"}}
	sc := Scanner{Transport: tr, Target: session.Target{Host: "build01"}}

	home, err := sc.RemoteHome()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if home != "/home/deploy" {
		t.Fatalf("expected trimmed home, got %q", home)
	}
}

func TestRemoteHome_EmptyResponse(t *testing.T) {
	tr := &scriptedTransport{responses: map[string]string{"echo $HOME": "  \n"}}
	sc := Scanner{Transport: tr, Target: session.Target{Host: "build01"}}

	if _, err := sc.RemoteHome(); err == nil {
		t.Fatalf("expected error for empty home")
	}
}

func TestListDirs_ExcludesBasePath(t *testing.T) {
	base := "/home/deploy/workspaces"
	cmd := fmt.Sprintf("find '%s' -maxdepth 1 -type d 2>/dev/null | sort", base)
	tr := &scriptedTransport{responses: map[string]string{
		cmd: base + "\n" + base + "/api\n" + base + "/web\n\n",
	}}
	sc := Scanner{Transport: tr, Target: session.Target{Host: "build01"}}

	dirs, err := sc.ListDirs(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dirs) != 2 || dirs[0] != base+"/api" || dirs[1] != base+"/web" {
		t.Fatalf("unexpected dirs: %v", dirs)
	}
}

func TestScanner_EscapesRemotePaths(t *testing.T) {
	dir := "/home/deploy/workspaces/it's api"
	tr := &scriptedTransport{responses: map[string]string{}}
	sc := Scanner{Transport: tr, Target: session.Target{Host: "build01"}}

	sc.HasDevcontainer(dir)
	if _, err := sc.ListDirs(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	escaped := session.ShellEscape(dir)
	for _, call := range tr.calls {
		if strings.Contains(call, "'"+dir+"'") {
			t.Fatalf("remote path embedded without escaping: %q", call)
		}
	}
	if !strings.Contains(tr.calls[1], escaped) {
		t.Fatalf("expected escaped path in find command: %q", tr.calls[1])
	}
	if !strings.Contains(tr.calls[0], session.ShellEscape(dir+"/.devcontainer")) {
		t.Fatalf("expected escaped path in devcontainer probe: %q", tr.calls[0])
	}
}

func TestParseContainerList(t *testing.T) {
	output := "abc123\tapi-devcontainer\tmcr.microsoft.com/devcontainers/go\n" +
		"def456\tweb\tnginx:latest\n" +
		"short-line\n"

	all := parseContainerList(output, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 containers (short line skipped), got %+v", all)
	}
	if all[0].ID != "abc123" || all[0].Name != "api-devcontainer" {
		t.Fatalf("unexpected first container: %+v", all[0])
	}

	filtered := parseContainerList(output, "API")
	if len(filtered) != 1 || filtered[0].ID != "abc123" {
		t.Fatalf("expected case-insensitive name filter, got %+v", filtered)
	}

	byImage := parseContainerList(output, "nginx")
	if len(byImage) != 1 || byImage[0].ID != "def456" {
		t.Fatalf("expected image filter to match, got %+v", byImage)
	}

	if none := parseContainerList(output, "nothing"); len(none) != 0 {
		t.Fatalf("expected no matches, got %+v", none)
	}
}

func TestAttachedContainerURI(t *testing.T) {
	uri := AttachedContainerURI("api-devcontainer", "api")

	const prefix = "vscode-remote://attached-container+"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected scheme: %q", uri)
	}
	if !strings.HasSuffix(uri, "/workspaces/api") {
		t.Fatalf("expected workspace path suffix: %q", uri)
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), "/workspaces/api")
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		t.Fatalf("container selector is not hex: %v", err)
	}
	if string(decoded) != `{"containerName":"/api-devcontainer"}` {
		t.Fatalf("unexpected selector json: %s", decoded)
	}
}

func TestSSHRemoteArgv(t *testing.T) {
	argv := SSHRemoteArgv("build01", "/home/deploy/workspaces/api")
	if len(argv) != 4 {
		t.Fatalf("unexpected argv: %v", argv)
	}
	if argv[1] != "--remote" || argv[2] != "ssh-remote+build01" {
		t.Fatalf("unexpected remote args: %v", argv)
	}
}

func TestDevcontainerArgv_EnvIsChildOnlyAssignment(t *testing.T) {
	argv, env := DevcontainerArgv("ssh://build01", "api-devcontainer", "api")

	if len(env) != 1 || env[0] != "DOCKER_HOST=ssh://build01" {
		t.Fatalf("expected single DOCKER_HOST assignment, got %v", env)
	}
	found := false
	for _, a := range argv {
		if strings.HasPrefix(a, "vscode-remote://attached-container+") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected attached-container URI in argv: %v", argv)
	}
}

func TestTerminalScript(t *testing.T) {
	script := TerminalScript("vscode", "abc123")
	for _, want := range []string{"docker exec -it -u vscode abc123", "tmux attach || tmux new"} {
		if !strings.Contains(script, want) {
			t.Fatalf("terminal script missing %q: %s", want, script)
		}
	}
}
