// Package workspace implements the remote workspace opener: scanning
// directories on a remote host over the session transport, detecting
// devcontainers, listing running containers, and launching VS Code against
// the right URI.
package workspace

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"remotekit/pkg/session"
)

// Scanner runs one-shot discovery commands on a remote host.
type Scanner struct {
	Transport session.Transport
	Target    session.Target
}

// RemoteHome resolves $HOME on the remote host.
func (s Scanner) RemoteHome() (string, error) {
	out, err := s.Transport.Run(s.Target, "echo $HOME", nil)
	if err != nil {
		return "", fmt.Errorf("detect remote home: %w", err)
	}
	home := strings.TrimSpace(string(out))
	if home == "" {
		return "", fmt.Errorf("detect remote home: empty response")
	}
	return home, nil
}

// ListDirs lists directories under basePath on the remote host, one level
// deep, sorted. The base path itself is excluded.
func (s Scanner) ListDirs(basePath string) ([]string, error) {
	cmd := fmt.Sprintf("find %s -maxdepth 1 -type d 2>/dev/null | sort", session.ShellEscape(basePath))
	out, err := s.Transport.Run(s.Target, cmd, nil)
	if err != nil {
		return nil, fmt.Errorf("list remote directories: %w", err)
	}
	var dirs []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == basePath {
			continue
		}
		dirs = append(dirs, line)
	}
	return dirs, nil
}

// HasDevcontainer reports whether the remote directory carries a
// devcontainer configuration (.devcontainer/ or .devcontainer.json).
func (s Scanner) HasDevcontainer(dir string) bool {
	cmd := fmt.Sprintf("[ -d %s ] || [ -f %s ] && echo yes || echo no",
		session.ShellEscape(dir+"/.devcontainer"), session.ShellEscape(dir+"/.devcontainer.json"))
	out, err := s.Transport.Run(s.Target, cmd, nil)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "yes"
}

// Container is one running Docker container on the remote host.
type Container struct {
	ID    string
	Name  string
	Image string
}

// ListContainers lists running containers on the remote host, optionally
// filtered (case-insensitive substring on name or image).
func (s Scanner) ListContainers(filter string) ([]Container, error) {
	out, err := s.Transport.Run(s.Target, `docker ps --format '{{.ID}}\t{{.Names}}\t{{.Image}}'`, nil)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return parseContainerList(string(out), filter), nil
}

func parseContainerList(output, filter string) []Container {
	filter = strings.ToLower(strings.TrimSpace(filter))
	var out []Container
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		c := Container{ID: parts[0], Name: parts[1], Image: parts[2]}
		if filter != "" &&
			!strings.Contains(strings.ToLower(c.Name), filter) &&
			!strings.Contains(strings.ToLower(c.Image), filter) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AttachedContainerURI builds the vscode-remote URI for attaching to a
// running container. The container selector is a hex-encoded JSON config, as
// VS Code's remote-containers extension expects.
func AttachedContainerURI(containerName, workspaceName string) string {
	cfg := fmt.Sprintf(`{"containerName":"/%s"}`, containerName)
	return fmt.Sprintf(
		"vscode-remote://attached-container+%s%s",
		hex.EncodeToString([]byte(cfg)),
		path.Join("/workspaces", workspaceName),
	)
}

// SSHRemoteArgv builds the `code` invocation for opening a remote directory
// over SSH Remote.
func SSHRemoteArgv(host, dir string) []string {
	return []string{codeCommand(), "--remote", "ssh-remote+" + host, dir}
}

// DevcontainerArgv builds the `code` invocation for attaching to a running
// container on the remote Docker daemon.
//
// The Docker endpoint is returned as an explicit environment assignment for
// the child process only; the calling process's environment is never mutated,
// so concurrent sessions cannot contaminate each other's endpoints.
func DevcontainerArgv(dockerHost, containerName, workspaceName string) (argv []string, env []string) {
	argv = []string{codeCommand(), "--folder-uri", AttachedContainerURI(containerName, workspaceName)}
	env = []string{"DOCKER_HOST=" + dockerHost}
	return argv, env
}

// TerminalScript builds the remote command for an interactive container
// terminal session: docker exec into the container and attach (or create) a
// tmux session.
func TerminalScript(user, containerID string) string {
	return fmt.Sprintf(
		"docker exec -it -u %s %s zsh -c 'source ~/.zshrc; tmux attach || tmux new'",
		user, containerID,
	)
}

// LaunchCode runs a `code` argv with optional extra child-process env.
func LaunchCode(argv []string, extraEnv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty code invocation")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// codeCommand picks the VS Code CLI for the current platform, checking the
// usual Windows install locations before falling back to PATH.
func codeCommand() string {
	if runtime.GOOS != "windows" {
		return "code"
	}
	candidates := []string{
		filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "Microsoft VS Code", "bin", "code.cmd"),
		filepath.Join(os.Getenv("ProgramFiles"), "Microsoft VS Code", "bin", "code.cmd"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return "code.cmd"
}
