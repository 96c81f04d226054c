// Package session implements the secured remote-session core: obtaining a
// short-lived bearer token, spawning an interactive SSH session, and
// delivering the token into the remote shell's environment through a
// one-time rendezvous pipe — without the token ever touching a file, a
// command line, or a process listing on either side.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the full YAML configuration for remotekit.
//
// Example YAML:
//
// token_env: MY_GH_TOKEN
// pipe_dir: /tmp
// injector:
//   poll_interval_ms: 200
//   poll_attempts: 50
// delivery_timeout_secs: 0
// workspaces:
//   base_path: ~/workspaces
//   container_user: vscode
type Config struct {
	// TokenEnv is the environment variable name the remote bootstrap exports
	// the token under. Defaults to "MY_GH_TOKEN".
	TokenEnv string `yaml:"token_env,omitempty"`

	// PipeDir is the remote directory the rendezvous pipe is created in.
	// Defaults to "/tmp". Must be an absolute path.
	PipeDir string `yaml:"pipe_dir,omitempty"`

	// Injector controls the delivery side of the handshake.
	Injector InjectorConfig `yaml:"injector,omitempty"`

	// DeliveryTimeoutSecs bounds the bootstrap's blocking read on the
	// rendezvous pipe. 0 means block indefinitely: if delivery never happens
	// the session hangs until the transport itself gives up or the operator
	// cancels. A positive value degrades the session to a plain shell (with a
	// warning) when no token arrives in time.
	DeliveryTimeoutSecs int `yaml:"delivery_timeout_secs,omitempty"`

	// Shell optionally overrides the remote login shell exec'd by the
	// bootstrap. Empty means ${SHELL:-/bin/sh} on the remote side.
	Shell string `yaml:"shell,omitempty"`

	// TokenCommand optionally overrides the credential source command line.
	// Defaults to ["gh", "auth", "token"].
	TokenCommand []string `yaml:"token_command,omitempty"`

	// Workspaces configures the `code` helper.
	Workspaces WorkspaceConfig `yaml:"workspaces,omitempty"`
}

// InjectorConfig tunes how the injector synchronizes with the bootstrap.
//
// The injector's remote command polls for the rendezvous pipe to exist before
// writing, so delivery cannot race ahead of pipe creation. StartDelayMS is
// kept as an optional extra cushion before the injector even connects; it
// defaults to 0 and is not required for correctness.
type InjectorConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms,omitempty"`
	PollAttempts   int `yaml:"poll_attempts,omitempty"`
	StartDelayMS   int `yaml:"start_delay_ms,omitempty"`
}

// WorkspaceConfig holds defaults for the remote workspace opener.
type WorkspaceConfig struct {
	// BasePath is the remote directory scanned for workspaces. Empty means
	// $HOME/workspaces resolved on the remote host.
	BasePath string `yaml:"base_path,omitempty"`

	// ContainerUser is the user for container terminal sessions.
	// Defaults to "vscode".
	ContainerUser string `yaml:"container_user,omitempty"`
}

// Defaults applied by LoadConfig / DefaultConfig.
const (
	DefaultTokenEnv            = "MY_GH_TOKEN"
	DefaultPipeDir             = "/tmp"
	DefaultPollIntervalMS      = 200
	DefaultPollAttempts        = 50
	DefaultContainerUser       = "vscode"
	DefaultDeliveryTimeoutSecs = 0
)

// ErrConfigNotFound is returned when no configuration file can be located.
// Callers generally treat this as "run with defaults".
var ErrConfigNotFound = errors.New("config not found")

// DefaultConfig returns a Config with all defaults applied and no file read.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig discovers and loads the YAML configuration.
// An explicit path must load: any failure to read or parse it is an error,
// never a fallback. If explicitPath is empty, it searches common locations
// in order:
// 1. $REMOTEKIT_CONFIG
// 2. $XDG_CONFIG_HOME/remotekit/config.yaml
// 3. ~/.config/remotekit/config.yaml
//
// Returns the parsed Config and the path that was used. When no file exists
// in the searched locations, the error is ErrConfigNotFound; callers may fall
// back to DefaultConfig.
func LoadConfig(explicitPath string) (*Config, string, error) {
	if explicitPath != "" {
		p := expandPath(explicitPath)
		cfg, err := readConfigFile(p)
		if err != nil {
			return nil, p, fmt.Errorf("config %s: %w", p, err)
		}
		return cfg, p, nil
	}

	var lastErr error
	for _, p := range ConfigPathCandidates("") {
		p = expandPath(p)
		if p == "" {
			continue
		}
		cfg, err := readConfigFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				lastErr = err
				continue
			}
			return nil, p, err
		}
		return cfg, p, nil
	}
	if lastErr == nil || os.IsNotExist(lastErr) {
		lastErr = ErrConfigNotFound
	}
	return nil, "", lastErr
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// ConfigPathCandidates returns possible configuration file paths, in priority
// order. If explicitPath is provided, it is returned first (expanded later).
func ConfigPathCandidates(explicitPath string) []string {
	var out []string
	if explicitPath != "" {
		out = append(out, explicitPath)
	}
	if env := os.Getenv("REMOTEKIT_CONFIG"); env != "" {
		out = append(out, env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		out = append(out, filepath.Join(xdg, "remotekit", "config.yaml"))
	}
	home, _ := os.UserHomeDir()
	if home != "" {
		out = append(out, filepath.Join(home, ".config", "remotekit", "config.yaml"))
	}
	return out
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.TokenEnv) == "" {
		c.TokenEnv = DefaultTokenEnv
	}
	if strings.TrimSpace(c.PipeDir) == "" {
		c.PipeDir = DefaultPipeDir
	}
	if c.Injector.PollIntervalMS <= 0 {
		c.Injector.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.Injector.PollAttempts <= 0 {
		c.Injector.PollAttempts = DefaultPollAttempts
	}
	if len(c.TokenCommand) == 0 {
		c.TokenCommand = []string{"gh", "auth", "token"}
	}
	if strings.TrimSpace(c.Workspaces.ContainerUser) == "" {
		c.Workspaces.ContainerUser = DefaultContainerUser
	}
}

// Validate performs basic sanity checks on the configuration.
//
// - token_env must be a plausible POSIX identifier (the bootstrap exports it)
// - pipe_dir must be absolute (the remote pipe path is built from it)
// - injector poll values and delivery timeout must be non-negative
func (c *Config) Validate() error {
	env := strings.TrimSpace(c.TokenEnv)
	if env == "" {
		return errors.New("token_env is required")
	}
	if !isPosixName(env) {
		return fmt.Errorf("token_env: invalid environment variable name %q", c.TokenEnv)
	}

	dir := strings.TrimSpace(c.PipeDir)
	if !strings.HasPrefix(dir, "/") {
		return fmt.Errorf("pipe_dir: must be an absolute remote path (got %q)", c.PipeDir)
	}
	if strings.ContainsAny(dir, " \t'\"\\") {
		return fmt.Errorf("pipe_dir: must not contain spaces or quoting characters (got %q)", c.PipeDir)
	}

	if c.Injector.PollIntervalMS < 0 {
		return fmt.Errorf("injector.poll_interval_ms: must be >= 0 (got %d)", c.Injector.PollIntervalMS)
	}
	if c.Injector.PollAttempts < 0 {
		return fmt.Errorf("injector.poll_attempts: must be >= 0 (got %d)", c.Injector.PollAttempts)
	}
	if c.Injector.StartDelayMS < 0 {
		return fmt.Errorf("injector.start_delay_ms: must be >= 0 (got %d)", c.Injector.StartDelayMS)
	}
	if c.DeliveryTimeoutSecs < 0 {
		return fmt.Errorf("delivery_timeout_secs: must be >= 0 (got %d)", c.DeliveryTimeoutSecs)
	}

	for i, part := range c.TokenCommand {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("token_command[%d]: empty command token", i)
		}
	}
	return nil
}

// isPosixName reports whether s is a valid POSIX shell identifier.
func isPosixName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// expandPath expands leading "~" and environment variables in a path.
// If the input is empty, returns "".
func expandPath(p string) string {
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, _ := os.UserHomeDir()
		if home != "" {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
			// Note: "~user" not handled to avoid userdb lookups; rare for local client config paths.
		}
	}
	return p
}
