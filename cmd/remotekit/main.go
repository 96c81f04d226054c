package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/atotto/clipboard"

	"remotekit/pkg/picker"
	"remotekit/pkg/session"
	"remotekit/pkg/workspace"
)

// Exit codes. Credential and transport failures get distinct codes so
// wrappers can tell "re-auth first" apart from "ssh is missing".
const (
	exitOK         = 0
	exitGeneral    = 1
	exitTransport  = 2
	exitCredential = 3
)

var (
	flagConfig    string
	flagHost      string
	flagUser      string
	flagPlain     bool
	flagSource    string // "ssh" (default) or "ts"
	flagSSHConfig string // comma-separated paths; defaults to ~/.ssh/config when empty
	flagQuery     string
	flagMax       int
	flagDryRun    bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Path to YAML config (defaults to XDG paths if empty)")
	flag.StringVar(&flagHost, "host", "", "Connect directly to a host (ssh alias or literal destination)")
	flag.StringVar(&flagUser, "user", "", "Remote username override")
	flag.BoolVar(&flagPlain, "plain", false, "Plain mode: direct session, no credential injection")
	flag.StringVar(&flagSource, "source", "ssh", "Target source for selection: ssh|ts")
	flag.StringVar(&flagSSHConfig, "ssh-config", "", "SSH config path(s), comma-separated (default: ~/.ssh/config)")
	flag.StringVar(&flagQuery, "query", "", "Initial query for the selector")
	flag.IntVar(&flagMax, "max", 20, "Max results in the selector")
	flag.BoolVar(&flagDryRun, "dry-run", false, "Print the remote bootstrap and injector commands and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "remotekit\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  remotekit [options]              start a secured session (interactive selection)\n")
		fmt.Fprintf(os.Stderr, "  remotekit --host <h> [options]   start a secured session against a specific host\n")
		fmt.Fprintf(os.Stderr, "  remotekit list [options]         print selectable targets and exit\n")
		fmt.Fprintf(os.Stderr, "  remotekit ts [options]           pick a Tailscale peer and copy its DNS name\n")
		fmt.Fprintf(os.Stderr, "  remotekit code [options]         open a remote workspace in VS Code\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  remotekit
  remotekit --host build01
  remotekit --plain --source ts
  remotekit ts --online
  remotekit code --host build01 --mode devcontainer
`)
	}
}

func main() {
	flag.Parse()

	if flag.NArg() >= 1 {
		switch flag.Arg(0) {
		case "list":
			if err := runList(flag.Args()[1:]); err != nil {
				fatal(err)
			}
			return
		case "ts":
			if err := runTS(flag.Args()[1:]); err != nil {
				fatal(err)
			}
			return
		case "code":
			if err := runCode(flag.Args()[1:]); err != nil {
				fatal(err)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "remotekit: unknown subcommand %q\n", flag.Arg(0))
			flag.Usage()
			os.Exit(exitGeneral)
		}
	}

	cfg := loadConfigOrDefaults()

	tr := session.SSHTransport{}
	if err := tr.Available(); err != nil {
		fatal(err)
	}

	target, ok, err := resolveTarget(cfg)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "remotekit: no target selected")
		os.Exit(exitOK)
	}

	if flagDryRun {
		printDryRun(cfg, target)
		return
	}

	coord := session.NewCoordinator(tr, session.NewTokenSource(cfg), cfg)
	res, err := coord.Start(target, session.Options{Plain: flagPlain, User: flagUser})
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stderr, "remotekit: session closed")
	os.Exit(res.ExitStatus)
}

// loadConfigOrDefaults loads the YAML config, falling back to defaults when
// no file exists. A malformed config is fatal.
func loadConfigOrDefaults() *session.Config {
	cfg, _, err := session.LoadConfig(flagConfig)
	if err != nil {
		if errors.Is(err, session.ErrConfigNotFound) {
			return session.DefaultConfig()
		}
		fatal(err)
	}
	return cfg
}

// resolveTarget picks the session target: --host wins, otherwise the selector
// runs over the configured source. ok=false means the user cancelled.
func resolveTarget(cfg *session.Config) (session.Target, bool, error) {
	if h := strings.TrimSpace(flagHost); h != "" {
		return session.Target{Host: h, Source: "literal"}, true, nil
	}

	items, err := targetItems(flagSource)
	if err != nil {
		return session.Target{}, false, err
	}
	if len(items) == 0 {
		return session.Target{}, false, fmt.Errorf("no selectable targets found (source %s)", flagSource)
	}

	chosen, ok, err := picker.Pick(items, picker.Options{
		Prompt:       "Select host to connect",
		InitialQuery: flagQuery,
		MaxResults:   flagMax,
	})
	if err != nil || !ok {
		return session.Target{}, false, err
	}
	return session.Target{Host: chosen.ID, Source: flagSource}, true, nil
}

// targetItems builds selector items from the requested discovery source.
func targetItems(source string) ([]picker.Item, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "ssh":
		entries, err := loadSSHEntries()
		if err != nil {
			return nil, err
		}
		items := make([]picker.Item, 0, len(entries))
		for _, e := range entries {
			display := e.Alias
			if e.HostName != "" && e.HostName != e.Alias {
				display += "  (" + e.HostName + ")"
			}
			if e.User != "" {
				display += "  as " + e.User
			}
			items = append(items, picker.Item{
				ID:         e.Alias,
				Display:    display,
				SearchText: e.Alias + " " + e.HostName + " " + e.User,
			})
		}
		return items, nil

	case "ts", "tailscale":
		peers, err := session.ListPeers()
		if err != nil {
			return nil, err
		}
		items := make([]picker.Item, 0, len(peers))
		for _, p := range peers {
			items = append(items, picker.Item{
				ID:         p.DNSName,
				Display:    peerLine(p),
				SearchText: p.HostName + " " + p.DNSName,
			})
		}
		return items, nil

	default:
		return nil, fmt.Errorf("unknown source %q (expected ssh|ts)", source)
	}
}

func loadSSHEntries() ([]session.HostEntry, error) {
	var paths []string
	for _, p := range strings.Split(flagSSHConfig, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return session.LoadSSHHostsDefault()
	}
	return session.LoadSSHHosts(paths...)
}

func peerLine(p session.Peer) string {
	status := "[-]"
	if p.Online {
		status = "[+]"
	}
	line := status + " " + p.DNSName
	if p.Self {
		line += " (self)"
	}
	return line
}

// printDryRun shows what a secured session would run remotely. The token is
// never read in dry-run mode, and neither command can contain it anyway.
func printDryRun(cfg *session.Config, target session.Target) {
	hs := session.NewHandshake(cfg)
	fmt.Printf("target:    %s\n", target.Dest())
	fmt.Printf("bootstrap: %s\n", hs.BootstrapScript())
	fmt.Printf("injector:  %s\n", hs.InjectorScript())
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	source := fs.String("source", "ssh", "Target source: ssh|ts")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := targetItems(*source)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("(no targets found)")
		return nil
	}
	for _, it := range items {
		fmt.Println(it.Display)
	}
	return nil
}

func runTS(args []string) error {
	fs := flag.NewFlagSet("ts", flag.ContinueOnError)
	filter := fs.String("filter", "", "Filter peers by name or DNS")
	onlineOnly := fs.Bool("online", false, "Show only online peers")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	peers, err := session.ListPeers()
	if err != nil {
		return err
	}

	items := make([]picker.Item, 0, len(peers))
	needle := strings.ToLower(strings.TrimSpace(*filter))
	for _, p := range peers {
		if *onlineOnly && !p.Online {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.HostName), needle) &&
			!strings.Contains(strings.ToLower(p.DNSName), needle) {
			continue
		}
		items = append(items, picker.Item{
			ID:         p.DNSName,
			Display:    peerLine(p),
			SearchText: p.HostName + " " + p.DNSName,
		})
	}
	if len(items) == 0 {
		return errors.New("no peers match")
	}

	chosen, ok, err := picker.Pick(items, picker.Options{Prompt: "Select Tailscale peer", MaxResults: flagMax})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "remotekit: no peer selected")
		return nil
	}

	if err := clipboard.WriteAll(chosen.ID); err != nil {
		// Still useful without a clipboard tool installed.
		fmt.Printf("%s\n", chosen.ID)
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	fmt.Printf("copied to clipboard: %s\n", chosen.ID)
	return nil
}

func runCode(args []string) error {
	fs := flag.NewFlagSet("code", flag.ContinueOnError)
	host := fs.String("host", "", "Remote SSH host (interactive selection if empty)")
	wsPath := fs.String("path", "", "Workspace path (interactive selection if empty)")
	mode := fs.String("mode", "", "Mode: ssh|devcontainer|terminal (interactive selection if empty)")
	filter := fs.String("filter", "", "Filter for workspace/container search")
	basePath := fs.String("base-path", "", "Base path for workspaces (default: <remote $HOME>/workspaces)")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfigOrDefaults()
	tr := session.SSHTransport{}
	if err := tr.Available(); err != nil {
		return err
	}

	targetHost := strings.TrimSpace(*host)
	if targetHost == "" {
		items, err := targetItems("ssh")
		if err != nil {
			return err
		}
		chosen, ok, err := picker.Pick(items, picker.Options{Prompt: "Select SSH host", MaxResults: flagMax})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "remotekit: no host selected")
			return nil
		}
		targetHost = chosen.ID
	}

	sc := workspace.Scanner{Transport: tr, Target: session.Target{Host: targetHost}}

	base := strings.TrimSpace(*basePath)
	if base == "" {
		base = strings.TrimSpace(cfg.Workspaces.BasePath)
	}
	if base == "" {
		home, err := sc.RemoteHome()
		if err != nil {
			return err
		}
		base = home + "/workspaces"
	}

	dir := strings.TrimSpace(*wsPath)
	if dir == "" {
		dirs, err := sc.ListDirs(base)
		if err != nil {
			return err
		}
		if f := strings.ToLower(strings.TrimSpace(*filter)); f != "" {
			var kept []string
			for _, d := range dirs {
				if strings.Contains(strings.ToLower(d), f) {
					kept = append(kept, d)
				}
			}
			dirs = kept
		}
		if len(dirs) == 0 {
			return fmt.Errorf("no directories found in %s on %s", base, targetHost)
		}
		if len(dirs) == 1 {
			dir = dirs[0]
			fmt.Fprintf(os.Stderr, "remotekit: auto-selected %s\n", dir)
		} else {
			items := make([]picker.Item, 0, len(dirs))
			for _, d := range dirs {
				items = append(items, picker.Item{ID: d, Display: d})
			}
			chosen, ok, err := picker.Pick(items, picker.Options{
				Prompt:     "Select workspace on " + targetHost,
				MaxResults: flagMax,
			})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stderr, "remotekit: no workspace selected")
				return nil
			}
			dir = chosen.ID
		}
	}
	wsName := path.Base(dir)

	chosenMode := strings.ToLower(strings.TrimSpace(*mode))
	if chosenMode == "" {
		var items []picker.Item
		if sc.HasDevcontainer(dir) {
			items = append(items, picker.Item{ID: "devcontainer", Display: "devcontainer  Open in DevContainer (recommended)"})
		}
		items = append(items,
			picker.Item{ID: "ssh", Display: "ssh           Open in SSH Remote"},
			picker.Item{ID: "terminal", Display: "terminal      Open terminal session in container"},
		)
		chosen, ok, err := picker.Pick(items, picker.Options{Prompt: "Select mode for " + wsName, MaxResults: flagMax})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "remotekit: no mode selected")
			return nil
		}
		chosenMode = chosen.ID
	}

	switch chosenMode {
	case "ssh":
		fmt.Fprintf(os.Stderr, "remotekit: opening %s on %s in SSH Remote...\n", dir, targetHost)
		return workspace.LaunchCode(workspace.SSHRemoteArgv(targetHost, dir), nil)

	case "devcontainer":
		containers, err := sc.ListContainers(wsName)
		if err != nil {
			return err
		}
		if len(containers) == 0 {
			// VS Code will prompt to "Reopen in Container" from SSH Remote.
			fmt.Fprintf(os.Stderr, "remotekit: no running container for %s; opening in SSH Remote\n", wsName)
			return workspace.LaunchCode(workspace.SSHRemoteArgv(targetHost, dir), nil)
		}
		c := containers[0]
		fmt.Fprintf(os.Stderr, "remotekit: attaching to container %s (%s)\n", c.Name, c.Image)
		argv, env := workspace.DevcontainerArgv("ssh://"+targetHost, c.Name, wsName)
		return workspace.LaunchCode(argv, env)

	case "terminal":
		containers, err := sc.ListContainers(terminalContainerFilter(*filter, wsName))
		if err != nil {
			return err
		}
		if len(containers) == 0 {
			containers, err = sc.ListContainers("")
			if err != nil {
				return err
			}
		}
		if len(containers) == 0 {
			return fmt.Errorf("no running containers on %s", targetHost)
		}
		items := make([]picker.Item, 0, len(containers))
		for _, c := range containers {
			items = append(items, picker.Item{
				ID:         c.ID,
				Display:    fmt.Sprintf("%s  (%s)", c.Name, c.Image),
				SearchText: c.Name + " " + c.Image,
			})
		}
		chosen, ok, err := picker.Pick(items, picker.Options{Prompt: "Select container", MaxResults: flagMax})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "remotekit: no container selected")
			return nil
		}
		script := workspace.TerminalScript(cfg.Workspaces.ContainerUser, chosen.ID)
		status, err := tr.Interactive(session.Target{Host: targetHost}, script)
		if err != nil && status <= 0 {
			return err
		}
		os.Exit(status)
		return nil

	default:
		return fmt.Errorf("unknown mode %q (expected ssh|devcontainer|terminal)", chosenMode)
	}
}

// terminalContainerFilter picks the container search needle for terminal
// mode: an explicit filter wins, otherwise the workspace name.
func terminalContainerFilter(filter, workspaceName string) string {
	if f := strings.TrimSpace(filter); f != "" {
		return f
	}
	return workspaceName
}

// fatal reports err and exits with its mapped code.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "remotekit: %v\n", err)
	switch {
	case errors.Is(err, session.ErrCredentialUnavailable):
		os.Exit(exitCredential)
	case errors.Is(err, session.ErrTransportUnavailable):
		os.Exit(exitTransport)
	default:
		os.Exit(session.ExitStatus(err))
	}
}
