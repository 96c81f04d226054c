package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Peer is one machine on the mesh network, from `tailscale status --json`.
type Peer struct {
	HostName string
	DNSName  string
	Online   bool
	Self     bool
}

// Target converts the peer into a session target using its DNS name.
func (p Peer) Target() Target {
	return Target{Host: p.DNSName, Source: "tailscale"}
}

// ListPeers queries the local Tailscale daemon and returns the self node
// followed by its peers, sorted by DNS name.
func ListPeers() ([]Peer, error) {
	out, err := runTailscale("status", "--json")
	if err != nil {
		return nil, err
	}
	return parsePeerStatus(out)
}

// tsStatus mirrors the subset of `tailscale status --json` we consume.
type tsStatus struct {
	Self *tsNode           `json:"Self"`
	Peer map[string]tsNode `json:"Peer"`
}

type tsNode struct {
	HostName string `json:"HostName"`
	DNSName  string `json:"DNSName"`
	Online   bool   `json:"Online"`
}

func parsePeerStatus(data []byte) ([]Peer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("tailscale status: empty response")
	}
	var st tsStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("tailscale status: parse json: %w", err)
	}

	var peers []Peer
	if st.Self != nil {
		if dns := strings.TrimSuffix(st.Self.DNSName, "."); dns != "" {
			// The self node is always reachable; mark it online.
			peers = append(peers, Peer{
				HostName: st.Self.HostName,
				DNSName:  dns,
				Online:   true,
				Self:     true,
			})
		}
	}

	others := make([]Peer, 0, len(st.Peer))
	for _, n := range st.Peer {
		dns := strings.TrimSuffix(n.DNSName, ".")
		if dns == "" {
			continue
		}
		others = append(others, Peer{HostName: n.HostName, DNSName: dns, Online: n.Online})
	}
	sort.Slice(others, func(i, j int) bool { return others[i].DNSName < others[j].DNSName })

	return append(peers, others...), nil
}

// runTailscale invokes the platform's tailscale binary. Inside WSL the
// Windows-side client is used via cmd.exe so the tool works without a
// Linux-side daemon.
func runTailscale(args ...string) ([]byte, error) {
	var cmd *exec.Cmd
	if isWSL() {
		cmd = exec.Command("cmd.exe", append([]string{"/c", "tailscale"}, args...)...)
	} else {
		bin := tailscaleBinary()
		if _, err := exec.LookPath(bin); err != nil && !filepath.IsAbs(bin) {
			return nil, fmt.Errorf("tailscale command not found: %w", err)
		}
		cmd = exec.Command(bin, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("tailscale status failed: %s", msg)
		}
		return nil, fmt.Errorf("tailscale status failed: %w", err)
	}
	return stdout.Bytes(), nil
}

// tailscaleBinary picks the client binary for the current platform, checking
// the usual install locations before falling back to PATH.
func tailscaleBinary() string {
	switch runtime.GOOS {
	case "darwin":
		app := "/Applications/Tailscale.app/Contents/MacOS/Tailscale"
		if _, err := os.Stat(app); err == nil {
			return app
		}
	case "windows":
		candidates := []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Tailscale", "tailscale.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Tailscale", "tailscale.exe"),
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return c
			}
		}
	}
	return "tailscale"
}

// isWSL reports whether we are running inside Windows Subsystem for Linux.
func isWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
