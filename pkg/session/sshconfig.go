package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// HostEntry is a single literal Host alias parsed from an OpenSSH client
// configuration file. Wildcard patterns are skipped: they are not selectable
// targets.
type HostEntry struct {
	// Alias is the Host alias used on the ssh command line.
	Alias string

	// Values parsed from the Host block (last-wins semantics).
	HostName string
	User     string
	Port     int

	// Source is the file the block came from (best-effort).
	Source string
}

// Target converts the entry into a session target. The alias is kept as the
// destination so ssh applies the rest of the user's config itself.
func (e HostEntry) Target() Target {
	return Target{Host: e.Alias, User: e.User, Source: "sshconfig"}
}

// LoadSSHHostsDefault parses ~/.ssh/config (following top-level Include
// directives, globs supported) and returns literal Host aliases sorted by
// name.
func LoadSSHHostsDefault() ([]HostEntry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadSSHHosts(filepath.Join(home, ".ssh", "config"))
}

// LoadSSHHosts parses one or more SSH config files. Later files and later
// Host blocks win for the same alias.
func LoadSSHHosts(paths ...string) ([]HostEntry, error) {
	if len(paths) == 0 {
		return nil, errors.New("no ssh config paths provided")
	}

	visited := map[string]struct{}{}
	entries := make([]HostEntry, 0, 64)
	indexByAlias := map[string]int{}

	for _, p := range paths {
		p = expandPath(p)
		parsed, err := parseSSHConfigFile(p, visited)
		if err != nil {
			return nil, err
		}
		for _, e := range parsed {
			if prev, ok := indexByAlias[e.Alias]; ok {
				entries[prev] = e
			} else {
				indexByAlias[e.Alias] = len(entries)
				entries = append(entries, e)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Alias < entries[j].Alias })
	return entries, nil
}

type sshHostBlock struct {
	patterns []string
	hostName string
	user     string
	port     int
	source   string
}

func (b *sshHostBlock) entries() []HostEntry {
	out := make([]HostEntry, 0, len(b.patterns))
	for _, pat := range b.patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" || !isLiteralHostPattern(pat) {
			continue
		}
		out = append(out, HostEntry{
			Alias:    pat,
			HostName: b.hostName,
			User:     b.user,
			Port:     b.port,
			Source:   b.source,
		})
	}
	return out
}

func parseSSHConfigFile(path string, visited map[string]struct{}) ([]HostEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, ok := visited[abs]; ok {
		return nil, nil
	}
	visited[abs] = struct{}{}

	f, err := os.Open(abs)
	if err != nil {
		// Include globs commonly reference files that do not exist.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config %s: %w", abs, err)
	}
	defer f.Close()

	var out []HostEntry
	var current *sshHostBlock

	flush := func() {
		if current != nil {
			out = append(out, current.entries()...)
			current = nil
		}
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitSSHKeyVal(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "host":
			flush()
			current = &sshHostBlock{source: abs, patterns: strings.Fields(val)}
		case "include":
			// Flushing keeps ordering intact when an Include appears mid-file.
			flush()
			for _, inc := range expandIncludePatterns(abs, val) {
				children, err := parseSSHConfigFile(inc, visited)
				if err != nil {
					return nil, err
				}
				out = append(out, children...)
			}
		case "match":
			// Match conditions are not evaluated; settings that follow apply
			// to no block.
			flush()
		case "hostname":
			if current != nil {
				current.hostName = val
			}
		case "user":
			if current != nil {
				current.user = val
			}
		case "port":
			if current != nil {
				if p, err := strconv.Atoi(val); err == nil && p > 0 {
					current.port = p
				}
			}
		default:
			// Other settings are ssh's business, not ours.
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ssh config %s: %w", abs, err)
	}
	return out, nil
}

// splitSSHKeyVal splits "Key Value" or "Key=Value" (key case-insensitive).
func splitSSHKeyVal(line string) (key, val string, ok bool) {
	if i := strings.IndexAny(line, " \t="); i >= 0 {
		key = strings.TrimSpace(line[:i])
		val = strings.TrimSpace(line[i+1:])
		if key == "" {
			return "", "", false
		}
		return key, val, true
	}
	return "", "", false
}

func expandIncludePatterns(baseFile, pattern string) []string {
	pattern = expandPath(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(filepath.Dir(baseFile), pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			out = append(out, m)
		}
	}
	return out
}

// isLiteralHostPattern rejects OpenSSH pattern metacharacters ('*', '?',
// '[]'), negation ('!'), and embedded whitespace.
func isLiteralHostPattern(p string) bool {
	if p == "" || strings.HasPrefix(p, "!") {
		return false
	}
	if strings.ContainsAny(p, "*?[]") {
		return false
	}
	if strings.IndexFunc(p, func(r rune) bool { return r == ' ' || r == '\t' }) >= 0 {
		return false
	}
	return true
}
