package sshmgr

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigEntry is one literal Host alias parsed from an OpenSSH client
// config file. Wildcard patterns are skipped; they describe matching
// rules, not importable hosts.
type ConfigEntry struct {
	Alias        string
	HostName     string
	User         string
	Port         int
	IdentityFile string
	ProxyJump    string
}

// Target returns the address to connect to: HostName when set, the
// alias otherwise.
func (e ConfigEntry) Target() string {
	if e.HostName != "" {
		return e.HostName
	}
	return e.Alias
}

// LoadSSHConfig parses path (last-wins per key within a block) and
// returns one entry per literal Host pattern.
func LoadSSHConfig(path string) ([]ConfigEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ssh config %s: %w", path, err)
	}
	defer f.Close()

	var entries []ConfigEntry
	var patterns []string
	var cur ConfigEntry

	flush := func() {
		for _, pat := range patterns {
			if !isLiteralHostPattern(pat) {
				continue
			}
			e := cur
			e.Alias = pat
			entries = append(entries, e)
		}
		patterns = nil
		cur = ConfigEntry{}
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(stripInlineComment(sc.Text()))
		if line == "" {
			continue
		}
		key, val, ok := splitKeyVal(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "host":
			flush()
			patterns = strings.Fields(val)
		case "hostname":
			cur.HostName = val
		case "user":
			cur.User = val
		case "port":
			if p, err := strconv.Atoi(val); err == nil && p > 0 && p < 65536 {
				cur.Port = p
			}
		case "identityfile":
			cur.IdentityFile = val
		case "proxyjump":
			cur.ProxyJump = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ssh config %s: %w", path, err)
	}
	flush()
	return entries, nil
}

// LoadSSHConfigDefault parses ~/.ssh/config.
func LoadSSHConfigDefault() ([]ConfigEntry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadSSHConfig(filepath.Join(home, ".ssh", "config"))
}

// ImportEntries merges parsed entries into the host list, creating
// missing hosts and filling credentials with the config's username and
// identity file. Existing hosts are left alone. Returns the number of
// hosts added.
func ImportEntries(list *HostList, entries []ConfigEntry) int {
	added := 0
	for _, e := range entries {
		target := e.Target()
		if target == "" || list.ContainsHostname(target) {
			continue
		}
		id := list.AddWithName(target, e.Port, e.Alias)
		if e.User != "" || e.IdentityFile != "" {
			list.SetCredentials(id, Credentials{
				Username: e.User,
				KeyPath:  e.IdentityFile,
				Save:     true,
			})
		}
		added++
	}
	// Second pass so ProxyJump can reference entries imported above.
	for _, e := range entries {
		if e.ProxyJump == "" {
			continue
		}
		h, ok := list.GetByHostname(e.Target())
		if !ok {
			continue
		}
		// ProxyJump may be user@host:port or a chain; only the first
		// hop's host part is resolvable against the list.
		first := strings.Split(e.ProxyJump, ",")[0]
		if at := strings.LastIndex(first, "@"); at >= 0 {
			first = first[at+1:]
		}
		if colon := strings.Index(first, ":"); colon >= 0 {
			first = first[:colon]
		}
		jump, ok := list.GetByHostname(first)
		if !ok {
			continue
		}
		_ = list.SetJumpHost(h.ID, jump.ID)
	}
	return added
}

func isLiteralHostPattern(pat string) bool {
	return pat != "" && !strings.ContainsAny(pat, "*?!")
}

func stripInlineComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		return line[:i]
	}
	return line
}

func splitKeyVal(line string) (key, val string, ok bool) {
	if i := strings.IndexAny(line, " \t="); i > 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
	}
	return "", "", false
}
