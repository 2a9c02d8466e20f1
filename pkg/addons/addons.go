// Package addons fetches an addon catalog from a raw-content repo,
// installs addons through the background process manager, and records
// what is installed.
package addons

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for the fetcher config; overridable through the state file.
const (
	DefaultRepository = "https://raw.githubusercontent.com/ratterm/addons"
	DefaultBranch     = "main"

	stateFilename = "addons.json"
	indexFilename = "index.json"
)

// Addon is one catalog entry. Script is the install script path
// relative to the repo root (or an absolute URL).
type Addon struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Script      string `json:"script"`
}

// InstalledAddon is the persisted record of an install.
type InstalledAddon struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is the on-disk addons.json structure.
type State struct {
	Version    int              `json:"version,omitempty"`
	Installed  []InstalledAddon `json:"installed,omitempty"`
	Repository string           `json:"repository,omitempty"`
	Branch     string           `json:"branch,omitempty"`
	Updated    string           `json:"updated,omitempty"`
}

// NewState returns a state with the default fetcher config.
func NewState() *State {
	return &State{Version: 1, Repository: DefaultRepository, Branch: DefaultBranch}
}

// IsInstalled reports whether addon id is recorded as installed.
func (s *State) IsInstalled(id string) bool {
	for _, a := range s.Installed {
		if a.ID == id {
			return true
		}
	}
	return false
}

// MarkInstalled records an install, once per id.
func (s *State) MarkInstalled(a Addon) {
	if s.IsInstalled(a.ID) {
		return
	}
	s.Installed = append(s.Installed, InstalledAddon{ID: a.ID, Name: a.Name})
}

// MarkUninstalled drops the record for id.
func (s *State) MarkUninstalled(id string) {
	out := s.Installed[:0]
	for _, a := range s.Installed {
		if a.ID != id {
			out = append(out, a)
		}
	}
	s.Installed = out
}

// StatePath returns the addons state file under configDir.
func StatePath(configDir string) string {
	return filepath.Join(configDir, stateFilename)
}

// LoadState reads the state from path; a missing file yields defaults.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read addon state %s: %w", path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse addon state %s: %w", path, err)
	}
	if st.Version == 0 {
		st.Version = 1
	}
	if st.Repository == "" {
		st.Repository = DefaultRepository
	}
	if st.Branch == "" {
		st.Branch = DefaultBranch
	}
	return &st, nil
}

// SaveState writes the state to path atomically.
func SaveState(path string, st *State) error {
	if st == nil {
		return errors.New("nil addon state")
	}
	st.Updated = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode addon state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write addon state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace addon state: %w", err)
	}
	return nil
}
