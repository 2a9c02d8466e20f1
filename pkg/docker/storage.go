package docker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Persistent docker-manager state, stored as JSON under the app's
// config dir as docker.json: the selected host, quick-connect slot
// assignments, and the default shell used for exec.

const (
	stateFilename = "docker.json"

	// MaxQuickConnect is the number of digit-bound slots.
	MaxQuickConnect = 9
)

// State is the on-disk JSON structure. Keep fields stable.
type State struct {
	Version int `json:"version,omitempty"`

	// SelectedHost is where discovery runs on startup.
	SelectedHost Host `json:"selected_host"`

	// Slots maps digits "1".."9" to container names for one-key exec.
	Slots map[string]string `json:"slots,omitempty"`

	// DefaultShell is used by exec when the user has not picked one;
	// empty means the bash-or-sh fallback.
	DefaultShell string `json:"default_shell,omitempty"`

	Updated string `json:"updated,omitempty"`
}

// NewState returns a state pointing at the local host.
func NewState() *State {
	return &State{Version: 1, Slots: make(map[string]string)}
}

// SetSlot binds digit slot (1..MaxQuickConnect) to a container name.
// An empty name clears the slot.
func (s *State) SetSlot(slot int, containerName string) error {
	if slot < 1 || slot > MaxQuickConnect {
		return fmt.Errorf("slot %d out of range 1..%d", slot, MaxQuickConnect)
	}
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	key := fmt.Sprintf("%d", slot)
	if containerName == "" {
		delete(s.Slots, key)
		return nil
	}
	s.Slots[key] = containerName
	return nil
}

// Slot returns the container name bound to a digit slot.
func (s *State) Slot(slot int) (string, bool) {
	name, ok := s.Slots[fmt.Sprintf("%d", slot)]
	return name, ok
}

// StatePath returns the docker state file under configDir.
func StatePath(configDir string) string {
	return filepath.Join(configDir, stateFilename)
}

// LoadState reads the state from path. A missing file yields a fresh
// local-host state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read docker state %s: %w", path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse docker state %s: %w", path, err)
	}
	if st.Version == 0 {
		st.Version = 1
	}
	if st.Slots == nil {
		st.Slots = make(map[string]string)
	}
	return &st, nil
}

// SaveState writes the state to path atomically, creating the parent
// directory if needed.
func SaveState(path string, st *State) error {
	if st == nil {
		return errors.New("nil docker state")
	}
	st.Updated = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode docker state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write docker state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace docker state: %w", err)
	}
	return nil
}
