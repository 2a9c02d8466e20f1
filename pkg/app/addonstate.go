package app

import (
	"ratterm/pkg/addons"
)

// addonsState bundles the addon catalog pieces the model owns: the
// persisted state, the lazily-created fetcher/installer, and the last
// fetched catalog.
type addonsState struct {
	path      string
	state     *addons.State
	fetcher   *addons.Fetcher
	installer *addons.Installer
	available []addons.Addon
}

func newAddonsState(configDir string) (*addonsState, error) {
	path := addons.StatePath(configDir)
	st, err := addons.LoadState(path)
	if err != nil {
		return nil, err
	}
	return &addonsState{path: path, state: st}, nil
}

func (a *addonsState) save() error {
	return addons.SaveState(a.path, a.state)
}
