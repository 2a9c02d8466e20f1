package mux

import (
	"errors"
	"fmt"

	"ratterm/pkg/term"
)

// MaxTabs caps the number of open tabs.
const MaxTabs = 10

// Tab is one workspace: a named pane grid.
type Tab struct {
	Name string
	Grid *PaneGrid
}

// Multiplexer owns the tab list and routes lifecycle operations to the
// active tab's panes.
type Multiplexer struct {
	tabs   []*Tab
	active int

	width  int
	height int
	shell  string

	spawn SpawnFunc
}

// New builds a multiplexer sized to the given terminal area. A nil
// spawn uses real PTY-backed terminals; shell is the program new local
// panes run ("" falls back to $SHELL).
func New(width, height int, shell string, spawn SpawnFunc) *Multiplexer {
	if spawn == nil {
		spawn = DefaultSpawn
	}
	return &Multiplexer{
		width:  width,
		height: height,
		shell:  shell,
		spawn:  spawn,
	}
}

// Tabs returns the open tabs in order.
func (m *Multiplexer) Tabs() []*Tab { return m.tabs }

// Count reports the number of open tabs.
func (m *Multiplexer) Count() int { return len(m.tabs) }

// Active returns the active tab, or nil when no tab is open.
func (m *Multiplexer) Active() *Tab {
	if len(m.tabs) == 0 {
		return nil
	}
	return m.tabs[m.active]
}

// ActiveIndex returns the active tab's position.
func (m *Multiplexer) ActiveIndex() int { return m.active }

// FocusedPane returns the pane holding input focus, or nil.
func (m *Multiplexer) FocusedPane() Pane {
	t := m.Active()
	if t == nil {
		return nil
	}
	return t.Grid.Focused()
}

// AddTab opens a new tab running a local shell and makes it active.
func (m *Multiplexer) AddTab(name string) error {
	return m.addTab(name, SpawnRequest{Shell: m.shell})
}

// AddSSHTab opens a tab holding an SSH session to ctx and makes it
// active. An empty name defaults to the user@host display form.
func (m *Multiplexer) AddSSHTab(name string, ctx term.SSHContext) error {
	if name == "" {
		name = ctx.DisplayString()
	}
	c := ctx
	return m.addTab(name, SpawnRequest{SSH: &c})
}

// AddCommandTab opens a tab running a one-shot local command, such as
// a docker exec into a local container.
func (m *Multiplexer) AddCommandTab(name, command string) error {
	return m.addTab(name, SpawnRequest{Command: command})
}

// AddSSHCommandTab opens a tab running command on a remote host over
// SSH, used for exec sessions into containers on remote Docker hosts.
func (m *Multiplexer) AddSSHCommandTab(name string, ctx term.SSHContext, command string) error {
	if name == "" {
		name = ctx.DisplayString()
	}
	c := ctx
	return m.addTab(name, SpawnRequest{SSH: &c, Command: command})
}

func (m *Multiplexer) addTab(name string, req SpawnRequest) error {
	if len(m.tabs) >= MaxTabs {
		return fmt.Errorf("tab limit reached (%d)", MaxTabs)
	}
	req.Cols, req.Rows = m.width, m.height
	p, err := m.spawn(req)
	if err != nil {
		return fmt.Errorf("new tab: %w", err)
	}
	m.tabs = append(m.tabs, &Tab{
		Name: name,
		Grid: NewPaneGrid(p, m.width, m.height, m.spawn),
	})
	m.active = len(m.tabs) - 1
	return nil
}

// CloseTab shuts down the active tab's panes and removes it. The last
// remaining tab cannot be closed.
func (m *Multiplexer) CloseTab() error {
	if len(m.tabs) <= 1 {
		return errors.New("cannot close the last tab")
	}
	m.tabs[m.active].Grid.Shutdown()
	m.tabs = append(m.tabs[:m.active], m.tabs[m.active+1:]...)
	if m.active >= len(m.tabs) {
		m.active = len(m.tabs) - 1
	}
	return nil
}

// ClosePane closes the focused pane of the active tab. When that was
// the tab's only pane the tab closes with it, unless it is the last
// tab, which stays open.
func (m *Multiplexer) ClosePane() error {
	t := m.Active()
	if t == nil {
		return errors.New("no open tab")
	}
	if t.Grid.Count() == 1 {
		return m.CloseTab()
	}
	t.Grid.CloseFocused()
	return nil
}

// NextTab activates the tab after the current one, wrapping.
func (m *Multiplexer) NextTab() {
	if len(m.tabs) > 0 {
		m.active = (m.active + 1) % len(m.tabs)
	}
}

// PrevTab activates the tab before the current one, wrapping.
func (m *Multiplexer) PrevTab() {
	if len(m.tabs) > 0 {
		m.active = (m.active - 1 + len(m.tabs)) % len(m.tabs)
	}
}

// SwitchTo activates tab i if it exists.
func (m *Multiplexer) SwitchTo(i int) {
	if i >= 0 && i < len(m.tabs) {
		m.active = i
	}
}

// Resize propagates a new terminal area to every tab.
func (m *Multiplexer) Resize(width, height int) {
	m.width = width
	m.height = height
	for _, t := range m.tabs {
		t.Grid.Resize(width, height)
	}
}

// ProcessAll drains pending output on every pane of every tab so
// background tabs keep scrolling while hidden.
func (m *Multiplexer) ProcessAll() {
	for _, t := range m.tabs {
		t.Grid.ProcessAll()
	}
}

// Shutdown tears down every tab.
func (m *Multiplexer) Shutdown() {
	for _, t := range m.tabs {
		t.Grid.Shutdown()
	}
	m.tabs = nil
	m.active = 0
}
