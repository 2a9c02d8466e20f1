package app

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"ratterm/pkg/dashboard"
	"ratterm/pkg/mux"
)

// handleKey routes one key event by AppMode. Global chords are checked
// first; everything else goes to the focused pane (Normal), the
// browser, the dashboard, or the popup.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.mux == nil {
		return nil
	}

	if handled := m.handleGlobalKey(msg); handled {
		if !m.running {
			return tea.Quit
		}
		return nil
	}

	switch m.mode {
	case ModeNormal:
		m.handleTerminalKey(msg)
	case ModeFileBrowser:
		m.handleBrowserKey(msg)
	case ModeHealthDashboard:
		m.handleDashboardKey(msg)
	case ModePopup:
		m.handlePopupKey(msg)
	}
	if !m.running {
		return tea.Quit
	}
	return nil
}

// handleGlobalKey covers chords that work in every mode.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "ctrl+q":
		if m.mode == ModePopup {
			return false
		}
		m.openConfirm("Quit ratterm?", func(mm *Model) { mm.quit() })
		return true
	}
	return false
}

// handleTerminalKey is ModeNormal input: tab/split management chords,
// selection keys, and raw forwarding to the focused pane.
func (m *Model) handleTerminalKey(msg tea.KeyMsg) {
	pane := m.focusedPane()

	switch msg.String() {
	case "ctrl+t":
		if err := m.mux.AddTab(""); err != nil {
			m.setError(err.Error())
		}
		return
	case "ctrl+w":
		if err := m.mux.ClosePane(); err != nil {
			m.setError(err.Error())
		}
		return
	case "ctrl+left":
		m.mux.PrevTab()
		return
	case "ctrl+right":
		m.mux.NextTab()
		return
	case "ctrl+s":
		if tab := m.mux.Active(); tab != nil {
			if err := tab.Grid.Split(m.shell); err != nil {
				m.setError(err.Error())
			}
		}
		return
	case "alt+tab":
		if tab := m.mux.Active(); tab != nil {
			tab.Grid.ToggleFocus()
		}
		return
	case "alt+up", "alt+down", "alt+left", "alt+right":
		if tab := m.mux.Active(); tab != nil {
			tab.Grid.MoveFocus(focusDirection(msg.String()))
		}
		return
	case "alt+u":
		m.openSSHManager()
		return
	case "alt+d":
		m.openDockerManager()
		return
	case "alt+a":
		m.openAddonManager()
		return
	case "alt+h":
		m.openHealthDashboard()
		return
	case "alt+l":
		m.openLogView()
		return
	case "ctrl+o":
		m.handleIntercepted("open")
		return
	case "ctrl+v":
		if pane != nil && m.clipboard != "" {
			if err := pane.Write([]byte(m.clipboard)); err != nil {
				m.setError(err.Error())
			}
		}
		return
	case "alt+c":
		if pane != nil && pane.Grid() != nil {
			if text, ok := pane.Grid().SelectedText(); ok {
				m.clipboard = text
				pane.Grid().ClearSelection()
				m.setStatus(fmt.Sprintf("copied %d chars", len(text)))
			}
		}
		return
	case "shift+up":
		if pane != nil && pane.Grid() != nil {
			pane.Grid().ExtendSelectionUp()
		}
		return
	case "shift+down":
		if pane != nil && pane.Grid() != nil {
			pane.Grid().ExtendSelectionDown()
		}
		return
	case "shift+left":
		if pane != nil && pane.Grid() != nil {
			pane.Grid().ExtendSelectionLeft()
		}
		return
	case "shift+right":
		if pane != nil && pane.Grid() != nil {
			pane.Grid().ExtendSelectionRight()
		}
		return
	case "pgup":
		if pane != nil {
			pane.ScrollViewUp(10)
		}
		return
	case "pgdown":
		if pane != nil {
			pane.ScrollViewDown(10)
		}
		return
	}

	// Alt+digit: quick-SSH by host index.
	if s := msg.String(); len(s) == 5 && strings.HasPrefix(s, "alt+") && s[4] >= '1' && s[4] <= '9' {
		idx, _ := strconv.Atoi(s[4:])
		m.quickSSH(idx)
		return
	}

	if pane == nil {
		return
	}
	m.forwardKey(pane, msg)
}

// forwardKey translates a tea key into PTY bytes, letting the pane
// intercept plain typed commands on Enter.
func (m *Model) forwardKey(pane mux.Pane, msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return
		}
		for _, r := range msg.Runes {
			if cmd, intercepted := pane.ProcessInput(r); intercepted {
				m.handleIntercepted(cmd)
			}
		}
	case tea.KeySpace:
		if cmd, intercepted := pane.ProcessInput(' '); intercepted {
			m.handleIntercepted(cmd)
		}
	case tea.KeyEnter:
		if cmd, intercepted := pane.ProcessInput('\r'); intercepted {
			m.handleIntercepted(cmd)
		}
	case tea.KeyBackspace:
		pane.ProcessInput(0x7f)
	case tea.KeyCtrlC:
		pane.ProcessInput(0x03)
	default:
		if b := keyBytes(msg); len(b) > 0 {
			if err := pane.Write(b); err != nil {
				m.setError(err.Error())
			}
		}
	}
}

// keyBytes maps non-rune keys to their escape sequences.
func keyBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyTab:
		return []byte{'\t'}
	case tea.KeyShiftTab:
		return []byte("\x1b[Z")
	case tea.KeyEsc:
		return []byte{0x1b}
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	case tea.KeyHome:
		return []byte("\x1b[H")
	case tea.KeyEnd:
		return []byte("\x1b[F")
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	case tea.KeyCtrlD:
		return []byte{0x04}
	case tea.KeyCtrlZ:
		return []byte{0x1a}
	case tea.KeyCtrlL:
		return []byte{0x0c}
	case tea.KeyCtrlA:
		return []byte{0x01}
	case tea.KeyCtrlE:
		return []byte{0x05}
	case tea.KeyCtrlR:
		return []byte{0x12}
	case tea.KeyCtrlU:
		return []byte{0x15}
	case tea.KeyCtrlK:
		return []byte{0x0b}
	}
	return nil
}

func focusDirection(key string) mux.Direction {
	switch key {
	case "alt+up":
		return mux.DirUp
	case "alt+down":
		return mux.DirDown
	case "alt+left":
		return mux.DirLeft
	default:
		return mux.DirRight
	}
}

// quickSSH connects to the idx-th host (1-based) from the host list.
func (m *Model) quickSSH(idx int) {
	hosts := m.hosts.Hosts()
	if idx < 1 || idx > len(hosts) {
		m.setStatus(fmt.Sprintf("no host at slot %d", idx))
		return
	}
	m.connectHost(hosts[idx-1].ID)
}

// connectHost opens an SSH tab for a host; missing credentials route
// through the credential prompt.
func (m *Model) connectHost(id uint32) {
	if _, ok := m.hosts.GetCredentials(id); !ok {
		m.openSSHManagerCredEntry(id)
		return
	}
	ctx, err := m.hosts.BuildSSHContext(id)
	if err != nil {
		m.setError(err.Error())
		return
	}
	if err := m.mux.AddSSHTab("", ctx); err != nil {
		m.setError(err.Error())
		return
	}
	m.hosts.MarkConnected(id)
	m.mode = ModeNormal
}

// handleBrowserKey drives the remote file browser.
func (m *Model) handleBrowserKey(msg tea.KeyMsg) {
	if m.browser == nil {
		m.mode = ModeNormal
		return
	}
	switch msg.String() {
	case "esc", "q", "ctrl+o":
		m.browser = nil
		m.mode = ModeNormal
	case "up", "k":
		m.browser.MoveUp()
	case "down", "j":
		m.browser.MoveDown()
	case "backspace", "left", "h":
		if err := m.browser.GoUp(); err != nil {
			m.setError(err.Error())
		}
	case "enter", "right", "l":
		path, entered, err := m.browser.EnterSelected()
		if err != nil {
			m.setError(err.Error())
			return
		}
		if !entered && path != "" {
			m.openRemoteFile(m.browser.Ctx(), m.browser.Cwd(), path)
			m.browser = nil
			m.mode = ModeNormal
		}
	default:
		// Single printable runes refine the filter.
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && !msg.Alt {
			m.browser.SetFilter(m.browser.Filter() + string(msg.Runes))
		}
	}
}

// handleDashboardKey drives the health dashboard.
func (m *Model) handleDashboardKey(msg tea.KeyMsg) {
	if m.dash == nil {
		m.mode = ModeNormal
		return
	}
	switch msg.String() {
	case "esc", "q", "alt+h":
		if m.dash.Mode() == dashboard.ModeDetail {
			m.dash.ExitDetail()
			return
		}
		m.mode = ModeNormal
	case "up", "k":
		m.dash.SelectPrev()
	case "down", "j":
		m.dash.SelectNext()
	case "g":
		m.dash.SelectFirst()
	case "G":
		m.dash.SelectLast()
	case "enter":
		m.dash.EnterDetail()
	case "r":
		m.dash.Refresh()
	case "d":
		m.deployDaemonToSelected()
	case "x":
		m.stopDaemonOnSelected()
	}
}

// deployDaemonToSelected installs the metrics collector on the
// selected dashboard host.
func (m *Model) deployDaemonToSelected() {
	row, ok := m.dash.SelectedRow()
	if !ok {
		return
	}
	client, err := m.files.Client(row.Ctx)
	if err != nil {
		m.setError(fmt.Sprintf("deploy daemon: %v", err))
		return
	}
	if err := m.daemons.DeployToHost(client, row.HostID); err != nil {
		m.setError(fmt.Sprintf("deploy daemon: %v", err))
		return
	}
	m.setStatus("daemon deployed to " + row.Label)
}

func (m *Model) stopDaemonOnSelected() {
	row, ok := m.dash.SelectedRow()
	if !ok {
		return
	}
	client, err := m.files.Client(row.Ctx)
	if err != nil {
		m.setError(fmt.Sprintf("stop daemon: %v", err))
		return
	}
	if err := m.daemons.StopOnHost(client, row.HostID); err != nil {
		m.setError(fmt.Sprintf("stop daemon: %v", err))
		return
	}
	m.setStatus("daemon stopped on " + row.Label)
}

// handleMouse maps wheel scroll onto the focused pane's view.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	if m.mode != ModeNormal {
		return
	}
	pane := m.focusedPane()
	if pane == nil {
		return
	}
	switch msg.Type {
	case tea.MouseWheelUp:
		pane.ScrollViewUp(3)
	case tea.MouseWheelDown:
		pane.ScrollViewDown(3)
	}
}
