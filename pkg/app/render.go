package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ratterm/pkg/dashboard"
	"ratterm/pkg/docker"
	"ratterm/pkg/mux"
	"ratterm/pkg/sshmgr"
)

func (m *Model) View() string {
	if !m.ready || m.mux == nil {
		return "starting..."
	}

	var content string
	switch m.mode {
	case ModeFileBrowser:
		content = m.viewBrowser()
	case ModeHealthDashboard:
		content = m.viewDashboard()
	case ModePopup:
		content = m.viewPopup()
	default:
		content = m.viewPanes()
	}

	return m.viewTabs() + "\n" + content + "\n" + m.viewStatus()
}

// viewTabs renders the tab bar.
func (m *Model) viewTabs() string {
	var parts []string
	for i, t := range m.mux.Tabs() {
		label := fmt.Sprintf("%d:%s", i+1, t.Name)
		if i == m.mux.ActiveIndex() {
			parts = append(parts, m.theme.TabActive.Render(label))
		} else {
			parts = append(parts, m.theme.TabInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// viewStatus renders the bottom status line: mode, background process
// counters, and the transient message.
func (m *Model) viewStatus() string {
	left := fmt.Sprintf(" %s | procs %d running %d failed",
		m.modeLabel(), m.procs.RunningCount(), m.procs.ErrorCount())
	msg := m.status
	if msg == "" {
		if hint := m.quickConnectHint(); hint != "" {
			msg = "slots: " + hint
		}
	}
	style := m.theme.StatusBar
	if m.statusErr {
		style = m.theme.StatusError
	}
	line := left
	if msg != "" {
		line += " | " + msg
	}
	if pad := m.width - lipgloss.Width(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return style.Render(line)
}

func (m *Model) modeLabel() string {
	switch m.mode {
	case ModeFileBrowser:
		return "files"
	case ModeHealthDashboard:
		return "health"
	case ModePopup:
		return "menu"
	default:
		return "term"
	}
}

// viewPanes renders the active tab's pane grid.
func (m *Model) viewPanes() string {
	tab := m.mux.Active()
	if tab == nil {
		return ""
	}
	g := tab.Grid
	shapeCols, shapeRows := g.Shape()

	rows := make([]string, 0, shapeRows)
	idx := 0
	for r := 0; r < shapeRows; r++ {
		cols := make([]string, 0, shapeCols)
		for c := 0; c < shapeCols; c++ {
			if idx >= g.Count() {
				break
			}
			cols = append(cols, m.renderPane(g.Pane(idx), idx == g.FocusIndex()))
			idx++
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderPane draws one pane's grid cells, with cursor and selection
// applied for the focused pane.
func (m *Model) renderPane(p mux.Pane, focused bool) string {
	rows := p.ViewRows()
	grid := p.Grid()

	curX, curY := -1, -1
	if focused && grid != nil && grid.CursorVisible() {
		curX, curY = grid.Cursor()
	}

	var b strings.Builder
	for y, row := range rows {
		if y > 0 {
			b.WriteByte('\n')
		}
		cx := -1
		if y == curY {
			cx = curX
		}
		var sel func(int) bool
		if focused && grid != nil {
			yy := y
			sel = func(col int) bool { return grid.SelectionContains(col, yy) }
		}
		b.WriteString(renderRow(row, sel, cx))
	}
	return b.String()
}

// viewBrowser renders the remote file browser.
func (m *Model) viewBrowser() string {
	if m.browser == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.theme.PopupTitle.Render("remote: "+m.browser.Cwd()) + "\n")
	if f := m.browser.Filter(); f != "" {
		b.WriteString(m.theme.Dim.Render("filter: "+f) + "\n")
	}
	visible := m.browser.Visible()
	start, end := m.browser.Window()
	for i := start; i < end; i++ {
		e := visible[i]
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		line := fmt.Sprintf("  %-50s %8d", name, e.Size)
		if e.IsDir {
			line = fmt.Sprintf("  %-50s %8s", name, "")
		}
		if i == m.browser.Cursor() {
			line = m.theme.Selected.Render("> " + line[2:])
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(m.theme.Dim.Render("enter open  backspace up  esc close  type to filter"))
	return m.fitContent(b.String())
}

// viewDashboard renders the host health overview or detail.
func (m *Model) viewDashboard() string {
	if m.dash == nil {
		return ""
	}
	if m.dash.Mode() == dashboard.ModeDetail {
		return m.fitContent(m.viewDashboardDetail())
	}
	var b strings.Builder
	b.WriteString(m.theme.PopupTitle.Render("host health") + "\n")
	b.WriteString(m.theme.Dim.Render(fmt.Sprintf("  %-24s %6s %6s %6s  %s", "host", "cpu%", "mem%", "disk%", "updated")) + "\n")
	for i, row := range m.dash.Rows() {
		line := m.dashboardLine(row)
		if i == m.dash.Selected() {
			line = m.theme.Selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(m.theme.Dim.Render("enter detail  r refresh  d deploy daemon  x stop daemon  esc close"))
	return m.fitContent(b.String())
}

func (m *Model) dashboardLine(row dashboard.HostRow) string {
	if row.Err != "" {
		return fmt.Sprintf("%-24s %s", row.Label, m.theme.Error.Render(row.Err))
	}
	if row.Metrics == nil {
		return fmt.Sprintf("%-24s %s", row.Label, m.theme.Dim.Render("waiting..."))
	}
	mt := row.Metrics
	return fmt.Sprintf("%-24s %5.1f%% %5.1f%% %5.1f%%  %s",
		row.Label, mt.CPUUsagePercent(), mt.MemUsagePercent(), mt.DiskUsagePercent(),
		row.Updated.Format("15:04:05"))
}

func (m *Model) viewDashboardDetail() string {
	row, ok := m.dash.SelectedRow()
	if !ok {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.theme.PopupTitle.Render(row.Label) + "\n")
	if row.Metrics == nil {
		b.WriteString(m.theme.Dim.Render("no metrics yet"))
		return b.String()
	}
	mt := row.Metrics
	fmt.Fprintf(&b, "load     %.2f %.2f %.2f on %d cores (%.1f%%)\n",
		mt.CPULoad[0], mt.CPULoad[1], mt.CPULoad[2], mt.CPUCores, mt.CPUUsagePercent())
	fmt.Fprintf(&b, "memory   %d / %d MB (%.1f%%)\n",
		mt.MemTotalMB-mt.MemAvailMB, mt.MemTotalMB, mt.MemUsagePercent())
	if mt.SwapTotalMB > 0 {
		fmt.Fprintf(&b, "swap     %d / %d MB\n", mt.SwapUsedMB, mt.SwapTotalMB)
	}
	fmt.Fprintf(&b, "disk     %d / %d GB (%.1f%%)\n", mt.DiskUsedGB, mt.DiskTotalGB, mt.DiskUsagePercent())
	if mt.GPU != nil {
		fmt.Fprintf(&b, "gpu      %s %s: %.0f%%, %d/%d MB, %.0fC\n",
			mt.GPU.Type, mt.GPU.Name, mt.GPU.Usage, mt.GPU.MemUsedMB, mt.GPU.MemTotalMB, mt.GPU.TempC)
	}
	daemonState := "daemon: not deployed"
	if m.daemons.IsActive(row.HostID) {
		daemonState = "daemon: active"
	}
	b.WriteString(m.theme.Dim.Render(daemonState+"  |  esc back") + "\n")
	return b.String()
}

// viewPopup dispatches by popup kind and frames the result.
func (m *Model) viewPopup() string {
	var body string
	switch m.popup.kind {
	case popupSSH:
		body = m.viewSSHPopup()
	case popupDocker:
		body = m.viewDockerPopup()
	case popupAddon:
		body = m.viewAddonPopup()
	case popupMasterPass:
		body = m.viewMasterPass()
	case popupConfirm:
		body = m.viewConfirm()
	case popupLogs:
		body = m.viewLogs()
	}
	framed := m.theme.PopupBorder.Render(body)
	return m.fitContent(framed)
}

// fitContent pads/truncates a block to the content height so the
// status bar stays put.
func (m *Model) fitContent(s string) string {
	lines := strings.Split(s, "\n")
	h := m.contentHeight()
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m *Model) viewConfirm() string {
	return m.theme.PopupTitle.Render(m.popup.confirm.prompt) + "\n\n" +
		m.theme.Dim.Render("y confirm  n cancel")
}

func (m *Model) viewMasterPass() string {
	p := &m.popup.master
	var b strings.Builder
	b.WriteString(m.theme.PopupTitle.Render("unlock credentials") + "\n\n")
	b.WriteString(p.input.View() + "\n")
	if p.err != "" {
		b.WriteString(m.theme.Error.Render(p.err) + "\n")
	}
	b.WriteString(m.theme.Dim.Render("enter unlock  esc skip (hosts stay visible)"))
	return b.String()
}

func (m *Model) viewLogs() string {
	b := m.fetchers.logBuffer
	var sb strings.Builder
	title := "container logs"
	if s := m.fetchers.logStream; s != nil {
		title += ": " + s.Container().Name
	}
	if b.Paused() {
		title += " [paused]"
	}
	if f := b.Filter(); f != "" {
		title += " filter=" + f
	}
	sb.WriteString(m.theme.PopupTitle.Render(title) + "\n")
	height := m.contentHeight() - 4
	for _, e := range b.Visible(height) {
		prefix := ""
		switch e.Source {
		case docker.SourceStderr:
			prefix = m.theme.Error.Render("! ")
		case docker.SourceSystem:
			prefix = m.theme.Dim.Render("* ")
		default:
			prefix = "  "
		}
		sb.WriteString(prefix + e.Message + "\n")
	}
	sb.WriteString(m.theme.Dim.Render("p pause  / clear filter  x stop stream  esc close"))
	return sb.String()
}

// viewSSHPopup renders the SSH manager by mode.
func (m *Model) viewSSHPopup() string {
	p := &m.popup.ssh
	var b strings.Builder
	switch p.mode {
	case sshList:
		b.WriteString(m.theme.PopupTitle.Render("ssh hosts") + "\n")
		hosts := m.hosts.Hosts()
		if len(hosts) == 0 {
			b.WriteString(m.theme.Dim.Render("no hosts yet") + "\n")
		}
		for i, h := range hosts {
			line := fmt.Sprintf("%-28s %-21s %s", h.Label(), fmt.Sprintf("%s:%d", h.Hostname, h.Port), h.Status.String())
			if _, ok := m.hosts.GetCredentials(h.ID); ok {
				line += " *"
			}
			if i == p.selected {
				b.WriteString(m.theme.Selected.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
		b.WriteString(m.theme.Dim.Render("enter connect  s scan  a add  e rename  d remove  i import ~/.ssh/config  esc close"))
	case sshScanning, sshAuthScanning:
		b.WriteString(m.theme.PopupTitle.Render("scanning") + "\n")
		b.WriteString(p.scanStatus + "\n")
		for _, h := range p.scanHits {
			b.WriteString(fmt.Sprintf("  %s:%d\n", h.IP, h.Port))
		}
		for _, h := range p.authHits {
			b.WriteString(m.theme.Success.Render(fmt.Sprintf("  %s:%d auth ok", h.IP, h.Port)) + "\n")
		}
		b.WriteString(m.theme.Dim.Render("esc cancel"))
	case sshCredEntry:
		host, _ := m.hosts.Get(p.credHost)
		b.WriteString(m.theme.PopupTitle.Render("credentials for "+host.Label()) + "\n\n")
		b.WriteString(p.username.View() + "\n")
		b.WriteString(p.password.View() + "\n")
		check := "[ ]"
		if p.saveBox {
			check = "[x]"
		}
		saveLine := check + " save credentials"
		if p.field == 2 {
			saveLine = m.theme.Selected.Render(saveLine)
		}
		b.WriteString(saveLine + "\n")
		b.WriteString(m.theme.Dim.Render("tab next field  space toggle  enter connect  esc back"))
	case sshAddHost:
		b.WriteString(m.theme.PopupTitle.Render("add host") + "\n\n")
		b.WriteString(p.text.View() + "\n")
		b.WriteString(m.theme.Dim.Render("enter add  esc back"))
	case sshEditName:
		b.WriteString(m.theme.PopupTitle.Render("rename host") + "\n\n")
		b.WriteString(p.text.View() + "\n")
		b.WriteString(m.theme.Dim.Render("enter save  esc back"))
	case sshScanCredEntry:
		b.WriteString(m.theme.PopupTitle.Render("scan subnet") + "\n\n")
		b.WriteString(p.text.View() + "\n")
		b.WriteString(p.username.View() + "\n")
		b.WriteString(p.password.View() + "\n")
		b.WriteString(m.theme.Dim.Render("tab next field  enter scan  esc back"))
	case sshConnecting:
		b.WriteString(m.theme.PopupTitle.Render("connecting...") + "\n")
	}
	return b.String()
}

// viewDockerPopup renders the docker manager by mode.
func (m *Model) viewDockerPopup() string {
	p := &m.popup.docker
	var b strings.Builder
	host := m.dockerState.SelectedHost.Label()
	switch p.mode {
	case dockerDiscovering:
		b.WriteString(m.theme.PopupTitle.Render("docker @ "+host) + "\n")
		b.WriteString("discovering...\n")
	case dockerList:
		b.WriteString(m.theme.PopupTitle.Render("docker @ "+host) + "\n")
		if p.disc.Availability != docker.Available {
			b.WriteString(m.theme.Error.Render(p.disc.Availability.String()) + "\n")
			if p.disc.Err != "" {
				b.WriteString(m.theme.Dim.Render(p.disc.Err) + "\n")
			}
			b.WriteString(m.theme.Dim.Render("h switch host  r retry  esc close"))
			return b.String()
		}
		b.WriteString(m.dockerSection("running", sectionRunning, containerLines(p.disc.Running)))
		b.WriteString(m.dockerSection("stopped", sectionStopped, containerLines(p.disc.Stopped)))
		b.WriteString(m.dockerSection("images", sectionImages, imageLines(p.disc.Images)))
		b.WriteString(m.theme.Dim.Render("tab section  enter open  s start/stop  x remove  l logs  n new  h host  1-9 slot  esc close"))
	case dockerHostSelection:
		b.WriteString(m.theme.PopupTitle.Render("docker host") + "\n")
		rows := append([]string{"local"}, hostLabels(m.hosts.Hosts())...)
		for i, label := range rows {
			if i == p.hostSel {
				b.WriteString(m.theme.Selected.Render("> "+label) + "\n")
			} else {
				b.WriteString("  " + label + "\n")
			}
		}
		b.WriteString(m.theme.Dim.Render("enter select  esc back"))
	case dockerHostCredentials:
		b.WriteString(m.theme.Error.Render("host has no saved credentials") + "\n")
		b.WriteString(m.theme.Dim.Render("set them in the SSH manager (alt+u), esc back"))
	case dockerRunOptions:
		b.WriteString(m.theme.PopupTitle.Render("run "+p.runImage.Ref()) + "\n\n")
		options := []string{"run with defaults", "configure volumes and command"}
		for i, o := range options {
			if i == p.runSel {
				b.WriteString(m.theme.Selected.Render("> "+o) + "\n")
			} else {
				b.WriteString("  " + o + "\n")
			}
		}
		b.WriteString(m.theme.Dim.Render("enter choose  esc back"))
	case dockerConfirming, dockerCreateConfirm:
		b.WriteString(m.theme.PopupTitle.Render(p.confirmText) + "\n\n")
		b.WriteString(m.theme.Dim.Render("y confirm  n cancel"))
	case dockerConnecting:
		b.WriteString("connecting...\n")
	case dockerSearchingHub:
		b.WriteString(m.theme.PopupTitle.Render("search docker hub") + "\n\n")
		b.WriteString(p.text.View() + "\n")
		b.WriteString(m.theme.Dim.Render("enter search  esc back"))
	case dockerSearchResults:
		b.WriteString(m.theme.PopupTitle.Render("results") + "\n")
		for i, hit := range p.hubResults {
			official := ""
			if hit.Official {
				official = " [official]"
			}
			line := fmt.Sprintf("%-30s %5d%s %s", hit.Name, hit.Stars, official, hit.Description)
			if i == p.hubSel {
				b.WriteString(m.theme.Selected.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
		b.WriteString(m.theme.Dim.Render("enter pick  esc back"))
	case dockerCheckingImage:
		b.WriteString("checking image " + p.wizImage + "...\n")
	case dockerDownloadingImage:
		b.WriteString("pulling " + p.wizImage + "...\n")
		b.WriteString(m.theme.Dim.Render("esc hide (pull continues)"))
	case dockerVolumeHostPath, dockerVolumeContainerPath, dockerStartupCommand:
		titles := map[dockerMode]string{
			dockerVolumeHostPath:      "volume: host path",
			dockerVolumeContainerPath: "volume: container path",
			dockerStartupCommand:      "startup command",
		}
		b.WriteString(m.theme.PopupTitle.Render(titles[p.mode]) + "\n\n")
		b.WriteString(p.text.View() + "\n")
		b.WriteString(m.theme.Dim.Render("enter next  esc cancel"))
	case dockerVolumeConfirm:
		b.WriteString(m.theme.PopupTitle.Render(fmt.Sprintf("mount %s -> %s?", p.wizVolume.HostPath, p.wizVolume.ContainerPath)) + "\n\n")
		b.WriteString(m.theme.Dim.Render("y keep  n drop"))
	case dockerCreationError:
		b.WriteString(m.theme.Error.Render("creation failed") + "\n")
		b.WriteString(p.wizErr + "\n")
		b.WriteString(m.theme.Dim.Render("enter back"))
	}
	return b.String()
}

func (m *Model) dockerSection(title string, s dockerSection, lines []string) string {
	p := &m.popup.docker
	var b strings.Builder
	header := title
	if p.section == s {
		header = m.theme.Selected.Render(title)
	} else {
		header = m.theme.Dim.Render(title)
	}
	b.WriteString(header + "\n")
	if len(lines) == 0 {
		b.WriteString(m.theme.Dim.Render("  (none)") + "\n")
	}
	for i, line := range lines {
		if p.section == s && i == p.selected {
			b.WriteString(m.theme.Selected.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func containerLines(cts []docker.Container) []string {
	out := make([]string, len(cts))
	for i, c := range cts {
		out[i] = fmt.Sprintf("%-24s %-28s %s", c.Name, c.Image, c.State)
	}
	return out
}

func imageLines(imgs []docker.Image) []string {
	out := make([]string, len(imgs))
	for i, im := range imgs {
		out[i] = im.Ref()
	}
	return out
}

func hostLabels(hosts []sshmgr.SSHHost) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Label()
	}
	return out
}

// viewAddonPopup renders the addon manager by mode.
func (m *Model) viewAddonPopup() string {
	p := &m.popup.addon
	var b strings.Builder
	switch p.mode {
	case addonList:
		b.WriteString(m.theme.PopupTitle.Render("addons") + "\n")
		if len(m.addonState.available) == 0 {
			b.WriteString(m.theme.Dim.Render("catalog empty; r to refetch") + "\n")
		}
		for i, a := range m.addonState.available {
			mark := " "
			if m.addonState.state.IsInstalled(a.ID) {
				mark = m.theme.Success.Render("*")
			}
			line := fmt.Sprintf("%s %-16s %s", mark, a.Name, a.Description)
			if i == p.selected {
				b.WriteString(m.theme.Selected.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
		b.WriteString(m.theme.Dim.Render("enter install/uninstall  r refresh  esc close"))
	case addonFetching:
		b.WriteString("fetching...\n")
		b.WriteString(m.theme.Dim.Render("esc back"))
	case addonInstalling:
		b.WriteString("installing " + p.target.Name + "...\n")
		b.WriteString(m.theme.Dim.Render("esc hide (install continues)"))
	case addonConfirmUninstall:
		b.WriteString(m.theme.PopupTitle.Render("uninstall "+p.target.Name+"?") + "\n\n")
		b.WriteString(m.theme.Dim.Render("y confirm  n cancel"))
	case addonError:
		b.WriteString(m.theme.Error.Render("addon error") + "\n")
		b.WriteString(p.errText + "\n")
		b.WriteString(m.theme.Dim.Render("enter back"))
	}
	return b.String()
}

// quickConnectHint surfaces the docker quick slots in the status area
// when populated.
func (m *Model) quickConnectHint() string {
	var parts []string
	for i := 1; i <= docker.MaxQuickConnect; i++ {
		if name, ok := m.dockerState.Slot(i); ok {
			parts = append(parts, fmt.Sprintf("%d=%s", i, name))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ")
}
