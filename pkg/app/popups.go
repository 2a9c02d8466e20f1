package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"ratterm/pkg/addons"
	"ratterm/pkg/docker"
	"ratterm/pkg/sshmgr"
)

// popupKind selects which manager owns the popup surface.
type popupKind int

const (
	popupNone popupKind = iota
	popupSSH
	popupDocker
	popupAddon
	popupMasterPass
	popupConfirm
	popupLogs
)

type popup struct {
	kind    popupKind
	ssh     sshPopup
	docker  dockerPopup
	addon   addonPopup
	master  masterPopup
	confirm confirmPopup
}

func (m *Model) closePopup() {
	m.popup = popup{}
	m.mode = ModeNormal
}

// handlePopupKey dispatches by popup kind. Esc backs out one level;
// from the top level it closes the popup.
func (m *Model) handlePopupKey(msg tea.KeyMsg) {
	switch m.popup.kind {
	case popupSSH:
		m.handleSSHPopupKey(msg)
	case popupDocker:
		m.handleDockerPopupKey(msg)
	case popupAddon:
		m.handleAddonPopupKey(msg)
	case popupMasterPass:
		m.handleMasterPassKey(msg)
	case popupConfirm:
		m.handleConfirmKey(msg)
	case popupLogs:
		m.handleLogsKey(msg)
	default:
		m.closePopup()
	}
}

// ---- confirm dialog ----

type confirmPopup struct {
	prompt string
	onYes  func(*Model)
}

func (m *Model) openConfirm(prompt string, onYes func(*Model)) {
	m.popup = popup{kind: popupConfirm, confirm: confirmPopup{prompt: prompt, onYes: onYes}}
	m.mode = ModePopup
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "y", "Y", "enter":
		onYes := m.popup.confirm.onYes
		m.closePopup()
		if onYes != nil {
			onYes(m)
		}
	case "n", "N", "esc", "q":
		m.closePopup()
	}
}

// ---- master password prompt ----

type masterPopup struct {
	input textinput.Model
	err   string
}

func (m *Model) openMasterPassPrompt() {
	ti := textinput.New()
	ti.Placeholder = "master password"
	ti.EchoMode = textinput.EchoPassword
	ti.Focus()
	m.popup = popup{kind: popupMasterPass, master: masterPopup{input: ti}}
	m.mode = ModePopup
}

func (m *Model) handleMasterPassKey(msg tea.KeyMsg) {
	p := &m.popup.master
	switch msg.String() {
	case "esc":
		// Hosts stay visible, credentials stay sealed.
		m.closePopup()
		return
	case "enter":
		if err := m.storage.SetMasterPassword(p.input.Value()); err != nil {
			p.err = err.Error()
			return
		}
		hosts, err := m.storage.Load()
		if err != nil {
			p.err = err.Error()
			return
		}
		m.hosts = hosts
		m.setStatus("credentials unlocked")
		m.closePopup()
		return
	}
	p.input, _ = p.input.Update(msg)
}

// ---- docker log view ----

func (m *Model) openLogView() {
	m.popup = popup{kind: popupLogs}
	m.mode = ModePopup
}

func (m *Model) handleLogsKey(msg tea.KeyMsg) {
	b := m.fetchers.logBuffer
	switch msg.String() {
	case "esc", "q", "alt+l":
		m.closePopup()
	case "up", "k":
		b.ScrollUp(1)
	case "down", "j":
		b.ScrollDown(1)
	case "pgup":
		b.ScrollUp(10)
	case "pgdown":
		b.ScrollDown(10)
	case "G", "end":
		b.ScrollToBottom()
	case "p", " ":
		b.SetPaused(!b.Paused())
	case "/":
		b.SetFilter("")
	case "backspace":
		if f := b.Filter(); f != "" {
			b.SetFilter(f[:len(f)-1])
		}
	case "x":
		if m.fetchers.logStream != nil {
			m.fetchers.logStream.Stop()
			m.fetchers.logStream = nil
			m.setStatus("log stream stopped")
		}
	default:
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && !msg.Alt {
			b.SetFilter(b.Filter() + string(msg.Runes))
		}
	}
}

// ---- SSH manager ----

type sshMode int

const (
	sshList sshMode = iota
	sshScanning
	sshAuthScanning
	sshCredEntry
	sshConnecting
	sshAddHost
	sshScanCredEntry
	sshEditName
)

type sshPopup struct {
	mode     sshMode
	selected int

	// credential entry
	credHost uint32
	username textinput.Model
	password textinput.Model
	saveBox  bool
	field    int // 0=username 1=password 2=save

	// add host / edit name / scan subnet
	text textinput.Model

	// scanning progress
	scanStatus string
	scanHits   []sshmgr.FoundHost
	authHits   []sshmgr.FoundHost
}

func (m *Model) openSSHManager() {
	m.popup = popup{kind: popupSSH}
	m.mode = ModePopup
}

func (m *Model) openSSHManagerCredEntry(hostID uint32) {
	m.openSSHManager()
	m.startCredEntry(hostID)
}

func (m *Model) startCredEntry(hostID uint32) {
	p := &m.popup.ssh
	p.mode = sshCredEntry
	p.credHost = hostID
	p.username = textinput.New()
	p.username.Placeholder = "username"
	p.username.Focus()
	p.password = textinput.New()
	p.password.Placeholder = "password"
	p.password.EchoMode = textinput.EchoPassword
	p.saveBox = false
	p.field = 0
	if creds, ok := m.hosts.GetCredentials(hostID); ok {
		p.username.SetValue(creds.Username)
	}
}

func (m *Model) handleSSHPopupKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	switch p.mode {
	case sshList:
		m.handleSSHListKey(msg)
	case sshScanning, sshAuthScanning:
		if msg.String() == "esc" || msg.String() == "c" {
			if m.scanner != nil {
				m.scanner.Cancel()
			}
		}
	case sshCredEntry:
		m.handleCredEntryKey(msg)
	case sshAddHost:
		m.handleAddHostKey(msg)
	case sshScanCredEntry:
		m.handleScanCredKey(msg)
	case sshEditName:
		m.handleEditNameKey(msg)
	case sshConnecting:
		if msg.String() == "esc" {
			p.mode = sshList
		}
	}
}

func (m *Model) handleSSHListKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	hosts := m.hosts.Hosts()
	switch msg.String() {
	case "esc", "q":
		m.closePopup()
	case "up", "k":
		if p.selected > 0 {
			p.selected--
		}
	case "down", "j":
		if p.selected < len(hosts)-1 {
			p.selected++
		}
	case "s":
		p.text = textinput.New()
		p.text.Placeholder = "subnet (e.g. 192.168.1.0/24, empty = auto)"
		p.text.Focus()
		p.username = textinput.New()
		p.username.Placeholder = "username (empty = reachability only)"
		p.password = textinput.New()
		p.password.Placeholder = "password"
		p.password.EchoMode = textinput.EchoPassword
		p.field = 0
		p.mode = sshScanCredEntry
	case "a":
		p.text = textinput.New()
		p.text.Placeholder = "host[:port]"
		p.text.Focus()
		p.mode = sshAddHost
	case "e":
		if p.selected < len(hosts) {
			p.text = textinput.New()
			p.text.SetValue(hosts[p.selected].DisplayName)
			p.text.Focus()
			p.mode = sshEditName
		}
	case "d":
		if p.selected < len(hosts) {
			id := hosts[p.selected].ID
			label := hosts[p.selected].Label()
			m.openConfirm("Remove host "+label+"?", func(mm *Model) {
				mm.hosts.Remove(id)
				mm.openSSHManager()
			})
		}
	case "i":
		m.importSSHConfig()
	case "enter":
		if p.selected < len(hosts) {
			h := hosts[p.selected]
			if _, ok := m.hosts.GetCredentials(h.ID); ok {
				p.mode = sshConnecting
				m.connectHost(h.ID)
			} else {
				m.startCredEntry(h.ID)
			}
		}
	}
}

// importSSHConfig pulls literal Host entries from ~/.ssh/config.
func (m *Model) importSSHConfig() {
	entries, err := sshmgr.LoadSSHConfigDefault()
	if err != nil {
		m.setError(fmt.Sprintf("ssh config: %v", err))
		return
	}
	added := sshmgr.ImportEntries(m.hosts, entries)
	m.setStatus(fmt.Sprintf("imported %d hosts from ssh config", added))
}

func (m *Model) handleCredEntryKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	switch msg.String() {
	case "esc":
		p.mode = sshList
		return
	case "tab", "down":
		p.field = (p.field + 1) % 3
		m.syncCredFocus()
		return
	case "shift+tab", "up":
		p.field = (p.field + 2) % 3
		m.syncCredFocus()
		return
	case " ":
		if p.field == 2 {
			p.saveBox = !p.saveBox
			return
		}
	case "enter":
		creds := sshmgr.Credentials{
			Username: strings.TrimSpace(p.username.Value()),
			Password: p.password.Value(),
			Save:     p.saveBox,
		}
		if creds.Username == "" {
			m.setError("username required")
			return
		}
		m.hosts.SetCredentials(p.credHost, creds)
		if p.saveBox {
			if err := m.storage.Save(m.hosts); err != nil {
				m.setError(err.Error())
			}
		}
		p.mode = sshConnecting
		m.connectHost(p.credHost)
		return
	}
	switch p.field {
	case 0:
		p.username, _ = p.username.Update(msg)
	case 1:
		p.password, _ = p.password.Update(msg)
	}
}

func (m *Model) syncCredFocus() {
	p := &m.popup.ssh
	p.username.Blur()
	p.password.Blur()
	switch p.field {
	case 0:
		p.username.Focus()
	case 1:
		p.password.Focus()
	}
}

func (m *Model) handleAddHostKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	switch msg.String() {
	case "esc":
		p.mode = sshList
		return
	case "enter":
		target := strings.TrimSpace(p.text.Value())
		if target == "" {
			return
		}
		host, port := target, 22
		if h, pstr, ok := strings.Cut(target, ":"); ok {
			if n, err := strconv.Atoi(pstr); err == nil && n > 0 && n < 65536 {
				host, port = h, n
			}
		}
		id := m.hosts.Add(host, port)
		m.setStatus(fmt.Sprintf("added %s (#%d)", host, id))
		p.mode = sshList
		return
	}
	p.text, _ = p.text.Update(msg)
}

func (m *Model) handleEditNameKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	hosts := m.hosts.Hosts()
	switch msg.String() {
	case "esc":
		p.mode = sshList
		return
	case "enter":
		if p.selected < len(hosts) {
			m.hosts.SetDisplayName(hosts[p.selected].ID, strings.TrimSpace(p.text.Value()))
		}
		p.mode = sshList
		return
	}
	p.text, _ = p.text.Update(msg)
}

// handleScanCredKey is the scan prompt: subnet plus optional
// credentials. Tab cycles the fields; Enter starts a reachability
// scan, or an authenticated scan when a username is present.
func (m *Model) handleScanCredKey(msg tea.KeyMsg) {
	p := &m.popup.ssh
	switch msg.String() {
	case "esc":
		p.mode = sshList
		return
	case "tab", "down":
		p.field = (p.field + 1) % 3
		m.syncScanFocus()
		return
	case "shift+tab", "up":
		p.field = (p.field + 2) % 3
		m.syncScanFocus()
		return
	case "enter":
		subnet := strings.TrimSpace(p.text.Value())
		if subnet == "" {
			auto, err := sshmgr.PrimarySubnet()
			if err != nil {
				m.setError(fmt.Sprintf("detect subnet: %v", err))
				return
			}
			subnet = auto
		}
		var sc *sshmgr.Scanner
		var err error
		if user := strings.TrimSpace(p.username.Value()); user != "" {
			sc, err = sshmgr.NewAuthenticatedScan(subnet, user, p.password.Value())
			p.mode = sshAuthScanning
		} else {
			sc, err = sshmgr.NewReachabilityScan(subnet)
			p.mode = sshScanning
		}
		if err != nil {
			m.setError(err.Error())
			p.mode = sshScanCredEntry
			return
		}
		m.scanner = sc
		p.scanHits = nil
		p.authHits = nil
		p.scanStatus = "scanning " + subnet
		return
	}
	switch p.field {
	case 0:
		p.text, _ = p.text.Update(msg)
	case 1:
		p.username, _ = p.username.Update(msg)
	case 2:
		p.password, _ = p.password.Update(msg)
	}
}

func (m *Model) syncScanFocus() {
	p := &m.popup.ssh
	p.text.Blur()
	p.username.Blur()
	p.password.Blur()
	switch p.field {
	case 0:
		p.text.Focus()
	case 1:
		p.username.Focus()
	case 2:
		p.password.Focus()
	}
}

// applyScanEvent folds scanner progress into the popup and the host
// list.
func (m *Model) applyScanEvent(ev sshmgr.ScanEvent) {
	p := &m.popup.ssh
	switch ev.Kind {
	case sshmgr.EventProgress:
		p.scanStatus = fmt.Sprintf("scanned %d/%d", ev.Scanned, ev.Total)
	case sshmgr.EventHostFound:
		p.scanHits = append(p.scanHits, ev.Host)
	case sshmgr.EventComplete:
		for _, h := range ev.Hosts {
			m.hosts.Add(h.IP, h.Port)
		}
		p.scanStatus = fmt.Sprintf("scan complete: %d hosts", len(ev.Hosts))
		if m.popup.kind == popupSSH {
			p.mode = sshList
		}
	case sshmgr.EventAuthProgress:
		p.scanStatus = fmt.Sprintf("auth %d ok / %d failed", ev.Succeeded, ev.Failed)
	case sshmgr.EventAuthSuccess:
		p.authHits = append(p.authHits, ev.Host)
	case sshmgr.EventAuthComplete:
		p.scanStatus = fmt.Sprintf("auth complete: %d hosts", len(ev.Hosts))
		if m.popup.kind == popupSSH {
			p.mode = sshList
		}
	case sshmgr.EventError:
		m.setError(fmt.Sprintf("scan: %v", ev.Err))
		if m.popup.kind == popupSSH {
			p.mode = sshList
		}
	case sshmgr.EventCancelled:
		p.scanStatus = "scan cancelled"
		if m.popup.kind == popupSSH {
			p.mode = sshList
		}
	}
}

// ---- docker manager ----

type dockerMode int

const (
	dockerDiscovering dockerMode = iota
	dockerList
	dockerRunOptions
	dockerConfirming
	dockerConnecting
	dockerHostSelection
	dockerHostCredentials
	// container creation wizard
	dockerSearchingHub
	dockerSearchResults
	dockerCheckingImage
	dockerDownloadingImage
	dockerVolumeHostPath
	dockerVolumeContainerPath
	dockerVolumeConfirm
	dockerStartupCommand
	dockerCreateConfirm
	dockerCreationError
)

// dockerSection indexes the three list sections.
type dockerSection int

const (
	sectionRunning dockerSection = iota
	sectionStopped
	sectionImages
)

type dockerPopup struct {
	mode     dockerMode
	client   *docker.Client
	disc     docker.Discovery
	section  dockerSection
	selected int

	// host selection
	hostSel int

	// run options for an image
	runImage docker.Image
	runOpts  docker.RunOptions
	runSel   int

	// creation wizard
	text       textinput.Model
	hubResults []docker.HubImage
	hubSel     int
	wizImage   string
	wizVolume  docker.VolumeMount
	wizErr     string

	confirmText string
	onConfirm   func(*Model)
}

// dockerRunner builds the Runner for the docker state's selected host.
func (m *Model) dockerRunner(h docker.Host) (docker.Runner, error) {
	if !h.Remote {
		return docker.LocalRunner{}, nil
	}
	ctx, err := m.hosts.BuildSSHContext(h.HostID)
	if err != nil {
		return nil, err
	}
	client, err := m.files.Client(ctx)
	if err != nil {
		return nil, err
	}
	return docker.ExecRunner{Exec: client}, nil
}

func (m *Model) openDockerManager() {
	m.popup = popup{kind: popupDocker}
	m.mode = ModePopup
	m.startDockerDiscovery(m.dockerState.SelectedHost)
}

// startDockerDiscovery sweeps host on a worker goroutine; the result
// lands through the pull channel pattern used elsewhere.
func (m *Model) startDockerDiscovery(h docker.Host) {
	p := &m.popup.docker
	p.mode = dockerDiscovering
	runner, err := m.dockerRunner(h)
	if err != nil {
		p.disc = docker.Discovery{Availability: docker.ProbeError, Err: err.Error()}
		p.mode = dockerList
		return
	}
	p.client = docker.NewClient(h, runner)
	results := make(chan docker.Discovery, 1)
	go func(c *docker.Client) { results <- c.Discover() }(p.client)
	m.fetchers.discovery = results
}

func (m *Model) handleDockerPopupKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch p.mode {
	case dockerDiscovering, dockerCheckingImage, dockerDownloadingImage, dockerConnecting:
		if msg.String() == "esc" {
			p.mode = dockerList
		}
	case dockerList:
		m.handleDockerListKey(msg)
	case dockerHostSelection:
		m.handleDockerHostKey(msg)
	case dockerRunOptions:
		m.handleDockerRunOptionsKey(msg)
	case dockerConfirming, dockerCreateConfirm:
		m.handleDockerConfirmKey(msg)
	case dockerSearchingHub:
		m.handleDockerSearchKey(msg)
	case dockerSearchResults:
		m.handleDockerSearchResultsKey(msg)
	case dockerVolumeHostPath, dockerVolumeContainerPath, dockerStartupCommand:
		m.handleDockerWizardTextKey(msg)
	case dockerVolumeConfirm:
		m.handleDockerVolumeConfirmKey(msg)
	case dockerCreationError:
		if msg.String() == "esc" || msg.String() == "enter" {
			p.mode = dockerList
		}
	}
}

// sectionItems returns the item count of the active section.
func (p *dockerPopup) sectionItems() int {
	switch p.section {
	case sectionRunning:
		return len(p.disc.Running)
	case sectionStopped:
		return len(p.disc.Stopped)
	default:
		return len(p.disc.Images)
	}
}

func (m *Model) handleDockerListKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "esc", "q":
		m.closePopup()
	case "tab":
		p.section = (p.section + 1) % 3
		p.selected = 0
	case "up", "k":
		if p.selected > 0 {
			p.selected--
		}
	case "down", "j":
		if p.selected < p.sectionItems()-1 {
			p.selected++
		}
	case "r":
		m.startDockerDiscovery(m.dockerState.SelectedHost)
	case "h":
		p.hostSel = 0
		p.mode = dockerHostSelection
	case "n":
		p.text = textinput.New()
		p.text.Placeholder = "search docker hub"
		p.text.Focus()
		p.mode = dockerSearchingHub
	case "l":
		if p.section == sectionRunning && p.selected < len(p.disc.Running) {
			m.startLogStream(p.disc.Running[p.selected])
		}
	case "s":
		m.dockerStopStart()
	case "x":
		m.dockerRemoveSelected()
	case "enter":
		m.dockerActivate()
	default:
		// Digit keys bind quick-connect slots to the selected container.
		if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if ct, ok := p.selectedContainer(); ok {
				slot, _ := strconv.Atoi(s)
				m.dockerState.SetSlot(slot, ct.Name)
				m.setStatus(fmt.Sprintf("slot %d -> %s", slot, ct.Name))
			}
		}
	}
}

func (p *dockerPopup) selectedContainer() (docker.Container, bool) {
	switch p.section {
	case sectionRunning:
		if p.selected < len(p.disc.Running) {
			return p.disc.Running[p.selected], true
		}
	case sectionStopped:
		if p.selected < len(p.disc.Stopped) {
			return p.disc.Stopped[p.selected], true
		}
	}
	return docker.Container{}, false
}

// dockerActivate is Enter on a list row: exec into running, start+exec
// stopped, run-options for an image.
func (m *Model) dockerActivate() {
	p := &m.popup.docker
	switch p.section {
	case sectionRunning:
		if ct, ok := p.selectedContainer(); ok {
			m.execIntoContainer(docker.ExecCommand(ct.ID, m.dockerState.DefaultShell), ct.Name)
		}
	case sectionStopped:
		if ct, ok := p.selectedContainer(); ok {
			m.execIntoContainer(docker.StartExecCommand(ct.ID, m.dockerState.DefaultShell), ct.Name)
		}
	case sectionImages:
		if p.selected < len(p.disc.Images) {
			p.runImage = p.disc.Images[p.selected]
			p.runOpts = docker.RunOptions{}
			p.runSel = 0
			p.mode = dockerRunOptions
		}
	}
}

// execIntoContainer opens the docker command in a tab: local command
// tab, or an SSH tab running the equivalent command on a remote host.
func (m *Model) execIntoContainer(command, name string) {
	h := m.dockerState.SelectedHost
	var err error
	if h.Remote {
		ctx, cerr := m.hosts.BuildSSHContext(h.HostID)
		if cerr != nil {
			m.setError(cerr.Error())
			return
		}
		err = m.mux.AddSSHCommandTab(name, ctx, command)
	} else {
		err = m.mux.AddCommandTab(name, command)
	}
	if err != nil {
		m.setError(err.Error())
		return
	}
	m.closePopup()
}

func (m *Model) dockerStopStart() {
	p := &m.popup.docker
	ct, ok := p.selectedContainer()
	if !ok {
		return
	}
	var err error
	if ct.Running() {
		err = p.client.StopContainer(ct.ID)
	} else {
		err = p.client.StartContainer(ct.ID)
	}
	if err != nil {
		m.setError(err.Error())
		return
	}
	m.startDockerDiscovery(m.dockerState.SelectedHost)
}

func (m *Model) dockerRemoveSelected() {
	p := &m.popup.docker
	if p.section == sectionImages {
		if p.selected < len(p.disc.Images) {
			ref := p.disc.Images[p.selected].Ref()
			p.confirmText = "Remove image " + ref + "?"
			p.onConfirm = func(mm *Model) {
				if err := mm.popup.docker.client.RemoveImage(ref); err != nil {
					mm.setError(err.Error())
				}
				mm.startDockerDiscovery(mm.dockerState.SelectedHost)
			}
			p.mode = dockerConfirming
		}
		return
	}
	if ct, ok := p.selectedContainer(); ok {
		p.confirmText = "Remove container " + ct.Name + "?"
		p.onConfirm = func(mm *Model) {
			if err := mm.popup.docker.client.RemoveContainer(ct.ID); err != nil {
				mm.setError(err.Error())
			}
			mm.startDockerDiscovery(mm.dockerState.SelectedHost)
		}
		p.mode = dockerConfirming
	}
}

func (m *Model) handleDockerConfirmKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "y", "Y", "enter":
		onConfirm := p.onConfirm
		p.onConfirm = nil
		if p.mode == dockerCreateConfirm {
			m.dockerRunWizardImage()
			return
		}
		p.mode = dockerList
		if onConfirm != nil {
			onConfirm(m)
		}
	case "n", "N", "esc":
		p.onConfirm = nil
		p.mode = dockerList
	}
}

// handleDockerHostKey picks local or one of the SSH hosts as the
// docker host.
func (m *Model) handleDockerHostKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	hosts := m.hosts.Hosts()
	total := len(hosts) + 1 // slot 0 is local
	switch msg.String() {
	case "esc":
		p.mode = dockerList
	case "up", "k":
		if p.hostSel > 0 {
			p.hostSel--
		}
	case "down", "j":
		if p.hostSel < total-1 {
			p.hostSel++
		}
	case "enter":
		if p.hostSel == 0 {
			m.dockerState.SelectedHost = docker.LocalHost()
		} else {
			h := hosts[p.hostSel-1]
			creds, ok := m.hosts.GetCredentials(h.ID)
			if !ok {
				p.mode = dockerHostCredentials
				m.setStatus("set SSH credentials first (SSH manager)")
				return
			}
			m.dockerState.SelectedHost = docker.Host{
				Remote:      true,
				HostID:      h.ID,
				Hostname:    h.Hostname,
				Port:        uint16(h.Port),
				Username:    creds.Username,
				DisplayName: h.DisplayName,
			}
		}
		m.startDockerDiscovery(m.dockerState.SelectedHost)
	}
}

// handleDockerRunOptionsKey picks how to run an image.
func (m *Model) handleDockerRunOptionsKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "esc":
		p.mode = dockerList
	case "up", "k":
		if p.runSel > 0 {
			p.runSel--
		}
	case "down", "j":
		if p.runSel < 1 {
			p.runSel++
		}
	case "enter":
		switch p.runSel {
		case 0: // run now
			cmd := docker.RunCommand(p.runImage.Ref(), p.runOpts)
			m.execIntoContainer(cmd, p.runImage.Repository)
		case 1: // configure volumes/command first
			p.wizImage = p.runImage.Ref()
			p.text = textinput.New()
			p.text.Placeholder = "host path (empty = no mount)"
			p.text.Focus()
			p.mode = dockerVolumeHostPath
		}
	}
}

// ---- creation wizard ----

func (m *Model) handleDockerSearchKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "esc":
		p.mode = dockerList
		return
	case "enter":
		term := strings.TrimSpace(p.text.Value())
		if term == "" {
			return
		}
		results := make(chan dockerSearchResult, 1)
		go func(c *docker.Client) {
			hits, err := c.SearchHub(term)
			results <- dockerSearchResult{hits: hits, err: err}
		}(p.client)
		m.fetchers.search = results
		return
	}
	p.text, _ = p.text.Update(msg)
}

func (m *Model) handleDockerSearchResultsKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "esc":
		p.mode = dockerSearchingHub
	case "up", "k":
		if p.hubSel > 0 {
			p.hubSel--
		}
	case "down", "j":
		if p.hubSel < len(p.hubResults)-1 {
			p.hubSel++
		}
	case "enter":
		if p.hubSel < len(p.hubResults) {
			p.wizImage = p.hubResults[p.hubSel].Name
			p.mode = dockerCheckingImage
			m.checkWizardImage()
		}
	}
}

// checkWizardImage checks local presence and pulls when missing.
func (m *Model) checkWizardImage() {
	p := &m.popup.docker
	img := p.wizImage
	results := make(chan docker.ImagePulled, 1)
	go func(c *docker.Client) {
		if c.ImageExists(img) {
			results <- docker.ImagePulled{Image: img, Success: true}
			return
		}
		if err := c.PullImage(img); err != nil {
			results <- docker.ImagePulled{Image: img, Err: err.Error()}
			return
		}
		results <- docker.ImagePulled{Image: img, Success: true}
	}(p.client)
	m.fetchers.pull = results
	p.mode = dockerDownloadingImage
}

func (m *Model) handleDockerWizardTextKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "esc":
		p.mode = dockerList
		return
	case "enter":
		val := strings.TrimSpace(p.text.Value())
		switch p.mode {
		case dockerVolumeHostPath:
			if val == "" {
				// No mount; go straight to the startup command.
				p.text = textinput.New()
				p.text.Placeholder = "startup command (empty = image default)"
				p.text.Focus()
				p.mode = dockerStartupCommand
				return
			}
			p.wizVolume.HostPath = val
			p.text = textinput.New()
			p.text.Placeholder = "container path"
			p.text.Focus()
			p.mode = dockerVolumeContainerPath
		case dockerVolumeContainerPath:
			if val == "" {
				return
			}
			p.wizVolume.ContainerPath = val
			p.mode = dockerVolumeConfirm
		case dockerStartupCommand:
			p.runOpts.Command = val
			p.confirmText = fmt.Sprintf("Create container from %s?", p.wizImage)
			p.mode = dockerCreateConfirm
		}
		return
	}
	p.text, _ = p.text.Update(msg)
}

func (m *Model) handleDockerVolumeConfirmKey(msg tea.KeyMsg) {
	p := &m.popup.docker
	switch msg.String() {
	case "y", "Y", "enter":
		p.runOpts.Volumes = append(p.runOpts.Volumes, p.wizVolume)
		p.wizVolume = docker.VolumeMount{}
		p.text = textinput.New()
		p.text.Placeholder = "startup command (empty = image default)"
		p.text.Focus()
		p.mode = dockerStartupCommand
	case "n", "N", "esc":
		p.wizVolume = docker.VolumeMount{}
		p.text = textinput.New()
		p.text.Placeholder = "startup command (empty = image default)"
		p.text.Focus()
		p.mode = dockerStartupCommand
	}
}

// dockerRunWizardImage finishes the wizard: run the configured image
// in a tab.
func (m *Model) dockerRunWizardImage() {
	p := &m.popup.docker
	cmd := docker.RunCommand(p.wizImage, p.runOpts)
	m.execIntoContainer(cmd, p.wizImage)
}

// startLogStream follows one container's logs.
func (m *Model) startLogStream(ct docker.Container) {
	if m.fetchers.logStream != nil {
		m.fetchers.logStream.Stop()
	}
	var streamer docker.LineStreamer
	h := m.dockerState.SelectedHost
	if h.Remote {
		ctx, err := m.hosts.BuildSSHContext(h.HostID)
		if err != nil {
			m.setError(err.Error())
			return
		}
		client, err := m.files.Client(ctx)
		if err != nil {
			m.setError(err.Error())
			return
		}
		streamer = docker.RemoteStreamer{Client: client.(docker.CommandStreamer)}
	}
	s := docker.NewLogStreamer(streamer, ct)
	s.Start()
	m.fetchers.logStream = s
	m.fetchers.logBuffer = docker.NewLogBuffer()
	m.popup = popup{kind: popupLogs}
	m.setStatus("following logs: " + ct.Name)
}

type dockerSearchResult struct {
	hits []docker.HubImage
	err  error
}

// pollPull drains docker worker results: discovery, hub search, image
// pull.
func (m *Model) pollPull() {
	if m.fetchers.discovery != nil {
		select {
		case d := <-m.fetchers.discovery:
			m.fetchers.discovery = nil
			if m.popup.kind == popupDocker {
				m.popup.docker.disc = d
				m.popup.docker.mode = dockerList
				m.popup.docker.selected = 0
			}
		default:
		}
	}
	if m.fetchers.search != nil {
		select {
		case res := <-m.fetchers.search:
			m.fetchers.search = nil
			if m.popup.kind == popupDocker {
				p := &m.popup.docker
				if res.err != nil {
					p.wizErr = res.err.Error()
					p.mode = dockerCreationError
				} else {
					p.hubResults = res.hits
					p.hubSel = 0
					p.mode = dockerSearchResults
				}
			}
		default:
		}
	}
	if m.fetchers.pull != nil {
		select {
		case res := <-m.fetchers.pull:
			m.fetchers.pull = nil
			if m.popup.kind == popupDocker {
				p := &m.popup.docker
				if !res.Success {
					p.wizErr = res.Err
					p.mode = dockerCreationError
				} else {
					p.text = textinput.New()
					p.text.Placeholder = "host path (empty = no mount)"
					p.text.Focus()
					p.mode = dockerVolumeHostPath
				}
			}
		default:
		}
	}
}

// ---- addon manager ----

type addonMode int

const (
	addonList addonMode = iota
	addonFetching
	addonInstalling
	addonConfirmUninstall
	addonError
)

type addonPopup struct {
	mode      addonMode
	selected  int
	installID uint64
	target    addons.Addon
	errText   string
}

func (m *Model) openAddonManager() {
	m.popup = popup{kind: popupAddon}
	m.mode = ModePopup
	if m.addonState.fetcher == nil {
		m.addonState.fetcher = addons.NewFetcher(m.addonState.state.Repository, m.addonState.state.Branch)
	}
	if m.addonState.installer == nil {
		m.addonState.installer = addons.NewInstaller(m.procs)
	}
	if len(m.addonState.available) == 0 {
		m.popup.addon.mode = addonFetching
		m.addonState.fetcher.FetchIndex()
	}
}

func (m *Model) handleAddonPopupKey(msg tea.KeyMsg) {
	p := &m.popup.addon
	switch p.mode {
	case addonList:
		m.handleAddonListKey(msg)
	case addonFetching, addonInstalling:
		if msg.String() == "esc" {
			p.mode = addonList
		}
	case addonConfirmUninstall:
		switch msg.String() {
		case "y", "Y", "enter":
			m.addonState.state.MarkUninstalled(p.target.ID)
			m.setStatus("uninstalled " + p.target.Name)
			p.mode = addonList
		case "n", "N", "esc":
			p.mode = addonList
		}
	case addonError:
		if msg.String() == "esc" || msg.String() == "enter" {
			p.mode = addonList
		}
	}
}

func (m *Model) handleAddonListKey(msg tea.KeyMsg) {
	p := &m.popup.addon
	avail := m.addonState.available
	switch msg.String() {
	case "esc", "q":
		m.closePopup()
	case "up", "k":
		if p.selected > 0 {
			p.selected--
		}
	case "down", "j":
		if p.selected < len(avail)-1 {
			p.selected++
		}
	case "r":
		p.mode = addonFetching
		m.addonState.fetcher.FetchIndex()
	case "enter":
		if p.selected >= len(avail) {
			return
		}
		a := avail[p.selected]
		if m.addonState.state.IsInstalled(a.ID) {
			p.target = a
			p.mode = addonConfirmUninstall
			return
		}
		p.target = a
		p.mode = addonFetching
		m.addonState.fetcher.FetchScript(a)
	}
}

// pollFetcher drains addon fetcher results.
func (m *Model) pollFetcher() {
	if m.addonState == nil || m.addonState.fetcher == nil {
		return
	}
	res, ok := m.addonState.fetcher.Poll()
	if !ok {
		return
	}
	p := &m.popup.addon
	if res.Err != nil {
		if m.popup.kind == popupAddon {
			p.errText = res.Err.Error()
			p.mode = addonError
		} else {
			m.setError(res.Err.Error())
		}
		return
	}
	switch res.Kind {
	case addons.FetchedIndex:
		m.addonState.available = res.Addons
		if m.popup.kind == popupAddon {
			p.mode = addonList
			p.selected = 0
		}
	case addons.FetchedScript:
		id, err := m.addonState.installer.Install(res.Addon, res.Script)
		if err != nil {
			if m.popup.kind == popupAddon {
				p.errText = err.Error()
				p.mode = addonError
			}
			return
		}
		if m.popup.kind == popupAddon {
			p.installID = id
			p.target = res.Addon
			p.mode = addonInstalling
		}
	}
}

// pollInstall checks a running addon install for completion.
func (m *Model) pollInstall() {
	if m.popup.kind != popupAddon || m.popup.addon.mode != addonInstalling {
		return
	}
	p := &m.popup.addon
	done, ok := m.addonState.installer.CheckInstallComplete(p.installID)
	if !done {
		return
	}
	if ok {
		m.addonState.state.MarkInstalled(p.target)
		m.setStatus("installed " + p.target.Name)
		p.mode = addonList
	} else {
		p.errText = "install failed: " + firstLines(m.addonState.installer.InstallOutput(p.installID), 3)
		p.mode = addonError
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
