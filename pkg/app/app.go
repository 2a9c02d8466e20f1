// Package app wires the terminal multiplexer, SSH and docker
// managers, the addon catalog, and the health dashboard into one
// bubbletea program.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"ratterm/pkg/daemon"
	"ratterm/pkg/dashboard"
	"ratterm/pkg/docker"
	"ratterm/pkg/mux"
	"ratterm/pkg/proc"
	"ratterm/pkg/remote"
	"ratterm/pkg/sshmgr"
	"ratterm/pkg/term"
)

const (
	// frameInterval paces the cooperative loop: PTY drains, modal
	// polls, and one render per tick.
	frameInterval = 50 * time.Millisecond

	defaultConfigDirName = "ratterm"

	statusTTL = 4 * time.Second
)

// AppMode is the top-level input routing state.
type AppMode int

const (
	ModeNormal AppMode = iota
	ModeFileBrowser
	ModePopup
	ModeHealthDashboard
)

// tickMsg drives the frame loop.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Options configures a Model.
type Options struct {
	ConfigDir string
	Shell     string
	Log       pslog.Logger

	// ReceiverPort overrides the metrics receiver port; zero means
	// daemon.ReceiverPort.
	ReceiverPort int

	// Spawn overrides pane creation (tests).
	Spawn mux.SpawnFunc
}

// Model is the bubbletea root model.
type Model struct {
	opts  Options
	theme Theme
	log   pslog.Logger

	width  int
	height int
	ready  bool

	mode    AppMode
	running bool

	mux   *mux.Multiplexer
	shell string

	hosts    *sshmgr.HostList
	storage  *sshmgr.Storage
	scanner  *sshmgr.Scanner
	procs    *proc.Manager
	daemons  *daemon.Manager
	dash     *dashboard.Dashboard
	files    *remote.FileManager
	browser  *remote.Browser
	fetchers fetchers

	dockerState *docker.State
	addonState  *addonsState

	// clipboard holds the last keyboard selection copy.
	clipboard string

	popup popup

	status      string
	statusErr   bool
	statusUntil time.Time
}

// fetchers groups the per-request worker sources the frame loop polls.
type fetchers struct {
	logStream  *docker.LogStreamer
	logBuffer  *docker.LogBuffer
	logArchive *docker.LogArchive
	discovery  chan docker.Discovery
	search     chan dockerSearchResult
	pull       chan docker.ImagePulled
}

// ConfigDir resolves the app config directory: $XDG_CONFIG_HOME or
// ~/.config, suffixed with ratterm.
func ConfigDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, defaultConfigDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", defaultConfigDirName), nil
}

// New builds the root model. Persistent state is loaded eagerly so a
// corrupt file surfaces at startup, not mid-session.
func New(opts Options) (*Model, error) {
	if opts.ConfigDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		opts.ConfigDir = dir
	}
	if opts.Shell == "" {
		opts.Shell = os.Getenv("SHELL")
		if opts.Shell == "" {
			opts.Shell = "/bin/sh"
		}
	}
	log := opts.Log
	if log == nil {
		log = pslog.NewWithOptions(os.Stderr, pslog.Options{MinLevel: pslog.ErrorLevel})
	}

	storage := sshmgr.NewStorage(opts.ConfigDir)
	hosts, err := storage.Load()
	if err != nil && err != sshmgr.ErrMasterPasswordRequired {
		return nil, fmt.Errorf("load ssh hosts: %w", err)
	}
	locked := err == sshmgr.ErrMasterPasswordRequired
	if hosts == nil {
		hosts = sshmgr.NewHostList()
	}

	dockerState, derr := docker.LoadState(docker.StatePath(opts.ConfigDir))
	if derr != nil {
		return nil, derr
	}

	addonState, aerr := newAddonsState(opts.ConfigDir)
	if aerr != nil {
		return nil, aerr
	}

	port := opts.ReceiverPort
	if port == 0 {
		port = daemon.ReceiverPort
	}

	m := &Model{
		opts:        opts,
		theme:       DefaultTheme(),
		log:         log,
		mode:        ModeNormal,
		running:     true,
		shell:       opts.Shell,
		hosts:       hosts,
		storage:     storage,
		procs:       proc.NewManager(),
		daemons:     daemon.NewManager(port, log),
		files:       remote.NewFileManager(),
		dockerState: dockerState,
		addonState:  addonState,
	}
	m.fetchers.logBuffer = docker.NewLogBuffer()
	m.fetchers.logArchive = docker.NewLogArchive(filepath.Join(opts.ConfigDir, "docker-logs"))

	if locked {
		m.openMasterPassPrompt()
	}
	return m, nil
}

// Run starts the program on the alternate screen.
func Run(opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	m.shutdown()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.ready = true
			m.initMux()
		} else if m.mux != nil {
			m.mux.Resize(m.width, m.contentHeight())
		}
		return m, nil

	case tickMsg:
		m.frame()
		if !m.running {
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil
	}
	return m, nil
}

// initMux spawns the first tab once the terminal size is known.
func (m *Model) initMux() {
	m.mux = mux.New(m.width, m.contentHeight(), m.shell, m.opts.Spawn)
	if err := m.mux.AddTab("shell"); err != nil {
		m.setError(fmt.Sprintf("spawn shell: %v", err))
	}
	if err := m.daemons.Start(); err != nil {
		m.log.Warn("metrics receiver unavailable", "error", err)
	}
}

// contentHeight is the pane area: everything minus tab bar and status
// bar.
func (m *Model) contentHeight() int {
	h := m.height - 2
	if h < 3 {
		h = 3
	}
	return h
}

// frame is one pass of the cooperative loop: drain PTYs, poll every
// modal worker source, expire the status line.
func (m *Model) frame() {
	if m.mux != nil {
		m.mux.ProcessAll()
	}
	m.pollScanner()
	m.pollDashboard()
	m.pollLogStream()
	m.pollFetcher()
	m.pollPull()
	m.pollInstall()
	if m.status != "" && time.Now().After(m.statusUntil) {
		m.status = ""
		m.statusErr = false
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
	m.statusUntil = time.Now().Add(statusTTL)
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
	m.statusUntil = time.Now().Add(statusTTL)
	m.log.Warn("status error", "message", s)
}

// pollScanner drains subnet scan events into the SSH popup.
func (m *Model) pollScanner() {
	if m.scanner == nil {
		return
	}
	for {
		ev, ok := m.scanner.Poll()
		if !ok {
			return
		}
		m.applyScanEvent(ev)
		if ev.Terminal() {
			m.scanner = nil
			return
		}
	}
}

func (m *Model) pollDashboard() {
	if m.dash == nil {
		return
	}
	m.dash.Poll()
	if m.mode == ModeHealthDashboard && m.dash.NeedsRefresh() {
		m.dash.Refresh()
	}
}

// pollLogStream drains up to DrainLimit entries per frame into the
// ring buffer and mirrors them to the daily archive.
func (m *Model) pollLogStream() {
	s := m.fetchers.logStream
	if s == nil {
		return
	}
	entries, done := s.Drain(docker.DrainLimit)
	if len(entries) > 0 {
		m.fetchers.logBuffer.Append(entries...)
		day := time.Now().Format("2006-01-02")
		if err := m.fetchers.logArchive.Append(day, entries); err != nil {
			m.log.Warn("log archive write failed", "error", err)
		}
	}
	if done {
		m.fetchers.logStream = nil
	}
}

// quit tears everything down; CloseTab-style confirmation is handled
// by the caller.
func (m *Model) quit() {
	m.running = false
}

func (m *Model) shutdown() {
	if m.mux != nil {
		m.mux.Shutdown()
	}
	if m.scanner != nil {
		m.scanner.Cancel()
	}
	if m.fetchers.logStream != nil {
		m.fetchers.logStream.Stop()
	}
	if m.dash != nil {
		m.dash.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.daemons.Stop(ctx); err != nil {
		m.log.Warn("receiver shutdown", "error", err)
	}
	m.files.CleanupCache()
	m.persist()
}

// persist saves every state file; failures are logged, not fatal.
func (m *Model) persist() {
	if err := m.storage.Save(m.hosts); err != nil {
		m.log.Warn("save ssh hosts", "error", err)
	}
	if err := docker.SaveState(docker.StatePath(m.opts.ConfigDir), m.dockerState); err != nil {
		m.log.Warn("save docker state", "error", err)
	}
	if err := m.addonState.save(); err != nil {
		m.log.Warn("save addon state", "error", err)
	}
}

// focusedPane returns the focused pane of the active tab, or nil.
func (m *Model) focusedPane() mux.Pane {
	if m.mux == nil {
		return nil
	}
	return m.mux.FocusedPane()
}

// openRemoteBrowser roots a file browser at the pane's remote cwd.
func (m *Model) openRemoteBrowser(ctx term.SSHContext, startDir string) {
	height := m.contentHeight() - 4
	b, err := remote.NewBrowser(m.files, ctx, startDir, height)
	if err != nil {
		m.setError(fmt.Sprintf("remote browser: %v", err))
		return
	}
	m.browser = b
	m.mode = ModeFileBrowser
}

// handleIntercepted routes a command the terminal intercepted on
// Enter.
func (m *Model) handleIntercepted(cmd string) {
	pane := m.focusedPane()
	if pane == nil {
		return
	}
	// The zero context routes to the local filesystem client.
	var ctx term.SSHContext
	if pane.SSHContext() != nil {
		ctx = *pane.SSHContext()
	}
	switch {
	case cmd == "open":
		m.openRemoteBrowser(ctx, m.paneDir(pane))
	case strings.HasPrefix(cmd, "open "):
		path := strings.TrimSpace(strings.TrimPrefix(cmd, "open "))
		m.openRemoteFile(ctx, m.paneDir(pane), path)
	case cmd == "update":
		if os.Getenv("RATTERM_NO_UPDATE") != "" {
			m.setStatus("updates disabled by RATTERM_NO_UPDATE")
			return
		}
		m.setStatus("no update available")
	}
}

// paneDir is the pane's cwd with a sane fallback: OSC 7 may never have
// fired on a fresh shell.
func (m *Model) paneDir(pane mux.Pane) string {
	if dir := pane.Cwd(); dir != "" {
		return dir
	}
	if pane.SSHContext() == nil {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return "/"
}

// openRemoteFile fetches one file into the local cache and reports
// where it landed.
func (m *Model) openRemoteFile(ctx term.SSHContext, cwd, path string) {
	resolved := remote.ResolvePath(cwd, path)
	rf, err := m.files.FetchFile(ctx, resolved)
	if err != nil {
		m.setError(fmt.Sprintf("open %s: %v", resolved, err))
		return
	}
	m.setStatus("fetched to " + rf.LocalPath)
}

// openHealthDashboard builds rows from every credentialed host.
func (m *Model) openHealthDashboard() {
	var rows []dashboard.HostRow
	for _, h := range m.hosts.Hosts() {
		if _, ok := m.hosts.GetCredentials(h.ID); !ok {
			continue
		}
		ctx, err := m.hosts.BuildSSHContext(h.ID)
		if err != nil {
			continue
		}
		rows = append(rows, dashboard.HostRow{HostID: h.ID, Label: h.Label(), Ctx: ctx})
	}
	if len(rows) == 0 {
		m.setStatus("health dashboard: no hosts with saved credentials")
		return
	}
	if m.dash != nil {
		m.dash.Stop()
	}
	m.dash = dashboard.New(rows, m.daemons.Receiver(), m.collectHost)
	m.dash.SetAutoRefresh(true)
	m.dash.Refresh()
	m.mode = ModeHealthDashboard
}

// collectHost is the dashboard's SSH fallback collector.
func (m *Model) collectHost(ctx term.SSHContext, hostID uint32) (daemon.DeviceMetrics, error) {
	client, err := m.files.Client(ctx)
	if err != nil {
		return daemon.DeviceMetrics{}, err
	}
	return dashboard.CollectOverSSH(client, hostID)
}
