package term

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxProcessIterations bounds how many PTY events one Process call
// drains, so a chatty child cannot starve the UI loop.
const MaxProcessIterations = 10000

// inputBufferCap bounds the typed-line echo buffer; when exceeded the
// oldest half is dropped.
const inputBufferCap = 200

// passwordPromptRe matches interactive password/passphrase prompts at
// the end of the PTY output tail.
var passwordPromptRe = regexp.MustCompile(`(?i)(password|passcode|pass phrase|passphrase)\s*:?\s*$`)

// JumpHop is one intermediate host in a ProxyJump chain.
type JumpHop struct {
	Username string
	Hostname string
	Port     uint16
	Password string
}

// SSHContext carries everything needed to open (and re-open) an SSH
// session: target coordinates, credentials, and the jump chain ordered
// outermost hop first.
type SSHContext struct {
	Username string
	Hostname string
	Port     uint16
	Password string
	KeyPath  string
	HostID   uint32
	Jumps    []JumpHop
}

// DisplayString renders "user@host", with the port appended when it is
// not the SSH default.
func (c SSHContext) DisplayString() string {
	if c.Port != 0 && c.Port != 22 {
		return fmt.Sprintf("%s@%s:%d", c.Username, c.Hostname, c.Port)
	}
	return fmt.Sprintf("%s@%s", c.Username, c.Hostname)
}

// JumpSpec renders the -J argument for the jump chain, outermost first.
// Empty when there are no hops.
func (c SSHContext) JumpSpec() string {
	if len(c.Jumps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.Jumps))
	for _, j := range c.Jumps {
		hop := j.Hostname
		if j.Username != "" {
			hop = j.Username + "@" + hop
		}
		if j.Port != 0 && j.Port != 22 {
			hop = fmt.Sprintf("%s:%d", hop, j.Port)
		}
		parts = append(parts, hop)
	}
	return strings.Join(parts, ",")
}

// PasswordQueue returns the passwords to feed to successive prompts,
// in the same order as the hops on the wire: outermost jumps first,
// then the target.
func (c SSHContext) PasswordQueue() []string {
	var queue []string
	for _, j := range c.Jumps {
		if j.Password != "" {
			queue = append(queue, j.Password)
		}
	}
	if c.Password != "" {
		queue = append(queue, c.Password)
	}
	return queue
}

// Terminal pairs one PTY with one Grid and a Parser. It applies parser
// actions, tracks title / OSC 7 cwd / bell / scroll offset, mirrors
// typed input for shell-level command interception, and auto-answers
// SSH password prompts from a queued password list.
type Terminal struct {
	pty    *PTY
	grid   *Grid
	parser *Parser

	title      string
	bell       bool
	running    bool
	exitCode   int
	scrollOff  int
	inputBuf   []rune
	cwd        string
	initialCwd string

	sshCtx     *SSHContext
	passwords  []string
	promptTail []byte
}

// NewTerminal starts a local terminal running the configured command
// (the user shell by default).
func NewTerminal(cfg PtyConfig) (*Terminal, error) {
	p, err := NewPTY(cfg)
	if err != nil {
		return nil, err
	}
	cols, rows := p.Size()
	return &Terminal{
		pty:        p,
		grid:       NewGrid(cols, rows),
		parser:     NewParser(),
		running:    true,
		initialCwd: cfg.Dir,
	}, nil
}

// NewSSHTerminal starts a terminal running the system ssh client toward
// ctx, with jump hops on -J and queued passwords answered on prompt.
func NewSSHTerminal(ctx SSHContext, cols, rows int) (*Terminal, error) {
	args := []string{"-p", fmt.Sprintf("%d", sshPort(ctx.Port))}
	if spec := ctx.JumpSpec(); spec != "" {
		args = append(args, "-J", spec)
	}
	if ctx.KeyPath != "" {
		args = append(args, "-i", ctx.KeyPath)
	}
	args = append(args, fmt.Sprintf("%s@%s", ctx.Username, ctx.Hostname))

	p, err := NewPTY(PtyConfig{Shell: "ssh", Args: args, Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("ssh session to %s: %w", ctx.DisplayString(), err)
	}
	c, r := p.Size()
	return &Terminal{
		pty:       p,
		grid:      NewGrid(c, r),
		parser:    NewParser(),
		running:   true,
		title:     ctx.DisplayString(),
		sshCtx:    &ctx,
		passwords: ctx.PasswordQueue(),
	}, nil
}

// NewSSHCommandTerminal starts a terminal running a single remote
// command over ssh -t (docker exec sessions on remote hosts use this),
// with the same prompt auto-reply as a plain session.
func NewSSHCommandTerminal(ctx SSHContext, command string, cols, rows int) (*Terminal, error) {
	args := []string{"-p", fmt.Sprintf("%d", sshPort(ctx.Port)), "-t"}
	if spec := ctx.JumpSpec(); spec != "" {
		args = append(args, "-J", spec)
	}
	if ctx.KeyPath != "" {
		args = append(args, "-i", ctx.KeyPath)
	}
	args = append(args, fmt.Sprintf("%s@%s", ctx.Username, ctx.Hostname), command)

	p, err := NewPTY(PtyConfig{Shell: "ssh", Args: args, Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("ssh command on %s: %w", ctx.DisplayString(), err)
	}
	c, r := p.Size()
	return &Terminal{
		pty:       p,
		grid:      NewGrid(c, r),
		parser:    NewParser(),
		running:   true,
		title:     ctx.DisplayString(),
		sshCtx:    &ctx,
		passwords: ctx.PasswordQueue(),
	}, nil
}

// Grid returns the terminal's grid.
func (t *Terminal) Grid() *Grid { return t.grid }

// Title returns the current window title.
func (t *Terminal) Title() string { return t.title }

// SetTitle overrides the window title.
func (t *Terminal) SetTitle(s string) { t.title = s }

// Running reports whether the child process is still alive.
func (t *Terminal) Running() bool { return t.running }

// ExitCode returns the child's exit code once Running is false.
func (t *Terminal) ExitCode() int { return t.exitCode }

// SSHContext returns the session context for remote terminals, or nil.
func (t *Terminal) SSHContext() *SSHContext { return t.sshCtx }

// Cwd returns the best-known working directory: the OSC 7 report if the
// shell sent one, otherwise the directory the terminal started in.
func (t *Terminal) Cwd() string {
	if t.cwd != "" {
		return t.cwd
	}
	return t.initialCwd
}

// TakeBell returns and clears the one-shot bell flag.
func (t *Terminal) TakeBell() bool {
	b := t.bell
	t.bell = false
	return b
}

// ScrollOffset returns the scrollback view offset; 0 is live.
func (t *Terminal) ScrollOffset() int { return t.scrollOff }

// ScrollViewUp shifts the view into scrollback.
func (t *Terminal) ScrollViewUp(n int) {
	t.scrollOff = clamp(t.scrollOff+n, 0, t.grid.ScrollbackLen())
}

// ScrollViewDown shifts the view back toward live output.
func (t *Terminal) ScrollViewDown(n int) {
	t.scrollOff = clamp(t.scrollOff-n, 0, t.grid.ScrollbackLen())
}

// ViewRows returns the rows to render at the current scroll offset.
func (t *Terminal) ViewRows() []Row { return t.grid.ViewRows(t.scrollOff) }

// Process drains pending PTY events (bounded per call), feeding output
// through the parser into the grid. An exit event flips Running false.
func (t *Terminal) Process() {
	for i := 0; i < MaxProcessIterations; i++ {
		select {
		case ev, ok := <-t.pty.Events():
			if !ok {
				t.running = false
				return
			}
			if ev.Exit {
				t.running = false
				t.exitCode = ev.Code
				return
			}
			t.consume(ev.Data)
		default:
			return
		}
	}
}

func (t *Terminal) consume(data []byte) {
	if len(t.passwords) > 0 {
		t.scanPasswordPrompt(data)
	}
	for _, a := range t.parser.Parse(data) {
		t.apply(a)
	}
	if t.scrollOff > t.grid.ScrollbackLen() {
		t.scrollOff = t.grid.ScrollbackLen()
	}
}

// scanPasswordPrompt keeps a rolling tail of raw output and answers a
// password prompt with the next queued password.
func (t *Terminal) scanPasswordPrompt(data []byte) {
	t.promptTail = append(t.promptTail, data...)
	if len(t.promptTail) > 2048 {
		t.promptTail = t.promptTail[len(t.promptTail)-2048:]
	}
	if passwordPromptRe.Match(t.promptTail) {
		pw := t.passwords[0]
		t.passwords = t.passwords[1:]
		_, _ = t.pty.Write([]byte(pw + "\r"))
		t.promptTail = t.promptTail[:0]
	}
}

func (t *Terminal) apply(a Action) {
	switch a.Kind {
	case ActionBell:
		t.bell = true
	case ActionSetTitle:
		t.title = a.Text
	case ActionSetCwd:
		t.cwd = a.Text
	case ActionDeviceStatusReport:
		col, row := t.grid.Cursor()
		_, _ = t.pty.Write([]byte(dsrReply(col, row)))
	case ActionHyperlink, ActionUnknown:
		// Hyperlinks are not rendered; unknown sequences are dropped.
	default:
		t.grid.Apply(a)
	}
}

// dsrReply renders the cursor position report sent back for CSI 6n.
// The wire is 1-based.
func dsrReply(col, row int) string {
	return fmt.Sprintf("\x1b[%d;%dR", row+1, col+1)
}

// ProcessInput handles one typed character. Interceptable commands
// ("open", "open <path>", "update") are detected on Enter: the shell's
// pending line is visually cleared, the shell receives an interrupt so
// it discards its input, and the command is returned instead of being
// forwarded. All other input is forwarded to the PTY. Every call snaps
// the view back to live output.
func (t *Terminal) ProcessInput(r rune) (string, bool) {
	t.scrollOff = 0

	switch r {
	case '\r', '\n':
		line := strings.TrimSpace(string(t.inputBuf))
		t.inputBuf = t.inputBuf[:0]
		if cmd, ok := interceptCommand(line); ok {
			t.grid.CarriageReturn()
			t.grid.ClearToEOS()
			_, _ = t.pty.Write([]byte{0x03})
			time.Sleep(30 * time.Millisecond)
			t.discardPending()
			return cmd, true
		}
		_, _ = t.pty.Write([]byte{'\r'})
		return "", false
	case 0x7f, '\b':
		if len(t.inputBuf) > 0 {
			t.inputBuf = t.inputBuf[:len(t.inputBuf)-1]
		}
		_, _ = t.pty.Write([]byte{0x7f})
		return "", false
	case 0x03:
		t.inputBuf = t.inputBuf[:0]
		_, _ = t.pty.Write([]byte{0x03})
		return "", false
	default:
		t.inputBuf = append(t.inputBuf, r)
		if len(t.inputBuf) > inputBufferCap {
			t.inputBuf = append(t.inputBuf[:0], t.inputBuf[inputBufferCap/2:]...)
		}
		_, _ = t.pty.Write([]byte(string(r)))
		return "", false
	}
}

// Write forwards raw bytes (paste, replies) to the PTY and snaps the
// view back to live output.
func (t *Terminal) Write(b []byte) error {
	t.scrollOff = 0
	_, err := t.pty.Write(b)
	return err
}

// discardPending drains and drops any buffered PTY output, so the
// shell's echo of the interrupted line never reaches the grid.
func (t *Terminal) discardPending() {
	for {
		select {
		case ev, ok := <-t.pty.Events():
			if !ok {
				t.running = false
				return
			}
			if ev.Exit {
				t.running = false
				t.exitCode = ev.Code
				return
			}
		default:
			return
		}
	}
}

// Resize applies a new size to both the PTY and the grid.
func (t *Terminal) Resize(cols, rows int) {
	if err := t.pty.Resize(cols, rows); err == nil {
		t.grid.Resize(cols, rows)
	}
}

// Shutdown terminates the child and releases the PTY without blocking.
func (t *Terminal) Shutdown() {
	t.running = false
	t.pty.Close()
}

// interceptCommand recognizes the shell-level commands the workstation
// handles itself. The grammar is exact: "open", "open <path>" with a
// non-empty path, and "update".
func interceptCommand(line string) (string, bool) {
	switch {
	case line == "open":
		return "open", true
	case line == "update":
		return "update", true
	case strings.HasPrefix(line, "open "):
		if path := strings.TrimSpace(line[len("open "):]); path != "" {
			return "open " + path, true
		}
	}
	return "", false
}

func sshPort(p uint16) uint16 {
	if p == 0 {
		return 22
	}
	return p
}
