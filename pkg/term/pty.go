package term

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"

	"github.com/creack/pty"
)

// PtyConfig describes the child process attached to a new PTY.
type PtyConfig struct {
	// Shell is the program to run. Empty selects $SHELL, falling back
	// to /bin/sh.
	Shell string
	Args  []string
	Env   []string // KEY=VALUE pairs appended to the inherited environment
	Dir   string
	Cols  int
	Rows  int
}

// PtyEvent is one message from the PTY reader: output bytes, or the
// final exit notification.
type PtyEvent struct {
	Data []byte
	Exit bool
	Code int
}

// PTY owns a native pseudo-terminal pair with a child process attached
// to the slave end. A reader goroutine pushes PtyEvents onto Events();
// the last event is always Exit. Close never blocks.
type PTY struct {
	f       *os.File
	cmd     *exec.Cmd
	events  chan PtyEvent
	running atomic.Bool
	closed  atomic.Bool
	cols    int
	rows    int
}

// NewPTY opens a PTY pair, spawns the configured child on the slave
// end, and starts the reader goroutine.
func NewPTY(cfg PtyConfig) (*PTY, error) {
	shell := cfg.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols < 1 {
		cols = 80
	}
	if rows < 1 {
		rows = 24
	}

	cmd := exec.Command(shell, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLUMNS="+strconv.Itoa(cols),
		"LINES="+strconv.Itoa(rows),
	)
	cmd.Env = append(cmd.Env, cfg.Env...)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("start pty for %s: %w", shell, err)
	}

	p := &PTY{
		f:      f,
		cmd:    cmd,
		events: make(chan PtyEvent, 256),
		cols:   cols,
		rows:   rows,
	}
	p.running.Store(true)
	go p.readLoop()
	return p, nil
}

func (p *PTY) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := p.f.Read(buf)
		if n > 0 && !p.closed.Load() {
			out := make([]byte, n)
			copy(out, buf[:n])
			p.events <- PtyEvent{Data: out}
		}
		if err != nil {
			code := p.waitExit()
			p.running.Store(false)
			select {
			case p.events <- PtyEvent{Exit: true, Code: code}:
			default:
			}
			close(p.events)
			return
		}
	}
}

func (p *PTY) waitExit() int {
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Events returns the channel of output and exit events.
func (p *PTY) Events() <-chan PtyEvent { return p.events }

// Running reports whether the child is still alive.
func (p *PTY) Running() bool { return p.running.Load() }

// Write sends input bytes to the child.
func (p *PTY) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, errors.New("pty closed")
	}
	return p.f.Write(b)
}

// Resize applies a new window size to the PTY. The owning Grid must be
// resized separately.
func (p *PTY) Resize(cols, rows int) error {
	if cols < 1 || rows < 1 {
		return fmt.Errorf("invalid pty size %dx%d", cols, rows)
	}
	if err := pty.Setsize(p.f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	p.cols, p.rows = cols, rows
	return nil
}

// Size returns the last accepted (cols, rows).
func (p *PTY) Size() (int, int) { return p.cols, p.rows }

// Close terminates the child and releases the PTY. It does not wait for
// the reader goroutine; the reader exits on its next read error.
func (p *PTY) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.f.Close()
}
