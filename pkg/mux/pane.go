package mux

import (
	"ratterm/pkg/term"
)

// Pane is one live terminal hosted in a tab's pane grid. *term.Terminal
// is the production implementation; tests substitute lightweight fakes
// through a SpawnFunc.
type Pane interface {
	Process()
	ProcessInput(r rune) (string, bool)
	Write(b []byte) error
	Resize(cols, rows int)
	Shutdown()
	Running() bool
	Title() string
	SSHContext() *term.SSHContext
	Grid() *term.Grid
	ViewRows() []term.Row
	ScrollViewUp(n int)
	ScrollViewDown(n int)
	TakeBell() bool
	Cwd() string
}

// SpawnRequest describes the terminal a pane grid or tab needs created.
// Exactly one flavor applies: an SSH session (SSH set), a remote command
// (SSH and Command set), a local command (Command set), or a local shell.
type SpawnRequest struct {
	Cols    int
	Rows    int
	SSH     *term.SSHContext
	Command string
	Shell   string
	Dir     string
}

// SpawnFunc creates a Pane for a request.
type SpawnFunc func(req SpawnRequest) (Pane, error)

// DefaultSpawn creates real PTY-backed terminals.
func DefaultSpawn(req SpawnRequest) (Pane, error) {
	switch {
	case req.SSH != nil && req.Command != "":
		return term.NewSSHCommandTerminal(*req.SSH, req.Command, req.Cols, req.Rows)
	case req.SSH != nil:
		return term.NewSSHTerminal(*req.SSH, req.Cols, req.Rows)
	case req.Command != "":
		return term.NewTerminal(term.PtyConfig{
			Shell: "sh",
			Args:  []string{"-c", req.Command},
			Cols:  req.Cols,
			Rows:  req.Rows,
			Dir:   req.Dir,
		})
	default:
		return term.NewTerminal(term.PtyConfig{
			Shell: req.Shell,
			Cols:  req.Cols,
			Rows:  req.Rows,
			Dir:   req.Dir,
		})
	}
}
