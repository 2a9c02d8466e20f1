package mux

import (
	"errors"
	"fmt"
)

const (
	// MaxPanes is the hard cap per tab: a 2x2 grid.
	MaxPanes = 4
	// MinPaneCols and MinPaneRows keep a split from producing a pane
	// too small to render a prompt in.
	MinPaneCols = 10
	MinPaneRows = 5
)

// ErrGridFull is returned when a split is requested on a full grid.
var ErrGridFull = errors.New("at max capacity")

// Direction selects a neighbor for focus movement.
type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

// PaneGrid arranges up to four panes in a fixed grid. Slot indices map
// to positions: 0 top-left, 1 top-right, 2 bottom-left, 3 bottom-right.
// The grid shape grows with the pane count: one pane fills the area,
// two panes sit side by side, three or four occupy the 2x2 quarters.
type PaneGrid struct {
	panes [MaxPanes]Pane
	focus int

	shapeCols int
	shapeRows int

	width  int
	height int

	spawn SpawnFunc
}

// NewPaneGrid builds a single-pane grid around an existing pane.
func NewPaneGrid(first Pane, width, height int, spawn SpawnFunc) *PaneGrid {
	if spawn == nil {
		spawn = DefaultSpawn
	}
	g := &PaneGrid{
		shapeCols: 1,
		shapeRows: 1,
		width:     width,
		height:    height,
		spawn:     spawn,
	}
	g.panes[0] = first
	return g
}

// Count reports the number of live panes.
func (g *PaneGrid) Count() int {
	n := 0
	for _, p := range g.panes {
		if p != nil {
			n++
		}
	}
	return n
}

// Pane returns the pane in slot i, or nil.
func (g *PaneGrid) Pane(i int) Pane {
	if i < 0 || i >= MaxPanes {
		return nil
	}
	return g.panes[i]
}

// Focused returns the pane holding input focus.
func (g *PaneGrid) Focused() Pane { return g.panes[g.focus] }

// FocusIndex returns the focused slot index.
func (g *PaneGrid) FocusIndex() int { return g.focus }

// Shape reports the current grid shape as columns x rows.
func (g *PaneGrid) Shape() (cols, rows int) { return g.shapeCols, g.shapeRows }

// PaneSize reports the cell dimensions each pane gets under the
// current shape, clamped to the minimum pane size.
func (g *PaneGrid) PaneSize() (cols, rows int) {
	cols = g.width / g.shapeCols
	rows = g.height / g.shapeRows
	if cols < MinPaneCols {
		cols = MinPaneCols
	}
	if rows < MinPaneRows {
		rows = MinPaneRows
	}
	return cols, rows
}

// Split adds a pane. One pane becomes two side by side; two become a
// 2x2 with the new panes filling the bottom row. When the focused pane
// is an SSH session the new panes open SSH sessions to the same host;
// otherwise they run shell in the focused pane's working directory.
// Splitting a grid of three or four panes fails with ErrGridFull.
func (g *PaneGrid) Split(shell string) error {
	switch g.Count() {
	case 1:
		g.shapeCols, g.shapeRows = 2, 1
		cols, rows := g.PaneSize()
		p, err := g.spawnLike(g.panes[0], shell, cols, rows)
		if err != nil {
			g.shapeCols, g.shapeRows = 1, 1
			return fmt.Errorf("split: %w", err)
		}
		g.panes[0].Resize(cols, rows)
		g.panes[1] = p
		g.focus = 1
		return nil
	case 2:
		g.shapeCols, g.shapeRows = 2, 2
		cols, rows := g.PaneSize()
		src := g.panes[g.focus]
		p2, err := g.spawnLike(src, shell, cols, rows)
		if err != nil {
			g.shapeCols, g.shapeRows = 2, 1
			return fmt.Errorf("split: %w", err)
		}
		p3, err := g.spawnLike(src, shell, cols, rows)
		if err != nil {
			p2.Shutdown()
			g.shapeCols, g.shapeRows = 2, 1
			return fmt.Errorf("split: %w", err)
		}
		g.panes[0].Resize(cols, rows)
		g.panes[1].Resize(cols, rows)
		g.panes[2] = p2
		g.panes[3] = p3
		if g.focus == 0 {
			g.focus = 2
		} else {
			g.focus = 3
		}
		return nil
	default:
		return ErrGridFull
	}
}

func (g *PaneGrid) spawnLike(src Pane, shell string, cols, rows int) (Pane, error) {
	req := SpawnRequest{Cols: cols, Rows: rows, Shell: shell}
	if src != nil {
		if ctx := src.SSHContext(); ctx != nil {
			c := *ctx
			req.SSH = &c
		} else {
			req.Dir = src.Cwd()
		}
	}
	return g.spawn(req)
}

// CloseFocused shuts down the focused pane and repacks the survivors
// into the low slots, shrinking the shape to fit. It returns the
// number of panes remaining; zero means the tab itself should close.
func (g *PaneGrid) CloseFocused() int {
	if p := g.panes[g.focus]; p != nil {
		p.Shutdown()
		g.panes[g.focus] = nil
	}

	// Repack survivors in index order.
	var kept []Pane
	for _, p := range g.panes {
		if p != nil {
			kept = append(kept, p)
		}
	}
	g.panes = [MaxPanes]Pane{}
	copy(g.panes[:], kept)

	switch len(kept) {
	case 0:
		g.shapeCols, g.shapeRows = 1, 1
		return 0
	case 1:
		g.shapeCols, g.shapeRows = 1, 1
	case 2:
		g.shapeCols, g.shapeRows = 2, 1
	default:
		g.shapeCols, g.shapeRows = 2, 2
	}
	if g.focus >= len(kept) {
		g.focus = len(kept) - 1
	}
	g.applySizes()
	return len(kept)
}

// MoveFocus shifts focus to the neighboring pane in dir. The move only
// happens when the neighbor slot exists in the current shape and holds
// a pane.
func (g *PaneGrid) MoveFocus(dir Direction) {
	col := g.focus % 2
	row := g.focus / 2
	switch dir {
	case DirUp:
		row--
	case DirDown:
		row++
	case DirLeft:
		col--
	case DirRight:
		col++
	}
	if col < 0 || col >= g.shapeCols || row < 0 || row >= g.shapeRows {
		return
	}
	target := row*2 + col
	if g.panes[target] != nil {
		g.focus = target
	}
}

// ToggleFocus cycles focus through occupied slots in index order.
func (g *PaneGrid) ToggleFocus() {
	for i := 1; i <= MaxPanes; i++ {
		next := (g.focus + i) % MaxPanes
		if g.panes[next] != nil {
			g.focus = next
			return
		}
	}
}

// Resize gives the grid a new total area and resizes every pane to its
// share of it.
func (g *PaneGrid) Resize(width, height int) {
	g.width = width
	g.height = height
	g.applySizes()
}

func (g *PaneGrid) applySizes() {
	cols, rows := g.PaneSize()
	for _, p := range g.panes {
		if p != nil {
			p.Resize(cols, rows)
		}
	}
}

// ProcessAll drains pending output on every pane.
func (g *PaneGrid) ProcessAll() {
	for _, p := range g.panes {
		if p != nil {
			p.Process()
		}
	}
}

// Shutdown tears down every pane.
func (g *PaneGrid) Shutdown() {
	for i, p := range g.panes {
		if p != nil {
			p.Shutdown()
			g.panes[i] = nil
		}
	}
}
