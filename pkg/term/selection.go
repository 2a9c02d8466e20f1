package term

import "strings"

// SelectionMode selects how a selection maps to cells.
type SelectionMode int

const (
	// SelectionNormal is a stream selection: partial first and last
	// lines, full middle lines.
	SelectionNormal SelectionMode = iota
	// SelectionLine selects whole lines.
	SelectionLine
	// SelectionBlock selects a rectangle.
	SelectionBlock
)

// Pos is a cell coordinate within the visible grid.
type Pos struct {
	Col, Row int
}

// Selection is a text selection over the visible grid. Start and End
// are in click order; use normalized for row-major ordering.
type Selection struct {
	Start, End Pos
	Active     bool
	Mode       SelectionMode
}

// Selection returns a copy of the current selection state.
func (g *Grid) Selection() Selection { return g.sel }

// StartSelection begins a selection at (col, row), clamped to bounds.
func (g *Grid) StartSelection(col, row int, mode SelectionMode) {
	p := g.clampPos(col, row)
	g.sel = Selection{Start: p, End: p, Active: true, Mode: mode}
}

// UpdateSelection moves the selection end point.
func (g *Grid) UpdateSelection(col, row int) {
	if !g.sel.Active {
		return
	}
	g.sel.End = g.clampPos(col, row)
}

// FinalizeSelection ends the in-progress gesture, keeping the range.
func (g *Grid) FinalizeSelection() {
	// The range stays valid for copy; Active marks an existing range.
}

// ClearSelection removes the selection.
func (g *Grid) ClearSelection() { g.sel = Selection{} }

// ExtendSelectionLeft grows or shrinks the selection end one cell left.
// With no active selection a new one starts at the cursor.
func (g *Grid) ExtendSelectionLeft() {
	g.ensureSelection()
	g.sel.End = g.clampPos(g.sel.End.Col-1, g.sel.End.Row)
}

// ExtendSelectionRight moves the selection end one cell right.
func (g *Grid) ExtendSelectionRight() {
	g.ensureSelection()
	g.sel.End = g.clampPos(g.sel.End.Col+1, g.sel.End.Row)
}

// ExtendSelectionUp moves the selection end one row up.
func (g *Grid) ExtendSelectionUp() {
	g.ensureSelection()
	g.sel.End = g.clampPos(g.sel.End.Col, g.sel.End.Row-1)
}

// ExtendSelectionDown moves the selection end one row down.
func (g *Grid) ExtendSelectionDown() {
	g.ensureSelection()
	g.sel.End = g.clampPos(g.sel.End.Col, g.sel.End.Row+1)
}

func (g *Grid) ensureSelection() {
	if !g.sel.Active {
		p := Pos{Col: g.cursorX, Row: g.cursorY}
		g.sel = Selection{Start: p, End: p, Active: true, Mode: SelectionNormal}
	}
}

func (g *Grid) clampPos(col, row int) Pos {
	return Pos{Col: clamp(col, 0, g.cols-1), Row: clamp(row, 0, g.rows-1)}
}

func (g *Grid) clampSelection() {
	if !g.sel.Active {
		return
	}
	g.sel.Start = g.clampPos(g.sel.Start.Col, g.sel.Start.Row)
	g.sel.End = g.clampPos(g.sel.End.Col, g.sel.End.Row)
}

// normalized returns the selection endpoints in row-major order.
func (s Selection) normalized() (Pos, Pos) {
	a, b := s.Start, s.End
	if b.Row < a.Row || (b.Row == a.Row && b.Col < a.Col) {
		return b, a
	}
	return a, b
}

// SelectionContains reports whether (col, row) falls inside the active
// selection according to its mode.
func (g *Grid) SelectionContains(col, row int) bool {
	if !g.sel.Active {
		return false
	}
	start, end := g.sel.normalized()
	switch g.sel.Mode {
	case SelectionLine:
		return row >= start.Row && row <= end.Row
	case SelectionBlock:
		lo, hi := min(start.Col, end.Col), max(start.Col, end.Col)
		return row >= start.Row && row <= end.Row && col >= lo && col <= hi
	default:
		if row < start.Row || row > end.Row {
			return false
		}
		if row == start.Row && col < start.Col {
			return false
		}
		if row == end.Row && col > end.Col {
			return false
		}
		return true
	}
}

// SelectedText extracts the selection as a string: one line per row,
// wide-continuation cells skipped, trailing whitespace trimmed per line.
// Returns "" and false when there is no selection or it is empty.
func (g *Grid) SelectedText() (string, bool) {
	if !g.sel.Active {
		return "", false
	}
	start, end := g.sel.normalized()

	var lines []string
	for row := start.Row; row <= end.Row; row++ {
		lo, hi := 0, g.cols-1
		switch g.sel.Mode {
		case SelectionNormal:
			if row == start.Row {
				lo = start.Col
			}
			if row == end.Row {
				hi = end.Col
			}
		case SelectionBlock:
			lo = min(start.Col, end.Col)
			hi = max(start.Col, end.Col)
		}

		var b strings.Builder
		for col := lo; col <= hi && col < g.cols; col++ {
			c := g.lines[row][col]
			if c.WideCont {
				continue
			}
			b.WriteRune(c.Rune)
		}
		lines = append(lines, strings.TrimRight(b.String(), " \t"))
	}

	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}
