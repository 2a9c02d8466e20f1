package term

import (
	"strings"
	"testing"
)

// writeText writes s treating \n as newline+carriage-return, the form
// terminal output takes once the PTY line discipline has expanded it.
func writeText(g *Grid, s string) {
	for _, r := range s {
		if r == '\n' {
			g.Newline()
			g.CarriageReturn()
			continue
		}
		g.WriteChar(r)
	}
}

func rowString(r Row) string {
	var b strings.Builder
	for _, c := range r {
		if c.WideCont {
			continue
		}
		b.WriteRune(c.Rune)
	}
	return b.String()
}

func TestWrapOnNarrowGrid(t *testing.T) {
	g := NewGrid(5, 2)
	writeText(g, "ABCDEFG")

	if got := rowString(g.Line(0)); got != "ABCDE" {
		t.Errorf("row 0 = %q, want %q", got, "ABCDE")
	}
	if got := rowString(g.Line(1)); got != "FG   " {
		t.Errorf("row 1 = %q, want %q", got, "FG   ")
	}
	if x, y := g.Cursor(); x != 2 || y != 1 {
		t.Errorf("cursor = (%d,%d), want (2,1)", x, y)
	}
}

func TestScrollbackEviction(t *testing.T) {
	g := NewGrid(3, 2)
	g.SetScrollbackLimit(5)
	writeText(g, "L0\nL1\nL2\nL3\nL4\nL5\nL6\n")

	if got := g.ScrollbackLen(); got != 5 {
		t.Fatalf("scrollback len = %d, want 5", got)
	}
	// Oldest first: L0..L4 retained, L5/L6 still visible.
	for i, want := range []string{"L0 ", "L1 ", "L2 ", "L3 ", "L4 "} {
		if got := rowString(g.ScrollbackRow(i)); got != want {
			t.Errorf("scrollback[%d] = %q, want %q", i, got, want)
		}
	}
	if got := rowString(g.Line(0)); got != "L5 " {
		t.Errorf("row 0 = %q, want %q", got, "L5 ")
	}
	if got := rowString(g.Line(1)); got != "L6 " {
		t.Errorf("row 1 = %q, want %q", got, "L6 ")
	}
}

func TestScrollbackNeverExceedsLimit(t *testing.T) {
	g := NewGrid(4, 3)
	g.SetScrollbackLimit(7)
	for i := 0; i < 50; i++ {
		writeText(g, "xyzw\n")
		if g.ScrollbackLen() > 7 {
			t.Fatalf("scrollback %d exceeds limit after %d lines", g.ScrollbackLen(), i+1)
		}
	}
	g.SetScrollbackLimit(2)
	if g.ScrollbackLen() != 2 {
		t.Errorf("scrollback = %d after lowering limit, want 2", g.ScrollbackLen())
	}
}

func TestCursorClamping(t *testing.T) {
	g := NewGrid(10, 4)
	g.SetCursorPos(15, 9)
	if x, y := g.Cursor(); x != 9 || y != 3 {
		t.Errorf("cursor = (%d,%d), want (9,3)", x, y)
	}
	g.SetCursorPos(-5, -5)
	if x, y := g.Cursor(); x != 0 || y != 0 {
		t.Errorf("cursor = (%d,%d), want (0,0)", x, y)
	}
}

func TestAlternateScreenRoundTrip(t *testing.T) {
	g := NewGrid(10, 3)
	writeText(g, "main")
	g.SetCursorPos(2, 1)

	g.EnterAlternateScreen()
	if rowString(g.Line(0)) != strings.Repeat(" ", 10) {
		t.Error("alternate screen not blank")
	}
	writeText(g, "ALT CONTENT")
	g.EnterAlternateScreen() // no-op when already active
	g.ExitAlternateScreen()

	if got := rowString(g.Line(0)); got != "main      " {
		t.Errorf("restored row 0 = %q, want %q", got, "main      ")
	}
	if x, y := g.Cursor(); x != 2 || y != 1 {
		t.Errorf("restored cursor = (%d,%d), want (2,1)", x, y)
	}

	// Exit with no snapshot is a no-op.
	g.ExitAlternateScreen()
	if got := rowString(g.Line(0)); got != "main      " {
		t.Errorf("row 0 after double exit = %q", got)
	}
}

func TestSaveRestoreCursor(t *testing.T) {
	g := NewGrid(20, 5)
	g.SetCursorPos(7, 2)
	g.SaveCursor()
	g.SetCursorPos(0, 0)
	g.RestoreCursor()
	if x, y := g.Cursor(); x != 7 || y != 2 {
		t.Errorf("cursor = (%d,%d), want (7,2)", x, y)
	}

	// Restore with nothing saved is a no-op.
	g2 := NewGrid(20, 5)
	g2.SetCursorPos(3, 3)
	g2.RestoreCursor()
	if x, y := g2.Cursor(); x != 3 || y != 3 {
		t.Errorf("cursor = (%d,%d), want (3,3)", x, y)
	}
}

func TestWideCharWrite(t *testing.T) {
	g := NewGrid(6, 2)
	g.WriteChar('漢')
	if c := g.Cell(0, 0); !c.Wide || c.Rune != '漢' {
		t.Errorf("cell 0 = %+v, want wide 漢", c)
	}
	if c := g.Cell(1, 0); !c.WideCont {
		t.Errorf("cell 1 = %+v, want wide continuation", c)
	}
	if x, _ := g.Cursor(); x != 2 {
		t.Errorf("cursor col = %d, want 2", x)
	}
}

func TestWideCharAtLastColumn(t *testing.T) {
	g := NewGrid(4, 2)
	writeText(g, "abc")
	g.WriteChar('漢') // cursor at col 3, the last column
	if c := g.Cell(3, 0); !c.Wide || c.Rune != '漢' {
		t.Errorf("cell (3,0) = %+v, want wide 漢", c)
	}
	if x, y := g.Cursor(); x != 0 || y != 1 {
		t.Errorf("cursor = (%d,%d), want wrap to (0,1)", x, y)
	}
	// The next row's first cell must not be a continuation.
	if c := g.Cell(0, 1); c.WideCont {
		t.Error("continuation leaked onto the next row")
	}
}

func TestInsertDeleteLines(t *testing.T) {
	g := NewGrid(3, 4)
	writeText(g, "AA\nBB\nCC\nDD")
	g.SetCursorPos(0, 1)
	g.InsertLines(1)
	want := []string{"AA ", "   ", "BB ", "CC "}
	for i, w := range want {
		if got := rowString(g.Line(i)); got != w {
			t.Errorf("after insert, row %d = %q, want %q", i, got, w)
		}
	}
	g.DeleteLines(1)
	want = []string{"AA ", "BB ", "CC ", "   "}
	for i, w := range want {
		if got := rowString(g.Line(i)); got != w {
			t.Errorf("after delete, row %d = %q, want %q", i, got, w)
		}
	}
}

func TestInsertDeleteChars(t *testing.T) {
	g := NewGrid(6, 1)
	writeText(g, "abcdef")
	g.SetCursorPos(2, 0)
	g.InsertChars(2)
	if got := rowString(g.Line(0)); got != "ab  cd" {
		t.Errorf("after insert = %q, want %q", got, "ab  cd")
	}
	g.DeleteChars(2)
	if got := rowString(g.Line(0)); got != "abcd  " {
		t.Errorf("after delete = %q, want %q", got, "abcd  ")
	}
}

func TestClearOperations(t *testing.T) {
	g := NewGrid(4, 3)
	writeText(g, "aaaa")
	writeText(g, "bbbb")
	writeText(g, "cccc")
	g.SetCursorPos(1, 1)
	g.ClearToEOS()
	if got := rowString(g.Line(1)); got != "b   " {
		t.Errorf("row 1 = %q, want %q", got, "b   ")
	}
	if got := rowString(g.Line(2)); got != "    " {
		t.Errorf("row 2 = %q, want blank", got)
	}
	if got := rowString(g.Line(0)); got != "aaaa" {
		t.Errorf("row 0 = %q, want untouched", got)
	}

	g.Clear()
	if x, y := g.Cursor(); x != 0 || y != 0 {
		t.Errorf("cursor after clear = (%d,%d)", x, y)
	}
}

func TestResizeClampsCursor(t *testing.T) {
	g := NewGrid(10, 5)
	g.SetCursorPos(9, 4)
	g.Resize(4, 2)
	if x, y := g.Cursor(); x != 3 || y != 1 {
		t.Errorf("cursor = (%d,%d), want (3,1)", x, y)
	}
	cols, rows := g.Size()
	if cols != 4 || rows != 2 {
		t.Errorf("size = %dx%d, want 4x2", cols, rows)
	}
	g.Resize(12, 6)
	if got := len(g.Line(0)); got != 12 {
		t.Errorf("row width = %d, want 12", got)
	}
}

func TestTabStops(t *testing.T) {
	g := NewGrid(20, 2)
	g.Tab()
	if x, _ := g.Cursor(); x != 8 {
		t.Errorf("cursor col = %d, want 8", x)
	}
	g.WriteChar('x')
	g.Tab()
	if x, _ := g.Cursor(); x != 16 {
		t.Errorf("cursor col = %d, want 16", x)
	}
	g.Tab()
	if x, _ := g.Cursor(); x != 19 {
		t.Errorf("cursor col = %d, want clamp to 19", x)
	}
}

func TestViewRows(t *testing.T) {
	g := NewGrid(3, 2)
	writeText(g, "L0\nL1\nL2\nL3")
	// L0 and L1 scrolled off, L2/L3 visible.
	rows := g.ViewRows(0)
	if rowString(rows[0]) != "L2 " || rowString(rows[1]) != "L3 " {
		t.Errorf("live view = %q,%q", rowString(rows[0]), rowString(rows[1]))
	}
	rows = g.ViewRows(1)
	if rowString(rows[0]) != "L1 " || rowString(rows[1]) != "L2 " {
		t.Errorf("offset 1 view = %q,%q", rowString(rows[0]), rowString(rows[1]))
	}
	rows = g.ViewRows(99)
	if rowString(rows[0]) != "L0 " {
		t.Errorf("clamped view starts with %q, want L0", rowString(rows[0]))
	}
}
