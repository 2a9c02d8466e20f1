package term

import "github.com/mattn/go-runewidth"

// DefaultScrollbackLimit caps the number of evicted rows retained for
// scrollback viewing.
const DefaultScrollbackLimit = 10000

type savedCursor struct {
	x, y  int
	style Style
}

type altSnapshot struct {
	lines []Row
	x, y  int
	saved *savedCursor
}

// Grid is the authoritative visible state of one terminal: a rows x cols
// cell matrix plus cursor, current style, one-level saved cursor, an
// optional alternate-screen snapshot, bounded scrollback, and a text
// selection.
//
// Invariants held after every mutation:
//   - cursor column < cols and cursor row < rows
//   - scrollback length <= scrollback limit
//   - selection endpoints are within visible bounds
type Grid struct {
	cols, rows int
	lines      []Row

	cursorX, cursorY int
	style            Style
	saved            *savedCursor

	cursorVisible bool
	cursorShape   CursorShape

	alt *altSnapshot

	scrollback      []Row
	scrollbackLimit int

	// pendingScroll defers the scroll caused by a line feed on the
	// bottom row until the next write, so a trailing newline does not
	// evict a row that is still being displayed.
	pendingScroll bool

	sel Selection
}

// NewGrid creates a cleared grid. Dimensions below 1 are raised to 1.
func NewGrid(cols, rows int) *Grid {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g := &Grid{
		cols:            cols,
		rows:            rows,
		cursorVisible:   true,
		scrollbackLimit: DefaultScrollbackLimit,
	}
	g.lines = make([]Row, rows)
	for i := range g.lines {
		g.lines[i] = newRow(cols, Style{})
	}
	return g
}

// Size returns (cols, rows).
func (g *Grid) Size() (int, int) { return g.cols, g.rows }

// Cursor returns the current cursor position (col, row).
func (g *Grid) Cursor() (int, int) { return g.cursorX, g.cursorY }

// CursorVisible reports whether the cursor should be drawn.
func (g *Grid) CursorVisible() bool { return g.cursorVisible }

// CursorShape returns the current cursor shape.
func (g *Grid) CursorShape() CursorShape { return g.cursorShape }

// SetCursorShape sets the rendered cursor shape.
func (g *Grid) SetCursorShape(s CursorShape) { g.cursorShape = s }

// SetCursorVisible toggles cursor rendering.
func (g *Grid) SetCursorVisible(v bool) { g.cursorVisible = v }

// Style returns the current write style.
func (g *Grid) Style() Style { return g.style }

// SetStyle replaces the current write style.
func (g *Grid) SetStyle(s Style) { g.style = s }

// Cell returns the cell at (col, row), or a blank when out of bounds.
func (g *Grid) Cell(col, row int) Cell {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return blank(Style{})
	}
	return g.lines[row][col]
}

// Line returns the visible row at index row. The returned slice aliases
// grid storage and must not be retained across mutations.
func (g *Grid) Line(row int) Row {
	if row < 0 || row >= g.rows {
		return nil
	}
	return g.lines[row]
}

// SetCursorPos moves the cursor, clamping to the visible area.
// Absolute positioning cancels any deferred bottom-row scroll.
func (g *Grid) SetCursorPos(col, row int) {
	g.pendingScroll = false
	g.cursorX = clamp(col, 0, g.cols-1)
	g.cursorY = clamp(row, 0, g.rows-1)
}

// MoveCursor moves the cursor relatively, clamping to the visible area.
func (g *Grid) MoveCursor(dx, dy int) {
	g.SetCursorPos(g.cursorX+dx, g.cursorY+dy)
}

// WriteChar performs a width-aware write of one character at the cursor.
// Zero-width characters are ignored. A wide character written in the
// last column pads the stranded continuation with a space and wraps.
func (g *Grid) WriteChar(r rune) {
	w := runewidth.RuneWidth(r)
	if w <= 0 {
		return
	}
	g.resolvePendingScroll()

	if w >= 2 && g.cursorX == g.cols-1 {
		g.lines[g.cursorY][g.cursorX] = Cell{Rune: r, Style: g.style, Wide: true}
		g.wrap()
		return
	}

	g.lines[g.cursorY][g.cursorX] = Cell{Rune: r, Style: g.style, Wide: w >= 2}
	if w >= 2 {
		g.lines[g.cursorY][g.cursorX+1] = Cell{Rune: ' ', Style: g.style, WideCont: true}
	}
	g.cursorX += w
	if g.cursorX >= g.cols {
		g.wrap()
	}
}

// WriteString writes each rune of s at the cursor.
func (g *Grid) WriteString(s string) {
	for _, r := range s {
		g.WriteChar(r)
	}
}

func (g *Grid) wrap() {
	g.cursorX = 0
	g.advanceRow()
}

func (g *Grid) advanceRow() {
	switch {
	case g.pendingScroll:
		g.ScrollUp(1)
	case g.cursorY+1 >= g.rows:
		g.pendingScroll = true
		g.cursorY = g.rows - 1
	default:
		g.cursorY++
	}
}

func (g *Grid) resolvePendingScroll() {
	if g.pendingScroll {
		g.ScrollUp(1)
		g.pendingScroll = false
	}
}

// Newline moves the cursor down one row, scrolling at the bottom.
func (g *Grid) Newline() { g.advanceRow() }

// CarriageReturn moves the cursor to column zero.
func (g *Grid) CarriageReturn() { g.cursorX = 0 }

// Tab snaps the cursor to the next multiple-of-8 column.
func (g *Grid) Tab() {
	g.cursorX = (g.cursorX/8 + 1) * 8
	if g.cursorX >= g.cols {
		g.cursorX = g.cols - 1
	}
}

// Backspace moves the cursor one column left without erasing.
func (g *Grid) Backspace() {
	if g.cursorX > 0 {
		g.cursorX--
	}
}

// ScrollUp moves the top n rows into scrollback (oldest first) and
// appends blank rows at the bottom. On the alternate screen evicted
// rows are discarded instead of retained.
func (g *Grid) ScrollUp(n int) {
	if n <= 0 {
		return
	}
	if n > g.rows {
		n = g.rows
	}
	if g.alt == nil {
		for i := 0; i < n; i++ {
			g.scrollback = append(g.scrollback, g.lines[i])
		}
		g.trimScrollback()
	}
	copy(g.lines, g.lines[n:])
	for i := g.rows - n; i < g.rows; i++ {
		g.lines[i] = newRow(g.cols, g.style)
	}
}

// ScrollDown removes the bottom n rows and prepends blank rows at the
// top. Scrollback is unaffected.
func (g *Grid) ScrollDown(n int) {
	if n <= 0 {
		return
	}
	if n > g.rows {
		n = g.rows
	}
	copy(g.lines[n:], g.lines[:g.rows-n])
	for i := 0; i < n; i++ {
		g.lines[i] = newRow(g.cols, g.style)
	}
}

func (g *Grid) trimScrollback() {
	if over := len(g.scrollback) - g.scrollbackLimit; over > 0 {
		g.scrollback = g.scrollback[over:]
	}
}

// ScrollbackLen returns the number of retained scrollback rows.
func (g *Grid) ScrollbackLen() int { return len(g.scrollback) }

// ScrollbackRow returns a scrollback row; index 0 is the oldest.
func (g *Grid) ScrollbackRow(i int) Row {
	if i < 0 || i >= len(g.scrollback) {
		return nil
	}
	return g.scrollback[i]
}

// SetScrollbackLimit changes the retention cap, trimming the oldest
// entries immediately.
func (g *Grid) SetScrollbackLimit(n int) {
	if n < 0 {
		n = 0
	}
	g.scrollbackLimit = n
	g.trimScrollback()
}

// ScrollbackLimit returns the retention cap.
func (g *Grid) ScrollbackLimit() int { return g.scrollbackLimit }

// ClearScrollback drops all retained scrollback rows.
func (g *Grid) ClearScrollback() { g.scrollback = nil }

// ViewRows returns the rows to display for a given scroll offset:
// 0 shows the live grid, positive offsets shift the window into
// scrollback by that many rows.
func (g *Grid) ViewRows(offset int) []Row {
	if offset <= 0 {
		return g.lines
	}
	if offset > len(g.scrollback) {
		offset = len(g.scrollback)
	}
	out := make([]Row, 0, g.rows)
	out = append(out, g.scrollback[len(g.scrollback)-offset:]...)
	remain := g.rows - len(out)
	if remain > 0 {
		out = append(out, g.lines[:remain]...)
	}
	return out[:g.rows]
}

// ClearToEOS clears from the cursor to the end of the screen.
func (g *Grid) ClearToEOS() {
	g.lines[g.cursorY].clearFrom(g.cursorX, g.style)
	for y := g.cursorY + 1; y < g.rows; y++ {
		g.lines[y].clearAll(g.style)
	}
}

// ClearToBOS clears from the start of the screen through the cursor.
func (g *Grid) ClearToBOS() {
	for y := 0; y < g.cursorY; y++ {
		g.lines[y].clearAll(g.style)
	}
	g.lines[g.cursorY].clearTo(g.cursorX, g.style)
}

// Clear clears the whole grid and homes the cursor.
func (g *Grid) Clear() {
	for y := 0; y < g.rows; y++ {
		g.lines[y].clearAll(g.style)
	}
	g.cursorX, g.cursorY = 0, 0
	g.pendingScroll = false
}

// ClearLine clears the cursor's row.
func (g *Grid) ClearLine() { g.lines[g.cursorY].clearAll(g.style) }

// ClearToEOL clears from the cursor to the end of its row.
func (g *Grid) ClearToEOL() { g.lines[g.cursorY].clearFrom(g.cursorX, g.style) }

// ClearToBOL clears from the start of the row through the cursor.
func (g *Grid) ClearToBOL() { g.lines[g.cursorY].clearTo(g.cursorX, g.style) }

// InsertLines inserts n blank rows at the cursor row, pushing rows below
// down and dropping overflow at the bottom.
func (g *Grid) InsertLines(n int) {
	if n <= 0 {
		return
	}
	if n > g.rows-g.cursorY {
		n = g.rows - g.cursorY
	}
	copy(g.lines[g.cursorY+n:], g.lines[g.cursorY:g.rows-n])
	for i := g.cursorY; i < g.cursorY+n; i++ {
		g.lines[i] = newRow(g.cols, g.style)
	}
}

// DeleteLines removes n rows at the cursor row, pulling rows below up
// and adding blanks at the bottom.
func (g *Grid) DeleteLines(n int) {
	if n <= 0 {
		return
	}
	if n > g.rows-g.cursorY {
		n = g.rows - g.cursorY
	}
	copy(g.lines[g.cursorY:], g.lines[g.cursorY+n:])
	for i := g.rows - n; i < g.rows; i++ {
		g.lines[i] = newRow(g.cols, g.style)
	}
}

// InsertChars inserts n blanks at the cursor column, shifting the rest
// of the row right.
func (g *Grid) InsertChars(n int) {
	if n <= 0 {
		return
	}
	row := g.lines[g.cursorY]
	if n > g.cols-g.cursorX {
		n = g.cols - g.cursorX
	}
	copy(row[g.cursorX+n:], row[g.cursorX:g.cols-n])
	for i := g.cursorX; i < g.cursorX+n; i++ {
		row[i] = blank(g.style)
	}
}

// DeleteChars removes n cells at the cursor column, shifting the rest
// of the row left and blanking the freed tail.
func (g *Grid) DeleteChars(n int) {
	if n <= 0 {
		return
	}
	row := g.lines[g.cursorY]
	if n > g.cols-g.cursorX {
		n = g.cols - g.cursorX
	}
	copy(row[g.cursorX:], row[g.cursorX+n:])
	for i := g.cols - n; i < g.cols; i++ {
		row[i] = blank(g.style)
	}
}

// Resize adjusts the grid to the new dimensions. Rows are added or
// removed at the bottom; the cursor is clamped.
func (g *Grid) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if cols == g.cols && rows == g.rows {
		return
	}
	for i := range g.lines {
		g.lines[i] = g.lines[i].resized(cols, Style{})
	}
	switch {
	case rows < g.rows:
		g.lines = g.lines[:rows]
	case rows > g.rows:
		for i := g.rows; i < rows; i++ {
			g.lines = append(g.lines, newRow(cols, Style{}))
		}
	}
	g.cols, g.rows = cols, rows
	g.cursorX = clamp(g.cursorX, 0, cols-1)
	g.cursorY = clamp(g.cursorY, 0, rows-1)
	g.pendingScroll = false
	g.clampSelection()
}

// EnterAlternateScreen swaps in a blank screen, saving the main screen
// contents and cursor. One level only; a no-op when already active.
func (g *Grid) EnterAlternateScreen() {
	if g.alt != nil {
		return
	}
	g.alt = &altSnapshot{
		lines: g.lines,
		x:     g.cursorX,
		y:     g.cursorY,
		saved: g.saved,
	}
	g.lines = make([]Row, g.rows)
	for i := range g.lines {
		g.lines[i] = newRow(g.cols, Style{})
	}
	g.cursorX, g.cursorY = 0, 0
	g.pendingScroll = false
	g.saved = nil
}

// ExitAlternateScreen restores the saved main screen. A no-op when the
// alternate screen is not active.
func (g *Grid) ExitAlternateScreen() {
	if g.alt == nil {
		return
	}
	g.lines = g.alt.lines
	g.cursorX, g.cursorY = g.alt.x, g.alt.y
	g.saved = g.alt.saved
	g.alt = nil
	// Dims may have changed while the alternate screen was active.
	if len(g.lines) != g.rows || (len(g.lines) > 0 && len(g.lines[0]) != g.cols) {
		rows, cols := g.rows, g.cols
		g.rows = len(g.lines)
		if g.rows > 0 {
			g.cols = len(g.lines[0])
		}
		g.Resize(cols, rows)
	}
	g.cursorX = clamp(g.cursorX, 0, g.cols-1)
	g.cursorY = clamp(g.cursorY, 0, g.rows-1)
}

// AlternateActive reports whether the alternate screen is in use.
func (g *Grid) AlternateActive() bool { return g.alt != nil }

// SaveCursor records the cursor position and style (one slot).
func (g *Grid) SaveCursor() {
	g.saved = &savedCursor{x: g.cursorX, y: g.cursorY, style: g.style}
}

// RestoreCursor restores the saved cursor; a no-op when nothing saved.
func (g *Grid) RestoreCursor() {
	if g.saved == nil {
		return
	}
	g.cursorX = clamp(g.saved.x, 0, g.cols-1)
	g.cursorY = clamp(g.saved.y, 0, g.rows-1)
	g.style = g.saved.style
}

// Apply mutates the grid according to a grid-scoped parser action.
// Terminal-scoped actions (bell, title, cwd, status report) are the
// owning Terminal's business and are ignored here.
func (g *Grid) Apply(a Action) {
	switch a.Kind {
	case ActionPrint:
		g.WriteString(a.Text)
	case ActionCursorUp:
		g.MoveCursor(0, -a.N)
	case ActionCursorDown:
		g.MoveCursor(0, a.N)
	case ActionCursorForward:
		g.MoveCursor(a.N, 0)
	case ActionCursorBack:
		g.MoveCursor(-a.N, 0)
	case ActionCursorPosition:
		g.SetCursorPos(a.Col, a.Row)
	case ActionResetStyle:
		g.style = Style{}
	case ActionSetAttr:
		g.style.Attr |= a.Attr
	case ActionUnsetAttr:
		g.style.Attr &^= a.Attr
	case ActionSetFg:
		g.style.Fg = a.Color
	case ActionSetBg:
		g.style.Bg = a.Color
	case ActionEraseDisplay:
		switch a.N {
		case 0:
			g.ClearToEOS()
		case 1:
			g.ClearToBOS()
		default:
			g.Clear()
			if a.N == 3 {
				g.ClearScrollback()
			}
		}
	case ActionEraseLine:
		switch a.N {
		case 0:
			g.ClearToEOL()
		case 1:
			g.ClearToBOL()
		default:
			g.ClearLine()
		}
	case ActionScrollUp:
		g.ScrollUp(a.N)
	case ActionScrollDown:
		g.ScrollDown(a.N)
	case ActionSaveCursor:
		g.SaveCursor()
	case ActionRestoreCursor:
		g.RestoreCursor()
	case ActionHideCursor:
		g.cursorVisible = false
	case ActionShowCursor:
		g.cursorVisible = true
	case ActionEnterAlternateScreen:
		g.EnterAlternateScreen()
	case ActionExitAlternateScreen:
		g.ExitAlternateScreen()
	case ActionBackspace:
		g.Backspace()
	case ActionTab:
		g.Tab()
	case ActionLineFeed:
		g.Newline()
	case ActionCarriageReturn:
		g.CarriageReturn()
	case ActionSetCursorShape:
		g.cursorShape = CursorShape(a.N)
	case ActionInsertLines:
		g.InsertLines(a.N)
	case ActionDeleteLines:
		g.DeleteLines(a.N)
	case ActionInsertChars:
		g.InsertChars(a.N)
	case ActionDeleteChars:
		g.DeleteChars(a.N)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
