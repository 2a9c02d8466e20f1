package term

// Attr is a bit-set of SGR text attributes.
type Attr uint16

const (
	AttrBold Attr = 1 << iota
	AttrDim
	AttrItalic
	AttrUnderline
	AttrBlink
	AttrReverse
	AttrHidden
	AttrStrikethrough
)

// ColorMode selects how a Color value is interpreted.
type ColorMode uint8

const (
	// ColorModeDefault maps to the theme default at render time.
	ColorModeDefault ColorMode = iota
	// ColorModeANSI is one of the 16 named colors (index 0-15).
	ColorModeANSI
	// ColorModeIndexed is a 256-color palette index.
	ColorModeIndexed
	// ColorModeRGB is 24-bit truecolor.
	ColorModeRGB
)

// Color is a terminal color: default, one of the 16 named ANSI colors,
// a 256-palette index, or an RGB triple.
type Color struct {
	Mode    ColorMode
	Index   uint8
	R, G, B uint8
}

// DefaultColor is the unset color that renders as the theme default.
var DefaultColor = Color{}

// ANSIColor returns a named 16-color value. n is 0-7 for the standard
// colors and 8-15 for the bright variants.
func ANSIColor(n uint8) Color { return Color{Mode: ColorModeANSI, Index: n & 0x0f} }

// IndexedColor returns a 256-palette color.
func IndexedColor(n uint8) Color { return Color{Mode: ColorModeIndexed, Index: n} }

// RGBColor returns a 24-bit color.
func RGBColor(r, g, b uint8) Color { return Color{Mode: ColorModeRGB, R: r, G: g, B: b} }

// The 16 named ANSI colors.
var (
	ColorBlack   = ANSIColor(0)
	ColorRed     = ANSIColor(1)
	ColorGreen   = ANSIColor(2)
	ColorYellow  = ANSIColor(3)
	ColorBlue    = ANSIColor(4)
	ColorMagenta = ANSIColor(5)
	ColorCyan    = ANSIColor(6)
	ColorWhite   = ANSIColor(7)

	ColorBrightBlack   = ANSIColor(8)
	ColorBrightRed     = ANSIColor(9)
	ColorBrightGreen   = ANSIColor(10)
	ColorBrightYellow  = ANSIColor(11)
	ColorBrightBlue    = ANSIColor(12)
	ColorBrightMagenta = ANSIColor(13)
	ColorBrightCyan    = ANSIColor(14)
	ColorBrightWhite   = ANSIColor(15)
)

// IsDefault reports whether c renders as the theme default.
func (c Color) IsDefault() bool { return c.Mode == ColorModeDefault }

// Style is the rendition applied to a cell.
type Style struct {
	Fg   Color
	Bg   Color
	Attr Attr
}

// Cell is one character position in the grid. A wide character occupies
// two columns: the first cell carries the rune with Wide set, the second
// is a placeholder with WideCont set.
type Cell struct {
	Rune     rune
	Style    Style
	Wide     bool
	WideCont bool
}

// blank returns an empty cell carrying the given style.
func blank(style Style) Cell {
	return Cell{Rune: ' ', Style: style}
}

// Row is one fixed-width line of cells.
type Row []Cell

func newRow(cols int, style Style) Row {
	r := make(Row, cols)
	for i := range r {
		r[i] = blank(style)
	}
	return r
}

// clearAll resets every cell in the row.
func (r Row) clearAll(style Style) {
	for i := range r {
		r[i] = blank(style)
	}
}

// clearFrom resets cells from col (inclusive) to the end of the row.
func (r Row) clearFrom(col int, style Style) {
	if col < 0 {
		col = 0
	}
	for i := col; i < len(r); i++ {
		r[i] = blank(style)
	}
}

// clearTo resets cells from the start of the row through col (inclusive).
func (r Row) clearTo(col int, style Style) {
	if col >= len(r) {
		col = len(r) - 1
	}
	for i := 0; i <= col; i++ {
		r[i] = blank(style)
	}
}

// resized returns the row adjusted to cols, padding with blanks or
// truncating on the right.
func (r Row) resized(cols int, style Style) Row {
	if cols == len(r) {
		return r
	}
	if cols < len(r) {
		return r[:cols]
	}
	out := make(Row, cols)
	copy(out, r)
	for i := len(r); i < cols; i++ {
		out[i] = blank(style)
	}
	return out
}
