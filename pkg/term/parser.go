package term

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"unicode/utf8"
)

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEsc
	stateCharset
)

const maxOSCLen = 2048

// Parser converts a terminal byte stream into Actions. It is a state
// machine over the ECMA-48/xterm subset and is resumable: bytes may be
// fed in arbitrary chunks, including splits inside multi-byte UTF-8
// sequences and escape sequences.
//
// The parser never fails; unrecognized sequences become ActionUnknown.
type Parser struct {
	state        parserState
	params       []int
	currentParam int
	private      bool
	intermediate byte
	oscBuffer    []byte
	partial      []byte // incomplete UTF-8 tail from the previous Parse
	print        strings.Builder
	actions      []Action
}

// NewParser returns a parser in the ground state.
func NewParser() *Parser {
	return &Parser{
		params:    make([]int, 0, 16),
		oscBuffer: make([]byte, 0, 128),
	}
}

// Parse consumes data and returns the decoded actions in order.
// Contiguous printable characters are batched into a single Print.
// The returned slice is only valid until the next Parse call.
func (p *Parser) Parse(data []byte) []Action {
	p.actions = p.actions[:0]

	if len(p.partial) > 0 {
		data = append(p.partial, data...)
		p.partial = nil
	}

	i := 0
	for i < len(data) {
		b := data[i]

		if p.state == stateGround && b >= 0x80 {
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size == 1 {
				if !utf8.FullRune(data[i:]) {
					// Incomplete sequence at the end of the chunk.
					p.partial = append(p.partial, data[i:]...)
					break
				}
				// Genuinely invalid byte: drop it.
				i++
				continue
			}
			p.print.WriteRune(r)
			i += size
			continue
		}

		p.step(b)
		i++
	}

	p.flushPrint()
	return p.actions
}

func (p *Parser) step(b byte) {
	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateCSI:
		p.csi(b)
	case stateOSC:
		p.osc(b)
	case stateOSCEsc:
		// ESC inside OSC: backslash is the ST terminator.
		if b == '\\' {
			p.handleOSC()
			p.state = stateGround
		} else {
			p.oscBuffer = p.oscBuffer[:0]
			p.state = stateEscape
			p.escape(b)
		}
	case stateCharset:
		// Designation byte consumed; charset switching is not modeled.
		p.state = stateGround
	}
}

func (p *Parser) ground(b byte) {
	switch b {
	case 0x1b:
		p.flushPrint()
		p.state = stateEscape
	case 0x07:
		p.emit(Action{Kind: ActionBell})
	case 0x08:
		p.emit(Action{Kind: ActionBackspace})
	case 0x09:
		p.emit(Action{Kind: ActionTab})
	case 0x0a, 0x0b, 0x0c:
		p.emit(Action{Kind: ActionLineFeed})
	case 0x0d:
		p.emit(Action{Kind: ActionCarriageReturn})
	case 0x00, 0x0e, 0x0f:
		// NUL and charset shifts: ignored.
	default:
		if b < 0x20 || b == 0x7f {
			return
		}
		p.print.WriteByte(b)
	}
}

func (p *Parser) escape(b byte) {
	switch b {
	case '[':
		p.state = stateCSI
		p.params = p.params[:0]
		p.currentParam = 0
		p.private = false
		p.intermediate = 0
	case ']':
		p.state = stateOSC
		p.oscBuffer = p.oscBuffer[:0]
	case '(', ')':
		p.state = stateCharset
	case '7':
		p.emit(Action{Kind: ActionSaveCursor})
		p.state = stateGround
	case '8':
		p.emit(Action{Kind: ActionRestoreCursor})
		p.state = stateGround
	case 'D':
		p.emit(Action{Kind: ActionLineFeed})
		p.state = stateGround
	case 'E':
		p.emit(Action{Kind: ActionLineFeed})
		p.emit(Action{Kind: ActionCarriageReturn})
		p.state = stateGround
	case 'M':
		p.emit(Action{Kind: ActionScrollDown, N: 1})
		p.state = stateGround
	case '=', '>', '\\':
		p.state = stateGround
	default:
		p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("ESC %c", b)})
		p.state = stateGround
	}
}

func (p *Parser) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		p.currentParam = p.currentParam*10 + int(b-'0')
	case b == ';':
		p.params = append(p.params, p.currentParam)
		p.currentParam = 0
	case b == '?':
		p.private = true
	case b >= 0x20 && b <= 0x2f:
		p.intermediate = b
	case b >= '@' && b <= '~':
		p.params = append(p.params, p.currentParam)
		p.dispatchCSI(b)
		p.state = stateGround
	default:
		// Stray control byte inside CSI: abort the sequence.
		p.state = stateGround
	}
}

// param returns the i-th parameter, substituting def when the parameter
// is absent or zero.
func (p *Parser) param(i, def int) int {
	if i >= len(p.params) || p.params[i] == 0 {
		return def
	}
	return p.params[i]
}

// rawParam returns the i-th parameter preserving zero.
func (p *Parser) rawParam(i, def int) int {
	if i >= len(p.params) {
		return def
	}
	return p.params[i]
}

func (p *Parser) dispatchCSI(final byte) {
	switch final {
	case 'A':
		p.emit(Action{Kind: ActionCursorUp, N: p.param(0, 1)})
	case 'B':
		p.emit(Action{Kind: ActionCursorDown, N: p.param(0, 1)})
	case 'C':
		p.emit(Action{Kind: ActionCursorForward, N: p.param(0, 1)})
	case 'D':
		p.emit(Action{Kind: ActionCursorBack, N: p.param(0, 1)})
	case 'H', 'f':
		p.emit(Action{Kind: ActionCursorPosition, Row: p.param(0, 1) - 1, Col: p.param(1, 1) - 1})
	case 'J':
		p.emit(Action{Kind: ActionEraseDisplay, N: p.rawParam(0, 0)})
	case 'K':
		p.emit(Action{Kind: ActionEraseLine, N: p.rawParam(0, 0)})
	case 'S':
		p.emit(Action{Kind: ActionScrollUp, N: p.param(0, 1)})
	case 'T':
		p.emit(Action{Kind: ActionScrollDown, N: p.param(0, 1)})
	case 'L':
		p.emit(Action{Kind: ActionInsertLines, N: p.param(0, 1)})
	case 'M':
		p.emit(Action{Kind: ActionDeleteLines, N: p.param(0, 1)})
	case '@':
		p.emit(Action{Kind: ActionInsertChars, N: p.param(0, 1)})
	case 'P':
		p.emit(Action{Kind: ActionDeleteChars, N: p.param(0, 1)})
	case 'm':
		p.dispatchSGR()
	case 'h':
		p.dispatchMode(true)
	case 'l':
		p.dispatchMode(false)
	case 'n':
		if p.rawParam(0, 0) == 6 {
			p.emit(Action{Kind: ActionDeviceStatusReport})
		} else {
			p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("CSI %d n", p.rawParam(0, 0))})
		}
	case 'q':
		if p.intermediate == ' ' {
			p.emit(Action{Kind: ActionSetCursorShape, N: int(cursorShapeFromParam(p.rawParam(0, 0)))})
		} else {
			p.emit(Action{Kind: ActionUnknown, Text: "CSI q"})
		}
	default:
		p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("CSI %c", final)})
	}
}

func (p *Parser) dispatchMode(set bool) {
	if !p.private {
		p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("CSI %d h/l", p.rawParam(0, 0))})
		return
	}
	switch p.rawParam(0, 0) {
	case 25:
		if set {
			p.emit(Action{Kind: ActionShowCursor})
		} else {
			p.emit(Action{Kind: ActionHideCursor})
		}
	case 1049, 1047, 47:
		if set {
			p.emit(Action{Kind: ActionEnterAlternateScreen})
		} else {
			p.emit(Action{Kind: ActionExitAlternateScreen})
		}
	default:
		p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("CSI ?%d h/l", p.rawParam(0, 0))})
	}
}

// dispatchSGR decodes Select Graphic Rendition parameters into style
// actions. An empty parameter list is a full reset.
func (p *Parser) dispatchSGR() {
	for i := 0; i < len(p.params); i++ {
		n := p.params[i]
		switch {
		case n == 0:
			p.emit(Action{Kind: ActionResetStyle})
		case n == 1:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrBold})
		case n == 2:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrDim})
		case n == 3:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrItalic})
		case n == 4:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrUnderline})
		case n == 5:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrBlink})
		case n == 7:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrReverse})
		case n == 8:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrHidden})
		case n == 9:
			p.emit(Action{Kind: ActionSetAttr, Attr: AttrStrikethrough})
		case n == 22:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrBold | AttrDim})
		case n == 23:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrItalic})
		case n == 24:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrUnderline})
		case n == 25:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrBlink})
		case n == 27:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrReverse})
		case n == 28:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrHidden})
		case n == 29:
			p.emit(Action{Kind: ActionUnsetAttr, Attr: AttrStrikethrough})
		case n >= 30 && n <= 37:
			p.emit(Action{Kind: ActionSetFg, Color: ANSIColor(uint8(n - 30))})
		case n == 38:
			if c, skip, ok := p.extendedColor(i); ok {
				p.emit(Action{Kind: ActionSetFg, Color: c})
				i += skip
			} else {
				return
			}
		case n == 39:
			p.emit(Action{Kind: ActionSetFg, Color: DefaultColor})
		case n >= 40 && n <= 47:
			p.emit(Action{Kind: ActionSetBg, Color: ANSIColor(uint8(n - 40))})
		case n == 48:
			if c, skip, ok := p.extendedColor(i); ok {
				p.emit(Action{Kind: ActionSetBg, Color: c})
				i += skip
			} else {
				return
			}
		case n == 49:
			p.emit(Action{Kind: ActionSetBg, Color: DefaultColor})
		case n >= 90 && n <= 97:
			p.emit(Action{Kind: ActionSetFg, Color: ANSIColor(uint8(n - 90 + 8))})
		case n >= 100 && n <= 107:
			p.emit(Action{Kind: ActionSetBg, Color: ANSIColor(uint8(n - 100 + 8))})
		default:
			p.emit(Action{Kind: ActionUnknown, Text: fmt.Sprintf("SGR %d", n)})
		}
	}
}

// extendedColor decodes the 38/48 sub-parameters starting after index i.
// Returns the color, the number of parameters consumed, and whether the
// form was well-formed.
func (p *Parser) extendedColor(i int) (Color, int, bool) {
	if i+1 >= len(p.params) {
		return Color{}, 0, false
	}
	switch p.params[i+1] {
	case 5:
		if i+2 >= len(p.params) {
			return Color{}, 0, false
		}
		return IndexedColor(uint8(p.params[i+2])), 2, true
	case 2:
		if i+4 >= len(p.params) {
			return Color{}, 0, false
		}
		return RGBColor(uint8(p.params[i+2]), uint8(p.params[i+3]), uint8(p.params[i+4])), 4, true
	default:
		return Color{}, 0, false
	}
}

func (p *Parser) osc(b byte) {
	switch b {
	case 0x07:
		p.handleOSC()
		p.state = stateGround
	case 0x1b:
		p.state = stateOSCEsc
	default:
		if len(p.oscBuffer) < maxOSCLen {
			p.oscBuffer = append(p.oscBuffer, b)
		}
	}
}

// handleOSC processes a complete Operating System Command.
func (p *Parser) handleOSC() {
	buf := string(p.oscBuffer)
	p.oscBuffer = p.oscBuffer[:0]

	cmd, rest, found := strings.Cut(buf, ";")
	if !found {
		return
	}

	switch cmd {
	case "0", "2":
		p.emit(Action{Kind: ActionSetTitle, Text: rest})
	case "7":
		if path, ok := parseOSC7(rest); ok {
			p.emit(Action{Kind: ActionSetCwd, Text: path})
		}
	case "8":
		// OSC 8 ; params ; url
		params, u, ok := strings.Cut(rest, ";")
		if !ok {
			return
		}
		id := ""
		for _, kv := range strings.Split(params, ":") {
			if v, found := strings.CutPrefix(kv, "id="); found {
				id = v
			}
		}
		p.emit(Action{Kind: ActionHyperlink, Text: u, ID: id})
	default:
		p.emit(Action{Kind: ActionUnknown, Text: "OSC " + cmd})
	}
}

// parseOSC7 extracts the path from a file:// URL as emitted by shells
// reporting their working directory.
func parseOSC7(raw string) (string, bool) {
	rest, found := strings.CutPrefix(raw, "file://")
	if !found {
		return "", false
	}
	// Strip the optional host part before the first slash.
	if idx := strings.IndexByte(rest, '/'); idx > 0 {
		rest = rest[idx:]
	} else if idx < 0 {
		return "", false
	}
	path, err := url.PathUnescape(rest)
	if err != nil {
		path = rest
	}
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	if path == "" {
		return "", false
	}
	return path, true
}

func (p *Parser) emit(a Action) {
	p.flushPrint()
	p.actions = append(p.actions, a)
}

func (p *Parser) flushPrint() {
	if p.print.Len() == 0 {
		return
	}
	p.actions = append(p.actions, Action{Kind: ActionPrint, Text: p.print.String()})
	p.print.Reset()
}
