package term

import "fmt"

// ActionKind enumerates the typed terminal actions the parser produces.
type ActionKind int

const (
	ActionPrint ActionKind = iota
	ActionCursorUp
	ActionCursorDown
	ActionCursorForward
	ActionCursorBack
	ActionCursorPosition
	ActionResetStyle
	ActionSetAttr
	ActionUnsetAttr
	ActionSetFg
	ActionSetBg
	ActionEraseDisplay
	ActionEraseLine
	ActionScrollUp
	ActionScrollDown
	ActionSaveCursor
	ActionRestoreCursor
	ActionHideCursor
	ActionShowCursor
	ActionEnterAlternateScreen
	ActionExitAlternateScreen
	ActionBell
	ActionBackspace
	ActionTab
	ActionLineFeed
	ActionCarriageReturn
	ActionSetTitle
	ActionSetCursorShape
	ActionInsertLines
	ActionDeleteLines
	ActionInsertChars
	ActionDeleteChars
	ActionDeviceStatusReport
	ActionHyperlink
	ActionSetCwd
	ActionUnknown
)

// Action is one decoded terminal instruction. Fields are used according
// to Kind: Text for Print/SetTitle/SetCwd/Hyperlink/Unknown, N for counts
// and modes, Row/Col for absolute positioning (1-based on the wire,
// converted to 0-based here), Attr for SetAttr/UnsetAttr, Color for
// SetFg/SetBg, ID for the hyperlink id.
type Action struct {
	Kind  ActionKind
	Text  string
	N     int
	Row   int
	Col   int
	Attr  Attr
	Color Color
	ID    string
}

func (a Action) String() string {
	switch a.Kind {
	case ActionPrint:
		return fmt.Sprintf("Print(%q)", a.Text)
	case ActionCursorPosition:
		return fmt.Sprintf("CursorPosition(%d,%d)", a.Row, a.Col)
	case ActionSetFg:
		return fmt.Sprintf("SetFg(%v)", a.Color)
	case ActionSetBg:
		return fmt.Sprintf("SetBg(%v)", a.Color)
	case ActionSetCwd:
		return fmt.Sprintf("SetCwd(%q)", a.Text)
	case ActionUnknown:
		return fmt.Sprintf("Unknown(%s)", a.Text)
	default:
		return fmt.Sprintf("Action(kind=%d n=%d)", a.Kind, a.N)
	}
}

// CursorShape values carried by ActionSetCursorShape, following the
// DECSCUSR parameter mapping.
type CursorShape int

const (
	CursorShapeBlock CursorShape = iota
	CursorShapeUnderline
	CursorShapeBar
)

// cursorShapeFromParam maps a DECSCUSR parameter to a shape. 0-2 select
// a block, 3-4 an underline, 5-6 a bar.
func cursorShapeFromParam(p int) CursorShape {
	switch {
	case p <= 2:
		return CursorShapeBlock
	case p <= 4:
		return CursorShapeUnderline
	default:
		return CursorShapeBar
	}
}
