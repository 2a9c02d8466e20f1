package term

import (
	"reflect"
	"testing"
)

func collect(p *Parser, data []byte) []Action {
	out := p.Parse(data)
	cp := make([]Action, len(out))
	copy(cp, out)
	return cp
}

func TestSGRThenPrint(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b[31mHello"))

	want := []Action{
		{Kind: ActionSetFg, Color: ColorRed},
		{Kind: ActionPrint, Text: "Hello"},
	}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}

	g := NewGrid(80, 24)
	for _, a := range actions {
		g.Apply(a)
	}
	for i, r := range "Hello" {
		c := g.Cell(i, 0)
		if c.Rune != r {
			t.Errorf("cell %d = %q, want %q", i, c.Rune, r)
		}
		if c.Style.Fg != ColorRed {
			t.Errorf("cell %d fg = %v, want red", i, c.Style.Fg)
		}
	}
	if x, y := g.Cursor(); x != 5 || y != 0 {
		t.Errorf("cursor = (%d,%d), want (5,0)", x, y)
	}
}

func TestDeviceStatusReport(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b[6n"))
	if len(actions) != 1 || actions[0].Kind != ActionDeviceStatusReport {
		t.Fatalf("actions = %v, want [DeviceStatusReport]", actions)
	}
	// Cursor at (col=4,row=2) replies 1-based.
	if got := dsrReply(4, 2); got != "\x1b[3;5R" {
		t.Errorf("dsrReply(4,2) = %q, want %q", got, "\x1b[3;5R")
	}
}

func TestOSC7Cwd(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", "\x1b]7;file:///home/alice/src\x07", "/home/alice/src", true},
		{"with host", "\x1b]7;file://box/home/alice\x07", "/home/alice", true},
		{"url encoded", "\x1b]7;file:///home/a%20b\x07", "/home/a b", true},
		{"st terminated", "\x1b]7;file:///tmp\x1b\\", "/tmp", true},
		{"not a file url", "\x1b]7;http://x/y\x07", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			actions := collect(p, []byte(tt.input))
			if !tt.ok {
				for _, a := range actions {
					if a.Kind == ActionSetCwd {
						t.Fatalf("unexpected SetCwd action: %v", a)
					}
				}
				return
			}
			if len(actions) != 1 || actions[0].Kind != ActionSetCwd {
				t.Fatalf("actions = %v, want one SetCwd", actions)
			}
			if actions[0].Text != tt.want {
				t.Errorf("cwd = %q, want %q", actions[0].Text, tt.want)
			}
		})
	}
}

func TestTitleAndHyperlink(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b]0;my title\x07"))
	if len(actions) != 1 || actions[0].Kind != ActionSetTitle || actions[0].Text != "my title" {
		t.Fatalf("actions = %v, want SetTitle(my title)", actions)
	}

	actions = collect(p, []byte("\x1b]8;id=x;https://example.com\x07"))
	if len(actions) != 1 || actions[0].Kind != ActionHyperlink {
		t.Fatalf("actions = %v, want Hyperlink", actions)
	}
	if actions[0].Text != "https://example.com" || actions[0].ID != "x" {
		t.Errorf("hyperlink = %q id=%q", actions[0].Text, actions[0].ID)
	}
}

func TestSGRColorForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Action
	}{
		{
			"empty resets",
			"\x1b[m",
			[]Action{{Kind: ActionResetStyle}},
		},
		{
			"indexed fg",
			"\x1b[38;5;196m",
			[]Action{{Kind: ActionSetFg, Color: IndexedColor(196)}},
		},
		{
			"rgb bg",
			"\x1b[48;2;10;20;30m",
			[]Action{{Kind: ActionSetBg, Color: RGBColor(10, 20, 30)}},
		},
		{
			"bright fg",
			"\x1b[92m",
			[]Action{{Kind: ActionSetFg, Color: ColorBrightGreen}},
		},
		{
			"bright bg",
			"\x1b[101m",
			[]Action{{Kind: ActionSetBg, Color: ColorBrightRed}},
		},
		{
			"bold red on default",
			"\x1b[0;1;31;49m",
			[]Action{
				{Kind: ActionResetStyle},
				{Kind: ActionSetAttr, Attr: AttrBold},
				{Kind: ActionSetFg, Color: ColorRed},
				{Kind: ActionSetBg, Color: DefaultColor},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			got := collect(p, []byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("actions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCursorMovementDefaults(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b[A\x1b[3B\x1b[0C\x1b[H\x1b[5;10H"))
	want := []Action{
		{Kind: ActionCursorUp, N: 1},
		{Kind: ActionCursorDown, N: 3},
		{Kind: ActionCursorForward, N: 1},
		{Kind: ActionCursorPosition, Row: 0, Col: 0},
		{Kind: ActionCursorPosition, Row: 4, Col: 9},
	}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
}

func TestPrivateModes(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b[?25l\x1b[?25h\x1b[?1049h\x1b[?1049l"))
	want := []Action{
		{Kind: ActionHideCursor},
		{Kind: ActionShowCursor},
		{Kind: ActionEnterAlternateScreen},
		{Kind: ActionExitAlternateScreen},
	}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
}

func TestCursorShape(t *testing.T) {
	tests := []struct {
		input string
		want  CursorShape
	}{
		{"\x1b[0 q", CursorShapeBlock},
		{"\x1b[2 q", CursorShapeBlock},
		{"\x1b[3 q", CursorShapeUnderline},
		{"\x1b[6 q", CursorShapeBar},
	}
	for _, tt := range tests {
		p := NewParser()
		actions := collect(p, []byte(tt.input))
		if len(actions) != 1 || actions[0].Kind != ActionSetCursorShape {
			t.Fatalf("%q: actions = %v", tt.input, actions)
		}
		if CursorShape(actions[0].N) != tt.want {
			t.Errorf("%q: shape = %d, want %d", tt.input, actions[0].N, tt.want)
		}
	}
}

func TestUnknownSequencesNeverError(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b[999z\x1bQ\x1b]99;stuff\x07"))
	for _, a := range actions {
		if a.Kind != ActionUnknown {
			t.Errorf("unexpected action %v", a)
		}
	}
	if len(actions) != 3 {
		t.Errorf("got %d actions, want 3", len(actions))
	}
}

// Parsing the concatenation of two slices must equal parsing them
// sequentially when the split falls between complete sequences.
func TestParserSplitDeterminism(t *testing.T) {
	first := []byte("\x1b[1;32mgreen\r\n")
	second := []byte("\x1b[0mplain\x1b[2J")

	whole := NewParser()
	all := collect(whole, append(append([]byte{}, first...), second...))

	split := NewParser()
	seq := collect(split, first)
	seq = append(seq, collect(split, second)...)

	if !reflect.DeepEqual(all, seq) {
		t.Fatalf("whole = %v, split = %v", all, seq)
	}
}

func TestUTF8AcrossChunks(t *testing.T) {
	p := NewParser()
	data := []byte("héllo")
	var actions []Action
	// Feed byte by byte, splitting the two-byte é.
	for i := range data {
		actions = append(actions, collect(p, data[i:i+1])...)
	}
	var text string
	for _, a := range actions {
		if a.Kind != ActionPrint {
			t.Fatalf("unexpected action %v", a)
		}
		text += a.Text
	}
	if text != "héllo" {
		t.Errorf("text = %q, want %q", text, "héllo")
	}
}

func TestEscSequences(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("\x1b7\x1b8\x1bM"))
	want := []Action{
		{Kind: ActionSaveCursor},
		{Kind: ActionRestoreCursor},
		{Kind: ActionScrollDown, N: 1},
	}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
}

func TestPrintBatching(t *testing.T) {
	p := NewParser()
	actions := collect(p, []byte("abc def"))
	if len(actions) != 1 || actions[0].Kind != ActionPrint || actions[0].Text != "abc def" {
		t.Fatalf("actions = %v, want one Print(abc def)", actions)
	}
}
