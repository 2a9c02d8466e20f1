package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ratterm/pkg/term"
)

// Theme groups the lipgloss styles used by the chrome around the
// terminal grids. Cell content inside a pane is rendered with raw SGR
// sequences (see renderRow); lipgloss only dresses the furniture.
type Theme struct {
	TabActive   lipgloss.Style
	TabInactive lipgloss.Style
	StatusBar   lipgloss.Style
	StatusError lipgloss.Style

	BorderFocused   lipgloss.Style
	BorderUnfocused lipgloss.Style

	PopupBorder lipgloss.Style
	PopupTitle  lipgloss.Style
	Selected    lipgloss.Style
	Dim         lipgloss.Style
	Error       lipgloss.Style
	Success     lipgloss.Style
}

// DefaultTheme returns the standard dark palette.
func DefaultTheme() Theme {
	return Theme{
		TabActive:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Background(lipgloss.Color("236")).Padding(0, 1),
		TabInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1),
		StatusBar:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("235")),
		StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Background(lipgloss.Color("235")),

		BorderFocused:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("212")),
		BorderUnfocused: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")),

		PopupBorder: lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1),
		PopupTitle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Selected:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Dim:         lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Success:     lipgloss.NewStyle().Foreground(lipgloss.Color("83")),
	}
}

// sgr renders a cell style as an ANSI SGR sequence, always starting
// from a reset so cells never leak attributes into each other.
func sgr(s term.Style) string {
	var b strings.Builder
	b.WriteString("\x1b[0")
	if s.Attr&term.AttrBold != 0 {
		b.WriteString(";1")
	}
	if s.Attr&term.AttrDim != 0 {
		b.WriteString(";2")
	}
	if s.Attr&term.AttrItalic != 0 {
		b.WriteString(";3")
	}
	if s.Attr&term.AttrUnderline != 0 {
		b.WriteString(";4")
	}
	if s.Attr&term.AttrBlink != 0 {
		b.WriteString(";5")
	}
	if s.Attr&term.AttrReverse != 0 {
		b.WriteString(";7")
	}
	if s.Attr&term.AttrHidden != 0 {
		b.WriteString(";8")
	}
	if s.Attr&term.AttrStrikethrough != 0 {
		b.WriteString(";9")
	}
	writeColor(&b, s.Fg, false)
	writeColor(&b, s.Bg, true)
	b.WriteByte('m')
	return b.String()
}

func writeColor(b *strings.Builder, c term.Color, bg bool) {
	switch c.Mode {
	case term.ColorModeANSI:
		base := 30
		if c.Index >= 8 {
			base = 90 - 8
		}
		if bg {
			base += 10
		}
		fmt.Fprintf(b, ";%d", base+int(c.Index))
	case term.ColorModeIndexed:
		if bg {
			fmt.Fprintf(b, ";48;5;%d", c.Index)
		} else {
			fmt.Fprintf(b, ";38;5;%d", c.Index)
		}
	case term.ColorModeRGB:
		if bg {
			fmt.Fprintf(b, ";48;2;%d;%d;%d", c.R, c.G, c.B)
		} else {
			fmt.Fprintf(b, ";38;2;%d;%d;%d", c.R, c.G, c.B)
		}
	}
}

// renderRow turns one grid row into a styled line, merging runs of
// identical style into a single SGR sequence. Selected cells render
// reversed. cursorX >= 0 marks the cursor cell.
func renderRow(row term.Row, selected func(col int) bool, cursorX int) string {
	var b strings.Builder
	last := ""
	for col, cell := range row {
		if cell.WideCont {
			continue
		}
		style := cell.Style
		if selected != nil && selected(col) {
			style.Attr ^= term.AttrReverse
		}
		if col == cursorX {
			style.Attr ^= term.AttrReverse
		}
		if seq := sgr(style); seq != last {
			b.WriteString(seq)
			last = seq
		}
		r := cell.Rune
		if r == 0 {
			r = ' '
		}
		b.WriteRune(r)
	}
	b.WriteString("\x1b[0m")
	return b.String()
}
