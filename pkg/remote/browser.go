package remote

import (
	"strings"

	"ratterm/pkg/term"
)

// MaxBrowserEntries caps how many rows one directory listing shows.
const MaxBrowserEntries = 500

// Browser walks a remote filesystem through a FileManager. The parent
// entry ".." always sorts first; directories come before files.
type Browser struct {
	mgr *FileManager
	ctx term.SSHContext

	cwd     string
	entries []DirEntry
	filter  string

	cursor int
	scroll int
	height int
}

// NewBrowser opens a browser rooted at startDir (the terminal's cwd,
// usually). height is the visible window in rows.
func NewBrowser(mgr *FileManager, ctx term.SSHContext, startDir string, height int) (*Browser, error) {
	if height <= 0 {
		height = 20
	}
	b := &Browser{mgr: mgr, ctx: ctx, cwd: startDir, height: height}
	if err := b.Refresh(); err != nil {
		return nil, err
	}
	return b, nil
}

// Cwd returns the directory being shown.
func (b *Browser) Cwd() string { return b.cwd }

// Ctx returns the SSH context this browser runs against.
func (b *Browser) Ctx() term.SSHContext { return b.ctx }

// Filter returns the active filter string.
func (b *Browser) Filter() string { return b.filter }

// Refresh reloads the current directory.
func (b *Browser) Refresh() error {
	c, err := b.mgr.Client(b.ctx)
	if err != nil {
		return err
	}
	entries, err := c.ListDir(b.cwd)
	if err != nil {
		return err
	}
	if len(entries) > MaxBrowserEntries {
		entries = entries[:MaxBrowserEntries]
	}
	b.entries = entries
	b.cursor = 0
	b.scroll = 0
	return nil
}

// SetFilter narrows visible entries to those containing s. The parent
// entry stays.
func (b *Browser) SetFilter(s string) {
	b.filter = strings.ToLower(strings.TrimSpace(s))
	b.cursor = 0
	b.scroll = 0
}

// Visible returns the filtered rows: ".." first (except at /), then
// the directory listing.
func (b *Browser) Visible() []DirEntry {
	out := make([]DirEntry, 0, len(b.entries)+1)
	if b.cwd != "/" {
		out = append(out, DirEntry{Name: "..", IsDir: true})
	}
	for _, e := range b.entries {
		if b.filter != "" && !strings.Contains(strings.ToLower(e.Name), b.filter) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Cursor returns the selected row index into Visible.
func (b *Browser) Cursor() int { return b.cursor }

// Window returns the scroll window [start, end) for rendering.
func (b *Browser) Window() (start, end int) {
	n := len(b.Visible())
	start = b.scroll
	end = start + b.height
	if end > n {
		end = n
	}
	return start, end
}

// MoveUp moves the cursor one row up.
func (b *Browser) MoveUp() {
	if b.cursor > 0 {
		b.cursor--
	}
	if b.cursor < b.scroll {
		b.scroll = b.cursor
	}
}

// MoveDown moves the cursor one row down.
func (b *Browser) MoveDown() {
	if b.cursor < len(b.Visible())-1 {
		b.cursor++
	}
	if b.cursor >= b.scroll+b.height {
		b.scroll = b.cursor - b.height + 1
	}
}

// Selected returns the entry under the cursor.
func (b *Browser) Selected() (DirEntry, bool) {
	v := b.Visible()
	if b.cursor < 0 || b.cursor >= len(v) {
		return DirEntry{}, false
	}
	return v[b.cursor], true
}

// ChangeDir moves into dir (joined onto cwd unless absolute).
func (b *Browser) ChangeDir(dir string) error {
	next := ResolvePath(b.cwd, dir)
	prevCwd, prevEntries := b.cwd, b.entries
	b.cwd = next
	b.filter = ""
	if err := b.Refresh(); err != nil {
		b.cwd, b.entries = prevCwd, prevEntries
		return err
	}
	return nil
}

// GoUp moves to the parent directory.
func (b *Browser) GoUp() error {
	if b.cwd == "/" {
		return nil
	}
	return b.ChangeDir(posixParent(b.cwd))
}

// EnterSelected descends into the selected directory, or returns the
// full path of the selected file with ok=false for the caller to open.
func (b *Browser) EnterSelected() (path string, entered bool, err error) {
	e, ok := b.Selected()
	if !ok {
		return "", false, nil
	}
	if e.Name == ".." {
		return "", true, b.GoUp()
	}
	full := strings.TrimRight(b.cwd, "/") + "/" + e.Name
	if b.cwd == "/" {
		full = "/" + e.Name
	}
	if e.IsDir {
		return "", true, b.ChangeDir(e.Name)
	}
	return full, false, nil
}
