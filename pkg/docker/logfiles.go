package docker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Per-container daily log archive. Streamed entries are mirrored to
//
//	<dir>/<container>/YYYY-MM-DD.log
//
// so sessions survive the stream; the reader scans backward so tailing
// a large file stays cheap.

const (
	logFileExt    = ".log"
	logDayFormat  = "2006-01-02"
	logFilePerm   = 0o600
	logDirPerm    = 0o700
	tailBlockSize = 32 * 1024
)

// LogArchive appends streamed entries to per-container daily files.
type LogArchive struct {
	dir string
}

// NewLogArchive roots an archive at dir (created on first append).
func NewLogArchive(dir string) *LogArchive {
	return &LogArchive{dir: dir}
}

// Dir returns the archive root.
func (a *LogArchive) Dir() string { return a.dir }

// containerDir maps a container name to a filesystem-safe directory.
func (a *LogArchive) containerDir(name string) string {
	return filepath.Join(a.dir, sanitizeLogName(name))
}

// Path returns the daily file an entry lands in.
func (a *LogArchive) Path(containerName, day string) string {
	return filepath.Join(a.containerDir(containerName), day+logFileExt)
}

// Append writes entries to their containers' daily files, grouped so
// each file opens once per call.
func (a *LogArchive) Append(day string, entries []LogEntry) error {
	byName := make(map[string][]LogEntry)
	for _, e := range entries {
		name := e.ContainerName
		if name == "" {
			name = e.ContainerID
		}
		byName[name] = append(byName[name], e)
	}
	for name, group := range byName {
		if err := a.appendOne(name, day, group); err != nil {
			return err
		}
	}
	return nil
}

func (a *LogArchive) appendOne(name, day string, entries []LogEntry) error {
	dir := a.containerDir(name)
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return fmt.Errorf("mkdir log dir: %w", err)
	}
	path := filepath.Join(dir, day+logFileExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Timestamp)
		b.WriteByte(' ')
		b.WriteString(e.Source.String())
		b.WriteByte(' ')
		b.WriteString(strings.TrimRight(e.Message, "\r\n"))
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(f, b.String()); err != nil {
		return fmt.Errorf("write log %s: %w", path, err)
	}
	return nil
}

// ListFiles returns a container's daily log paths, newest first.
func (a *LogArchive) ListFiles(containerName string) ([]string, error) {
	dir := a.containerDir(containerName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	// Date-named files sort lexicographically.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// TailFile returns the last n lines of path in file order, scanning
// backward in blocks.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		buf      []byte
		offset   = size
		newlines int
	)
	for offset > 0 && newlines <= n {
		readSize := int64(tailBlockSize)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		block := make([]byte, readSize)
		if _, err := io.ReadFull(f, block); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		buf = append(block, buf...)
		newlines = strings.Count(string(buf), "\n")
	}

	s := strings.TrimRight(string(buf), "\r\n")
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// sanitizeLogName keeps container names filesystem-safe.
func sanitizeLogName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "_unnamed"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
