package remote

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LocalClient serves the local filesystem through the FileClient
// interface, so a pane without an SSH context browses and opens files
// the same way a remote one does.
type LocalClient struct{}

func (LocalClient) IsConnected() bool { return true }

func (LocalClient) ReadFile(path string) (string, int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() > MaxFileSize {
		return "", 0, ErrFileTooLarge
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), fi.ModTime().Unix(), nil
}

func (LocalClient) WriteFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (LocalClient) ExecCommand(cmd string) (string, error) {
	out, err := exec.Command("sh", "-c", cmd).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run %q: %w", cmd, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (LocalClient) Cwd() (string, error) {
	return os.Getwd()
}

func (LocalClient) ListDir(path string) ([]DirEntry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}
	entries := make([]DirEntry, 0, len(dirents))
	for _, de := range dirents {
		var size int64
		if fi, err := de.Info(); err == nil {
			size = fi.Size()
		}
		entries = append(entries, DirEntry{Name: de.Name(), IsDir: de.IsDir(), Size: size})
	}
	SortEntries(entries)
	return entries, nil
}

func (LocalClient) Close() error { return nil }
