package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ratterm/pkg/term"
)

const cacheDirName = "ratterm_remote"

// FileClient is the slice of SftpClient the manager and browser need.
// Tests substitute fakes.
type FileClient interface {
	IsConnected() bool
	ReadFile(path string) (string, int64, error)
	WriteFile(path, content string) error
	ExecCommand(cmd string) (string, error)
	Cwd() (string, error)
	ListDir(path string) ([]DirEntry, error)
	Close() error
}

// DialFunc opens a client for a context.
type DialFunc func(ctx term.SSHContext) (FileClient, error)

func defaultDial(ctx term.SSHContext) (FileClient, error) {
	return Connect(ctx)
}

// RemoteFile records a fetched file: where it lives remotely and the
// local cache copy the editor works on.
type RemoteFile struct {
	ContextKey string
	RemotePath string
	LocalPath  string
	Mtime      int64
}

// FileManager caches one SftpClient per SSH context and mirrors
// fetched files into a local temp directory so external tools can open
// them by path.
type FileManager struct {
	dial     DialFunc
	clients  map[string]FileClient
	cacheDir string
	cached   map[string]RemoteFile
}

// NewFileManager builds a manager with the real SFTP dialer.
func NewFileManager() *FileManager {
	return newFileManager(defaultDial)
}

func newFileManager(dial DialFunc) *FileManager {
	return &FileManager{
		dial:     dial,
		clients:  make(map[string]FileClient),
		cacheDir: filepath.Join(os.TempDir(), cacheDirName),
		cached:   make(map[string]RemoteFile),
	}
}

// ContextKey identifies a connection for the client cache. The zero
// context means the local filesystem.
func ContextKey(ctx term.SSHContext) string {
	if ctx.Hostname == "" {
		return "local"
	}
	port := ctx.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s@%s:%d", ctx.Username, ctx.Hostname, port)
}

// Client returns a live client for ctx, reusing the cached one when it
// is still connected and reconnecting otherwise.
func (m *FileManager) Client(ctx term.SSHContext) (FileClient, error) {
	if ctx.Hostname == "" {
		return LocalClient{}, nil
	}
	key := ContextKey(ctx)
	if c, ok := m.clients[key]; ok {
		if c.IsConnected() {
			return c, nil
		}
		c.Close()
		delete(m.clients, key)
	}
	c, err := m.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}
	m.clients[key] = c
	return c, nil
}

// CachePath returns the deterministic local path for (ctx, remotePath).
func (m *FileManager) CachePath(ctx term.SSHContext, remotePath string) string {
	key := ContextKey(ctx)
	name := fmt.Sprintf("%08x_%s", mixHash(key+"|"+remotePath), posixBase(remotePath))
	return filepath.Join(m.cacheDir, name)
}

// FetchFile downloads remotePath into the local cache and returns the
// record pointing at the copy.
func (m *FileManager) FetchFile(ctx term.SSHContext, remotePath string) (RemoteFile, error) {
	c, err := m.Client(ctx)
	if err != nil {
		return RemoteFile{}, err
	}
	content, mtime, err := c.ReadFile(remotePath)
	if err != nil {
		return RemoteFile{}, err
	}
	local := m.CachePath(ctx, remotePath)
	if err := os.MkdirAll(m.cacheDir, 0o700); err != nil {
		return RemoteFile{}, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(local, []byte(content), 0o600); err != nil {
		return RemoteFile{}, fmt.Errorf("write cache %s: %w", local, err)
	}
	rf := RemoteFile{
		ContextKey: ContextKey(ctx),
		RemotePath: remotePath,
		LocalPath:  local,
		Mtime:      mtime,
	}
	m.cached[local] = rf
	return rf, nil
}

// SaveFile writes content to the remote path and mirrors it into the
// cache copy so the two stay in sync.
func (m *FileManager) SaveFile(ctx term.SSHContext, remotePath, content string) error {
	c, err := m.Client(ctx)
	if err != nil {
		return err
	}
	if err := c.WriteFile(remotePath, content); err != nil {
		return err
	}
	local := m.CachePath(ctx, remotePath)
	if err := os.MkdirAll(m.cacheDir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(local, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write cache %s: %w", local, err)
	}
	return nil
}

// Lookup returns the record for a local cache path, if one exists.
func (m *FileManager) Lookup(localPath string) (RemoteFile, bool) {
	rf, ok := m.cached[localPath]
	return rf, ok
}

// ResolvePath turns user input into a remote path: absolute and ~/
// paths pass through (the remote shell expands ~), anything else is
// joined onto cwd.
func ResolvePath(cwd, input string) string {
	if strings.HasPrefix(input, "/") || strings.HasPrefix(input, "~/") || input == "~" {
		return input
	}
	return strings.TrimRight(cwd, "/") + "/" + input
}

// CleanupCache removes every cached file and closes every client.
func (m *FileManager) CleanupCache() {
	for local := range m.cached {
		os.Remove(local)
	}
	m.cached = make(map[string]RemoteFile)
	for key, c := range m.clients {
		c.Close()
		delete(m.clients, key)
	}
}

// mixHash is a small deterministic string mixer for cache filenames.
func mixHash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// posixBase is filepath.Base with POSIX semantics regardless of the
// local OS.
func posixBase(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "root"
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "root"
	}
	return path
}

// posixParent returns the parent directory of a POSIX path.
func posixParent(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
