// Package remote provides SFTP-backed file access to SSH hosts: a
// connection client, a caching file manager, and a directory browser.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"ratterm/pkg/term"
)

const (
	// DialTimeout bounds the TCP connect to the first hop.
	DialTimeout = 10 * time.Second
	// IOTimeout bounds every read/write on the underlying conn.
	IOTimeout = 30 * time.Second
	// MaxFileSize is the largest file ReadFile will fetch.
	MaxFileSize = 10 << 20
)

// ErrFileTooLarge is returned for remote files above MaxFileSize.
var ErrFileTooLarge = fmt.Errorf("remote file exceeds %d bytes", int(MaxFileSize))

// DirEntry is one remote directory listing row.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// SftpClient is one authenticated SSH session with the SFTP subsystem
// open. Jump chains are honored by tunneling each hop through the
// previous one, outermost first.
type SftpClient struct {
	ctx    term.SSHContext
	hops   []*ssh.Client
	client *ssh.Client
	sftp   *sftp.Client
}

// timeoutConn applies an IO deadline to every read and write.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// Connect dials through ctx's jump chain, authenticates, and opens the
// SFTP subsystem.
func Connect(ctx term.SSHContext) (*SftpClient, error) {
	c := &SftpClient{ctx: ctx}

	hops := make([]sshEndpoint, 0, len(ctx.Jumps)+1)
	for _, j := range ctx.Jumps {
		hops = append(hops, sshEndpoint{j.Username, j.Hostname, j.Port, j.Password, ""})
	}
	hops = append(hops, sshEndpoint{ctx.Username, ctx.Hostname, ctx.Port, ctx.Password, ctx.KeyPath})

	var prev *ssh.Client
	for i, hop := range hops {
		conn, err := c.dialHop(prev, hop)
		if err != nil {
			c.Close()
			return nil, err
		}
		cfg := &ssh.ClientConfig{
			User:            hop.user,
			Auth:            authMethods(hop),
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         DialTimeout,
		}
		sconn, chans, reqs, err := ssh.NewClientConn(conn, hop.addr(), cfg)
		if err != nil {
			conn.Close()
			c.Close()
			return nil, fmt.Errorf("ssh handshake %s: %w", hop.addr(), err)
		}
		client := ssh.NewClient(sconn, chans, reqs)
		if i < len(hops)-1 {
			c.hops = append(c.hops, client)
		} else {
			c.client = client
		}
		prev = client
	}

	sc, err := sftp.NewClient(c.client)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	c.sftp = sc
	return c, nil
}

type sshEndpoint struct {
	user     string
	host     string
	port     uint16
	password string
	keyPath  string
}

func (e sshEndpoint) addr() string {
	port := e.port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(e.host, fmt.Sprint(port))
}

// dialHop opens the raw conn for a hop: direct TCP for the first,
// tunneled through the previous hop's client otherwise.
func (c *SftpClient) dialHop(prev *ssh.Client, hop sshEndpoint) (net.Conn, error) {
	if prev == nil {
		conn, err := net.DialTimeout("tcp", hop.addr(), DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", hop.addr(), err)
		}
		return &timeoutConn{Conn: conn, timeout: IOTimeout}, nil
	}
	conn, err := prev.Dial("tcp", hop.addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s via jump: %w", hop.addr(), err)
	}
	return conn, nil
}

// authMethods builds the auth preference order: key (the password
// doubles as the passphrase), then password, then the local agent.
func authMethods(hop sshEndpoint) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if hop.keyPath != "" {
		if key, err := os.ReadFile(hop.keyPath); err == nil {
			var signer ssh.Signer
			var perr error
			if hop.password != "" {
				signer, perr = ssh.ParsePrivateKeyWithPassphrase(key, []byte(hop.password))
				if perr != nil {
					signer, perr = ssh.ParsePrivateKey(key)
				}
			} else {
				signer, perr = ssh.ParsePrivateKey(key)
			}
			if perr == nil {
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}
	if hop.password != "" {
		methods = append(methods, ssh.Password(hop.password))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	return methods
}

// IsConnected reports whether the session is still usable.
func (c *SftpClient) IsConnected() bool {
	if c == nil || c.client == nil || c.sftp == nil {
		return false
	}
	// A cheap round trip; any transport failure surfaces here.
	_, err := c.sftp.Getwd()
	return err == nil
}

// ReadFile fetches path, rejecting files above MaxFileSize. The second
// return is the remote mtime in unix seconds, zero when unknown.
func (c *SftpClient) ReadFile(path string) (string, int64, error) {
	fi, err := c.sftp.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() > MaxFileSize {
		return "", 0, ErrFileTooLarge
	}
	f, err := c.sftp.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, fi.Size())
	n, err := f.ReadAt(buf, 0)
	if err != nil && n < len(buf) {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return string(buf[:n]), fi.ModTime().Unix(), nil
}

// WriteFile creates or truncates path with content.
func (c *SftpClient) WriteFile(path, content string) error {
	f, err := c.sftp.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ExecCommand runs cmd in a fresh session and returns trimmed stdout.
func (c *SftpClient) ExecCommand(cmd string) (string, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	out, err := sess.Output(cmd)
	if err != nil {
		return "", fmt.Errorf("exec %q: %w", cmd, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StreamCommand runs cmd in a fresh session and invokes onLine for
// each stdout and stderr line until the command exits or ctx is
// cancelled. Cancelling closes the session, which ends the remote
// command.
func (c *SftpClient) StreamCommand(ctx context.Context, cmd string, onLine func(text string, stderr bool)) error {
	sess, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return err
	}
	if err := sess.Start(cmd); err != nil {
		return fmt.Errorf("start %q: %w", cmd, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	scan := func(r io.Reader, isErr bool) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			onLine(sc.Text(), isErr)
		}
	}
	wg.Add(2)
	go scan(stdout, false)
	go scan(stderr, true)
	wg.Wait()

	if err := sess.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream %q: %w", cmd, err)
	}
	return ctx.Err()
}

// Cwd returns the login shell's working directory.
func (c *SftpClient) Cwd() (string, error) {
	return c.ExecCommand("pwd")
}

// ListDir lists path, directories first then case-insensitive by name.
func (c *SftpClient) ListDir(path string) ([]DirEntry, error) {
	infos, err := c.sftp.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}
	entries := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, DirEntry{Name: name, IsDir: fi.IsDir(), Size: fi.Size()})
	}
	SortEntries(entries)
	return entries, nil
}

// SortEntries orders directories before files, then by lowercased name.
func SortEntries(entries []DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// Close tears down the SFTP subsystem and every hop.
func (c *SftpClient) Close() error {
	var first error
	if c.sftp != nil {
		first = c.sftp.Close()
		c.sftp = nil
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil && first == nil {
			first = err
		}
		c.client = nil
	}
	for i := len(c.hops) - 1; i >= 0; i-- {
		if err := c.hops[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.hops = nil
	if first != nil && !errors.Is(first, net.ErrClosed) {
		return first
	}
	return nil
}
