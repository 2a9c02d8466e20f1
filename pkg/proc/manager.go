package proc

import (
	"bufio"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxRunning caps concurrent background processes.
	MaxRunning = 10
	// MaxOutputChars bounds the combined stdout+stderr buffer kept
	// per process.
	MaxOutputChars = 100000
)

// ErrTooManyProcesses is returned by Start when the running cap is hit.
var ErrTooManyProcesses = fmt.Errorf("too many background processes (max %d)", MaxRunning)

// Status is the lifecycle state of a background process.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusError
	StatusKilled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Info is a point-in-time snapshot of one background process.
type Info struct {
	ID         uint64
	Command    string
	Status     Status
	ExitCode   int
	ErrMessage string
	StartedAt  time.Time
	FinishedAt time.Time
}

// process is the live record behind an Info snapshot. All mutable
// fields are guarded by mu; the reader and waiter goroutines are the
// only writers after Start returns.
type process struct {
	mu sync.Mutex

	info   Info
	output []byte
	stop   atomic.Bool
	cmd    *exec.Cmd
	done   sync.WaitGroup
}

func (p *process) appendOutput(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	room := MaxOutputChars - len(p.output)
	if room <= 0 {
		return
	}
	if len(line)+1 > room {
		line = line[:room-1]
	}
	p.output = append(p.output, line...)
	p.output = append(p.output, '\n')
}

// Manager runs short-lived external commands, install scripts and
// image pulls mostly, without giving them a terminal.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	procs  map[uint64]*process
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{procs: make(map[uint64]*process)}
}

// Start launches command under the platform shell and returns its id.
// It fails once MaxRunning processes are still running.
func (m *Manager) Start(command string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := 0
	for _, p := range m.procs {
		if p.snapshot().Status == StatusRunning {
			running++
		}
	}
	if running >= MaxRunning {
		return 0, ErrTooManyProcesses
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %q: %w", command, err)
	}

	m.nextID++
	p := &process{
		info: Info{
			ID:        m.nextID,
			Command:   command,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		},
		cmd: cmd,
	}
	m.procs[p.info.ID] = p

	p.done.Add(2)
	go p.readStream(bufio.NewScanner(stdout))
	go p.readStream(bufio.NewScanner(stderr))
	go p.wait()

	return p.info.ID, nil
}

func (p *process) readStream(sc *bufio.Scanner) {
	defer p.done.Done()
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if p.stop.Load() {
			return
		}
		p.appendOutput(sc.Text())
	}
}

// wait joins both stream readers, reaps the child, and records the
// final status. A kill that raced the natural exit wins.
func (p *process) wait() {
	p.done.Wait()
	err := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info.Status == StatusKilled {
		return
	}
	p.info.FinishedAt = time.Now()
	switch {
	case err == nil:
		p.info.Status = StatusCompleted
		p.info.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		p.info.Status = StatusError
		p.info.ExitCode = code
		p.info.ErrMessage = fmt.Sprintf("Process exited with code %d", code)
	}
}

func (p *process) snapshot() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Kill stops process id. Readers notice the stop flag; the final
// status is Killed regardless of how the child exits afterwards.
func (m *Manager) Kill(id uint64) error {
	p := m.get(id)
	if p == nil {
		return fmt.Errorf("no process %d", id)
	}
	p.stop.Store(true)

	p.mu.Lock()
	if p.info.Status != StatusRunning {
		p.mu.Unlock()
		return nil
	}
	p.info.Status = StatusKilled
	p.info.FinishedAt = time.Now()
	p.mu.Unlock()

	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill %d: %w", id, err)
		}
	}
	return nil
}

func (m *Manager) get(id uint64) *process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procs[id]
}

// Info returns a snapshot of process id.
func (m *Manager) Info(id uint64) (Info, bool) {
	p := m.get(id)
	if p == nil {
		return Info{}, false
	}
	return p.snapshot(), true
}

// Output returns a copy of the buffered output of process id.
func (m *Manager) Output(id uint64) (string, bool) {
	p := m.get(id)
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.output), true
}

// ListRunning returns snapshots of running processes, oldest first.
func (m *Manager) ListRunning() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Info
	for _, p := range m.procs {
		if in := p.snapshot(); in.Status == StatusRunning {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunningCount reports how many processes are still running.
func (m *Manager) RunningCount() int {
	return len(m.ListRunning())
}

// ErrorCount reports how many processes finished in error.
func (m *Manager) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.procs {
		if p.snapshot().Status == StatusError {
			n++
		}
	}
	return n
}

// ClearFinished drops every process that is no longer running.
func (m *Manager) ClearFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.procs {
		if p.snapshot().Status != StatusRunning {
			delete(m.procs, id)
		}
	}
}
