package docker

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// LogBufferCap bounds the in-memory log ring per container.
	LogBufferCap = 5000
	// DrainLimit is how many streamed entries the app takes per frame.
	DrainLimit = 100

	streamChanCap = 1024
)

// LogSource tells where a log line came from.
type LogSource int

const (
	SourceStdout LogSource = iota
	SourceStderr
	SourceSystem
)

func (s LogSource) String() string {
	switch s {
	case SourceStdout:
		return "stdout"
	case SourceStderr:
		return "stderr"
	default:
		return "system"
	}
}

// LogEntry is one line of container output.
type LogEntry struct {
	Timestamp     string
	Source        LogSource
	Message       string
	ContainerID   string
	ContainerName string
}

// StreamLine is one raw line from a followed command.
type StreamLine struct {
	Text   string
	Stderr bool
}

// LineStreamer follows a long-running command, pushing each output
// line to out until the command exits or ctx is cancelled.
// LocalRunner follows through the local shell; the SSH file client
// provides the remote equivalent.
type LineStreamer interface {
	StreamLines(ctx context.Context, command string, out chan<- StreamLine) error
}

// StreamLines runs command with `sh -c`, scanning stdout and stderr
// line by line.
func (LocalRunner) StreamLines(ctx context.Context, command string, out chan<- StreamLine) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	scan := func(r interface{ Read([]byte) (int, error) }, isErr bool) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case out <- StreamLine{Text: sc.Text(), Stderr: isErr}:
			case <-ctx.Done():
				return
			}
		}
	}
	wg.Add(2)
	go scan(stdout, false)
	go scan(stderr, true)
	wg.Wait()
	return cmd.Wait()
}

// CommandStreamer is the line-streaming surface of an SSH client.
type CommandStreamer interface {
	StreamCommand(ctx context.Context, command string, onLine func(text string, stderr bool)) error
}

// RemoteStreamer adapts a CommandStreamer to LineStreamer so remote
// hosts can feed the log follower.
type RemoteStreamer struct {
	Client CommandStreamer
}

// StreamLines follows command over SSH.
func (r RemoteStreamer) StreamLines(ctx context.Context, command string, out chan<- StreamLine) error {
	return r.Client.StreamCommand(ctx, command, func(text string, stderr bool) {
		select {
		case out <- StreamLine{Text: text, Stderr: stderr}:
		case <-ctx.Done():
		}
	})
}

// LogStreamer follows one container's logs on a dedicated goroutine
// and hands entries to the UI through a bounded channel.
type LogStreamer struct {
	container Container
	stream    LineStreamer

	entries chan LogEntry
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLogStreamer builds a streamer for ct over stream. A nil stream
// means the local shell.
func NewLogStreamer(stream LineStreamer, ct Container) *LogStreamer {
	if stream == nil {
		stream = LocalRunner{}
	}
	return &LogStreamer{
		container: ct,
		stream:    stream,
		entries:   make(chan LogEntry, streamChanCap),
		done:      make(chan struct{}),
	}
}

// Container returns the followed container.
func (s *LogStreamer) Container() Container { return s.container }

// Start launches the follower goroutine.
func (s *LogStreamer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

func (s *LogStreamer) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.entries)

	raw := make(chan StreamLine, streamChanCap)
	errc := make(chan error, 1)
	go func() {
		errc <- s.stream.StreamLines(ctx, LogsCommand(s.container.ID), raw)
		close(raw)
	}()

	for line := range raw {
		s.emit(ctx, parseLogLine(line, s.container))
	}
	if err := <-errc; err != nil && ctx.Err() == nil {
		s.emit(ctx, LogEntry{
			Timestamp:     time.Now().Format(time.RFC3339),
			Source:        SourceSystem,
			Message:       fmt.Sprintf("log stream ended: %v", err),
			ContainerID:   s.container.ID,
			ContainerName: s.container.Name,
		})
	}
}

func (s *LogStreamer) emit(ctx context.Context, e LogEntry) {
	select {
	case s.entries <- e:
	case <-ctx.Done():
	}
}

// Drain takes up to max buffered entries without blocking. Done turns
// true once the stream has ended and the channel is empty.
func (s *LogStreamer) Drain(max int) (entries []LogEntry, done bool) {
	for len(entries) < max {
		select {
		case e, ok := <-s.entries:
			if !ok {
				return entries, true
			}
			entries = append(entries, e)
		default:
			return entries, false
		}
	}
	return entries, false
}

// Stop cancels the follower and waits for it to exit.
func (s *LogStreamer) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// parseLogLine splits the `docker logs --timestamps` prefix off a raw
// line.
func parseLogLine(line StreamLine, ct Container) LogEntry {
	e := LogEntry{
		Source:        SourceStdout,
		Message:       line.Text,
		ContainerID:   ct.ID,
		ContainerName: ct.Name,
	}
	if line.Stderr {
		e.Source = SourceStderr
	}
	if i := strings.IndexByte(line.Text, ' '); i > 0 {
		if _, err := time.Parse(time.RFC3339Nano, line.Text[:i]); err == nil {
			e.Timestamp = line.Text[:i]
			e.Message = line.Text[i+1:]
		}
	}
	return e
}

// LogBuffer is the scrollback ring behind the log view: bounded,
// pausable, filterable. Confined to the UI goroutine.
type LogBuffer struct {
	entries []LogEntry
	paused  bool
	filter  string
	// scroll is the offset from the bottom of the filtered view;
	// zero means pinned to the newest line.
	scroll int
}

// NewLogBuffer returns an empty buffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{entries: make([]LogEntry, 0, 256)}
}

// Append adds entries, evicting the oldest past LogBufferCap. While
// paused the scroll offset grows so the view keeps its position.
func (b *LogBuffer) Append(entries ...LogEntry) {
	if len(entries) == 0 {
		return
	}
	if b.paused && b.scroll >= 0 {
		for _, e := range entries {
			if b.matches(e) {
				b.scroll++
			}
		}
	}
	b.entries = append(b.entries, entries...)
	if over := len(b.entries) - LogBufferCap; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
	}
	b.clampScroll()
}

// Len returns the total buffered entries, unfiltered.
func (b *LogBuffer) Len() int { return len(b.entries) }

// Paused reports the pause flag.
func (b *LogBuffer) Paused() bool { return b.paused }

// SetPaused toggles auto-follow. Unpausing snaps back to the bottom.
func (b *LogBuffer) SetPaused(p bool) {
	b.paused = p
	if !p {
		b.scroll = 0
	}
}

// Filter returns the active filter string.
func (b *LogBuffer) Filter() string { return b.filter }

// SetFilter installs a case-insensitive substring filter and resets
// the scroll.
func (b *LogBuffer) SetFilter(f string) {
	b.filter = strings.ToLower(strings.TrimSpace(f))
	b.scroll = 0
}

func (b *LogBuffer) matches(e LogEntry) bool {
	if b.filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), b.filter) ||
		strings.Contains(strings.ToLower(e.ContainerName), b.filter)
}

// filtered returns the entries passing the filter, oldest first.
func (b *LogBuffer) filtered() []LogEntry {
	if b.filter == "" {
		return b.entries
	}
	out := make([]LogEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if b.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Visible returns the window of height lines ending scroll lines above
// the bottom of the filtered view.
func (b *LogBuffer) Visible(height int) []LogEntry {
	if height <= 0 {
		return nil
	}
	f := b.filtered()
	end := len(f) - b.scroll
	// Scrolling past the top clamps to the first full window.
	if end < height {
		end = height
	}
	if end > len(f) {
		end = len(f)
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	return f[start:end]
}

// ScrollUp moves toward older lines, pausing follow.
func (b *LogBuffer) ScrollUp(n int) {
	b.paused = true
	b.scroll += n
	b.clampScroll()
}

// ScrollDown moves toward newer lines; hitting bottom resumes follow.
func (b *LogBuffer) ScrollDown(n int) {
	b.scroll -= n
	if b.scroll <= 0 {
		b.scroll = 0
		b.paused = false
	}
}

// ScrollToBottom resumes follow.
func (b *LogBuffer) ScrollToBottom() {
	b.scroll = 0
	b.paused = false
}

func (b *LogBuffer) clampScroll() {
	if max := len(b.filtered()); b.scroll > max {
		b.scroll = max
	}
	if b.scroll < 0 {
		b.scroll = 0
	}
}
