package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner scripts replies keyed by a command substring.
type fakeRunner struct {
	replies map[string]string
	errs    map[string]error
	cmds    []string
}

func (f *fakeRunner) Run(ctx context.Context, cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	for key, err := range f.errs {
		if strings.Contains(cmd, key) {
			return f.replies[key], err
		}
	}
	for key, out := range f.replies {
		if strings.Contains(cmd, key) {
			return out, nil
		}
	}
	return "", nil
}

func TestCheckAvailability(t *testing.T) {
	cases := []struct {
		name string
		out  string
		err  error
		want Availability
	}{
		{"available", "24.0.7", nil, Available},
		{"not installed", "sh: docker: command not found", errors.New("exit status 127"), NotInstalled},
		{"daemon down", "Cannot connect to the Docker daemon at unix:///var/run/docker.sock", errors.New("exit status 1"), DaemonNotRunning},
		{"other", "permission denied", errors.New("exit status 1"), ProbeError},
	}
	for _, tc := range cases {
		fr := &fakeRunner{
			replies: map[string]string{"docker version": tc.out},
		}
		if tc.err != nil {
			fr.errs = map[string]error{"docker version": tc.err}
		}
		if got := NewClient(LocalHost(), fr).CheckAvailability(); got != tc.want {
			t.Errorf("%s: availability = %v, want %v", tc.name, got, tc.want)
		}
	}
}

const psOutput = `{"ID":"aaa111","Names":"web","Image":"nginx:latest","State":"running"}
{"ID":"bbb222","Names":"db,db-alias","Image":"postgres:16","State":"exited"}
{"ID":"ccc333","Names":"/worker","Image":"redis:7","State":"running"}`

const imagesOutput = `{"ID":"sha1","Repository":"nginx","Tag":"latest"}
{"ID":"sha2","Repository":"<none>","Tag":"<none>"}`

func TestDiscoverSplitsByState(t *testing.T) {
	fr := &fakeRunner{replies: map[string]string{
		"docker version": "24.0.7",
		"docker ps":      psOutput,
		"docker images":  imagesOutput,
	}}
	d := NewClient(LocalHost(), fr).Discover()
	if d.Availability != Available {
		t.Fatalf("availability = %v", d.Availability)
	}
	if len(d.Running) != 2 || len(d.Stopped) != 1 {
		t.Fatalf("running/stopped = %d/%d, want 2/1", len(d.Running), len(d.Stopped))
	}
	if d.Running[0].Name != "web" || d.Running[1].Name != "worker" {
		t.Errorf("running names = %q, %q", d.Running[0].Name, d.Running[1].Name)
	}
	// Comma-joined name lists keep only the primary name.
	if d.Stopped[0].Name != "db" {
		t.Errorf("stopped name = %q, want db", d.Stopped[0].Name)
	}
	if len(d.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(d.Images))
	}
	if d.Images[0].Ref() != "nginx:latest" {
		t.Errorf("ref = %q", d.Images[0].Ref())
	}
	if d.Images[1].Ref() != "sha2" {
		t.Errorf("dangling ref = %q, want the id", d.Images[1].Ref())
	}
}

func TestDiscoverStopsWhenUnavailable(t *testing.T) {
	fr := &fakeRunner{
		replies: map[string]string{"docker version": "docker: command not found"},
		errs:    map[string]error{"docker version": errors.New("exit status 127")},
	}
	d := NewClient(LocalHost(), fr).Discover()
	if d.Availability != NotInstalled {
		t.Errorf("availability = %v", d.Availability)
	}
	if len(fr.cmds) != 1 {
		t.Errorf("cmds = %d, discovery should stop at the probe", len(fr.cmds))
	}
}

func TestParseItemCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxParseItems+50; i++ {
		fmt.Fprintf(&b, `{"ID":"id%d","Names":"c%d","Image":"img","State":"running"}`+"\n", i, i)
	}
	fr := &fakeRunner{replies: map[string]string{"docker ps": b.String()}}
	containers, err := NewClient(LocalHost(), fr).ListContainers()
	if err != nil {
		t.Fatal(err)
	}
	if len(containers) != MaxParseItems {
		t.Errorf("parsed = %d, want cap %d", len(containers), MaxParseItems)
	}
}

func TestSearchHubParse(t *testing.T) {
	fr := &fakeRunner{replies: map[string]string{
		"docker search": `{"Name":"nginx","Description":"web server","StarCount":"19000","IsOfficial":"[OK]"}
{"Name":"bitnami/nginx","Description":"fork","StarCount":"150","IsOfficial":""}`,
	}}
	hits, err := NewClient(LocalHost(), fr).SearchHub("nginx")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d", len(hits))
	}
	if !hits[0].Official || hits[0].Stars != 19000 {
		t.Errorf("official hit = %+v", hits[0])
	}
	if hits[1].Official {
		t.Errorf("fork marked official")
	}
}

func TestImageExists(t *testing.T) {
	fr := &fakeRunner{replies: map[string]string{"docker image inspect": "sha256:abc"}}
	c := NewClient(LocalHost(), fr)
	if !c.ImageExists("nginx:latest") {
		t.Error("present image reported missing")
	}
	fr2 := &fakeRunner{errs: map[string]error{"docker image inspect": errors.New("exit status 1")}}
	if NewClient(LocalHost(), fr2).ImageExists("nope") {
		t.Error("missing image reported present")
	}
}

func TestCommandBuilders(t *testing.T) {
	if got := ExecCommand("abc123", ""); !strings.Contains(got, "command -v bash") {
		t.Errorf("exec fallback = %q", got)
	}
	if got := ExecCommand("abc123", "zsh"); got != "docker exec -it abc123 zsh" {
		t.Errorf("exec = %q", got)
	}
	if got := StartExecCommand("abc123", "sh"); !strings.HasPrefix(got, "docker start abc123 && docker exec -it abc123") {
		t.Errorf("start-exec = %q", got)
	}
	run := RunCommand("nginx:latest", RunOptions{
		Name:    "web",
		Volumes: []VolumeMount{{HostPath: "/srv/www", ContainerPath: "/usr/share/nginx/html"}},
		Command: "nginx -g 'daemon off;'",
	})
	for _, want := range []string{
		"docker run -it",
		"--name web",
		"-v /srv/www:/usr/share/nginx/html",
		"nginx:latest",
		"nginx -g 'daemon off;'",
	} {
		if !strings.Contains(run, want) {
			t.Errorf("run command %q missing %q", run, want)
		}
	}
	if got := LogsCommand("abc123"); got != "docker logs -f --timestamps abc123" {
		t.Errorf("logs = %q", got)
	}
	if got := StatsCommand("abc123"); got != "docker stats abc123" {
		t.Errorf("stats = %q", got)
	}
	// Hostile names get quoted.
	if got := ExecCommand("a;rm -rf /", "sh"); !strings.Contains(got, `'a;rm -rf /'`) {
		t.Errorf("quoting = %q", got)
	}
}

func TestRemoteHostLabel(t *testing.T) {
	h := Host{Remote: true, Username: "root", Hostname: "10.0.0.7", Port: 2222}
	if h.Label() != "root@10.0.0.7:2222" {
		t.Errorf("label = %q", h.Label())
	}
	h.DisplayName = "staging"
	if h.Label() != "staging" {
		t.Errorf("label = %q", h.Label())
	}
	if LocalHost().Label() != "local" {
		t.Error("local label")
	}
}

func TestExecRunnerHonorsContext(t *testing.T) {
	blocked := execerFunc(func(cmd string) (string, error) {
		time.Sleep(5 * time.Second)
		return "", nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := (ExecRunner{Exec: blocked}).Run(ctx, "docker ps"); err == nil {
		t.Error("expected deadline error")
	}
}

type execerFunc func(string) (string, error)

func (f execerFunc) ExecCommand(cmd string) (string, error) { return f(cmd) }

// fakeStreamer plays scripted lines, then returns err.
type fakeStreamer struct {
	lines []StreamLine
	err   error
}

func (f *fakeStreamer) StreamLines(ctx context.Context, command string, out chan<- StreamLine) error {
	for _, l := range f.lines {
		select {
		case out <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func drainAll(t *testing.T, s *LogStreamer) []LogEntry {
	t.Helper()
	var all []LogEntry
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, done := s.Drain(DrainLimit)
		all = append(all, entries...)
		if done {
			return all
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("stream never finished")
	return nil
}

func TestLogStreamerParsesTimestamps(t *testing.T) {
	ct := Container{ID: "abc123", Name: "web"}
	fs := &fakeStreamer{lines: []StreamLine{
		{Text: "2026-08-23T10:00:00.123456789Z GET / 200"},
		{Text: "error: boom", Stderr: true},
		{Text: "no timestamp here"},
	}}
	s := NewLogStreamer(fs, ct)
	s.Start()
	defer s.Stop()

	entries := drainAll(t, s)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Timestamp != "2026-08-23T10:00:00.123456789Z" || entries[0].Message != "GET / 200" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[0].ContainerName != "web" || entries[0].ContainerID != "abc123" {
		t.Errorf("entry 0 container = %+v", entries[0])
	}
	if entries[1].Source != SourceStderr {
		t.Errorf("entry 1 source = %v", entries[1].Source)
	}
	if entries[2].Timestamp != "" || entries[2].Message != "no timestamp here" {
		t.Errorf("entry 2 = %+v", entries[2])
	}
}

func TestLogStreamerReportsStreamError(t *testing.T) {
	fs := &fakeStreamer{
		lines: []StreamLine{{Text: "last line"}},
		err:   errors.New("connection reset"),
	}
	s := NewLogStreamer(fs, Container{ID: "x", Name: "x"})
	s.Start()
	defer s.Stop()

	entries := drainAll(t, s)
	last := entries[len(entries)-1]
	if last.Source != SourceSystem || !strings.Contains(last.Message, "connection reset") {
		t.Errorf("system entry = %+v", last)
	}
}

func entryN(n int) LogEntry {
	return LogEntry{Message: fmt.Sprintf("line %d", n), ContainerName: "web"}
}

func TestLogBufferRingCap(t *testing.T) {
	b := NewLogBuffer()
	for i := 0; i < LogBufferCap+100; i++ {
		b.Append(entryN(i))
	}
	if b.Len() != LogBufferCap {
		t.Fatalf("len = %d, want cap %d", b.Len(), LogBufferCap)
	}
	v := b.Visible(1)
	if v[0].Message != fmt.Sprintf("line %d", LogBufferCap+99) {
		t.Errorf("newest = %q", v[0].Message)
	}
}

func TestLogBufferFilter(t *testing.T) {
	b := NewLogBuffer()
	b.Append(
		LogEntry{Message: "GET /health 200", ContainerName: "web"},
		LogEntry{Message: "SELECT 1", ContainerName: "db"},
		LogEntry{Message: "GET /index 200", ContainerName: "web"},
	)
	b.SetFilter("get")
	v := b.Visible(10)
	if len(v) != 2 {
		t.Fatalf("visible = %d, want 2", len(v))
	}
	// Filter also matches container names.
	b.SetFilter("DB")
	if v = b.Visible(10); len(v) != 1 || v[0].Message != "SELECT 1" {
		t.Errorf("name filter = %+v", v)
	}
	b.SetFilter("")
	if len(b.Visible(10)) != 3 {
		t.Error("clearing filter")
	}
}

func TestLogBufferPauseHoldsPosition(t *testing.T) {
	b := NewLogBuffer()
	for i := 0; i < 20; i++ {
		b.Append(entryN(i))
	}
	b.ScrollUp(5)
	if !b.Paused() {
		t.Fatal("scrolling up should pause")
	}
	top := b.Visible(1)[0].Message

	// New entries while paused must not move the view.
	b.Append(entryN(20), entryN(21))
	if got := b.Visible(1)[0].Message; got != top {
		t.Errorf("view moved while paused: %q -> %q", top, got)
	}

	b.ScrollToBottom()
	if b.Paused() {
		t.Error("bottom should resume follow")
	}
	if got := b.Visible(1)[0].Message; got != "line 21" {
		t.Errorf("bottom = %q", got)
	}
}

func TestLogBufferScrollDownResumes(t *testing.T) {
	b := NewLogBuffer()
	for i := 0; i < 10; i++ {
		b.Append(entryN(i))
	}
	b.ScrollUp(3)
	b.ScrollDown(2)
	if !b.Paused() {
		t.Error("still above bottom, should stay paused")
	}
	b.ScrollDown(2)
	if b.Paused() {
		t.Error("reaching bottom should unpause")
	}
}

func TestLogBufferVisibleWindow(t *testing.T) {
	b := NewLogBuffer()
	for i := 0; i < 10; i++ {
		b.Append(entryN(i))
	}
	v := b.Visible(3)
	if len(v) != 3 || v[0].Message != "line 7" || v[2].Message != "line 9" {
		t.Errorf("window = %+v", v)
	}
	b.ScrollUp(100)
	v = b.Visible(3)
	if len(v) != 3 || v[0].Message != "line 0" {
		t.Errorf("clamped window = %+v", v)
	}
}

func TestLogArchiveAppendAndTail(t *testing.T) {
	a := NewLogArchive(t.TempDir())
	day := "2026-08-23"
	entries := []LogEntry{
		{Timestamp: "2026-08-23T10:00:00Z", Source: SourceStdout, Message: "one", ContainerName: "web"},
		{Timestamp: "2026-08-23T10:00:01Z", Source: SourceStderr, Message: "two", ContainerName: "web"},
		{Timestamp: "2026-08-23T10:00:02Z", Source: SourceStdout, Message: "three", ContainerName: "db"},
	}
	if err := a.Append(day, entries); err != nil {
		t.Fatal(err)
	}

	lines, err := TailFile(a.Path("web", day), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("web lines = %d, want 2", len(lines))
	}
	if lines[1] != "2026-08-23T10:00:01Z stderr two" {
		t.Errorf("line = %q", lines[1])
	}

	files, err := a.ListFiles("db")
	if err != nil || len(files) != 1 {
		t.Fatalf("db files = %v, %v", files, err)
	}
}

func TestTailFileBackwardScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Exceed a single read block so the scan walks backward.
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(f, "entry %04d padding padding padding\n", i)
	}
	f.Close()

	lines, err := TailFile(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"entry 4997 padding padding padding",
		"entry 4998 padding padding padding",
		"entry 4999 padding padding padding",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestSanitizeLogName(t *testing.T) {
	if got := sanitizeLogName("web/1:latest"); got != "web_1_latest" {
		t.Errorf("sanitized = %q", got)
	}
	if got := sanitizeLogName(""); got != "_unnamed" {
		t.Errorf("empty = %q", got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := StatePath(t.TempDir())
	st := NewState()
	st.SelectedHost = Host{Remote: true, HostID: 3, Hostname: "10.0.0.7", Port: 22, Username: "root", Password: "secret"}
	st.DefaultShell = "zsh"
	if err := st.SetSlot(1, "web"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSlot(9, "db"); err != nil {
		t.Fatal(err)
	}
	if err := SaveState(path, st); err != nil {
		t.Fatal(err)
	}

	// Passwords never reach disk.
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "secret") {
		t.Error("password serialized")
	}

	got, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.SelectedHost.Hostname != "10.0.0.7" || got.SelectedHost.Password != "" {
		t.Errorf("host = %+v", got.SelectedHost)
	}
	if name, ok := got.Slot(1); !ok || name != "web" {
		t.Errorf("slot 1 = %q, %v", name, ok)
	}
	if got.DefaultShell != "zsh" {
		t.Errorf("shell = %q", got.DefaultShell)
	}
}

func TestSlotBounds(t *testing.T) {
	st := NewState()
	if err := st.SetSlot(0, "x"); err == nil {
		t.Error("slot 0 accepted")
	}
	if err := st.SetSlot(MaxQuickConnect+1, "x"); err == nil {
		t.Error("slot 10 accepted")
	}
	st.SetSlot(2, "web")
	st.SetSlot(2, "")
	if _, ok := st.Slot(2); ok {
		t.Error("cleared slot still set")
	}
}

func TestLoadMissingState(t *testing.T) {
	st, err := LoadState(filepath.Join(t.TempDir(), "docker.json"))
	if err != nil {
		t.Fatal(err)
	}
	if st.SelectedHost.Remote {
		t.Error("fresh state should point at the local host")
	}
}
