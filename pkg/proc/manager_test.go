package proc

import (
	"strings"
	"testing"
	"time"
)

func waitStatus(t *testing.T, m *Manager, id uint64, want Status) Info {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if in, ok := m.Info(id); ok && in.Status == want {
			return in
		}
		time.Sleep(10 * time.Millisecond)
	}
	in, _ := m.Info(id)
	t.Fatalf("process %d status = %v, want %v", id, in.Status, want)
	return Info{}
}

func TestStartCapturesOutput(t *testing.T) {
	m := NewManager()
	id, err := m.Start("echo hello; echo world 1>&2")
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, m, id, StatusCompleted)

	out, ok := m.Output(id)
	if !ok {
		t.Fatal("no output record")
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("output = %q, want both streams", out)
	}
}

func TestExitCodeBecomesError(t *testing.T) {
	m := NewManager()
	id, err := m.Start("exit 3")
	if err != nil {
		t.Fatal(err)
	}
	in := waitStatus(t, m, id, StatusError)
	if in.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", in.ExitCode)
	}
	if in.ErrMessage != "Process exited with code 3" {
		t.Errorf("message = %q", in.ErrMessage)
	}
	if in.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}
}

func TestKill(t *testing.T) {
	m := NewManager()
	id, err := m.Start("sleep 30")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Kill(id); err != nil {
		t.Fatal(err)
	}
	in, _ := m.Info(id)
	if in.Status != StatusKilled {
		t.Errorf("status = %v, want killed", in.Status)
	}
	if in.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}
	// The waiter must not overwrite Killed after the child is reaped.
	time.Sleep(100 * time.Millisecond)
	in, _ = m.Info(id)
	if in.Status != StatusKilled {
		t.Errorf("status = %v after reap, want killed", in.Status)
	}
}

func TestKillUnknownID(t *testing.T) {
	m := NewManager()
	if err := m.Kill(42); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestRunningCap(t *testing.T) {
	m := NewManager()
	ids := make([]uint64, 0, MaxRunning)
	for i := 0; i < MaxRunning; i++ {
		id, err := m.Start("sleep 30")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if _, err := m.Start("echo over"); err != ErrTooManyProcesses {
		t.Errorf("err = %v, want ErrTooManyProcesses", err)
	}
	for _, id := range ids {
		m.Kill(id)
	}
	// Killed slots free up immediately.
	if _, err := m.Start("echo ok"); err != nil {
		t.Errorf("start after kill: %v", err)
	}
}

func TestRunningCountDrainsToZero(t *testing.T) {
	m := NewManager()
	for i := 0; i < 3; i++ {
		if _, err := m.Start("true"); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.RunningCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("running count = %d, want 0", m.RunningCount())
}

func TestOutputBufferBounded(t *testing.T) {
	m := NewManager()
	// ~200k chars of output against a 100k cap.
	id, err := m.Start(`i=0; while [ $i -lt 2000 ]; do printf '%0100d\n' $i; i=$((i+1)); done`)
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, m, id, StatusCompleted)
	out, _ := m.Output(id)
	if len(out) > MaxOutputChars {
		t.Errorf("output = %d chars, cap %d", len(out), MaxOutputChars)
	}
	if len(out) == 0 {
		t.Error("output empty")
	}
}

func TestListRunningAndClearFinished(t *testing.T) {
	m := NewManager()
	done, err := m.Start("true")
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, m, done, StatusCompleted)
	slow, err := m.Start("sleep 30")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Kill(slow)

	running := m.ListRunning()
	if len(running) != 1 || running[0].ID != slow {
		t.Fatalf("running = %+v, want only the sleeper", running)
	}

	failed, err := m.Start("exit 1")
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, m, failed, StatusError)
	if m.ErrorCount() != 1 {
		t.Errorf("error count = %d, want 1", m.ErrorCount())
	}

	m.ClearFinished()
	if _, ok := m.Info(done); ok {
		t.Error("completed process survived ClearFinished")
	}
	if _, ok := m.Info(failed); ok {
		t.Error("failed process survived ClearFinished")
	}
	if _, ok := m.Info(slow); !ok {
		t.Error("running process removed by ClearFinished")
	}
}
