package dashboard

import (
	"errors"
	"testing"
	"time"

	"ratterm/pkg/daemon"
	"ratterm/pkg/term"
)

// fakeSource scripts the receiver cache.
type fakeSource struct {
	metrics map[uint32]daemon.DeviceMetrics
	recent  map[uint32]bool
}

func (f *fakeSource) GetMetrics(id uint32) (daemon.DeviceMetrics, bool) {
	m, ok := f.metrics[id]
	return m, ok
}

func (f *fakeSource) HasRecentMetrics(id uint32) bool { return f.recent[id] }

func rows() []HostRow {
	return []HostRow{
		{HostID: 1, Label: "alpha"},
		{HostID: 2, Label: "beta"},
		{HostID: 3, Label: "gamma"},
	}
}

func TestSelectionBounds(t *testing.T) {
	d := New(rows(), nil, nil)
	d.SelectPrev()
	if d.Selected() != 0 {
		t.Errorf("selected = %d, want clamp at 0", d.Selected())
	}
	d.SelectNext()
	d.SelectNext()
	d.SelectNext()
	if d.Selected() != 2 {
		t.Errorf("selected = %d, want clamp at last", d.Selected())
	}
	d.SelectFirst()
	if d.Selected() != 0 {
		t.Error("first")
	}
	d.SelectLast()
	if d.Selected() != 2 {
		t.Error("last")
	}
	row, ok := d.SelectedRow()
	if !ok || row.Label != "gamma" {
		t.Errorf("row = %+v", row)
	}
}

func TestModeTransitions(t *testing.T) {
	d := New(rows(), nil, nil)
	if d.Mode() != ModeOverview {
		t.Error("initial mode")
	}
	d.EnterDetail()
	if d.Mode() != ModeDetail {
		t.Error("enter detail")
	}
	d.ExitDetail()
	if d.Mode() != ModeOverview {
		t.Error("exit detail")
	}
}

func TestRefreshPrefersReceiver(t *testing.T) {
	src := &fakeSource{
		metrics: map[uint32]daemon.DeviceMetrics{1: {HostID: 1, CPUCores: 4}},
		recent:  map[uint32]bool{1: true},
	}
	collected := make(chan uint32, 3)
	collect := func(ctx term.SSHContext, id uint32) (daemon.DeviceMetrics, error) {
		collected <- id
		return daemon.DeviceMetrics{HostID: id, CPUCores: 8}, nil
	}
	d := New(rows(), src, collect)
	defer d.Stop()

	d.Refresh()
	// Host 1 is served from the receiver synchronously.
	if d.Rows()[0].Metrics == nil || d.Rows()[0].Metrics.CPUCores != 4 {
		t.Errorf("row 1 = %+v, want receiver metrics", d.Rows()[0].Metrics)
	}

	// Hosts 2 and 3 fall back to the SSH collector.
	want := map[uint32]bool{2: true, 3: true}
	for i := 0; i < 2; i++ {
		select {
		case id := <-collected:
			if !want[id] {
				t.Errorf("unexpected collection for host %d", id)
			}
			delete(want, id)
		case <-time.After(2 * time.Second):
			t.Fatal("collector not invoked")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.Poll()
		if d.Rows()[1].Metrics != nil && d.Rows()[2].Metrics != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.Rows()[1].Metrics == nil || d.Rows()[1].Metrics.CPUCores != 8 {
		t.Errorf("row 2 = %+v, want collected metrics", d.Rows()[1].Metrics)
	}
}

func TestRefreshDoesNotDuplicatePending(t *testing.T) {
	calls := make(chan uint32, 10)
	block := make(chan struct{})
	collect := func(ctx term.SSHContext, id uint32) (daemon.DeviceMetrics, error) {
		calls <- id
		<-block
		return daemon.DeviceMetrics{HostID: id}, nil
	}
	d := New(rows()[:1], nil, collect)
	defer d.Stop()
	defer close(block)

	d.Refresh()
	d.Refresh() // host still pending, no second goroutine

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("collector not invoked")
	}
	select {
	case id := <-calls:
		t.Fatalf("duplicate collection for host %d", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollRecordsErrors(t *testing.T) {
	collect := func(ctx term.SSHContext, id uint32) (daemon.DeviceMetrics, error) {
		return daemon.DeviceMetrics{}, errors.New("ssh: connect refused")
	}
	d := New(rows()[:1], nil, collect)
	defer d.Stop()

	d.Refresh()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.Poll() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.Rows()[0].Err == "" {
		t.Error("collector error not recorded")
	}
}

func TestNeedsRefreshGating(t *testing.T) {
	d := New(rows(), &fakeSource{recent: map[uint32]bool{}}, nil)
	if d.NeedsRefresh() {
		t.Error("needs refresh while auto refresh is off")
	}
	d.SetAutoRefresh(true)
	d.SetInterval(50 * time.Millisecond)
	if !d.NeedsRefresh() {
		t.Error("first refresh should be due")
	}
	d.Refresh()
	if d.NeedsRefresh() {
		t.Error("refresh due immediately after refreshing")
	}
	time.Sleep(60 * time.Millisecond)
	if !d.NeedsRefresh() {
		t.Error("refresh not due after the interval")
	}
}

func TestParseProcSample(t *testing.T) {
	out := `0.52 0.41 0.30 1/123 4567
8
MemTotal: 16384
MemAvailable: 8192
SwapTotal: 2048
SwapFree: 1024
disk 512 128`
	m, err := parseProcSample(out)
	if err != nil {
		t.Fatal(err)
	}
	if m.CPULoad[0] != 0.52 || m.CPUCores != 8 {
		t.Errorf("cpu = %+v", m)
	}
	if m.MemTotalMB != 16384 || m.MemAvailMB != 8192 {
		t.Errorf("mem = %+v", m)
	}
	if m.SwapUsedMB != 1024 {
		t.Errorf("swap used = %d, want 1024", m.SwapUsedMB)
	}
	if m.DiskTotalGB != 512 || m.DiskUsedGB != 128 {
		t.Errorf("disk = %+v", m)
	}

	// MemAvailable falls back to MemFree on old kernels.
	old := `1.0 1.0 1.0
4
MemTotal: 1024
MemFree: 256
disk 100 50`
	m, err = parseProcSample(old)
	if err != nil {
		t.Fatal(err)
	}
	if m.MemAvailMB != 256 {
		t.Errorf("avail = %d, want MemFree fallback", m.MemAvailMB)
	}

	if _, err := parseProcSample("garbage"); err == nil {
		t.Error("garbage accepted")
	}
}
