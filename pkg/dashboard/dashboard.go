// Package dashboard aggregates per-host health metrics for the TUI:
// one row per credentialed host, fed by the local metrics receiver
// with an SSH fallback collector.
package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"ratterm/pkg/daemon"
	"ratterm/pkg/term"
)

// DefaultRefreshInterval gates auto refresh.
const DefaultRefreshInterval = 5 * time.Second

// Mode is the dashboard view mode.
type Mode int

const (
	ModeOverview Mode = iota
	ModeDetail
)

// HostRow is one dashboard line.
type HostRow struct {
	HostID  uint32
	Label   string
	Ctx     term.SSHContext
	Metrics *daemon.DeviceMetrics
	Err     string
	Updated time.Time
}

// MetricsSource yields the receiver-side cache. *daemon.Receiver
// satisfies it.
type MetricsSource interface {
	GetMetrics(id uint32) (daemon.DeviceMetrics, bool)
	HasRecentMetrics(id uint32) bool
}

// CollectFunc gathers metrics over SSH when the receiver has nothing
// fresh for a host. It runs on a worker goroutine.
type CollectFunc func(ctx term.SSHContext, hostID uint32) (daemon.DeviceMetrics, error)

// result travels from collector goroutines to Poll.
type result struct {
	hostID uint32
	m      daemon.DeviceMetrics
	err    error
}

// Dashboard owns the rows and the refresh machinery. It is confined to
// the UI event loop except for the collector goroutines, which only
// touch the results channel.
type Dashboard struct {
	rows     []HostRow
	selected int
	mode     Mode

	source   MetricsSource
	collect  CollectFunc
	interval time.Duration

	autoRefresh bool
	lastRefresh time.Time

	results chan result
	stopped sync.Once
	stop    chan struct{}
	pending map[uint32]bool
}

// New builds a dashboard over the given credentialed hosts.
func New(hosts []HostRow, source MetricsSource, collect CollectFunc) *Dashboard {
	return &Dashboard{
		rows:     hosts,
		source:   source,
		collect:  collect,
		interval: DefaultRefreshInterval,
		results:  make(chan result, len(hosts)+16),
		stop:     make(chan struct{}),
		pending:  make(map[uint32]bool),
	}
}

// Rows returns the current rows.
func (d *Dashboard) Rows() []HostRow { return d.rows }

// Selected returns the selected row index.
func (d *Dashboard) Selected() int { return d.selected }

// SelectedRow returns the selected row.
func (d *Dashboard) SelectedRow() (HostRow, bool) {
	if d.selected < 0 || d.selected >= len(d.rows) {
		return HostRow{}, false
	}
	return d.rows[d.selected], true
}

// Mode returns the view mode.
func (d *Dashboard) Mode() Mode { return d.mode }

// EnterDetail switches to the detail view of the selected host.
func (d *Dashboard) EnterDetail() { d.mode = ModeDetail }

// ExitDetail returns to the overview.
func (d *Dashboard) ExitDetail() { d.mode = ModeOverview }

// SelectNext moves the selection down, clamped.
func (d *Dashboard) SelectNext() {
	if d.selected < len(d.rows)-1 {
		d.selected++
	}
}

// SelectPrev moves the selection up, clamped.
func (d *Dashboard) SelectPrev() {
	if d.selected > 0 {
		d.selected--
	}
}

// SelectFirst jumps to the first row.
func (d *Dashboard) SelectFirst() { d.selected = 0 }

// SelectLast jumps to the last row.
func (d *Dashboard) SelectLast() {
	if len(d.rows) > 0 {
		d.selected = len(d.rows) - 1
	}
}

// SetAutoRefresh toggles interval-gated refresh.
func (d *Dashboard) SetAutoRefresh(on bool) { d.autoRefresh = on }

// AutoRefresh reports the flag.
func (d *Dashboard) AutoRefresh() bool { return d.autoRefresh }

// SetInterval overrides the auto-refresh interval.
func (d *Dashboard) SetInterval(iv time.Duration) {
	if iv > 0 {
		d.interval = iv
	}
}

// NeedsRefresh is true once per interval while auto refresh is on.
func (d *Dashboard) NeedsRefresh() bool {
	return d.autoRefresh && time.Since(d.lastRefresh) >= d.interval
}

// Refresh updates every row: hosts with a fresh receiver report get it
// directly; the rest go to the SSH collector on worker goroutines,
// delivered later through Poll.
func (d *Dashboard) Refresh() {
	d.lastRefresh = time.Now()
	for i := range d.rows {
		row := &d.rows[i]
		if d.source != nil && d.source.HasRecentMetrics(row.HostID) {
			if m, ok := d.source.GetMetrics(row.HostID); ok {
				row.Metrics = &m
				row.Err = ""
				row.Updated = time.Now()
				continue
			}
		}
		if d.collect == nil || d.pending[row.HostID] {
			continue
		}
		d.pending[row.HostID] = true
		go d.collectOne(row.Ctx, row.HostID)
	}
}

func (d *Dashboard) collectOne(ctx term.SSHContext, hostID uint32) {
	m, err := d.collect(ctx, hostID)
	select {
	case d.results <- result{hostID: hostID, m: m, err: err}:
	case <-d.stop:
	}
}

// Poll drains collector results into the rows. Returns how many rows
// changed.
func (d *Dashboard) Poll() int {
	updated := 0
	for {
		select {
		case res := <-d.results:
			delete(d.pending, res.hostID)
			for i := range d.rows {
				if d.rows[i].HostID != res.hostID {
					continue
				}
				if res.err != nil {
					d.rows[i].Err = res.err.Error()
				} else {
					m := res.m
					d.rows[i].Metrics = &m
					d.rows[i].Err = ""
				}
				d.rows[i].Updated = time.Now()
				updated++
			}
		default:
			return updated
		}
	}
}

// Stop releases any collector goroutines still blocked on delivery.
func (d *Dashboard) Stop() {
	d.stopped.Do(func() { close(d.stop) })
}

// CollectOverSSH is the fallback collector: one short SSH exec reading
// /proc and df, parsed into DeviceMetrics.
func CollectOverSSH(exec daemon.Execer, hostID uint32) (daemon.DeviceMetrics, error) {
	out, err := exec.ExecCommand(
		"cat /proc/loadavg; nproc; " +
			"awk '/^MemTotal:|^MemAvailable:|^MemFree:|^SwapTotal:|^SwapFree:/ {print $1, int($2/1024)}' /proc/meminfo; " +
			"df -BG / | awk 'NR==2 {gsub(\"G\",\"\"); print \"disk\", $2, $3}'")
	if err != nil {
		return daemon.DeviceMetrics{}, fmt.Errorf("collect host %d: %w", hostID, err)
	}
	m, err := parseProcSample(out)
	if err != nil {
		return daemon.DeviceMetrics{}, fmt.Errorf("collect host %d: %w", hostID, err)
	}
	m.HostID = hostID
	m.Timestamp = time.Now().Unix()
	m.ReceivedAt = time.Now()
	return m, nil
}

// parseProcSample decodes the combined output of the fallback command.
func parseProcSample(out string) (daemon.DeviceMetrics, error) {
	var m daemon.DeviceMetrics
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return m, fmt.Errorf("short sample %q", out)
	}
	if _, err := fmt.Sscanf(lines[0], "%f %f %f", &m.CPULoad[0], &m.CPULoad[1], &m.CPULoad[2]); err != nil {
		return m, fmt.Errorf("parse loadavg %q: %w", lines[0], err)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(lines[1]), "%d", &m.CPUCores); err != nil {
		return m, fmt.Errorf("parse nproc %q: %w", lines[1], err)
	}
	var memFree, swapFree uint64
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			fmt.Sscanf(fields[1], "%d", &m.MemTotalMB)
		case "MemAvailable:":
			fmt.Sscanf(fields[1], "%d", &m.MemAvailMB)
		case "MemFree:":
			fmt.Sscanf(fields[1], "%d", &memFree)
		case "SwapTotal:":
			fmt.Sscanf(fields[1], "%d", &m.SwapTotalMB)
		case "SwapFree:":
			fmt.Sscanf(fields[1], "%d", &swapFree)
		case "disk":
			if len(fields) >= 3 {
				fmt.Sscanf(fields[1], "%d", &m.DiskTotalGB)
				fmt.Sscanf(fields[2], "%d", &m.DiskUsedGB)
			}
		}
	}
	if m.MemAvailMB == 0 {
		m.MemAvailMB = memFree
	}
	if m.SwapTotalMB >= swapFree {
		m.SwapUsedMB = m.SwapTotalMB - swapFree
	}
	return m, nil
}
