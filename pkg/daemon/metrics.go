// Package daemon covers the remote health-metrics pipeline: the shell
// collector script deployed to hosts, the deployer that manages it
// over SSH, and the local HTTP receiver that caches reported metrics.
package daemon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GPUInfo is the optional GPU block of a metrics report.
type GPUInfo struct {
	Type       string  `json:"gpu_type"`
	Name       string  `json:"name"`
	Usage      float64 `json:"usage"`
	MemUsedMB  uint64  `json:"mem_used"`
	MemTotalMB uint64  `json:"mem_total"`
	TempC      float64 `json:"temp"`
}

// wireMetrics mirrors the JSON document the daemon script POSTs. The
// host id travels as a string; memory is in MB, disk in GB.
type wireMetrics struct {
	HostID string `json:"host_id"`
	TS     int64  `json:"ts"`
	CPU    struct {
		Load  []float64 `json:"load"`
		Cores int       `json:"cores"`
	} `json:"cpu"`
	Mem struct {
		Total     uint64 `json:"total"`
		Avail     uint64 `json:"avail"`
		SwapTotal uint64 `json:"swap_total"`
		SwapUsed  uint64 `json:"swap_used"`
	} `json:"mem"`
	Disk struct {
		Total uint64 `json:"total"`
		Used  uint64 `json:"used"`
	} `json:"disk"`
	GPU *GPUInfo `json:"gpu,omitempty"`
}

// DeviceMetrics is one host's latest health report.
type DeviceMetrics struct {
	HostID      uint32
	Timestamp   int64
	CPULoad     [3]float64
	CPUCores    int
	MemTotalMB  uint64
	MemAvailMB  uint64
	SwapTotalMB uint64
	SwapUsedMB  uint64
	DiskTotalGB uint64
	DiskUsedGB  uint64
	GPU         *GPUInfo
	ReceivedAt  time.Time
}

// ParseMetrics decodes one wire document.
func ParseMetrics(data []byte) (DeviceMetrics, error) {
	var w wireMetrics
	if err := json.Unmarshal(data, &w); err != nil {
		return DeviceMetrics{}, fmt.Errorf("parse metrics: %w", err)
	}
	id64, err := strconv.ParseUint(w.HostID, 10, 32)
	if err != nil {
		return DeviceMetrics{}, fmt.Errorf("parse metrics: bad host_id %q", w.HostID)
	}
	m := DeviceMetrics{
		HostID:      uint32(id64),
		Timestamp:   w.TS,
		CPUCores:    w.CPU.Cores,
		MemTotalMB:  w.Mem.Total,
		MemAvailMB:  w.Mem.Avail,
		SwapTotalMB: w.Mem.SwapTotal,
		SwapUsedMB:  w.Mem.SwapUsed,
		DiskTotalGB: w.Disk.Total,
		DiskUsedGB:  w.Disk.Used,
		GPU:         w.GPU,
	}
	for i := 0; i < len(m.CPULoad) && i < len(w.CPU.Load); i++ {
		m.CPULoad[i] = w.CPU.Load[i]
	}
	return m, nil
}

// CPUUsagePercent approximates utilization from the 1-minute load
// average, clamped to 0..100.
func (m DeviceMetrics) CPUUsagePercent() float64 {
	if m.CPUCores <= 0 {
		return 0
	}
	pct := m.CPULoad[0] / float64(m.CPUCores) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// MemUsagePercent reports used memory as a share of total.
func (m DeviceMetrics) MemUsagePercent() float64 {
	if m.MemTotalMB == 0 {
		return 0
	}
	used := m.MemTotalMB - m.MemAvailMB
	return float64(used) / float64(m.MemTotalMB) * 100
}

// DiskUsagePercent reports used disk as a share of total.
func (m DeviceMetrics) DiskUsagePercent() float64 {
	if m.DiskTotalGB == 0 {
		return 0
	}
	return float64(m.DiskUsedGB) / float64(m.DiskTotalGB) * 100
}
