package util

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const mb = 1024 * 1024

// HostInfo describes the machine an import runs on. It is attached to
// telemetry messages and served by the API.
type HostInfo struct {
	Hostname string    `json:"hostname"`
	OS       string    `json:"os"`
	Arch     string    `json:"arch"`
	CPUModel string    `json:"cpu_model,omitempty"`
	CPUCores int       `json:"cpu_cores"`
	MemoryMB uint64    `json:"memory_mb,omitempty"`
	BootTime time.Time `json:"boot_time,omitempty"`
}

// DescribeHost gathers host information. Fields gopsutil cannot read stay
// empty; OS falls back to runtime.GOOS.
func DescribeHost() HostInfo {
	info := HostInfo{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if h, err := host.Info(); err == nil {
		if h.Platform != "" {
			info.OS = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		}
		if h.BootTime > 0 {
			info.BootTime = time.Unix(int64(h.BootTime), 0).UTC()
		}
	}

	if c, err := cpu.Info(); err == nil && len(c) > 0 {
		info.CPUModel = c[0].ModelName
	}

	if m, err := mem.VirtualMemory(); err == nil {
		info.MemoryMB = m.Total / mb
	}

	return info
}

// ProcessUsage is the resource use of the importer process itself.
type ProcessUsage struct {
	PID        int32   `json:"pid"`
	RSSMB      uint64  `json:"rss_mb"`
	Threads    int32   `json:"threads"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// DescribeProcess reports the current process's memory and CPU use.
func DescribeProcess() (ProcessUsage, error) {
	pid := int32(os.Getpid())
	usage := ProcessUsage{PID: pid, Goroutines: runtime.NumGoroutine()}

	p, err := process.NewProcess(pid)
	if err != nil {
		return usage, fmt.Errorf("opening process %d: %w", pid, err)
	}

	m, err := p.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("reading process memory: %w", err)
	}
	usage.RSSMB = m.RSS / mb

	if n, err := p.NumThreads(); err == nil {
		usage.Threads = n
	}
	if pct, err := p.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}
	return usage, nil
}
