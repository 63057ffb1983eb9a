// Package vitals samples resource usage of the monitored process so
// snapshots and dashboards can correlate stuck modes with runaway
// CPU or memory.
package vitals

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Vitals is one resource-usage sample.
type Vitals struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpuPercent"`
	RSSBytes   uint64    `json:"rssBytes"`
	NumThreads int32     `json:"numThreads"`
	SampledAt  time.Time `json:"sampledAt"`
}

// Collector samples one process.
type Collector struct {
	proc *process.Process
}

// NewCollector attaches to the given PID.
func NewCollector(pid int32) (*Collector, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to pid %d: %w", pid, err)
	}
	return &Collector{proc: proc}, nil
}

// Sample reads the current resource usage. Individual probe failures
// degrade to zero values rather than failing the sample.
func (c *Collector) Sample() Vitals {
	v := Vitals{PID: c.proc.Pid, SampledAt: time.Now()}

	if cpu, err := c.proc.CPUPercent(); err == nil {
		v.CPUPercent = cpu
	}
	if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
		v.RSSBytes = mem.RSS
	}
	if threads, err := c.proc.NumThreads(); err == nil {
		v.NumThreads = threads
	}
	return v
}

// Labels renders the sample as snapshot context labels.
func (v Vitals) Labels() map[string]string {
	return map[string]string{
		"cpu_percent": fmt.Sprintf("%.1f", v.CPUPercent),
		"rss_mb":      fmt.Sprintf("%d", v.RSSBytes/(1024*1024)),
	}
}
