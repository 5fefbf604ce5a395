package stats

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Resources is a point-in-time sample of this process's resource use.
type Resources struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

// SampleResources reads the current process's memory, CPU and thread counts.
// CPUPercent is averaged over the process lifetime.
func SampleResources() (Resources, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Resources{}, fmt.Errorf("inspecting process: %w", err)
	}

	var res Resources
	mem, err := p.MemoryInfo()
	if err != nil {
		return Resources{}, fmt.Errorf("reading memory info: %w", err)
	}
	res.RSSBytes = mem.RSS

	if res.CPUPercent, err = p.CPUPercent(); err != nil {
		return Resources{}, fmt.Errorf("reading cpu usage: %w", err)
	}
	if res.Threads, err = p.NumThreads(); err != nil {
		return Resources{}, fmt.Errorf("reading thread count: %w", err)
	}
	return res, nil
}
