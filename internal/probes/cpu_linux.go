//go:build linux

package probes

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProcCPUProbe samples CPU utilization by differencing /proc/stat across a
// short sleep window, the same two-sample technique as the teacher's
// collectCPUPercent.
type ProcCPUProbe struct {
	SampleWindow time.Duration
}

func NewProcCPUProbe() *ProcCPUProbe {
	return &ProcCPUProbe{SampleWindow: 100 * time.Millisecond}
}

func (p *ProcCPUProbe) SampleCPUPercent(ctx context.Context) (*float64, error) {
	idle1, total1, err := readCPUStat()
	if err != nil {
		return nil, err
	}

	window := p.SampleWindow
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(window):
	}

	idle2, total2, err := readCPUStat()
	if err != nil {
		return nil, err
	}

	totalDelta := total2 - total1
	idleDelta := idle2 - idle1
	if totalDelta <= 0 {
		zero := 0.0
		return &zero, nil
	}
	pct := float64(totalDelta-idleDelta) / float64(totalDelta) * 100
	return &pct, nil
}

func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return 0, 0, fmt.Errorf("unexpected /proc/stat cpu line: %s", line)
		}
		var sum uint64
		for i := 1; i < len(fields); i++ {
			v, parseErr := strconv.ParseUint(fields[i], 10, 64)
			if parseErr != nil {
				continue
			}
			sum += v
			if i == 4 {
				idle = v
			}
		}
		return idle, sum, nil
	}
	return 0, 0, fmt.Errorf("cpu line not found in /proc/stat")
}

// ProcMemProbe samples memory usage from /proc/meminfo.
type ProcMemProbe struct{}

func NewProcMemProbe() *ProcMemProbe { return &ProcMemProbe{} }

func (p *ProcMemProbe) SampleMem(ctx context.Context) (usedBytes, totalBytes *int64, err error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return nil, nil, err
	}

	var memTotal, memAvailable, memFree, buffers, cached int64
	foundAvailable := false

	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		val, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil {
			continue
		}
		valBytes := val * 1024
		switch parts[0] {
		case "MemTotal:":
			memTotal = valBytes
		case "MemAvailable:":
			memAvailable = valBytes
			foundAvailable = true
		case "MemFree:":
			memFree = valBytes
		case "Buffers:":
			buffers = valBytes
		case "Cached:":
			cached = valBytes
		}
	}

	used := memTotal - memAvailable
	if !foundAvailable {
		used = memTotal - (memFree + buffers + cached)
	}
	if used < 0 {
		used = 0
	}
	return &used, &memTotal, nil
}

// ProcDiskProbe samples disk usage for a path via statfs.
type ProcDiskProbe struct {
	Path string
}

func NewProcDiskProbe(path string) *ProcDiskProbe {
	if path == "" {
		path = "/"
	}
	return &ProcDiskProbe{Path: path}
}

func (p *ProcDiskProbe) SampleDisk(ctx context.Context) (usedBytes, totalBytes *int64, err error) {
	return statfsUsage(p.Path)
}
