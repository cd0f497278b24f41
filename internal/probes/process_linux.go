//go:build linux

package probes

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// clockTicksPerSec is USER_HZ, the unit /proc/<pid>/stat's utime/stime
// fields are expressed in. 100 is the de facto value on every mainstream
// Linux kernel/arch combination; reading the real sysconf(_SC_CLK_TCK)
// value would require cgo, which the rest of this package avoids.
const clockTicksPerSec = 100.0

// ProcProcessProbe lists top processes by CPU usage, sampling
// /proc/<pid>/stat twice across a short window and differencing
// utime+stime — the same two-sample technique as ProcCPUProbe, applied
// per-PID instead of to the aggregate cpu line, mirroring the original
// collector's psutil.Process.cpu_percent(interval=None) pair.
type ProcProcessProbe struct {
	SampleWindow time.Duration
}

func NewProcProcessProbe() *ProcProcessProbe {
	return &ProcProcessProbe{SampleWindow: 150 * time.Millisecond}
}

type procSample struct {
	name     string
	cpuTicks uint64
	rssPages int64
}

func (p *ProcProcessProbe) TopProcesses(ctx context.Context, n int) ([]ProcessRow, error) {
	first, err := readAllProcStats()
	if err != nil {
		return nil, err
	}

	window := p.SampleWindow
	if window <= 0 {
		window = 150 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(window):
	}

	second, err := readAllProcStats()
	if err != nil {
		return nil, err
	}

	memTotal := readMemTotalKB()
	elapsedSec := window.Seconds()

	rows := make([]ProcessRow, 0, len(second))
	for pid, cur := range second {
		prev, ok := first[pid]
		if !ok {
			// Started during the sample window; no baseline to delta against.
			continue
		}
		row := ProcessRow{PID: pid, Name: cur.name}
		if elapsedSec > 0 && cur.cpuTicks >= prev.cpuTicks {
			deltaSeconds := float64(cur.cpuTicks-prev.cpuTicks) / clockTicksPerSec
			row.CPUPercent = deltaSeconds / elapsedSec * 100
		}
		if memTotal > 0 {
			row.MemPercent = float64(cur.rssPages*4) / float64(memTotal) * 100
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CPUPercent > rows[j].CPUPercent })
	if n <= 0 {
		n = 10
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func readAllProcStats() (map[int]procSample, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	out := make(map[int]procSample, len(entries))
	for _, e := range entries {
		pid, convErr := strconv.Atoi(e.Name())
		if convErr != nil {
			continue
		}
		if s, ok := readProcStat(pid); ok {
			out[pid] = s
		}
	}
	return out, nil
}

func readProcStat(pid int) (procSample, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return procSample{}, false
	}
	text := string(data)
	open := strings.IndexByte(text, '(')
	closeIdx := strings.LastIndexByte(text, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return procSample{}, false
	}
	name := text[open+1 : closeIdx]
	rest := strings.Fields(text[closeIdx+1:])
	// rest[0] = state, fields continue from position 3 (1-indexed) onward;
	// utime is field 14, stime field 15 relative to the full stat line, i.e.
	// rest[11] and rest[12] once state (rest[0]) is accounted for.
	if len(rest) < 24 {
		return procSample{}, false
	}
	utime, _ := strconv.ParseUint(rest[11], 10, 64)
	stime, _ := strconv.ParseUint(rest[12], 10, 64)
	rss, _ := strconv.ParseInt(rest[21], 10, 64)
	return procSample{name: name, cpuTicks: utime + stime, rssPages: rss}, true
}

func readMemTotalKB() int64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			v, _ := strconv.ParseInt(fields[1], 10, 64)
			return v
		}
	}
	return 0
}
