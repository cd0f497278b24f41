// Package probes defines the collaborator interfaces the scheduler polls
// each tick, plus default implementations. Per spec.md §4.1, probes never
// raise into the caller: each returns a partial-failure sentinel (a nil
// pointer, an empty slice, or an explicit "unavailable" reason) and the
// scheduler substitutes nulls/empties on failure.
package probes

import "context"

// HostSample is one tick's worth of host-metric readings. A field is nil
// iff its probe failed this tick.
type HostSample struct {
	CPUPercent     *float64
	MemPercent     *float64
	MemUsedBytes   *int64
	MemAvailBytes  *int64
	MemTotalBytes  *int64
	DiskPercent    *float64
	DiskUsedBytes  *int64
	DiskFreeBytes  *int64
	DiskTotalBytes *int64
	NetSentBps     *float64
	NetRecvBps     *float64
}

// PortStatus is the observed listening state of one watched port.
type PortStatus struct {
	Port        int
	Listening   bool
	PID         int
	ProcessName string
	Required    bool
}

// PingResult is the outcome of one network-quality probe. LatencyMS is nil
// when the target is unreachable ("offline").
type PingResult struct {
	LatencyMS *float64
}

// ProcessRow is one row of the top-processes probe.
type ProcessRow struct {
	PID        int
	Name       string
	CPUPercent float64
	MemPercent float64
}

// ListeningSocket is one row of the listening-sockets probe.
type ListeningSocket struct {
	IP          string
	Port        int
	PID         int
	ProcessName string
}

// ContainerRow is one row of the optional container-stats probe.
type ContainerRow struct {
	ID            string
	Name          string
	CPUPercent    float64
	MemUsageBytes int64
	MemLimitBytes int64
}

// CPUProbe samples instantaneous CPU utilization as a 0..100 percentage.
// Returns (nil, err) when unavailable.
type CPUProbe interface {
	SampleCPUPercent(ctx context.Context) (*float64, error)
}

// MemProbe samples memory usage.
type MemProbe interface {
	SampleMem(ctx context.Context) (usedBytes, totalBytes *int64, err error)
}

// DiskProbe samples disk usage for a configured path.
type DiskProbe interface {
	SampleDisk(ctx context.Context) (usedBytes, totalBytes *int64, err error)
}

// NetCounterProbe reports network throughput deltas. Stateful: stores the
// previous (bytesSent, bytesRecv, monotonicTS) and returns per-second
// deltas clamped to >= 0. The first call, and any call where the clock
// delta is <= 0, returns zeros.
type NetCounterProbe interface {
	SampleNetRates(ctx context.Context) (sentBps, recvBps *float64, err error)
}

// PortProbe reports the listening state of a set of ports.
type PortProbe interface {
	SamplePorts(ctx context.Context, ports []int, required map[int]bool) ([]PortStatus, error)
}

// PingProbe measures round-trip latency to a configured host.
type PingProbe interface {
	Ping(ctx context.Context) (PingResult, error)
}

// ProcessProbe reports the top-N processes by CPU usage.
type ProcessProbe interface {
	TopProcesses(ctx context.Context, n int) ([]ProcessRow, error)
}

// ListeningSocketProbe enumerates listening sockets, deduped by
// (ip, port, pid), sorted by (port, ip, pid), capped at limit.
type ListeningSocketProbe interface {
	ListeningSockets(ctx context.Context, limit int) ([]ListeningSocket, error)
}

// ContainerProbe reports per-container resource stats. Optional — a nil
// ContainerProbe or an empty result is not an error.
type ContainerProbe interface {
	ContainerStats(ctx context.Context) ([]ContainerRow, error)
}
