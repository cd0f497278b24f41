//go:build !linux

package probes

import (
	"context"
	"errors"
	"runtime"
	"time"
)

// ErrUnsupportedPlatform marks a probe that has no implementation on the
// current GOOS. Scheduler callers treat it like any other probe failure.
var ErrUnsupportedPlatform = errors.New("probes: unsupported on this platform")

// ProcCPUProbe is the non-Linux stub. No reliable cross-platform CPU
// utilization metric exists without cgo or an external dependency.
type ProcCPUProbe struct {
	SampleWindow time.Duration
}

func NewProcCPUProbe() *ProcCPUProbe { return &ProcCPUProbe{SampleWindow: 100 * time.Millisecond} }

func (p *ProcCPUProbe) SampleCPUPercent(ctx context.Context) (*float64, error) {
	return nil, ErrUnsupportedPlatform
}

// ProcMemProbe approximates memory usage via Go runtime stats on platforms
// without a /proc filesystem.
type ProcMemProbe struct{}

func NewProcMemProbe() *ProcMemProbe { return &ProcMemProbe{} }

func (p *ProcMemProbe) SampleMem(ctx context.Context) (usedBytes, totalBytes *int64, err error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	used := int64(m.Sys)
	total := int64(m.Sys)
	return &used, &total, nil
}

// ProcDiskProbe is the non-Linux stub.
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
	return nil, ErrUnsupportedPlatform
}
