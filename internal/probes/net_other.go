//go:build !linux

package probes

import (
	"context"
	"sync"
	"time"
)

// MonotonicNetProbe is the non-Linux stub: without a portable counter source
// it reports unavailable rather than fabricating throughput.
type MonotonicNetProbe struct {
	mu sync.Mutex
}

func NewMonotonicNetProbe() *MonotonicNetProbe { return &MonotonicNetProbe{} }

func (p *MonotonicNetProbe) SampleNetRates(ctx context.Context) (sentBps, recvBps *float64, err error) {
	_ = time.Now()
	return nil, nil, ErrUnsupportedPlatform
}
