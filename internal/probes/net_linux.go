//go:build linux

package probes

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MonotonicNetProbe tracks cumulative interface byte counters and reports
// per-second deltas, the Go analogue of original_source's stateful
// _last_sample / collect_network pairing. The first call, and any call
// spanning a non-positive elapsed time, report zero rates.
type MonotonicNetProbe struct {
	mu        sync.Mutex
	haveLast  bool
	lastAt    time.Time
	lastSent  uint64
	lastRecv  uint64
}

func NewMonotonicNetProbe() *MonotonicNetProbe {
	return &MonotonicNetProbe{}
}

func (p *MonotonicNetProbe) SampleNetRates(ctx context.Context) (sentBps, recvBps *float64, err error) {
	sent, recv, err := readNetDev()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	zero := 0.0
	if !p.haveLast {
		p.haveLast = true
		p.lastAt, p.lastSent, p.lastRecv = now, sent, recv
		return &zero, &zero, nil
	}

	dt := now.Sub(p.lastAt).Seconds()
	if dt <= 0 {
		p.lastAt, p.lastSent, p.lastRecv = now, sent, recv
		return &zero, &zero, nil
	}

	sentRate := (float64(sent) - float64(p.lastSent)) / dt
	recvRate := (float64(recv) - float64(p.lastRecv)) / dt
	if sentRate < 0 {
		sentRate = 0
	}
	if recvRate < 0 {
		recvRate = 0
	}
	p.lastAt, p.lastSent, p.lastRecv = now, sent, recv
	return &sentRate, &recvRate, nil
}

// readNetDev sums tx/rx bytes across all non-loopback interfaces listed in
// /proc/net/dev.
func readNetDev() (sent, recv uint64, err error) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // header lines
		}
		line := scanner.Text()
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		iface := strings.TrimSpace(line[:colon])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(line[colon+1:])
		if len(fields) < 9 {
			continue
		}
		rxBytes, convErr := strconv.ParseUint(fields[0], 10, 64)
		if convErr != nil {
			continue
		}
		txBytes, convErr := strconv.ParseUint(fields[8], 10, 64)
		if convErr != nil {
			continue
		}
		recv += rxBytes
		sent += txBytes
	}
	return sent, recv, scanner.Err()
}
