package probes

import (
	"context"
	"time"

	fastshot "github.com/opus-domini/fast-shot"
)

// Network-quality thresholds from spec.md §4.3 / original_source's
// classify_network: <=50ms good, <=150ms ok, above poor, unreachable offline.
const (
	NetworkQualityGoodMaxMS = 50.0
	NetworkQualityOKMaxMS   = 150.0
)

// NetworkQuality classifies a ping result per the thresholds above.
func NetworkQuality(latencyMS *float64) string {
	if latencyMS == nil {
		return "offline"
	}
	switch {
	case *latencyMS <= NetworkQualityGoodMaxMS:
		return "good"
	case *latencyMS <= NetworkQualityOKMaxMS:
		return "ok"
	default:
		return "poor"
	}
}

// HTTPPingProbe measures reachability/latency against a configured target
// using a plain HTTP HEAD request timed end-to-end, in place of raw ICMP
// (which needs CAP_NET_RAW the daemon should not require). A non-2xx/3xx
// response still counts as "reachable" for latency purposes — the probe
// measures network round-trip, not application health.
type HTTPPingProbe struct {
	client  fastshot.ClientHttpMethods
	timeout time.Duration
}

// NewHTTPPingProbe builds a probe against targetURL (e.g.
// "https://1.1.1.1") with the given per-request timeout.
func NewHTTPPingProbe(targetURL string, timeout time.Duration) *HTTPPingProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := fastshot.NewClient(targetURL).
		Config().SetTimeout(timeout).
		Build()
	return &HTTPPingProbe{client: client, timeout: timeout}
}

func (p *HTTPPingProbe) Ping(ctx context.Context) (PingResult, error) {
	start := time.Now()
	resp, err := p.client.HEAD("/").Send()
	elapsed := time.Since(start)
	if err != nil || resp == nil {
		return PingResult{LatencyMS: nil}, nil
	}
	latency := float64(elapsed.Microseconds()) / 1000.0
	return PingResult{LatencyMS: &latency}, nil
}
