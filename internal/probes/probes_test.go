package probes

import (
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestNetworkQuality(t *testing.T) {
	cases := []struct {
		name    string
		latency *float64
		want    string
	}{
		{"offline", nil, "offline"},
		{"good boundary", f64(50), "good"},
		{"good", f64(12.5), "good"},
		{"ok boundary", f64(150), "ok"},
		{"ok", f64(90), "ok"},
		{"poor", f64(400), "poor"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NetworkQuality(c.latency); got != c.want {
				t.Errorf("NetworkQuality(%v) = %q, want %q", c.latency, got, c.want)
			}
		})
	}
}

func TestParseDockerStats(t *testing.T) {
	output := "abc123\tweb\t12.34%\t100MiB / 1GiB\ndef456\tdb\t0.50%\t512KiB / 2GiB\n"
	rows := parseDockerStats(output)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "abc123" || rows[0].Name != "web" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[0].CPUPercent != 12.34 {
		t.Errorf("CPUPercent = %v, want 12.34", rows[0].CPUPercent)
	}
	if rows[0].MemUsageBytes != 100*(1<<20) {
		t.Errorf("MemUsageBytes = %v, want %v", rows[0].MemUsageBytes, 100*(1<<20))
	}
	if rows[0].MemLimitBytes != 1<<30 {
		t.Errorf("MemLimitBytes = %v, want %v", rows[0].MemLimitBytes, 1<<30)
	}
}

func TestParseDockerStatsMalformedLinesSkipped(t *testing.T) {
	rows := parseDockerStats("not enough fields\nabc\tweb\t1%\t1MiB / 1GiB\n")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after skipping malformed line, got %d", len(rows))
	}
}
