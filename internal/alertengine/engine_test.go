package alertengine

import (
	"testing"
	"time"

	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/probes"
)

func pf(v float64) *float64 { return &v }

func baseTime() time.Time { return time.Now() }

func TestSustainedCPUAlertFiresOnceAfterDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPUDuration = 30 * time.Second
	e := New(cfg)

	start := baseTime()
	var fired int
	for tick := 0; tick < 35; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		res := e.Evaluate(Input{
			Sample:  probes.HostSample{CPUPercent: pf(95)},
			Quality: "good",
			NowUTC:  now,
			NowMono: now,
		})
		for _, a := range res.Alerts {
			if a.Type == alertlog.TypeCPUHigh {
				fired++
			}
		}
	}
	if fired != 1 {
		t.Fatalf("expected exactly 1 cpu_high alert across 35 ticks, got %d", fired)
	}

	// Continue for another 60s at the same level: cooldown + latch suppress refiring.
	for tick := 35; tick < 95; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		res := e.Evaluate(Input{
			Sample:  probes.HostSample{CPUPercent: pf(95)},
			Quality: "good",
			NowUTC:  now,
			NowMono: now,
		})
		for _, a := range res.Alerts {
			if a.Type == alertlog.TypeCPUHigh {
				fired++
			}
		}
	}
	if fired != 1 {
		t.Fatalf("expected no additional cpu_high alerts over next 60s, total fired=%d", fired)
	}
}

func TestCPUAlertClearsOnDrop(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	start := baseTime()

	for tick := 0; tick < 31; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		e.Evaluate(Input{Sample: probes.HostSample{CPUPercent: pf(95)}, Quality: "good", NowUTC: now, NowMono: now})
	}
	if !e.cpuFired {
		t.Fatal("expected cpu latch set after sustained high CPU")
	}

	now := start.Add(32 * time.Second)
	e.Evaluate(Input{Sample: probes.HostSample{CPUPercent: pf(10)}, Quality: "good", NowUTC: now, NowMono: now})
	if e.cpuFired || e.cpuHighSince != nil {
		t.Fatal("expected cpu latch and since to clear once below threshold")
	}
}

func TestPortFlapFiresOnSixthTransitionWithin120s(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	start := baseTime()

	required := []probes.PortStatus{{Port: 3000, Required: true}}
	listening := true

	// Baseline observation.
	now := start
	required[0].Listening = listening
	e.Evaluate(Input{PortsRequired: required, Quality: "good", NowUTC: now, NowMono: now})

	var flapAlerts int
	for i := 0; i < 6; i++ {
		listening = !listening
		now = start.Add(time.Duration(i+1) * 5 * time.Second)
		required[0].Listening = listening
		res := e.Evaluate(Input{PortsRequired: required, Quality: "good", NowUTC: now, NowMono: now})
		for _, a := range res.Alerts {
			if a.Type == alertlog.TypePortFlapping {
				flapAlerts++
			}
		}
	}
	if flapAlerts != 1 {
		t.Fatalf("expected exactly 1 port_flapping alert after 6 transitions, got %d", flapAlerts)
	}

	// A 7th transition within the same window should not fire again.
	listening = !listening
	now = start.Add(40 * time.Second)
	required[0].Listening = listening
	res := e.Evaluate(Input{PortsRequired: required, Quality: "good", NowUTC: now, NowMono: now})
	for _, a := range res.Alerts {
		if a.Type == alertlog.TypePortFlapping {
			t.Fatal("expected no additional port_flapping alert within the same window")
		}
	}
	_ = res
}

func TestMuteSuppressesAlertsButNotWatchPortEvents(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	start := baseTime()

	watch := []probes.PortStatus{{Port: 8080, Listening: true}}
	e.Evaluate(Input{PortsWatch: watch, Quality: "good", NowUTC: start, NowMono: start})

	var portEvents int
	for tick := 0; tick < 31; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		watch[0].Listening = tick%2 == 0
		res := e.Evaluate(Input{
			Sample:     probes.HostSample{CPUPercent: pf(99)},
			PortsWatch: watch,
			Quality:    "good",
			NowUTC:     now,
			NowMono:    now,
			Muted:      true,
		})
		for _, a := range res.Alerts {
			if a.Type == alertlog.TypeCPUHigh {
				t.Fatal("expected no cpu_high alert while muted")
			}
		}
		for _, ev := range res.Events {
			if ev.Kind == "port_up" || ev.Kind == "port_down" {
				portEvents++
			}
		}
	}
	// Tick 0 repeats the baseline state; ticks 1..30 each flip the port.
	if portEvents != 30 {
		t.Fatalf("expected 30 watch-port events while muted, got %d", portEvents)
	}
}

func TestNetworkQualityTransitionEmitsEventOnce(t *testing.T) {
	e := New(DefaultConfig())
	start := baseTime()

	res := e.Evaluate(Input{Quality: "good", NowUTC: start, NowMono: start})
	if len(res.Events) != 0 {
		t.Fatalf("expected no event on baseline observation, got %d", len(res.Events))
	}

	now := start.Add(time.Second)
	res = e.Evaluate(Input{Quality: "poor", NowUTC: now, NowMono: now})
	found := false
	for _, ev := range res.Events {
		if ev.Kind == "network_status" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected network_status event on quality transition")
	}

	now = start.Add(2 * time.Second)
	res = e.Evaluate(Input{Quality: "poor", NowUTC: now, NowMono: now})
	for _, ev := range res.Events {
		if ev.Kind == "network_status" {
			t.Fatal("expected no duplicate network_status event while quality unchanged")
		}
	}
}
