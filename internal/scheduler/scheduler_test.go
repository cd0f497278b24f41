package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opus-domini/devstatd/internal/alertengine"
	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/livebus"
	"github.com/opus-domini/devstatd/internal/probes"
	"github.com/opus-domini/devstatd/internal/profiles"
	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/snapshot"
	"github.com/opus-domini/devstatd/internal/store"
	"github.com/opus-domini/devstatd/internal/timeline"
)

type fakeCPU struct{ v float64 }

func (f fakeCPU) SampleCPUPercent(ctx context.Context) (*float64, error) { return &f.v, nil }

type fakeMem struct{ used, total int64 }

func (f fakeMem) SampleMem(ctx context.Context) (*int64, *int64, error) { return &f.used, &f.total, nil }

type fakeDisk struct{ used, total int64 }

func (f fakeDisk) SampleDisk(ctx context.Context) (*int64, *int64, error) { return &f.used, &f.total, nil }

type fakeNet struct{ sent, recv float64 }

func (f fakeNet) SampleNetRates(ctx context.Context) (*float64, *float64, error) {
	return &f.sent, &f.recv, nil
}

type fakePorts struct{}

func (fakePorts) SamplePorts(ctx context.Context, ports []int, required map[int]bool) ([]probes.PortStatus, error) {
	out := make([]probes.PortStatus, 0, len(ports))
	for _, p := range ports {
		out = append(out, probes.PortStatus{Port: p, Listening: true, Required: required[p]})
	}
	return out, nil
}

type fakePing struct{ latency float64 }

func (f fakePing) Ping(ctx context.Context) (probes.PingResult, error) {
	return probes.PingResult{LatencyMS: &f.latency}, nil
}

type fakeContainers struct{ rows []probes.ContainerRow }

func (f fakeContainers) ContainerStats(ctx context.Context) ([]probes.ContainerRow, error) {
	return f.rows, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "devstatd.db")
	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	snaps := snapshot.New(st.DB())
	alerts := alertlog.New(st.DB())
	events := timeline.New(st.DB())
	settingsStore := settings.New(st.DB())
	catalog := profiles.NewCatalog(settingsStore)
	bus := livebus.New()
	engine := alertengine.New(alertengine.DefaultConfig())

	sched := New(st.DB(), snaps, alerts, events, settingsStore, catalog, bus, engine, Probes{
		CPU:   fakeCPU{v: 10},
		Mem:   fakeMem{used: 1, total: 10},
		Disk:  fakeDisk{used: 1, total: 10},
		Net:   fakeNet{sent: 100, recv: 200},
		Ports: fakePorts{},
		Ping:  fakePing{latency: 20},
	}, Options{Interval: time.Hour}, nil)

	return sched, st
}

type slowPing struct {
	delay   time.Duration
	latency float64
}

func (s slowPing) Ping(ctx context.Context) (probes.PingResult, error) {
	select {
	case <-ctx.Done():
		return probes.PingResult{}, ctx.Err()
	case <-time.After(s.delay):
	}
	return probes.PingResult{LatencyMS: &s.latency}, nil
}

type slowPorts struct {
	delay time.Duration
	fakePorts
}

func (s slowPorts) SamplePorts(ctx context.Context, ports []int, required map[int]bool) ([]probes.PortStatus, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.fakePorts.SamplePorts(ctx, ports, required)
}

// TestTickOffloadsPortsAndPingConcurrently exercises the errgroup-backed
// worker-pool offload: with both the port probe and the ping probe
// individually slow, a tick that ran them sequentially would take roughly
// the sum of their delays. The offload must keep it close to the slower of
// the two alone.
func TestTickOffloadsPortsAndPingConcurrently(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()
	const delay = 150 * time.Millisecond
	sched.probes.Ports = slowPorts{delay: delay}
	sched.probes.Ping = slowPing{delay: delay, latency: 5}

	start := time.Now()
	sched.tick(ctx)
	if elapsed := time.Since(start); elapsed > delay+100*time.Millisecond {
		t.Fatalf("tick took %v, expected port and ping probes to run concurrently (~%v), not sequentially (~%v)", elapsed, delay, 2*delay)
	}

	var count int
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 snapshot row after one tick, got %d", count)
	}
}

func TestTickInsertsExactlyOneSnapshot(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	sched.tick(ctx)

	var count int
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 snapshot row after one tick, got %d", count)
	}
}

func TestTickBroadcastsKPI(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	sess, detach := sched.bus.Attach()
	defer detach()
	<-sess.Ch // hello

	sched.tick(ctx)

	msg := <-sess.Ch
	if msg.Type != "kpi" {
		t.Fatalf("expected kpi broadcast, got %q", msg.Type)
	}
}

func TestMutedTickSuppressesAlertInsert(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()
	sched.probes.CPU = fakeCPU{v: 99}
	sched.engine = alertengine.New(alertengine.Config{
		CPUPercent: 85, RAMPercent: 90, CPUDuration: 0, RAMDuration: 0,
		NetOfflineDuration: 10 * time.Second, FlapWindow: 120 * time.Second,
		FlapThreshold: 6, CooldownDuration: 60 * time.Second, PingHost: "1.1.1.1",
	})

	if err := sched.settings.Set(ctx, settings.KeyMuteUntilUTC, time.Now().Add(time.Hour).UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("set mute: %v", err)
	}

	sched.tick(ctx)

	var count int
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 alerts while muted, got %d", count)
	}
}

func TestTickBroadcastsContainersWhenObserverAttachedAndProbeSet(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	sched.probes.Containers = fakeContainers{rows: []probes.ContainerRow{{ID: "c1", Name: "app", CPUPercent: 5}}}

	sess, detach := sched.bus.Attach()
	defer detach()
	<-sess.Ch // hello

	sched.tick(ctx)

	var sawContainers bool
	for i := 0; i < 4; i++ {
		msg := <-sess.Ch
		if msg.Type == "containers" {
			sawContainers = true
			break
		}
	}
	if !sawContainers {
		t.Fatal("expected a containers broadcast when an observer is attached and the probe is set")
	}
}

func TestBroadcastContainersSkipsWhenProbeNil(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.lastProcessesBroadcast = time.Time{}

	sess, detach := sched.bus.Attach()
	defer detach()
	<-sess.Ch // hello

	sched.broadcastContainers(context.Background())

	select {
	case msg := <-sess.Ch:
		t.Fatalf("expected no broadcast with a nil Containers probe, got %q", msg.Type)
	default:
	}
}
