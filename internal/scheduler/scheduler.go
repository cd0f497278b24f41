// Package scheduler runs the periodic SnapshotScheduler tick loop (spec.md
// §4.2): collect one HostSample plus auxiliary readings, persist within a
// single transaction, evaluate the AlertEngine, broadcast over the LiveBus
// strictly after commit. The Start/Stop/doneCh shape is lifted directly
// from the teacher's internal/watchtower.Service.
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/opus-domini/devstatd/internal/alertengine"
	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/livebus"
	"github.com/opus-domini/devstatd/internal/metrics"
	"github.com/opus-domini/devstatd/internal/probes"
	"github.com/opus-domini/devstatd/internal/profiles"
	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/snapshot"
	"github.com/opus-domini/devstatd/internal/timeline"
)

const processesBroadcastGate = 5 * time.Second

// Probes bundles the collaborator probes the scheduler polls each tick.
// Per spec.md §4.1 these are interfaces only; the daemon wires default
// implementations from internal/probes.
type Probes struct {
	CPU        probes.CPUProbe
	Mem        probes.MemProbe
	Disk       probes.DiskProbe
	Net        probes.NetCounterProbe
	Ports      probes.PortProbe
	Ping       probes.PingProbe
	Process    probes.ProcessProbe
	Sockets    probes.ListeningSocketProbe
	Containers probes.ContainerProbe // optional, may be nil
}

// Options configures the scheduler's tick cadence.
type Options struct {
	Interval time.Duration
}

// Scheduler is the SnapshotScheduler. Not safe for concurrent Start/Stop
// from multiple goroutines beyond the sync.Once guarantee.
type Scheduler struct {
	db       *sql.DB
	snaps    *snapshot.Store
	alerts   *alertlog.Store
	events   *timeline.Store
	settings *settings.Store
	catalog  *profiles.Catalog
	bus      *livebus.LiveBus
	engine   *alertengine.Engine
	probes   Probes
	opts     Options
	metrics  *metrics.Metrics

	lastProcessesBroadcast time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopFn    context.CancelFunc
	doneCh    chan struct{}
}

func New(
	db *sql.DB,
	snaps *snapshot.Store,
	alerts *alertlog.Store,
	events *timeline.Store,
	settingsStore *settings.Store,
	catalog *profiles.Catalog,
	bus *livebus.LiveBus,
	engine *alertengine.Engine,
	p Probes,
	opts Options,
	m *metrics.Metrics,
) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Scheduler{
		db:       db,
		snaps:    snaps,
		alerts:   alerts,
		events:   events,
		settings: settingsStore,
		catalog:  catalog,
		bus:      bus,
		engine:   engine,
		probes:   p,
		opts:     opts,
		metrics:  m,
	}
}

// Start begins the tick loop. Idempotent.
func (s *Scheduler) Start(parent context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.stopFn = cancel
		s.doneCh = make(chan struct{})

		go func() {
			defer close(s.doneCh)
			ticker := time.NewTicker(s.opts.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.tick(ctx)
				}
			}
		}()
	})
}

// Stop signals the tick loop to exit and waits for it. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.stopFn != nil {
			s.stopFn()
		}
		if s.doneCh != nil {
			<-s.doneCh
		}
	})
}

func (s *Scheduler) tick(ctx context.Context) {
	nowUTC := time.Now().UTC()
	nowMono := time.Now()
	if s.metrics != nil {
		defer func(start time.Time) { s.metrics.TickDuration.Observe(time.Since(start).Seconds()) }(nowMono)
		s.metrics.ObserversGauge.Set(float64(s.bus.Count()))
	}

	sample := s.collectSample(ctx)

	active, err := s.catalog.Active(ctx)
	if err != nil {
		slog.Warn("scheduler: load active profile failed", "error", err)
		active = profiles.Default()
	}

	required := make(map[int]bool, len(active.RequiredPorts))
	for _, p := range active.RequiredPorts {
		required[p] = true
	}

	// Ports and ping are the blocking probes spec.md §4.2 calls out for
	// worker-pool offload (TCP dial fallback in SamplePorts, the ping
	// timeout) — dispatched to their own goroutines and awaited together
	// so one slow probe doesn't delay the other within the same tick.
	var portsWatch []probes.PortStatus
	var pingResult probes.PingResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.probes.Ports == nil {
			return nil
		}
		rows, err := s.probes.Ports.SamplePorts(gctx, active.WatchPorts, required)
		if err != nil {
			slog.Warn("scheduler: port probe failed", "error", err)
			return nil
		}
		portsWatch = rows
		return nil
	})
	g.Go(func() error {
		if s.probes.Ping == nil {
			return nil
		}
		r, err := s.probes.Ping.Ping(gctx)
		if err != nil {
			return nil
		}
		pingResult = r
		return nil
	})
	_ = g.Wait()

	var portsRequired []probes.PortStatus
	for _, p := range portsWatch {
		if p.Required {
			portsRequired = append(portsRequired, p)
		}
	}

	quality := probes.NetworkQuality(pingResult.LatencyMS)

	muted := s.isMuted(ctx, nowUTC)

	result := s.engine.Evaluate(alertengine.Input{
		Sample:        sample,
		PortsRequired: portsRequired,
		PortsWatch:    portsWatch,
		Quality:       quality,
		LatencyMS:     pingResult.LatencyMS,
		NowUTC:        nowUTC,
		NowMono:       nowMono,
		Muted:         muted,
	})

	inserted, alertsInserted := s.commitTick(ctx, nowUTC, sample, result)
	if !inserted {
		if s.metrics != nil {
			s.metrics.TickFailures.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
		for _, a := range result.Alerts {
			s.metrics.AlertsFiredTotal.WithLabelValues(a.Type, a.Severity).Inc()
		}
		for _, ev := range result.Events {
			s.metrics.EventsTotal.WithLabelValues(ev.Kind).Inc()
		}
	}

	s.bus.Broadcast("kpi", kpiPayload(sample, quality, pingResult.LatencyMS))
	s.bus.Broadcast("chart_point", map[string]any{
		"cpu_percent": sample.CPUPercent,
		"mem_percent": sample.MemPercent,
	})

	if s.bus.Count() > 0 && time.Since(s.lastProcessesBroadcast) >= processesBroadcastGate {
		s.lastProcessesBroadcast = nowMono
		// Process iteration, listening-socket enumeration, and container
		// engine calls are the other blocking probes spec.md §4.2 calls out
		// for offload; each runs in its own goroutine behind this gate.
		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); s.broadcastProcesses(ctx) }()
		go func() { defer wg.Done(); s.broadcastListeningPorts(ctx) }()
		go func() { defer wg.Done(); s.broadcastContainers(ctx) }()
		wg.Wait()
	}

	slog.Info("snapshot tick",
		"ts", nowUTC.Format(time.RFC3339),
		"alerts", alertsInserted,
		"net_sent", humanize.Bytes(uint64ish(sample.NetSentBps)),
		"net_recv", humanize.Bytes(uint64ish(sample.NetRecvBps)),
		"net_quality", quality,
	)
}

func uint64ish(v *float64) uint64 {
	if v == nil || *v < 0 {
		return 0
	}
	return uint64(*v)
}

func (s *Scheduler) collectSample(ctx context.Context) probes.HostSample {
	var sample probes.HostSample

	if s.probes.CPU != nil {
		if v, err := s.probes.CPU.SampleCPUPercent(ctx); err == nil {
			sample.CPUPercent = v
		}
	}
	if s.probes.Mem != nil {
		if used, total, err := s.probes.Mem.SampleMem(ctx); err == nil && total != nil && *total > 0 {
			sample.MemUsedBytes, sample.MemTotalBytes = used, total
			pct := float64(*used) / float64(*total) * 100
			sample.MemPercent = &pct
		}
	}
	if s.probes.Disk != nil {
		if used, total, err := s.probes.Disk.SampleDisk(ctx); err == nil && total != nil && *total > 0 {
			sample.DiskUsedBytes, sample.DiskTotalBytes = used, total
			free := *total - *used
			sample.DiskFreeBytes = &free
			pct := float64(*used) / float64(*total) * 100
			sample.DiskPercent = &pct
		}
	}
	if s.probes.Net != nil {
		if sent, recv, err := s.probes.Net.SampleNetRates(ctx); err == nil {
			sample.NetSentBps, sample.NetRecvBps = sent, recv
		}
	}
	return sample
}

func (s *Scheduler) isMuted(ctx context.Context, now time.Time) bool {
	raw, ok, err := s.settings.Get(ctx, settings.KeyMuteUntilUTC)
	if err != nil || !ok {
		return false
	}
	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return until.After(now)
}

// commitTick persists the snapshot, events, and alerts for one tick inside
// a single transaction, committing before any broadcast per spec.md §4.2
// step 4-5.
func (s *Scheduler) commitTick(ctx context.Context, nowUTC time.Time, sample probes.HostSample, result alertengine.Result) (inserted bool, alertsInserted int) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("scheduler: begin tx failed", "error", err)
		return false, 0
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := s.snaps.InsertTx(ctx, tx, snapshotFromSample(nowUTC, sample)); err != nil {
		slog.Error("scheduler: insert snapshot failed", "error", err)
		return false, 0
	}

	for _, ev := range result.Events {
		if _, err := s.events.InsertTx(ctx, tx, timeline.Write{
			TSUTC: nowUTC, Kind: ev.Kind, Message: ev.Message, Severity: ev.Severity, Meta: ev.Meta,
		}); err != nil {
			slog.Error("scheduler: insert timeline event failed", "error", err)
			return false, 0
		}
	}

	for _, a := range result.Alerts {
		if _, err := s.alerts.InsertTx(ctx, tx, alertlog.Write{
			TSUTC: nowUTC, Type: a.Type, Message: a.Message, Severity: a.Severity,
		}); err != nil {
			slog.Error("scheduler: insert alert failed", "error", err)
			return false, 0
		}
		if _, err := s.events.InsertTx(ctx, tx, timeline.Write{
			TSUTC: nowUTC, Kind: timeline.KindAlertCreated, Message: a.Message, Severity: a.Severity,
			Meta: map[string]any{"type": a.Type},
		}); err != nil {
			slog.Error("scheduler: insert alert_created mirror failed", "error", err)
			return false, 0
		}
		alertsInserted++
	}

	if err := tx.Commit(); err != nil {
		slog.Error("scheduler: commit tick failed", "error", err)
		return false, 0
	}
	committed = true

	for _, ev := range result.Events {
		s.bus.Broadcast("timeline_event", ev)
	}
	for _, a := range result.Alerts {
		s.bus.Broadcast("alert", a)
	}
	return true, alertsInserted
}

func snapshotFromSample(tsUTC time.Time, sample probes.HostSample) snapshot.Snapshot {
	return snapshot.Snapshot{
		TSUTC:          tsUTC,
		CPUPercent:     sample.CPUPercent,
		MemPercent:     sample.MemPercent,
		MemUsedBytes:   sample.MemUsedBytes,
		MemAvailBytes:  sample.MemAvailBytes,
		MemTotalBytes:  sample.MemTotalBytes,
		DiskPercent:    sample.DiskPercent,
		DiskUsedBytes:  sample.DiskUsedBytes,
		DiskFreeBytes:  sample.DiskFreeBytes,
		DiskTotalBytes: sample.DiskTotalBytes,
		NetSentBps:     sample.NetSentBps,
		NetRecvBps:     sample.NetRecvBps,
	}
}

func kpiPayload(sample probes.HostSample, quality string, latencyMS *float64) map[string]any {
	return map[string]any{
		"cpu_percent":      sample.CPUPercent,
		"mem_percent":      sample.MemPercent,
		"mem_used_bytes":   sample.MemUsedBytes,
		"mem_avail_bytes":  sample.MemAvailBytes,
		"mem_total_bytes":  sample.MemTotalBytes,
		"disk_percent":     sample.DiskPercent,
		"disk_used_bytes":  sample.DiskUsedBytes,
		"disk_free_bytes":  sample.DiskFreeBytes,
		"disk_total_bytes": sample.DiskTotalBytes,
		"net_sent_bps":     sample.NetSentBps,
		"net_recv_bps":     sample.NetRecvBps,
		"network_quality":  quality,
		"ping_latency_ms":  latencyMS,
	}
}

func (s *Scheduler) broadcastProcesses(ctx context.Context) {
	if s.probes.Process == nil {
		return
	}
	rows, err := s.probes.Process.TopProcesses(ctx, 10)
	if err != nil {
		slog.Warn("scheduler: process probe failed", "error", err)
		return
	}
	s.bus.Broadcast("processes", map[string]any{"items": rows})
}

func (s *Scheduler) broadcastListeningPorts(ctx context.Context) {
	if s.probes.Sockets == nil {
		return
	}
	rows, err := s.probes.Sockets.ListeningSockets(ctx, 2000)
	if err != nil {
		slog.Warn("scheduler: listening sockets probe failed", "error", err)
		return
	}
	s.bus.Broadcast("listening_ports", map[string]any{"items": rows})
}

// broadcastContainers mirrors broadcastProcesses/broadcastListeningPorts for
// the optional container-stats probe (spec.md §1's "optional container
// stats"). A nil Containers probe (no container engine available, or not
// wired by the caller) is silently skipped, same as every other optional
// probe in this file.
func (s *Scheduler) broadcastContainers(ctx context.Context) {
	if s.probes.Containers == nil {
		return
	}
	rows, err := s.probes.Containers.ContainerStats(ctx)
	if err != nil {
		slog.Warn("scheduler: container probe failed", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	s.bus.Broadcast("containers", map[string]any{"items": rows})
}
