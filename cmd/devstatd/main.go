// Command devstatd runs the local developer-workstation telemetry daemon:
// it samples host metrics on a fixed interval, persists them, evaluates
// alert rules, rolls up and prunes history, and fans out live updates to
// in-process observers. There is no network transport in this build; the
// daemon runs in the foreground until signaled.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opus-domini/devstatd/internal/alertengine"
	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/config"
	"github.com/opus-domini/devstatd/internal/coreapi"
	"github.com/opus-domini/devstatd/internal/livebus"
	"github.com/opus-domini/devstatd/internal/metrics"
	"github.com/opus-domini/devstatd/internal/probes"
	"github.com/opus-domini/devstatd/internal/profiles"
	"github.com/opus-domini/devstatd/internal/retention"
	"github.com/opus-domini/devstatd/internal/scheduler"
	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/snapshot"
	"github.com/opus-domini/devstatd/internal/store"
	"github.com/opus-domini/devstatd/internal/timeline"
)

// buildVersion is injected by release workflows via -ldflags.
var buildVersion = "dev"

// serveFn is indirected so tests can stub out the full daemon wiring.
var serveFn = serve

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "-v", "--version", "version":
			_, _ = stdout.Write([]byte("devstatd version " + buildVersion + "\n"))
			return 0
		}
	}
	return serveFn(stdout)
}

func serve(stdout io.Writer) int {
	cfg := config.Load()
	initLogger(cfg.LogLevel)
	printBanner(stdout, cfg.DataDir, buildVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := filepath.Join(cfg.DataDir, "devstatd.db")
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		slog.Error("store open failed", "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	snaps := snapshot.New(st.DB())
	alerts := alertlog.New(st.DB())
	events := timeline.New(st.DB())
	settingsStore := settings.New(st.DB())
	catalog := profiles.NewCatalog(settingsStore)
	bus := livebus.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	engineCfg := alertengine.Config{
		CPUPercent:         cfg.AlertThresholds.CPUPercent,
		RAMPercent:         cfg.AlertThresholds.RAMPercent,
		CPUDuration:        cfg.AlertThresholds.CPUDuration,
		RAMDuration:        cfg.AlertThresholds.RAMDuration,
		NetOfflineDuration: cfg.AlertThresholds.NetOfflineDuration,
		FlapWindow:         cfg.AlertThresholds.FlapWindow,
		FlapThreshold:      cfg.AlertThresholds.FlapThreshold,
		CooldownDuration:   cfg.AlertThresholds.CooldownDuration,
		PingHost:           cfg.NetworkPingHost,
	}
	engine := alertengine.New(engineCfg)

	sockets := defaultSocketProbe()
	p := scheduler.Probes{
		CPU:        probes.NewProcCPUProbe(),
		Mem:        probes.NewProcMemProbe(),
		Disk:       probes.NewProcDiskProbe(cfg.DataDir),
		Net:        probes.NewMonotonicNetProbe(),
		Ports:      probes.NewTCPPortProbe(sockets),
		Ping:       probes.NewHTTPPingProbe("https://"+cfg.NetworkPingHost, cfg.NetworkPingTimeout),
		Process:    defaultProcessProbe(),
		Sockets:    sockets,
		Containers: probes.NewShellContainerProbe(),
	}

	sched := scheduler.New(st.DB(), snaps, alerts, events, settingsStore, catalog, bus, engine, p, scheduler.Options{
		Interval: cfg.SnapshotInterval,
	}, m)

	retentionSvc := retention.New(st.DB(), snaps, settingsStore, m)

	api := coreapi.New(snaps, alerts, events, settingsStore, catalog, bus, p.Ping, p.Ports, p.Sockets)
	_ = api // composed for embedders; no in-tree transport consumes it yet

	sched.Start(ctx)
	retentionSvc.Start(ctx)

	if _, err := events.Insert(ctx, timeline.Write{
		TSUTC: time.Now().UTC(), Kind: timeline.KindAppStarted, Message: "devstatd started",
		Severity: timeline.SeverityInfo, Meta: map[string]any{"version": buildVersion},
	}); err != nil {
		slog.Warn("failed to record app_started event", "error", err)
	}

	slog.Info("devstatd running", "data_dir", cfg.DataDir, "interval", cfg.SnapshotInterval)
	<-ctx.Done()
	slog.Info("shutting down")

	// Shutdown in LIFO order relative to Start: retention, then scheduler,
	// then close every attached LiveBus session, then the store.
	retentionSvc.Stop()
	sched.Stop()
	bus.CloseAll()

	return 0
}

// defaultSocketProbe and defaultProcessProbe exist so a non-Linux build
// degrades to a nil probe (scheduler treats a nil collaborator as
// "unavailable this tick") instead of constructing a probe guaranteed to
// return ErrUnsupportedPlatform on every call.
func defaultSocketProbe() probes.ListeningSocketProbe {
	if runtime.GOOS != "linux" {
		return nil
	}
	return probes.NewProcSocketProbe()
}

func defaultProcessProbe() probes.ProcessProbe {
	if runtime.GOOS != "linux" {
		return nil
	}
	return probes.NewProcProcessProbe()
}

func initLogger(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}
