// Package alertengine evaluates the stateful alert rules described in
// spec.md §4.3: cooldown-gated thresholds, sustained-duration gates, mute
// suppression, required-port down/flap tracking, and the separate
// watch-port/network-quality TimelineEvent transitions. All state is
// in-memory and owned by the single caller (the scheduler tick loop); there
// is no internal locking because there is no concurrent mutation, mirroring
// spec.md's "AlertEngine state is owned by the scheduler task only" note.
package alertengine

import (
	"fmt"
	"time"

	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/probes"
	"github.com/opus-domini/devstatd/internal/timeline"
)

// Config holds the tunable thresholds, all overridable via configuration
// per spec.md §6 Defaults.
type Config struct {
	CPUPercent         float64
	RAMPercent         float64
	CPUDuration        time.Duration
	RAMDuration        time.Duration
	NetOfflineDuration time.Duration
	FlapWindow         time.Duration
	FlapThreshold      int
	CooldownDuration   time.Duration
	PingHost           string
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		CPUPercent:         85,
		RAMPercent:         90,
		CPUDuration:        30 * time.Second,
		RAMDuration:        30 * time.Second,
		NetOfflineDuration: 10 * time.Second,
		FlapWindow:         120 * time.Second,
		FlapThreshold:      6,
		CooldownDuration:   60 * time.Second,
		PingHost:           "1.1.1.1",
	}
}

// AlertFire is a rule firing produced by Evaluate, ready to become an
// alertlog.Write once the caller assigns ts_utc.
type AlertFire struct {
	Type     string
	Message  string
	Severity string
}

// EventFire is a TimelineEvent produced by Evaluate outside the cooldown-
// gated alert rules (watch-port transitions, network-quality transitions).
type EventFire struct {
	Kind     string
	Message  string
	Severity string
	Meta     map[string]any
}

// Input is one tick's worth of readings fed to Evaluate.
type Input struct {
	Sample        probes.HostSample
	PortsRequired []probes.PortStatus // required watch_ports only
	PortsWatch    []probes.PortStatus // full active profile watch_ports
	Quality       string              // "good" | "ok" | "poor" | "offline"
	LatencyMS     *float64
	NowUTC        time.Time
	NowMono       time.Time // a monotonic-bearing time.Time (time.Now())
	Muted         bool
}

// Result is everything Evaluate produced for one tick.
type Result struct {
	Alerts []AlertFire
	Events []EventFire
}

// flapState tracks a required port's recent transitions for flap detection.
type flapState struct {
	transitions []time.Time
}

// Engine owns all AlertEngineState per spec.md §3 and evaluates rules tick
// by tick. Not safe for concurrent use — the scheduler is its sole caller.
type Engine struct {
	cfg Config

	lastFired map[string]time.Time // key: type+"\x00"+key

	cpuHighSince *time.Time
	cpuFired     bool
	ramHighSince *time.Time
	ramFired     bool
	netOfflineSince *time.Time
	netOfflineFired bool
	netPoorFired    bool

	portLastState      map[int]bool
	portDownActive      map[int]bool
	portFlappingActive  map[int]bool
	portFlapTimes       map[int]*flapState

	watchPortLastState map[int]bool
	lastNetQuality      string
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg:                cfg,
		lastFired:          make(map[string]time.Time),
		portLastState:      make(map[int]bool),
		portDownActive:     make(map[int]bool),
		portFlappingActive: make(map[int]bool),
		portFlapTimes:      make(map[int]*flapState),
		watchPortLastState: make(map[int]bool),
	}
}

func cooldownKey(alertType, key string) string { return alertType + "\x00" + key }

// shouldFire applies the cooldown gate and, if it passes, records the fire
// time. It does not run when muted — callers gate on in.Muted separately.
func (e *Engine) shouldFire(alertType, key string, now time.Time) bool {
	k := cooldownKey(alertType, key)
	if last, ok := e.lastFired[k]; ok && now.Sub(last) < e.cfg.CooldownDuration {
		return false
	}
	e.lastFired[k] = now
	return true
}

// Evaluate runs every rule for one tick and returns the alerts/events it
// produced. Mirrors the teacher's _should_send_alert/_emit_alert shape
// (internal/services/scheduler's Python ancestor) generalized to duration
// gates, flap windows, and mute.
func (e *Engine) Evaluate(in Input) Result {
	var res Result

	e.evaluateCPU(in, &res)
	e.evaluateRAM(in, &res)
	e.evaluateNetwork(in, &res)
	e.evaluatePortDown(in, &res)
	e.evaluatePortFlap(in, &res)

	e.evaluateWatchPorts(in, &res)
	e.evaluateNetworkQualityTransition(in, &res)

	return res
}

func (e *Engine) evaluateCPU(in Input, res *Result) {
	cpu := in.Sample.CPUPercent
	if cpu == nil {
		return
	}
	if *cpu >= e.cfg.CPUPercent {
		if e.cpuHighSince == nil {
			since := in.NowMono
			e.cpuHighSince = &since
		}
		sustained := in.NowMono.Sub(*e.cpuHighSince) >= e.cfg.CPUDuration
		if sustained && !e.cpuFired {
			if in.Muted {
				return
			}
			if e.shouldFire(alertlog.TypeCPUHigh, "global", in.NowMono) {
				e.cpuFired = true
				res.Alerts = append(res.Alerts, AlertFire{
					Type:     alertlog.TypeCPUHigh,
					Message:  fmt.Sprintf("CPU usage high: %.1f%%", *cpu),
					Severity: alertlog.SeverityWarning,
				})
			} else {
				// Cooldown blocked firing; the latch still advances per
				// spec.md's tie-break note so this doesn't re-evaluate
				// every tick while cooling down.
				e.cpuFired = true
			}
		}
	} else {
		e.cpuHighSince = nil
		e.cpuFired = false
	}
}

func (e *Engine) evaluateRAM(in Input, res *Result) {
	mem := in.Sample.MemPercent
	if mem == nil {
		return
	}
	if *mem >= e.cfg.RAMPercent {
		if e.ramHighSince == nil {
			since := in.NowMono
			e.ramHighSince = &since
		}
		sustained := in.NowMono.Sub(*e.ramHighSince) >= e.cfg.RAMDuration
		if sustained && !e.ramFired {
			if in.Muted {
				return
			}
			if e.shouldFire(alertlog.TypeRAMHigh, "global", in.NowMono) {
				e.ramFired = true
				res.Alerts = append(res.Alerts, AlertFire{
					Type:     alertlog.TypeRAMHigh,
					Message:  fmt.Sprintf("RAM usage high: %.1f%%", *mem),
					Severity: alertlog.SeverityWarning,
				})
			} else {
				e.ramFired = true
			}
		}
	} else {
		e.ramHighSince = nil
		e.ramFired = false
	}
}

func (e *Engine) evaluateNetwork(in Input, res *Result) {
	switch in.Quality {
	case "offline":
		if e.netOfflineSince == nil {
			since := in.NowMono
			e.netOfflineSince = &since
		}
		sustained := in.NowMono.Sub(*e.netOfflineSince) >= e.cfg.NetOfflineDuration
		if sustained && !e.netOfflineFired {
			if in.Muted {
				return
			}
			if e.shouldFire(alertlog.TypeNetworkOffline, e.cfg.PingHost, in.NowMono) {
				e.netOfflineFired = true
				res.Alerts = append(res.Alerts, AlertFire{
					Type:     alertlog.TypeNetworkOffline,
					Message:  fmt.Sprintf("Network offline (ping %s)", e.cfg.PingHost),
					Severity: alertlog.SeverityCritical,
				})
			} else {
				e.netOfflineFired = true
			}
		}
		e.netPoorFired = false
	case "poor":
		e.netOfflineSince = nil
		e.netOfflineFired = false
		if !e.netPoorFired {
			if in.Muted {
				return
			}
			if e.shouldFire(alertlog.TypeNetworkPoor, e.cfg.PingHost, in.NowMono) {
				e.netPoorFired = true
				res.Alerts = append(res.Alerts, AlertFire{
					Type:     alertlog.TypeNetworkPoor,
					Message:  fmt.Sprintf("Network poor (ping %s latency %s)", e.cfg.PingHost, latencyStr(in.LatencyMS)),
					Severity: alertlog.SeverityWarning,
				})
			} else {
				e.netPoorFired = true
			}
		}
	default:
		e.netOfflineSince = nil
		e.netOfflineFired = false
		e.netPoorFired = false
	}
}

func latencyStr(ms *float64) string {
	if ms == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.0fms", *ms)
}

func (e *Engine) evaluatePortDown(in Input, res *Result) {
	for _, p := range in.PortsRequired {
		if p.Listening {
			delete(e.portDownActive, p.Port)
			continue
		}
		if e.portDownActive[p.Port] {
			continue
		}
		if in.Muted {
			// No latch advance on mute for port rules either: the set
			// membership itself is the latch, and it must not be set
			// while muted, per "no latch advances" under mute.
			continue
		}
		if e.shouldFire(alertlog.TypePortDown, portKey(p.Port), in.NowMono) {
			e.portDownActive[p.Port] = true
			res.Alerts = append(res.Alerts, AlertFire{
				Type:     alertlog.TypePortDown,
				Message:  fmt.Sprintf("Required port(s) down: %d", p.Port),
				Severity: alertlog.SeverityCritical,
			})
		} else {
			e.portDownActive[p.Port] = true
		}
	}
}

func portKey(port int) string { return fmt.Sprintf("%d", port) }

func (e *Engine) evaluatePortFlap(in Input, res *Result) {
	for _, p := range in.PortsRequired {
		prev, known := e.portLastState[p.Port]
		e.portLastState[p.Port] = p.Listening
		if !known {
			continue // baseline only
		}
		if prev == p.Listening {
			continue
		}

		fs, ok := e.portFlapTimes[p.Port]
		if !ok {
			fs = &flapState{}
			e.portFlapTimes[p.Port] = fs
		}
		fs.transitions = append(fs.transitions, in.NowMono)
		pruneFlapWindow(fs, in.NowMono, e.cfg.FlapWindow)
		hardCap := e.cfg.FlapThreshold * 2
		if hardCap > 0 && len(fs.transitions) > hardCap {
			fs.transitions = fs.transitions[len(fs.transitions)-hardCap:]
		}

		count := len(fs.transitions)
		if count < e.cfg.FlapThreshold {
			e.portFlappingActive[p.Port] = false
			continue
		}
		if e.portFlappingActive[p.Port] {
			continue
		}
		if in.Muted {
			continue
		}
		if e.shouldFire(alertlog.TypePortFlapping, portKey(p.Port), in.NowMono) {
			e.portFlappingActive[p.Port] = true
			res.Alerts = append(res.Alerts, AlertFire{
				Type:     alertlog.TypePortFlapping,
				Message:  fmt.Sprintf("Required port %d is flapping (%d transitions in %s)", p.Port, count, e.cfg.FlapWindow),
				Severity: alertlog.SeverityWarning,
			})
		} else {
			e.portFlappingActive[p.Port] = true
		}
	}
}

func pruneFlapWindow(fs *flapState, now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(fs.transitions) && fs.transitions[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		fs.transitions = fs.transitions[i:]
	}
}

// evaluateWatchPorts emits port_up/port_down TimelineEvents for every port
// in the active profile's full watch set, independent of the alert-rule
// cooldown/mute machinery: these are informational transitions, still
// emitted while muted per spec.md §4.3.
func (e *Engine) evaluateWatchPorts(in Input, res *Result) {
	for _, p := range in.PortsWatch {
		prev, known := e.watchPortLastState[p.Port]
		e.watchPortLastState[p.Port] = p.Listening
		if !known || prev == p.Listening {
			continue
		}
		if p.Listening {
			msg := fmt.Sprintf("Port %d is up", p.Port)
			if p.ProcessName != "" {
				msg = fmt.Sprintf("Port %d is up (pid=%d, process=%s)", p.Port, p.PID, p.ProcessName)
			}
			res.Events = append(res.Events, EventFire{
				Kind:     timeline.KindPortUp,
				Message:  msg,
				Severity: timeline.SeverityInfo,
				Meta:     map[string]any{"port": p.Port, "pid": p.PID, "process_name": p.ProcessName},
			})
		} else {
			severity := timeline.SeverityWarning
			if p.Required {
				severity = timeline.SeverityCritical
			}
			res.Events = append(res.Events, EventFire{
				Kind:     timeline.KindPortDown,
				Message:  fmt.Sprintf("Port %d is down", p.Port),
				Severity: severity,
				Meta:     map[string]any{"port": p.Port, "required": p.Required},
			})
		}
	}
}

// evaluateNetworkQualityTransition emits a network_status TimelineEvent on
// every quality change, regardless of mute.
func (e *Engine) evaluateNetworkQualityTransition(in Input, res *Result) {
	if e.lastNetQuality == "" {
		e.lastNetQuality = in.Quality
		return
	}
	if in.Quality == e.lastNetQuality {
		return
	}
	prev := e.lastNetQuality
	e.lastNetQuality = in.Quality

	severity := timeline.SeverityInfo
	switch in.Quality {
	case "offline":
		severity = timeline.SeverityCritical
	case "poor":
		severity = timeline.SeverityWarning
	}
	res.Events = append(res.Events, EventFire{
		Kind:     timeline.KindNetworkStatus,
		Message:  fmt.Sprintf("Network quality changed: %s -> %s", prev, in.Quality),
		Severity: severity,
		Meta:     map[string]any{"prev": prev, "status": in.Quality, "latency_ms": in.LatencyMS},
	})
}
