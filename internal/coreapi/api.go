// Package coreapi is the Read API contract from spec.md §6: one method per
// operation, specified at contract level only — transport (HTTP, RPC,
// whatever embeds devstatd) is an explicit out-of-scope collaborator, so
// this package stops at plain Go methods, the way the teacher's
// internal/api.Handler methods stop at the request/response boundary
// before net/http wiring takes over.
package coreapi

import (
	"context"
	"errors"
	"time"

	"github.com/opus-domini/devstatd/internal/alertlog"
	"github.com/opus-domini/devstatd/internal/livebus"
	"github.com/opus-domini/devstatd/internal/probes"
	"github.com/opus-domini/devstatd/internal/profiles"
	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/snapshot"
	"github.com/opus-domini/devstatd/internal/timeline"
)

// ErrAlertNotFound is returned by AlertsAck for an unknown id (spec.md §7).
var ErrAlertNotFound = errors.New("alert not found")

// ErrUnknownProfile re-exports profiles.ErrUnknownProfile so callers only
// need to import this package.
var ErrUnknownProfile = profiles.ErrUnknownProfile

// API composes the repositories and live collaborators needed to serve
// spec.md §6's read/write contract.
type API struct {
	snaps    *snapshot.Store
	alerts   *alertlog.Store
	events   *timeline.Store
	settings *settings.Store
	catalog  *profiles.Catalog
	bus      *livebus.LiveBus
	ping     probes.PingProbe
	ports    probes.PortProbe
	sockets  probes.ListeningSocketProbe
}

func New(
	snaps *snapshot.Store,
	alerts *alertlog.Store,
	events *timeline.Store,
	settingsStore *settings.Store,
	catalog *profiles.Catalog,
	bus *livebus.LiveBus,
	ping probes.PingProbe,
	ports probes.PortProbe,
	sockets probes.ListeningSocketProbe,
) *API {
	return &API{
		snaps: snaps, alerts: alerts, events: events, settings: settingsStore,
		catalog: catalog, bus: bus, ping: ping, ports: ports, sockets: sockets,
	}
}

// Summary returns the latest raw snapshot, or ok=false if none exist yet.
func (a *API) Summary(ctx context.Context) (snapshot.Snapshot, bool, error) {
	return a.snaps.Latest(ctx)
}

// HistoryMeta describes the resolution and window a History call served.
type HistoryMeta struct {
	Resolution snapshot.Resolution
	Hours      int
	SinceTSUTC time.Time
	Count      int
}

// History serves spec.md §4.7's resolution-selected time series for
// hours ∈ [1,720], clamped into range.
func (a *API) History(ctx context.Context, hours int) ([]snapshot.Snapshot, HistoryMeta, error) {
	hours = clamp(hours, 1, 720)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, res, err := a.snaps.HistoryAt(ctx, hours, since)
	if err != nil {
		return nil, HistoryMeta{}, err
	}
	return rows, HistoryMeta{Resolution: res, Hours: hours, SinceTSUTC: since, Count: len(rows)}, nil
}

// Timeline returns events in the last hours ∈ [1,168], capped at limit ∈ [1,500].
func (a *API) Timeline(ctx context.Context, hours, limit int) ([]timeline.Event, error) {
	hours = clamp(hours, 1, 168)
	limit = clamp(limit, 1, 500)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return a.events.Since(ctx, since, limit)
}

// TimelineLatest returns the most recent events regardless of age.
func (a *API) TimelineLatest(ctx context.Context, limit int) ([]timeline.Event, error) {
	limit = clamp(limit, 1, 500)
	return a.events.Latest(ctx, limit)
}

// Ports samples and returns the active profile's watch_ports status.
func (a *API) Ports(ctx context.Context) ([]probes.PortStatus, error) {
	active, err := a.catalog.Active(ctx)
	if err != nil {
		return nil, err
	}
	if a.ports == nil {
		return nil, nil
	}
	required := make(map[int]bool, len(active.RequiredPorts))
	for _, p := range active.RequiredPorts {
		required[p] = true
	}
	return a.ports.SamplePorts(ctx, active.WatchPorts, required)
}

// PortsListening returns currently listening sockets, capped at
// limit ∈ [1,2000], deduped and sorted by the probe.
func (a *API) PortsListening(ctx context.Context, limit int) ([]probes.ListeningSocket, error) {
	limit = clamp(limit, 1, 2000)
	if a.sockets == nil {
		return nil, nil
	}
	return a.sockets.ListeningSockets(ctx, limit)
}

// AlertsResult bundles recent alerts with the current mute state, mirroring
// spec.md §6's "alerts() → recent alerts + mute_until_utc in meta".
type AlertsResult struct {
	Alerts       []alertlog.Alert
	MuteUntilUTC *time.Time
}

// Alerts returns recent alerts (limit ∈ [1,200]) plus the current mute deadline.
func (a *API) Alerts(ctx context.Context, limit int, includeAck bool) (AlertsResult, error) {
	limit = clamp(limit, 1, 200)
	rows, err := a.alerts.Recent(ctx, limit, includeAck)
	if err != nil {
		return AlertsResult{}, err
	}
	muteUntil, err := a.muteUntil(ctx)
	if err != nil {
		return AlertsResult{}, err
	}
	return AlertsResult{Alerts: rows, MuteUntilUTC: muteUntil}, nil
}

// AlertsAckResult is the response shape for AlertsAck.
type AlertsAckResult struct {
	ID               int64
	Acknowledged     bool
	AcknowledgedTSUTC *time.Time
}

// AlertsAck acknowledges an alert and emits a TimelineEvent `alert_ack`.
// Returns ErrAlertNotFound without inserting an event if the id doesn't
// exist or was already acknowledged (spec.md §7).
func (a *API) AlertsAck(ctx context.Context, id int64) (AlertsAckResult, error) {
	now := time.Now().UTC()
	ok, err := a.alerts.Acknowledge(ctx, id, now)
	if err != nil {
		return AlertsAckResult{}, err
	}
	if !ok {
		return AlertsAckResult{}, ErrAlertNotFound
	}
	if _, err := a.events.Insert(ctx, timeline.Write{
		TSUTC: now, Kind: timeline.KindAlertAck, Message: "alert acknowledged",
		Severity: timeline.SeverityInfo, Meta: map[string]any{"alert_id": id},
	}); err != nil {
		return AlertsAckResult{}, err
	}
	a.bus.Broadcast("timeline_event", map[string]any{"kind": timeline.KindAlertAck, "alert_id": id})
	return AlertsAckResult{ID: id, Acknowledged: true, AcknowledgedTSUTC: &now}, nil
}

// AlertsMuteResult is the response shape for AlertsMute.
type AlertsMuteResult struct {
	Muted        bool
	MuteUntilUTC *time.Time
}

// AlertsMute sets or clears the mute deadline (minutes ∈ [0,1440];
// minutes=0 clears mute) and emits `mute_enabled`/`mute_disabled`.
func (a *API) AlertsMute(ctx context.Context, minutes int) (AlertsMuteResult, error) {
	minutes = clamp(minutes, 0, 1440)
	now := time.Now().UTC()

	if minutes == 0 {
		if err := a.settings.Delete(ctx, settings.KeyMuteUntilUTC); err != nil {
			return AlertsMuteResult{}, err
		}
		if _, err := a.events.Insert(ctx, timeline.Write{
			TSUTC: now, Kind: timeline.KindMuteDisabled, Message: "alerts unmuted",
			Severity: timeline.SeverityInfo,
		}); err != nil {
			return AlertsMuteResult{}, err
		}
		a.bus.Broadcast("alert_state", map[string]any{"muted": false})
		return AlertsMuteResult{Muted: false}, nil
	}

	until := now.Add(time.Duration(minutes) * time.Minute)
	if err := a.settings.Set(ctx, settings.KeyMuteUntilUTC, until.Format(time.RFC3339)); err != nil {
		return AlertsMuteResult{}, err
	}
	if _, err := a.events.Insert(ctx, timeline.Write{
		TSUTC: now, Kind: timeline.KindMuteEnabled, Message: "alerts muted",
		Severity: timeline.SeverityInfo, Meta: map[string]any{"mute_until_utc": until.Format(time.RFC3339)},
	}); err != nil {
		return AlertsMuteResult{}, err
	}
	a.bus.Broadcast("alert_state", map[string]any{"muted": true, "mute_until_utc": until.Format(time.RFC3339)})
	return AlertsMuteResult{Muted: true, MuteUntilUTC: &until}, nil
}

// ProfilesResult bundles the active profile with the full catalog.
type ProfilesResult struct {
	Active profiles.Profile
	All    []profiles.Profile
}

// Profiles returns the active profile plus the full built-in catalog.
func (a *API) Profiles(ctx context.Context) (ProfilesResult, error) {
	active, err := a.catalog.Active(ctx)
	if err != nil {
		return ProfilesResult{}, err
	}
	return ProfilesResult{Active: active, All: profiles.List()}, nil
}

// ProfilesSelect persists name as the active profile and broadcasts
// `profile`. Returns ErrUnknownProfile without mutating state if name
// doesn't resolve (spec.md §7).
func (a *API) ProfilesSelect(ctx context.Context, name string) (profiles.Profile, error) {
	p, err := a.catalog.Select(ctx, name)
	if err != nil {
		return profiles.Profile{}, err
	}
	a.bus.Broadcast("profile", map[string]any{"name": p.Name})
	return p, nil
}

// NetworkResult is the response shape for Network.
type NetworkResult struct {
	Quality   string
	LatencyMS *float64
}

// Network issues one fresh ping and classifies it — not cached.
func (a *API) Network(ctx context.Context) (NetworkResult, error) {
	if a.ping == nil {
		return NetworkResult{Quality: probes.NetworkQuality(nil)}, nil
	}
	result, err := a.ping.Ping(ctx)
	if err != nil {
		return NetworkResult{Quality: probes.NetworkQuality(nil)}, nil
	}
	return NetworkResult{Quality: probes.NetworkQuality(result.LatencyMS), LatencyMS: result.LatencyMS}, nil
}

func (a *API) muteUntil(ctx context.Context) (*time.Time, error) {
	raw, ok, err := a.settings.Get(ctx, settings.KeyMuteUntilUTC)
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

func clamp(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
