// Package snapshot defines the raw and rolled-up host-metric sample shapes
// and the repository that persists and queries them.
package snapshot

import "time"

// Snapshot is one point-in-time reading. A field is nil iff the probe that
// produces it failed on that tick (or, for rollup-sourced rows, the
// underlying average had no contributing samples).
type Snapshot struct {
	ID             int64
	TSUTC          time.Time
	CPUPercent     *float64
	MemPercent     *float64
	MemUsedBytes   *int64
	MemAvailBytes  *int64
	MemTotalBytes  *int64
	DiskPercent    *float64
	DiskUsedBytes  *int64
	DiskFreeBytes  *int64
	DiskTotalBytes *int64
	NetSentBps     *float64
	NetRecvBps     *float64
}

// Resolution identifies which table a History query is served from.
type Resolution string

const (
	ResolutionRaw Resolution = "raw"
	Resolution1m  Resolution = "1m"
	Resolution15m Resolution = "15m"
)

// SelectResolution implements the history resolution selector (spec.md §4.7):
// hours<=24 uses raw samples, 24<hours<=168 uses 1-minute rollups, hours>168
// uses 15-minute rollups.
func SelectResolution(hours int) Resolution {
	switch {
	case hours <= 24:
		return ResolutionRaw
	case hours <= 168:
		return Resolution1m
	default:
		return Resolution15m
	}
}

// FloorMinute truncates t down to the start of its minute, in UTC.
func FloorMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Floor15Minutes truncates t down to the start of its containing 15-minute
// bucket, in UTC.
func Floor15Minutes(t time.Time) time.Time {
	t = t.UTC().Truncate(time.Minute)
	minute := t.Minute() - (t.Minute() % 15)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, time.UTC)
}

// formatUTC renders a timestamp the way stored rows expect: RFC3339 with an
// explicit +00:00 offset rather than a bare "Z" suffix.
func formatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05-07:00")
}

func parseUTC(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
