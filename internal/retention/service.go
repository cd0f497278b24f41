// Package retention runs the rollup-and-prune cycle described in spec.md
// §4.6: fold raw snapshots into 1-minute averages, fold 1-minute rows into
// 15-minute averages, then delete rows past their resolution's retention
// window. Semantics are ported from original_source/devwatchman's
// RetentionService; the 60-second cadence is driven by a
// github.com/robfig/cron/v3 schedule rather than a bare time.Ticker, since
// the cron dependency otherwise has no home in this module.
package retention

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opus-domini/devstatd/internal/metrics"
	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/snapshot"
)

const (
	rawRetention          = 24 * time.Hour
	rollup1mRetention     = 7 * 24 * time.Hour
	rollup15mRetention    = 30 * 24 * time.Hour
	rawTo1mLag            = 2 * time.Minute
	oneMTo15mLag          = 20 * time.Minute
	rawTo1mMaxSpan        = 360 * time.Minute
	oneMTo15mMaxSpan      = 2880 * time.Minute
	cronSchedule          = "@every 60s"
	defaultCursorLookback = 30 * 24 * time.Hour
)

// Service is the RetentionService: a single cron-driven job that rolls raw
// snapshots up into coarser resolutions and prunes rows past their window,
// all inside one transaction per cycle.
type Service struct {
	db       *sql.DB
	snaps    *snapshot.Store
	settings *settings.Store
	metrics  *metrics.Metrics

	cronRunner *cron.Cron
	startOnce  sync.Once
	stopOnce   sync.Once
}

func New(db *sql.DB, snaps *snapshot.Store, settingsStore *settings.Store, m *metrics.Metrics) *Service {
	return &Service{db: db, snaps: snaps, settings: settingsStore, metrics: m}
}

// Start schedules the 60-second rollup/prune cycle. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.cronRunner = cron.New()
		_, err := s.cronRunner.AddFunc(cronSchedule, func() {
			if err := s.RunCycle(ctx, time.Now().UTC()); err != nil {
				slog.Error("retention: cycle failed", "error", err)
			}
		})
		if err != nil {
			slog.Error("retention: schedule rollup cycle failed", "error", err)
			return
		}
		s.cronRunner.Start()
	})
}

// Stop halts the cron scheduler and waits for any in-flight cycle to drain.
// Idempotent.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cronRunner != nil {
			<-s.cronRunner.Stop().Done()
		}
	})
}

// RunCycle executes one rollup-and-prune pass: both rollup steps and the
// prune step run inside a single transaction, rolled back on any failure.
// Cursors are only persisted on a successful commit.
func (s *Service) RunCycle(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	progressed := 0

	rollupStart := time.Now()
	rolled1m, err := s.rollupRawTo1m(ctx, tx, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RetentionFails.Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RollupDuration.WithLabelValues("1m").Observe(time.Since(rollupStart).Seconds())
	}
	if rolled1m {
		progressed++
	}

	rollupStart = time.Now()
	rolled15m, err := s.rollup1mTo15m(ctx, tx, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RetentionFails.Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RollupDuration.WithLabelValues("15m").Observe(time.Since(rollupStart).Seconds())
	}
	if rolled15m {
		progressed++
	}

	if err := s.applyRetention(ctx, tx, now); err != nil {
		if s.metrics != nil {
			s.metrics.RetentionFails.Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if s.metrics != nil {
			s.metrics.RetentionFails.Inc()
		}
		return err
	}
	committed = true

	if s.metrics != nil {
		s.metrics.RetentionRuns.Inc()
	}

	slog.Debug("retention: cycle complete", "progressed", progressed)
	return nil
}

// rollupRawTo1m folds raw snapshots into snapshots_1m, bounded to a single
// 6-hour span per cycle so one cold start can't hold the transaction open
// indefinitely. Cursor defaults to 30 days back (floored to the minute) if
// unset, per the original service's first-run behavior.
func (s *Service) rollupRawTo1m(ctx context.Context, tx *sql.Tx, now time.Time) (bool, error) {
	cutoff := snapshot.FloorMinute(now.Add(-rawTo1mLag))

	start, err := s.cursor(ctx, tx, settings.KeyRollupRawTo1mNextStart, snapshot.FloorMinute(now.Add(-defaultCursorLookback)))
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RollupProgress.WithLabelValues("1m").Set(now.Sub(start).Seconds())
	}
	if !start.Before(cutoff) {
		return false, nil
	}

	end := cutoff
	if maxEnd := start.Add(rawTo1mMaxSpan); maxEnd.Before(end) {
		end = maxEnd
	}
	if !start.Before(end) {
		return false, nil
	}

	buckets, err := s.snaps.RawAveragesByMinute(ctx, tx, start, end)
	if err != nil {
		return false, err
	}
	for _, b := range buckets {
		if err := s.snaps.UpsertRollup1m(ctx, tx, b.BucketStart, b.AvgCPU, b.AvgMem, b.AvgDisk, b.AvgNetSent, b.AvgNetRecv); err != nil {
			return false, err
		}
	}

	if err := s.settings.SetTx(ctx, tx, settings.KeyRollupRawTo1mNextStart, end.Format(time.RFC3339)); err != nil {
		return false, err
	}
	return true, nil
}

// rollup1mTo15m folds 1-minute rows into snapshots_15m, bounded to a 2-day
// span per cycle.
func (s *Service) rollup1mTo15m(ctx context.Context, tx *sql.Tx, now time.Time) (bool, error) {
	cutoff := snapshot.Floor15Minutes(now.Add(-oneMTo15mLag))

	start, err := s.cursor(ctx, tx, settings.KeyRollup1mTo15mNextStart, snapshot.Floor15Minutes(now.Add(-defaultCursorLookback)))
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RollupProgress.WithLabelValues("15m").Set(now.Sub(start).Seconds())
	}
	if !start.Before(cutoff) {
		return false, nil
	}

	end := cutoff
	if maxEnd := start.Add(oneMTo15mMaxSpan); maxEnd.Before(end) {
		end = maxEnd
	}
	if !start.Before(end) {
		return false, nil
	}

	buckets, err := s.snaps.OneMinuteAveragesBy15m(ctx, tx, start, end)
	if err != nil {
		return false, err
	}
	for _, b := range buckets {
		if err := s.snaps.UpsertRollup15m(ctx, tx, b.BucketStart, b.AvgCPU, b.AvgMem, b.AvgDisk, b.AvgNetSent, b.AvgNetRecv); err != nil {
			return false, err
		}
	}

	if err := s.settings.SetTx(ctx, tx, settings.KeyRollup1mTo15mNextStart, end.Format(time.RFC3339)); err != nil {
		return false, err
	}
	return true, nil
}

// applyRetention prunes rows past their resolution's window. Raw and
// 1-minute cutoffs are clamped to never run ahead of their rollup cursor,
// so a stalled rollup can't have its source data deleted out from under it.
func (s *Service) applyRetention(ctx context.Context, tx *sql.Tx, now time.Time) error {
	rawCutoff := now.Add(-rawRetention)
	oneMCutoff := now.Add(-rollup1mRetention)
	fifteenMCutoff := now.Add(-rollup15mRetention)

	rawCursor, err := s.cursor(ctx, tx, settings.KeyRollupRawTo1mNextStart, rawCutoff)
	if err != nil {
		return err
	}
	if rawCursor.Before(rawCutoff) {
		rawCutoff = rawCursor
	}

	oneMCursor, err := s.cursor(ctx, tx, settings.KeyRollup1mTo15mNextStart, oneMCutoff)
	if err != nil {
		return err
	}
	if oneMCursor.Before(oneMCutoff) {
		oneMCutoff = oneMCursor
	}

	rawPruned, err := s.snaps.PruneRawBefore(ctx, tx, rawCutoff)
	if err != nil {
		return err
	}
	oneMPruned, err := s.snaps.Prune1mBefore(ctx, tx, oneMCutoff)
	if err != nil {
		return err
	}
	fifteenMPruned, err := s.snaps.Prune15mBefore(ctx, tx, fifteenMCutoff)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.PruneRowsTotal.WithLabelValues("snapshots").Add(float64(rawPruned))
		s.metrics.PruneRowsTotal.WithLabelValues("snapshots_1m").Add(float64(oneMPruned))
		s.metrics.PruneRowsTotal.WithLabelValues("snapshots_15m").Add(float64(fifteenMPruned))
	}
	return nil
}

func (s *Service) cursor(ctx context.Context, tx *sql.Tx, key string, fallback time.Time) (time.Time, error) {
	raw, ok, err := s.settings.GetTx(ctx, tx, key)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback, nil
	}
	return t, nil
}
