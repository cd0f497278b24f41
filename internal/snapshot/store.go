package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store persists and queries snapshots and their rollups over a shared
// database handle (internal/store.Store.DB()).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes one raw snapshot row and returns its assigned ID.
func (s *Store) Insert(ctx context.Context, snap Snapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO snapshots (
		ts_utc, cpu_percent, mem_percent, mem_used_bytes, mem_avail_bytes, mem_total_bytes,
		disk_percent, disk_used_bytes, disk_free_bytes, disk_total_bytes, net_sent_bps, net_recv_bps
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatUTC(snap.TSUTC), snap.CPUPercent, snap.MemPercent, snap.MemUsedBytes, snap.MemAvailBytes, snap.MemTotalBytes,
		snap.DiskPercent, snap.DiskUsedBytes, snap.DiskFreeBytes, snap.DiskTotalBytes, snap.NetSentBps, snap.NetRecvBps,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertTx is the transactional counterpart of Insert, used by the scheduler
// so the snapshot write commits atomically with the tick's event/alert rows.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, snap Snapshot) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO snapshots (
		ts_utc, cpu_percent, mem_percent, mem_used_bytes, mem_avail_bytes, mem_total_bytes,
		disk_percent, disk_used_bytes, disk_free_bytes, disk_total_bytes, net_sent_bps, net_recv_bps
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatUTC(snap.TSUTC), snap.CPUPercent, snap.MemPercent, snap.MemUsedBytes, snap.MemAvailBytes, snap.MemTotalBytes,
		snap.DiskPercent, snap.DiskUsedBytes, snap.DiskFreeBytes, snap.DiskTotalBytes, snap.NetSentBps, snap.NetRecvBps,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

var rawColumns = `id, ts_utc, cpu_percent, mem_percent, mem_used_bytes, mem_avail_bytes, mem_total_bytes,
	disk_percent, disk_used_bytes, disk_free_bytes, disk_total_bytes, net_sent_bps, net_recv_bps`

func scanRaw(row interface{ Scan(...any) error }) (Snapshot, error) {
	var snap Snapshot
	var tsRaw string
	if err := row.Scan(
		&snap.ID, &tsRaw, &snap.CPUPercent, &snap.MemPercent, &snap.MemUsedBytes, &snap.MemAvailBytes, &snap.MemTotalBytes,
		&snap.DiskPercent, &snap.DiskUsedBytes, &snap.DiskFreeBytes, &snap.DiskTotalBytes, &snap.NetSentBps, &snap.NetRecvBps,
	); err != nil {
		return Snapshot{}, err
	}
	ts, err := parseUTC(tsRaw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse ts_utc %q: %w", tsRaw, err)
	}
	snap.TSUTC = ts
	return snap, nil
}

// Latest returns the most recent raw snapshot, or (Snapshot{}, false, nil) if
// none exist yet.
func (s *Store) Latest(ctx context.Context) (Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM snapshots ORDER BY ts_utc DESC, id DESC LIMIT 1`)
	snap, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// History returns raw snapshots at or after since, ascending by time.
func (s *Store) History(ctx context.Context, since time.Time) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+rawColumns+` FROM snapshots WHERE ts_utc >= ? ORDER BY ts_utc ASC`, formatUTC(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Snapshot, 0, 256)
	for rows.Next() {
		snap, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) historyRollup(ctx context.Context, table string, since time.Time) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, bucket_start_utc, avg_cpu_percent, avg_mem_percent, avg_disk_percent,
		avg_net_sent_bps, avg_net_recv_bps FROM `+table+` WHERE bucket_start_utc >= ? ORDER BY bucket_start_utc ASC`,
		formatUTC(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Snapshot, 0, 256)
	for rows.Next() {
		var snap Snapshot
		var tsRaw string
		if err := rows.Scan(&snap.ID, &tsRaw, &snap.CPUPercent, &snap.MemPercent, &snap.DiskPercent, &snap.NetSentBps, &snap.NetRecvBps); err != nil {
			return nil, err
		}
		ts, err := parseUTC(tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse bucket_start_utc %q: %w", tsRaw, err)
		}
		snap.TSUTC = ts
		out = append(out, snap)
	}
	return out, rows.Err()
}

// History1m returns 1-minute rollup rows mapped into Snapshot shape (byte
// fields left nil — rollups only carry averages).
func (s *Store) History1m(ctx context.Context, since time.Time) ([]Snapshot, error) {
	return s.historyRollup(ctx, "snapshots_1m", since)
}

// History15m returns 15-minute rollup rows mapped into Snapshot shape.
func (s *Store) History15m(ctx context.Context, since time.Time) ([]Snapshot, error) {
	return s.historyRollup(ctx, "snapshots_15m", since)
}

// HistoryAt dispatches to the resolution selected for the given hour window
// (spec.md §4.7).
func (s *Store) HistoryAt(ctx context.Context, hours int, since time.Time) ([]Snapshot, Resolution, error) {
	res := SelectResolution(hours)
	var (
		rows []Snapshot
		err  error
	)
	switch res {
	case ResolutionRaw:
		rows, err = s.History(ctx, since)
	case Resolution1m:
		rows, err = s.History1m(ctx, since)
	default:
		rows, err = s.History15m(ctx, since)
	}
	return rows, res, err
}

// UpsertRollup1m replaces the averages for a single floor-minute bucket.
// Idempotent: re-running the same bucket produces identical stored values.
func (s *Store) UpsertRollup1m(ctx context.Context, tx *sql.Tx, bucketStart time.Time, avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv *float64) error {
	return upsertRollup(ctx, tx, "snapshots_1m", bucketStart, avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv)
}

// UpsertRollup15m replaces the averages for a single floor-15-minute bucket.
func (s *Store) UpsertRollup15m(ctx context.Context, tx *sql.Tx, bucketStart time.Time, avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv *float64) error {
	return upsertRollup(ctx, tx, "snapshots_15m", bucketStart, avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv)
}

func upsertRollup(ctx context.Context, tx *sql.Tx, table string, bucketStart time.Time, avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv *float64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (
		bucket_start_utc, avg_cpu_percent, avg_mem_percent, avg_disk_percent, avg_net_sent_bps, avg_net_recv_bps
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(bucket_start_utc) DO UPDATE SET
		avg_cpu_percent = excluded.avg_cpu_percent,
		avg_mem_percent = excluded.avg_mem_percent,
		avg_disk_percent = excluded.avg_disk_percent,
		avg_net_sent_bps = excluded.avg_net_sent_bps,
		avg_net_recv_bps = excluded.avg_net_recv_bps`,
		formatUTC(bucketStart), avgCPU, avgMem, avgDisk, avgNetSent, avgNetRecv,
	)
	return err
}

// BucketAverage is one rollup bucket's averages, as returned by
// RawAveragesByMinute (raw snapshots in [start, end) grouped by floor-minute
// bucket) and OneMinuteAveragesBy15m.
type BucketAverage struct {
	BucketStart time.Time
	AvgCPU      *float64
	AvgMem      *float64
	AvgDisk     *float64
	AvgNetSent  *float64
	AvgNetRecv  *float64
}

func (s *Store) RawAveragesByMinute(ctx context.Context, tx *sql.Tx, start, end time.Time) ([]BucketAverage, error) {
	rows, err := tx.QueryContext(ctx, `SELECT
		substr(ts_utc, 1, 16) || ':00+00:00' AS bucket_start_utc,
		avg(cpu_percent), avg(mem_percent), avg(disk_percent), avg(net_sent_bps), avg(net_recv_bps)
	FROM snapshots
	WHERE ts_utc >= ? AND ts_utc < ?
	GROUP BY bucket_start_utc`, formatUTC(start), formatUTC(end))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanBucketAverages(rows)
}

func (s *Store) OneMinuteAveragesBy15m(ctx context.Context, tx *sql.Tx, start, end time.Time) ([]BucketAverage, error) {
	rows, err := tx.QueryContext(ctx, `SELECT
		substr(bucket_start_utc, 1, 14) ||
			printf('%02d', CAST(CAST(substr(bucket_start_utc, 15, 2) AS INTEGER) / 15 AS INTEGER) * 15) ||
			':00+00:00' AS bucket15,
		avg(avg_cpu_percent), avg(avg_mem_percent), avg(avg_disk_percent), avg(avg_net_sent_bps), avg(avg_net_recv_bps)
	FROM snapshots_1m
	WHERE bucket_start_utc >= ? AND bucket_start_utc < ?
	GROUP BY bucket15`, formatUTC(start), formatUTC(end))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanBucketAverages(rows)
}

func scanBucketAverages(rows *sql.Rows) ([]BucketAverage, error) {
	out := make([]BucketAverage, 0, 16)
	for rows.Next() {
		var b BucketAverage
		var tsRaw string
		if err := rows.Scan(&tsRaw, &b.AvgCPU, &b.AvgMem, &b.AvgDisk, &b.AvgNetSent, &b.AvgNetRecv); err != nil {
			return nil, err
		}
		ts, err := parseUTC(tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse bucket %q: %w", tsRaw, err)
		}
		b.BucketStart = ts
		out = append(out, b)
	}
	return out, rows.Err()
}

// PruneRawBefore deletes raw rows strictly older than cutoff.
func (s *Store) PruneRawBefore(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE ts_utc < ?`, formatUTC(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune1mBefore deletes 1-minute rollup rows strictly older than cutoff.
func (s *Store) Prune1mBefore(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots_1m WHERE bucket_start_utc < ?`, formatUTC(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune15mBefore deletes 15-minute rollup rows strictly older than cutoff.
func (s *Store) Prune15mBefore(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots_15m WHERE bucket_start_utc < ?`, formatUTC(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

