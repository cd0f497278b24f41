package alertlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05-07:00"

func formatUTC(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseUTC(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

// Store persists and queries alerts.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes a new alert row. Used standalone (no enclosing tick tx).
func (s *Store) Insert(ctx context.Context, w Write) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts_utc, type, message, severity, acknowledged) VALUES (?, ?, ?, ?, 0)`,
		formatUTC(w.TSUTC), w.Type, w.Message, w.Severity,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertTx is the transactional counterpart of Insert, used by the scheduler
// so the alert row commits atomically with the tick's snapshot/event rows.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, w Write) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO alerts (ts_utc, type, message, severity, acknowledged) VALUES (?, ?, ?, ?, 0)`,
		formatUTC(w.TSUTC), w.Type, w.Message, w.Severity,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

var columns = `id, ts_utc, type, message, severity, acknowledged, acknowledged_ts_utc`

func scan(row interface{ Scan(...any) error }) (Alert, error) {
	var a Alert
	var tsRaw string
	var ackedInt int
	var ackedTS sql.NullString
	if err := row.Scan(&a.ID, &tsRaw, &a.Type, &a.Message, &a.Severity, &ackedInt, &ackedTS); err != nil {
		return Alert{}, err
	}
	ts, err := parseUTC(tsRaw)
	if err != nil {
		return Alert{}, fmt.Errorf("parse ts_utc %q: %w", tsRaw, err)
	}
	a.TSUTC = ts
	a.Acknowledged = ackedInt != 0
	if ackedTS.Valid {
		parsed, err := parseUTC(ackedTS.String)
		if err != nil {
			return Alert{}, fmt.Errorf("parse acknowledged_ts_utc %q: %w", ackedTS.String, err)
		}
		a.AcknowledgedTSUTC = &parsed
	}
	return a, nil
}

// Recent returns the most recent alerts, newest first, optionally excluding
// already-acknowledged ones.
func (s *Store) Recent(ctx context.Context, limit int, includeAck bool) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + columns + ` FROM alerts`
	if !includeAck {
		query += ` WHERE acknowledged = 0`
	}
	query += ` ORDER BY ts_utc DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Alert, 0, limit)
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge marks an alert acknowledged at ts. Returns false (no error) if
// the alert was already acknowledged or does not exist — idempotent per
// spec.md §3: a second call returns false without mutating state.
func (s *Store) Acknowledge(ctx context.Context, id int64, ts time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = 1, acknowledged_ts_utc = ? WHERE id = ? AND acknowledged = 0`,
		formatUTC(ts), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Get fetches a single alert by ID.
func (s *Store) Get(ctx context.Context, id int64) (Alert, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM alerts WHERE id = ?`, id)
	a, err := scan(row)
	if err == sql.ErrNoRows {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, err
	}
	return a, true, nil
}
