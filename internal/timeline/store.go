package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05-07:00"

func formatUTC(t time.Time) string         { return t.UTC().Format(timeLayout) }
func parseUTC(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

// Store is the EventLog repository.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func marshalMeta(meta map[string]any) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal meta: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// Insert writes a new timeline event. meta is serialized to JSON if present.
func (s *Store) Insert(ctx context.Context, w Write) (int64, error) {
	metaJSON, err := marshalMeta(w.Meta)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts_utc, kind, message, severity, meta_json) VALUES (?, ?, ?, ?, ?)`,
		formatUTC(w.TSUTC), w.Kind, w.Message, w.Severity, metaJSON,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertTx is the transactional counterpart of Insert, used so a tick's
// events commit atomically with its snapshot/alert rows.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, w Write) (int64, error) {
	metaJSON, err := marshalMeta(w.Meta)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (ts_utc, kind, message, severity, meta_json) VALUES (?, ?, ?, ?, ?)`,
		formatUTC(w.TSUTC), w.Kind, w.Message, w.Severity, metaJSON,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

var columns = `id, ts_utc, kind, message, severity, meta_json`

func scan(row interface{ Scan(...any) error }) (Event, error) {
	var e Event
	var tsRaw string
	var metaRaw sql.NullString
	if err := row.Scan(&e.ID, &tsRaw, &e.Kind, &e.Message, &e.Severity, &metaRaw); err != nil {
		return Event{}, err
	}
	ts, err := parseUTC(tsRaw)
	if err != nil {
		return Event{}, fmt.Errorf("parse ts_utc %q: %w", tsRaw, err)
	}
	e.TSUTC = ts
	if metaRaw.Valid {
		var m map[string]any
		if err := json.Unmarshal([]byte(metaRaw.String), &m); err == nil {
			e.Meta = m
		}
		// Parse failure leaves Meta nil per spec.md §4.5 ("parsed meta map or
		// null on parse failure") rather than surfacing an error.
	}
	return e, nil
}

// Since returns events at or after since, newest first, capped at limit.
func (s *Store) Since(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM events WHERE ts_utc >= ? ORDER BY ts_utc DESC, id DESC LIMIT ?`,
		formatUTC(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAll(rows)
}

// Latest returns the most recent events, newest first, capped at limit.
func (s *Store) Latest(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM events ORDER BY ts_utc DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]Event, error) {
	out := make([]Event, 0, 64)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
