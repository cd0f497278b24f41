package snapshot

import (
	"context"
	"testing"
	"time"

	dbstore "github.com/opus-domini/devstatd/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	st, err := dbstore.Open(ctx, t.TempDir()+"/devstat.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st.DB())
}

func f(v float64) *float64 { return &v }
func i(v int64) *int64     { return &v }

func TestInsertAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Insert(ctx, Snapshot{TSUTC: ts, CPUPercent: f(42.5)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, ok, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a row")
	}
	if got.CPUPercent == nil || *got.CPUPercent != 42.5 {
		t.Fatalf("cpu percent = %v, want 42.5", got.CPUPercent)
	}
	if !got.TSUTC.Equal(ts) {
		t.Fatalf("ts_utc = %v, want %v", got.TSUTC, ts)
	}
}

func TestSelectResolution(t *testing.T) {
	cases := []struct {
		hours int
		want  Resolution
	}{
		{1, ResolutionRaw},
		{24, ResolutionRaw},
		{25, Resolution1m},
		{168, Resolution1m},
		{169, Resolution15m},
		{720, Resolution15m},
	}
	for _, c := range cases {
		if got := SelectResolution(c.hours); got != c.want {
			t.Errorf("SelectResolution(%d) = %s, want %s", c.hours, got, c.want)
		}
	}
}

func TestHistoryAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for n := 0; n < 5; n++ {
		ts := base.Add(time.Duration(n) * time.Second)
		if _, err := s.Insert(ctx, Snapshot{TSUTC: ts, CPUPercent: f(float64(n))}); err != nil {
			t.Fatalf("insert %d: %v", n, err)
		}
	}
	rows, err := s.History(ctx, base)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("len(rows) = %d, want 5", len(rows))
	}
	for n, row := range rows {
		if row.CPUPercent == nil || *row.CPUPercent != float64(n) {
			t.Errorf("rows[%d].CPUPercent = %v, want %d", n, row.CPUPercent, n)
		}
	}
}

func TestUpsertRollupIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bucket := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)

	tx1, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.UpsertRollup1m(ctx, tx1, bucket, f(10), f(20), f(30), f(1000), f(2000)); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if err := tx1.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	tx2, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin 2: %v", err)
	}
	if err := s.UpsertRollup1m(ctx, tx2, bucket, f(10), f(20), f(30), f(1000), f(2000)); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	rows, err := s.History1m(ctx, bucket.Add(-time.Minute))
	if err != nil {
		t.Fatalf("history1m: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1 (idempotent upsert)", len(rows))
	}
}
