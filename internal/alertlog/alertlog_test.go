package alertlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opus-domini/devstatd/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "devstatd.db")
	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st.DB())
}

func TestInsertAndRecentOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := s.Insert(ctx, Write{TSUTC: base, Type: TypeCPUHigh, Message: "cpu high", Severity: SeverityWarning})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := s.Insert(ctx, Write{TSUTC: base.Add(time.Minute), Type: TypeRAMHigh, Message: "ram high", Severity: SeverityCritical})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Recent(ctx, 10, true)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if got[0].ID != second || got[1].ID != first {
		t.Fatalf("expected newest-first order, got ids %d, %d", got[0].ID, got[1].ID)
	}
}

func TestRecentExcludesAcknowledgedByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.Insert(ctx, Write{TSUTC: base, Type: TypePortDown, Message: "port down", Severity: SeverityCritical})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := s.Acknowledge(ctx, id, base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("acknowledge: ok=%v err=%v", ok, err)
	}

	got, err := s.Recent(ctx, 10, false)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected acknowledged alert excluded, got %d", len(got))
	}

	withAck, err := s.Recent(ctx, 10, true)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(withAck) != 1 || !withAck[0].Acknowledged {
		t.Fatalf("expected 1 acknowledged alert, got %+v", withAck)
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.Insert(ctx, Write{TSUTC: base, Type: TypeNetworkOffline, Message: "offline", Severity: SeverityCritical})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := s.Acknowledge(ctx, id, base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("first ack: ok=%v err=%v", ok, err)
	}
	ok, err = s.Acknowledge(ctx, id, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if ok {
		t.Fatal("expected second acknowledge to report false (already acknowledged)")
	}
}

func TestAcknowledgeUnknownIDReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Acknowledge(context.Background(), 9999, time.Now())
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if ok {
		t.Fatal("expected false for unknown alert id")
	}
}

func TestGetReturnsFalseWhenMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing alert")
	}
}
