package profiles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opus-domini/devstatd/internal/settings"
	"github.com/opus-domini/devstatd/internal/store"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "devstatd.db")
	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewCatalog(settings.New(st.DB()))
}

func TestListReturnsThreeBuiltinsSortedByName(t *testing.T) {
	got := List()
	if len(got) != 3 {
		t.Fatalf("expected 3 built-in profiles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Name >= got[i].Name {
			t.Fatalf("expected sorted names, got %q before %q", got[i-1].Name, got[i].Name)
		}
	}
}

func TestGetUnknownNameReturnsFalse(t *testing.T) {
	_, ok := Get("nonexistent")
	if ok {
		t.Fatal("expected ok=false for unknown profile name")
	}
}

func TestDefaultMatchesDefaultProfileName(t *testing.T) {
	if Default().Name != DefaultProfileName {
		t.Fatalf("expected default profile name %q, got %q", DefaultProfileName, Default().Name)
	}
}

func TestBuiltinPortsMatchOriginalSource(t *testing.T) {
	cases := []struct {
		name          string
		watchPorts    []int
		requiredPorts []int
	}{
		{"default", []int{3000, 5173, 8000, 1433, 5672, 15672}, []int{3000, 1433, 5672}},
		{"frontend-dev", []int{3000, 5173, 8000}, []int{5173}},
		{"microservices", []int{8000, 8001, 8002, 1433, 5432, 5672, 6379, 15672}, []int{8000, 1433, 5672}},
	}
	for _, c := range cases {
		p, ok := Get(c.name)
		if !ok {
			t.Fatalf("profile %q not found", c.name)
		}
		if !equalInts(p.WatchPorts, c.watchPorts) {
			t.Fatalf("%s: watch_ports = %v, want %v", c.name, p.WatchPorts, c.watchPorts)
		}
		if !equalInts(p.RequiredPorts, c.requiredPorts) {
			t.Fatalf("%s: required_ports = %v, want %v", c.name, p.RequiredPorts, c.requiredPorts)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestActiveFallsBackToDefaultWhenUnset(t *testing.T) {
	c := newTestCatalog(t)
	p, err := c.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if p.Name != DefaultProfileName {
		t.Fatalf("expected default profile, got %q", p.Name)
	}
}

func TestSelectPersistsAndActiveReflectsIt(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	p, err := c.Select(ctx, "frontend-dev")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name != "frontend-dev" {
		t.Fatalf("expected frontend-dev, got %q", p.Name)
	}

	active, err := c.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.Name != "frontend-dev" {
		t.Fatalf("expected active profile frontend-dev, got %q", active.Name)
	}
}

func TestSelectUnknownNameReturnsErrUnknownProfileWithoutMutating(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if _, err := c.Select(ctx, "bogus"); err != ErrUnknownProfile {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}

	active, err := c.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.Name != DefaultProfileName {
		t.Fatalf("expected active profile unchanged at default, got %q", active.Name)
	}
}
