package focus

import (
	"errors"
	"strings"
	"testing"

	"github.com/Dannythecoder88/StudyPal/internal/storage"
	"github.com/rs/zerolog"
)

func TestRegistry_GetReusesTimer(t *testing.T) {
	store := storage.NewMemoryStore()
	factoryCalls := 0
	registry := NewRegistry(store, manualConfig(), func(id string) []Observer {
		factoryCalls++
		return []Observer{&recordingObserver{}}
	}, zerolog.Nop())
	defer registry.Close()

	first := registry.Get("alice")
	second := registry.Get("alice")
	if first != second {
		t.Error("Expected the same timer for the same id")
	}
	if factoryCalls != 1 {
		t.Errorf("Expected observer factory to run once, got %d", factoryCalls)
	}

	registry.Get("bob")
	ids := registry.IDs()
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Errorf("Expected [alice bob], got %v", ids)
	}
}

func TestRegistry_RehydratesFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := manualConfig()

	registry := NewRegistry(store, cfg, nil, zerolog.Nop())
	timer := registry.Get("carol")
	timer.Start()
	tickN(timer, 42)
	registry.Close()

	reopened := NewRegistry(store, cfg, nil, zerolog.Nop())
	defer reopened.Close()
	snap := reopened.Get("carol").Snapshot()
	if snap.ElapsedTotalSeconds != 42 {
		t.Errorf("Expected rehydrated total 42, got %d", snap.ElapsedTotalSeconds)
	}
	if !snap.Running {
		t.Error("Expected running flag to be restored")
	}
}

func TestRegistry_OpenBoundsIDs(t *testing.T) {
	cfg := manualConfig()
	cfg.MaxTimers = 2
	registry := NewRegistry(storage.NewMemoryStore(), cfg, nil, zerolog.Nop())
	defer registry.Close()

	for _, id := range []string{"", "../etc", "has space", strings.Repeat("a", 65)} {
		if _, err := registry.Open(id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Expected ErrInvalidID for %q, got %v", id, err)
		}
	}

	first, err := registry.Open("desk-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := registry.Open("desk_2"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := registry.Open("desk3"); !errors.Is(err, ErrTooManyTimers) {
		t.Errorf("Expected ErrTooManyTimers, got %v", err)
	}

	again, err := registry.Open("desk-1")
	if err != nil || again != first {
		t.Errorf("Expected loaded timer returned at capacity, got %v", err)
	}
	if ids := registry.IDs(); len(ids) != 2 {
		t.Errorf("Expected 2 loaded timers, got %v", ids)
	}
}
