package stats

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/focus"
	"github.com/Dannythecoder88/StudyPal/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

// Wednesday
var wednesday = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

func newTestTracker(store storage.Store) (*Tracker, *fakeClock) {
	tracker := NewTracker("desk", store, zerolog.Nop())
	clock := &fakeClock{t: wednesday}
	tracker.now = clock.now
	return tracker, clock
}

func TestTracker_AccumulatesMinutes(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker, _ := newTestTracker(store)

	tracker.OnStudyTimeMinutesDelta(1)
	tracker.OnStudyTimeMinutesDelta(2)
	tracker.OnStudyTimeMinutesDelta(0)

	s := tracker.Snapshot()
	if s.TodayMinutes != 3 || s.WeeklyMinutes != 3 || s.TotalMinutes != 3 {
		t.Errorf("Expected 3 minutes everywhere, got %+v", s)
	}
	if s.Weekly["wednesday"] != 3 {
		t.Errorf("Expected wednesday bucket 3, got %v", s.Weekly)
	}
	if s.WeekStart != "2026-10-12" {
		t.Errorf("Expected week starting Monday 2026-10-12, got %s", s.WeekStart)
	}
}

func TestTracker_DayRollover(t *testing.T) {
	tracker, clock := newTestTracker(storage.NewMemoryStore())

	tracker.OnStudyTimeMinutesDelta(30)
	clock.t = wednesday.Add(24 * time.Hour)
	tracker.OnStudyTimeMinutesDelta(10)

	s := tracker.Snapshot()
	if s.TodayMinutes != 10 {
		t.Errorf("Expected today reset to 10, got %d", s.TodayMinutes)
	}
	if s.WeeklyMinutes != 40 || s.Weekly["wednesday"] != 30 || s.Weekly["thursday"] != 10 {
		t.Errorf("Unexpected weekly stats: %+v", s)
	}

	clock.t = clock.t.Add(24 * time.Hour)
	if s := tracker.Snapshot(); s.TodayMinutes != 0 {
		t.Errorf("Expected snapshot rolled over to zero, got %d", s.TodayMinutes)
	}
}

func TestTracker_WeekRollover(t *testing.T) {
	tracker, clock := newTestTracker(storage.NewMemoryStore())

	tracker.OnStudyTimeMinutesDelta(45)
	clock.t = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) // next Monday
	tracker.OnStudyTimeMinutesDelta(5)

	s := tracker.Snapshot()
	if s.WeeklyMinutes != 5 || s.Weekly["wednesday"] != 0 || s.Weekly["monday"] != 5 {
		t.Errorf("Expected fresh week, got %+v", s)
	}
	if s.TotalMinutes != 50 {
		t.Errorf("Expected total kept across weeks, got %d", s.TotalMinutes)
	}
}

func TestTracker_Persistence(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker, _ := newTestTracker(store)
	tracker.OnStudyTimeMinutesDelta(12)
	tracker.OnFocusScore(40)

	loaded, err := Load(store, "desk")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.TotalMinutes != 12 || loaded.FocusScore != 40 {
		t.Errorf("Unexpected persisted stats: %+v", loaded)
	}

	restored := NewTracker("desk", store, zerolog.Nop())
	restored.now = func() time.Time { return wednesday }
	if s := restored.Snapshot(); s.TodayMinutes != 12 {
		t.Errorf("Expected restored today minutes, got %d", s.TodayMinutes)
	}
}

func TestLoad_Missing(t *testing.T) {
	s, err := Load(storage.NewMemoryStore(), "nobody")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(s.Weekly) != 7 || s.TotalMinutes != 0 {
		t.Errorf("Expected empty stats, got %+v", s)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Save(StorageKey("desk"), []byte("{"))
	if _, err := Load(store, "desk"); err == nil {
		t.Error("Expected decode error")
	}
}

func TestTracker_AsFocusObserver(t *testing.T) {
	store := storage.NewMemoryStore()
	registry := NewRegistry(store, zerolog.Nop())
	if registry.For("desk") != registry.For("desk") {
		t.Fatal("Expected registry to reuse trackers")
	}

	cfg := focus.DefaultConfig()
	cfg.ManualTick = true
	timer := focus.New("desk", focus.NewState(cfg), store, cfg, zerolog.Nop())
	defer timer.Close()
	tracker := registry.For("desk")
	timer.Subscribe(tracker)

	timer.Start()
	for i := 0; i < 125; i++ {
		timer.Tick()
	}
	if s := tracker.Snapshot(); s.TotalMinutes != 2 {
		t.Errorf("Expected 2 minutes from 125 ticks, got %d", s.TotalMinutes)
	}
}
