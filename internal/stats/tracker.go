package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/storage"
)

const dayLayout = "2006-01-02"

// Weekdays lists the weekly buckets in display order
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Stats is the persisted study history of one timer
type Stats struct {
	Day           string         `json:"day"`
	WeekStart     string         `json:"week_start"`
	TodayMinutes  int            `json:"today_minutes"`
	WeeklyMinutes int            `json:"weekly_minutes"`
	Weekly        map[string]int `json:"weekly"`
	TotalMinutes  int            `json:"total_minutes"`
	FocusScore    int            `json:"focus_score"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func emptyWeek() map[string]int {
	week := make(map[string]int, len(Weekdays))
	for _, day := range Weekdays {
		week[day] = 0
	}
	return week
}

// StorageKey is the store key for a timer id
func StorageKey(id string) string {
	return "stats/" + id
}

// Load reads the stats for id. A missing record yields empty stats.
func Load(store storage.Store, id string) (Stats, error) {
	data, err := store.Load(StorageKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Stats{Weekly: emptyWeek()}, nil
	}
	if err != nil {
		return Stats{Weekly: emptyWeek()}, fmt.Errorf("failed to load stats: %w", err)
	}

	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return Stats{Weekly: emptyWeek()}, fmt.Errorf("failed to decode stats: %w", err)
	}
	if s.Weekly == nil {
		s.Weekly = emptyWeek()
	}
	return s, nil
}

// weekStart returns the Monday of t's week
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Tracker accumulates the minutes reported by one focus timer into daily
// and weekly totals
type Tracker struct {
	id     string
	store  storage.Store
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewTracker loads the stats for id and returns a tracker for them
func NewTracker(id string, store storage.Store, logger zerolog.Logger) *Tracker {
	logger = logger.With().Str("component", "stats").Str("timer_id", id).Logger()
	s, err := Load(store, id)
	if err != nil {
		logger.Warn().Err(err).Msg("Starting stats fresh")
	}
	return &Tracker{id: id, store: store, logger: logger, now: time.Now, stats: s}
}

// OnStudyTimeMinutesDelta adds studied minutes to today and this week
func (t *Tracker) OnStudyTimeMinutesDelta(minutes int) {
	if minutes <= 0 {
		return
	}
	t.mu.Lock()
	now := t.now()
	t.rolloverLocked(now)
	t.stats.TodayMinutes += minutes
	t.stats.Weekly[strings.ToLower(now.Weekday().String())] += minutes
	t.stats.WeeklyMinutes += minutes
	t.stats.TotalMinutes += minutes
	t.stats.UpdatedAt = now
	snapshot := t.copyLocked()
	t.mu.Unlock()

	t.persist(snapshot)
}

func (t *Tracker) OnTotalProgressSeconds(int64) {}

func (t *Tracker) OnBlockProgressSeconds(int64) {}

// OnFocusScore records the latest focus score
func (t *Tracker) OnFocusScore(score int) {
	t.mu.Lock()
	if t.stats.FocusScore == score {
		t.mu.Unlock()
		return
	}
	t.stats.FocusScore = score
	t.stats.UpdatedAt = t.now()
	snapshot := t.copyLocked()
	t.mu.Unlock()

	t.persist(snapshot)
}

// Snapshot returns the current stats, rolled over to today
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	return t.copyLocked()
}

// rolloverLocked clears today at local midnight and the week on Monday
func (t *Tracker) rolloverLocked(now time.Time) {
	day := now.Format(dayLayout)
	week := weekStart(now).Format(dayLayout)
	if t.stats.WeekStart != week {
		t.stats.Weekly = emptyWeek()
		t.stats.WeeklyMinutes = 0
		t.stats.WeekStart = week
	}
	if t.stats.Day != day {
		t.stats.TodayMinutes = 0
		t.stats.Day = day
	}
}

func (t *Tracker) copyLocked() Stats {
	s := t.stats
	s.Weekly = make(map[string]int, len(t.stats.Weekly))
	for k, v := range t.stats.Weekly {
		s.Weekly[k] = v
	}
	return s
}

func (t *Tracker) persist(s Stats) {
	data, err := json.Marshal(s)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode stats")
		return
	}
	if err := t.store.Save(StorageKey(t.id), data); err != nil {
		t.logger.Error().Err(err).Msg("Failed to save stats")
	}
}

// Registry hands out one tracker per timer id
type Registry struct {
	store  storage.Store
	logger zerolog.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewRegistry(store storage.Store, logger zerolog.Logger) *Registry {
	return &Registry{store: store, logger: logger, trackers: make(map[string]*Tracker)}
}

// For returns the tracker for id, loading it on first use
func (r *Registry) For(id string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracker, ok := r.trackers[id]; ok {
		return tracker
	}
	tracker := NewTracker(id, r.store, r.logger)
	r.trackers[id] = tracker
	return tracker
}
