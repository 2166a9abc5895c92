package focus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dannythecoder88/StudyPal/internal/storage"
)

// Mode is the current phase of a focus session
type Mode string

const (
	ModeStudying         Mode = "studying"
	ModeOnBreak          Mode = "on_break"
	ModeLongBreakPending Mode = "long_break_pending"
	ModeGoalMet          Mode = "goal_met"
)

// State is the persisted state of one focus timer
type State struct {
	Mode                  Mode  `json:"mode"`
	Running               bool  `json:"running"`
	ElapsedTotalSeconds   int64 `json:"elapsed_total_seconds"`
	BlockElapsedSeconds   int64 `json:"block_elapsed_seconds"`
	BlockLengthSeconds    int64 `json:"block_length_seconds"`
	BreakLengthSeconds    int64 `json:"break_length_seconds"`
	StudyGoalSeconds      int64 `json:"study_goal_seconds,omitempty"`
	SinceLongBreakSeconds int64 `json:"since_long_break_seconds"`
	ReportedMinutes       int64 `json:"reported_minutes"`
	FocusScore            int   `json:"focus_score"`
}

// Snapshot is a copy of the timer state with derived values for display
type Snapshot struct {
	ID string `json:"id"`
	State
	BlockProgress float64 `json:"block_progress"`
	GoalProgress  float64 `json:"goal_progress,omitempty"`
	RemainingSecs int64   `json:"remaining_seconds"`
}

// Config holds the timer durations
type Config struct {
	DefaultBlock       time.Duration
	DefaultBreak       time.Duration
	LongBreakMin       time.Duration
	LongBreakMax       time.Duration
	FocusScoreInterval time.Duration
	FocusScoreStep     int
	MinCustomBreak     time.Duration
	MaxCustomBreak     time.Duration

	// TickInterval is the wall-clock length of one tick
	TickInterval time.Duration
	// ManualTick disables the background ticker; the host calls Tick itself
	ManualTick bool
	// MaxTimers bounds the timers a Registry keeps loaded; 0 is unbounded
	MaxTimers int
}

// DefaultConfig returns the standard 30/5 minute cadence
func DefaultConfig() Config {
	return Config{
		DefaultBlock:       30 * time.Minute,
		DefaultBreak:       5 * time.Minute,
		LongBreakMin:       120 * time.Minute,
		LongBreakMax:       180 * time.Minute,
		FocusScoreInterval: 10 * time.Minute,
		FocusScoreStep:     10,
		MinCustomBreak:     time.Minute,
		MaxCustomBreak:     10 * time.Minute,
		TickInterval:       time.Second,
		MaxTimers:          1000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultBlock <= 0 {
		c.DefaultBlock = def.DefaultBlock
	}
	if c.DefaultBreak <= 0 {
		c.DefaultBreak = def.DefaultBreak
	}
	if c.LongBreakMin <= 0 {
		c.LongBreakMin = def.LongBreakMin
	}
	if c.LongBreakMax < c.LongBreakMin {
		c.LongBreakMax = c.LongBreakMin + (def.LongBreakMax - def.LongBreakMin)
	}
	if c.FocusScoreInterval <= 0 {
		c.FocusScoreInterval = def.FocusScoreInterval
	}
	if c.FocusScoreStep <= 0 {
		c.FocusScoreStep = def.FocusScoreStep
	}
	if c.MinCustomBreak <= 0 {
		c.MinCustomBreak = def.MinCustomBreak
	}
	if c.MaxCustomBreak < c.MinCustomBreak {
		c.MaxCustomBreak = def.MaxCustomBreak
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	return c
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// NewState returns a fresh, stopped study state
func NewState(cfg Config) State {
	cfg = cfg.withDefaults()
	return State{
		Mode:               ModeStudying,
		BlockLengthSeconds: seconds(cfg.DefaultBlock),
		BreakLengthSeconds: seconds(cfg.DefaultBreak),
	}
}

// StorageKey is the store key for a timer id
func StorageKey(id string) string {
	return "focus/" + id
}

// LoadState reads the persisted state for id, falling back to a fresh state
// when nothing has been stored yet
func LoadState(store storage.Store, id string, cfg Config) (State, error) {
	if store == nil {
		return NewState(cfg), nil
	}
	data, err := store.Load(StorageKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return NewState(cfg), nil
	}
	if err != nil {
		return NewState(cfg), fmt.Errorf("load focus state %s: %w", id, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return NewState(cfg), fmt.Errorf("decode focus state %s: %w", id, err)
	}
	return state.normalize(cfg), nil
}

// normalize repairs values that cannot come from a running timer
func (s State) normalize(cfg Config) State {
	cfg = cfg.withDefaults()
	switch s.Mode {
	case ModeStudying, ModeOnBreak, ModeLongBreakPending, ModeGoalMet:
	default:
		s.Mode = ModeStudying
	}
	if s.BlockLengthSeconds <= 0 {
		s.BlockLengthSeconds = seconds(cfg.DefaultBlock)
	}
	if s.BreakLengthSeconds <= 0 {
		s.BreakLengthSeconds = seconds(cfg.DefaultBreak)
	}
	if s.ElapsedTotalSeconds < 0 {
		s.ElapsedTotalSeconds = 0
	}
	if s.BlockElapsedSeconds < 0 {
		s.BlockElapsedSeconds = 0
	}
	if s.ReportedMinutes > s.ElapsedTotalSeconds/60 || s.ReportedMinutes < 0 {
		s.ReportedMinutes = s.ElapsedTotalSeconds / 60
	}
	if s.Mode == ModeLongBreakPending || s.Mode == ModeGoalMet {
		s.Running = false
	}
	return s
}

func (s State) snapshot(id string) Snapshot {
	snap := Snapshot{ID: id, State: s}

	length := s.BlockLengthSeconds
	if s.Mode == ModeOnBreak {
		length = s.BreakLengthSeconds
	}
	if length > 0 {
		snap.BlockProgress = clamp01(float64(s.BlockElapsedSeconds) / float64(length))
		snap.RemainingSecs = length - s.BlockElapsedSeconds
		if snap.RemainingSecs < 0 {
			snap.RemainingSecs = 0
		}
	}
	if s.StudyGoalSeconds > 0 {
		snap.GoalProgress = clamp01(float64(s.ElapsedTotalSeconds) / float64(s.StudyGoalSeconds))
	}
	return snap
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
