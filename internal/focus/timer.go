package focus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Dannythecoder88/StudyPal/internal/storage"
	"github.com/rs/zerolog"
)

// SnapshotObserver is implemented by observers that want the full state
// after every mutation, including each tick
type SnapshotObserver interface {
	OnSnapshot(snap Snapshot)
}

func snapshotNotice(snap Snapshot) notice {
	return func(o Observer) {
		if so, ok := o.(SnapshotObserver); ok {
			so.OnSnapshot(snap)
		}
	}
}

type observerEntry struct {
	id       int
	observer Observer
}

// Timer is the study/break state machine for one focus session
type Timer struct {
	id     string
	cfg    Config
	store  storage.Store
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	observers []observerEntry
	nextObsID int
	stopCh    chan struct{}
	lastTick  time.Time
	version   uint64
	closed    bool

	persistMu    sync.Mutex
	savedVersion uint64
}

// New creates a timer from a persisted or fresh state. A state saved while
// running resumes ticking immediately.
func New(id string, state State, store storage.Store, cfg Config, logger zerolog.Logger) *Timer {
	cfg = cfg.withDefaults()
	t := &Timer{
		id:     id,
		cfg:    cfg,
		store:  store,
		state:  state.normalize(cfg),
		logger: logger.With().Str("component", "focus").Str("timer_id", id).Logger(),
	}
	if t.state.Running {
		t.startLoopLocked()
	}
	return t
}

// ID returns the timer id
func (t *Timer) ID() string {
	return t.id
}

// Subscribe registers an observer and returns a function that removes it
func (t *Timer) Subscribe(o Observer) func() {
	t.mu.Lock()
	t.nextObsID++
	id := t.nextObsID
	t.observers = append(t.observers, observerEntry{id: id, observer: o})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, entry := range t.observers {
			if entry.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// Start sets the timer running. It does nothing when already running or
// while a long break or met goal is waiting for the user.
func (t *Timer) Start() {
	t.mu.Lock()
	s := &t.state
	if t.closed || s.Running || s.Mode == ModeLongBreakPending || s.Mode == ModeGoalMet {
		t.mu.Unlock()
		return
	}
	s.Running = true
	t.startLoopLocked()
	t.commit(nil)
}

// Pause stops ticking and keeps every counter
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.state.Running {
		t.mu.Unlock()
		return
	}
	t.state.Running = false
	t.stopLoopLocked()
	t.commit(nil)
}

// Reset starts a new study block with default lengths. The total study
// time is kept.
func (t *Timer) Reset() {
	t.mu.Lock()
	s := &t.state
	var notices []notice
	if s.Mode != ModeStudying {
		notices = append(notices, modeNotice(s.Mode, ModeStudying))
	}
	if s.FocusScore != 0 {
		notices = append(notices, scoreNotice(0))
	}
	s.Mode = ModeStudying
	s.Running = false
	s.BlockElapsedSeconds = 0
	s.SinceLongBreakSeconds = 0
	s.FocusScore = 0
	t.restoreDefaultsLocked()
	t.stopLoopLocked()
	t.commit(notices)
}

// Tick advances the timer by one second. It is a no-op while stopped.
func (t *Timer) Tick() {
	t.mu.Lock()
	if !t.state.Running {
		t.mu.Unlock()
		return
	}
	notices := t.tickLocked()
	t.commit(notices)
}

// TakeBreakNow ends the current study block early. A non-positive duration
// uses the default break; others are clamped to the custom break range.
// It reports whether the break started.
func (t *Timer) TakeBreakNow(duration time.Duration) bool {
	t.mu.Lock()
	s := &t.state
	if s.Mode != ModeStudying || !s.Running {
		t.mu.Unlock()
		return false
	}

	if duration <= 0 {
		duration = t.cfg.DefaultBreak
	} else if duration < t.cfg.MinCustomBreak {
		duration = t.cfg.MinCustomBreak
	} else if duration > t.cfg.MaxCustomBreak {
		duration = t.cfg.MaxCustomBreak
	}
	s.BreakLengthSeconds = seconds(duration)
	notices := t.transitionLocked(ModeOnBreak)
	t.commit(notices)
	return true
}

// AcknowledgeLongBreak clears a pending long break and returns to a stopped
// study block. It reports whether a long break was pending.
func (t *Timer) AcknowledgeLongBreak() bool {
	t.mu.Lock()
	s := &t.state
	if s.Mode != ModeLongBreakPending {
		t.mu.Unlock()
		return false
	}
	s.SinceLongBreakSeconds = 0
	s.Running = false
	t.restoreDefaultsLocked()
	notices := t.transitionLocked(ModeStudying)
	t.commit(notices)
	return true
}

// SetStudyGoal sets the session goal; zero clears it. Raising the goal above
// the total study time leaves GoalMet.
func (t *Timer) SetStudyGoal(goal time.Duration) {
	t.mu.Lock()
	s := &t.state
	goalSeconds := seconds(goal)
	if goalSeconds < 0 {
		goalSeconds = 0
	}
	s.StudyGoalSeconds = goalSeconds

	var notices []notice
	if s.Mode == ModeGoalMet && (goalSeconds == 0 || goalSeconds > s.ElapsedTotalSeconds) {
		s.Running = false
		notices = t.transitionLocked(ModeStudying)
	}
	t.commit(notices)
}

// Snapshot returns a copy of the current state
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.snapshot(t.id)
}

// Close stops the background ticker and flushes the state. The timer keeps
// answering Snapshot but ignores Start.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopLoopLocked()
	t.mu.Unlock()
	t.persist()
}

// commit finishes a mutation started under t.mu: it bumps the version,
// releases the lock, notifies observers and persists.
func (t *Timer) commit(notices []notice) {
	t.version++
	notices = append(notices, snapshotNotice(t.state.snapshot(t.id)))
	observers := make([]Observer, len(t.observers))
	for i, entry := range t.observers {
		observers[i] = entry.observer
	}
	t.mu.Unlock()

	for _, n := range notices {
		for _, o := range observers {
			n(o)
		}
	}
	t.persist()
}

func (t *Timer) tickLocked() []notice {
	s := &t.state
	var notices []notice

	s.ElapsedTotalSeconds++
	s.BlockElapsedSeconds++

	if s.Mode == ModeStudying {
		s.SinceLongBreakSeconds++
		interval := seconds(t.cfg.FocusScoreInterval)
		if interval > 0 && s.BlockElapsedSeconds%interval == 0 && s.FocusScore < 100 {
			s.FocusScore += t.cfg.FocusScoreStep
			if s.FocusScore > 100 {
				s.FocusScore = 100
			}
			notices = append(notices, scoreNotice(s.FocusScore))
		}
	}

	if minutes := s.ElapsedTotalSeconds / 60; minutes > s.ReportedMinutes {
		delta := minutes - s.ReportedMinutes
		s.ReportedMinutes = minutes
		notices = append(notices, minutesNotice(int(delta)))
	}
	notices = append(notices,
		totalNotice(s.ElapsedTotalSeconds),
		blockNotice(s.BlockElapsedSeconds),
	)

	return append(notices, t.evaluateGuardsLocked()...)
}

func (t *Timer) evaluateGuardsLocked() []notice {
	s := &t.state

	if s.StudyGoalSeconds > 0 && s.ElapsedTotalSeconds >= s.StudyGoalSeconds {
		s.Running = false
		t.stopLoopLocked()
		return t.transitionLocked(ModeGoalMet)
	}

	if s.Mode == ModeStudying && s.BlockElapsedSeconds >= s.BlockLengthSeconds {
		return t.transitionLocked(ModeOnBreak)
	}

	if s.Mode == ModeOnBreak && s.BlockElapsedSeconds >= s.BreakLengthSeconds {
		t.restoreDefaultsLocked()
		return t.transitionLocked(ModeStudying)
	}

	if s.Mode == ModeStudying {
		windowStart, windowEnd := seconds(t.cfg.LongBreakMin), seconds(t.cfg.LongBreakMax)
		if s.SinceLongBreakSeconds > windowEnd {
			// stale accumulation from an earlier session
			s.SinceLongBreakSeconds = 0
		} else if s.SinceLongBreakSeconds >= windowStart {
			s.Running = false
			t.stopLoopLocked()
			return t.transitionLocked(ModeLongBreakPending)
		}
	}
	return nil
}

// transitionLocked switches mode and starts a fresh block counter
func (t *Timer) transitionLocked(to Mode) []notice {
	s := &t.state
	from := s.Mode
	s.Mode = to
	s.BlockElapsedSeconds = 0

	notices := []notice{modeNotice(from, to)}
	if to == ModeOnBreak && s.FocusScore != 0 {
		s.FocusScore = 0
		notices = append(notices, scoreNotice(0))
	}

	t.logger.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Int64("elapsed_total_seconds", s.ElapsedTotalSeconds).
		Msg("Focus mode changed")
	return notices
}

func (t *Timer) restoreDefaultsLocked() {
	t.state.BlockLengthSeconds = seconds(t.cfg.DefaultBlock)
	t.state.BreakLengthSeconds = seconds(t.cfg.DefaultBreak)
}

func (t *Timer) startLoopLocked() {
	if t.cfg.ManualTick || t.stopCh != nil {
		return
	}
	t.stopCh = make(chan struct{})
	t.lastTick = time.Now()
	go t.run(t.stopCh)
}

func (t *Timer) stopLoopLocked() {
	if t.stopCh == nil {
		return
	}
	close(t.stopCh)
	t.stopCh = nil
}

func (t *Timer) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			t.advance(now)
		}
	}
}

// advance replays one tick per whole interval elapsed since the last tick,
// so a late ticker never loses study time
func (t *Timer) advance(now time.Time) {
	t.mu.Lock()
	if !t.state.Running || t.stopCh == nil {
		t.mu.Unlock()
		return
	}
	steps := int64(now.Sub(t.lastTick) / t.cfg.TickInterval)
	if steps < 1 {
		t.mu.Unlock()
		return
	}
	t.lastTick = t.lastTick.Add(time.Duration(steps) * t.cfg.TickInterval)
	if steps > 1 {
		t.logger.Debug().Int64("steps", steps).Msg("Replaying missed ticks")
	}

	var notices []notice
	for i := int64(0); i < steps && t.state.Running; i++ {
		notices = append(notices, t.tickLocked()...)
	}
	t.commit(notices)
}

func (t *Timer) persist() {
	if t.store == nil {
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	version, state := t.version, t.state
	t.mu.Unlock()
	if version == t.savedVersion {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode focus state")
		return
	}
	if err := t.store.Save(StorageKey(t.id), data); err != nil {
		t.logger.Error().Err(err).Msg("Failed to persist focus state")
		return
	}
	t.savedVersion = version
}
