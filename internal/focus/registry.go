package focus

import (
	"errors"
	"regexp"
	"sort"
	"sync"

	"github.com/Dannythecoder88/StudyPal/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidID is returned for timer ids outside [A-Za-z0-9_-]{1,64}
	ErrInvalidID = errors.New("invalid timer id")
	// ErrTooManyTimers is returned when the registry is full
	ErrTooManyTimers = errors.New("too many focus timers")

	validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidID reports whether id can name a timer
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// ObserverFactory builds the observers attached to every new timer
type ObserverFactory func(id string) []Observer

// Registry owns the timers of a process, keyed by id
type Registry struct {
	store     storage.Store
	cfg       Config
	observers ObserverFactory
	logger    zerolog.Logger

	mu     sync.Mutex
	timers map[string]*Timer
}

// NewRegistry creates a registry that persists timers through store
func NewRegistry(store storage.Store, cfg Config, observers ObserverFactory, logger zerolog.Logger) *Registry {
	return &Registry{
		store:     store,
		cfg:       cfg,
		observers: observers,
		logger:    logger,
		timers:    make(map[string]*Timer),
	}
}

// Get returns the timer for id, rehydrating it from the store on first use.
// Ids are trusted; see Open for ids that come from clients.
func (r *Registry) Get(id string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.timers[id]; ok {
		return timer
	}
	return r.loadLocked(id)
}

// Open is Get for client supplied ids. It rejects malformed ids and new
// timers once MaxTimers are loaded.
func (r *Registry) Open(id string) (*Timer, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.timers[id]; ok {
		return timer, nil
	}
	if r.cfg.MaxTimers > 0 && len(r.timers) >= r.cfg.MaxTimers {
		return nil, ErrTooManyTimers
	}
	return r.loadLocked(id), nil
}

func (r *Registry) loadLocked(id string) *Timer {
	state, err := LoadState(r.store, id, r.cfg)
	if err != nil {
		// a corrupt record starts over rather than blocking the user
		r.logger.Warn().Err(err).Str("timer_id", id).Msg("Failed to load focus state, starting fresh")
	}
	timer := New(id, state, r.store, r.cfg, r.logger)
	if r.observers != nil {
		for _, o := range r.observers(id) {
			timer.Subscribe(o)
		}
	}
	r.timers[id] = timer

	r.logger.Info().
		Str("timer_id", id).
		Str("mode", string(state.Mode)).
		Int64("elapsed_total_seconds", state.ElapsedTotalSeconds).
		Msg("Focus timer loaded")
	return timer
}

// IDs returns the ids of loaded timers
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.timers))
	for id := range r.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every timer and flushes its state
func (r *Registry) Close() {
	r.mu.Lock()
	timers := make([]*Timer, 0, len(r.timers))
	for _, timer := range r.timers {
		timers = append(timers, timer)
	}
	r.mu.Unlock()

	for _, timer := range timers {
		timer.Close()
	}
}
