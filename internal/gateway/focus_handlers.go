package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dannythecoder88/StudyPal/internal/focus"
	"github.com/Dannythecoder88/StudyPal/internal/stats"
)

const (
	focusEventBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// timer resolves the {id} path value, writing the error response when the
// id is rejected
func (s *Server) timer(w http.ResponseWriter, r *http.Request) (*focus.Timer, bool) {
	timer, err := s.deps.Timers.Open(r.PathValue("id"))
	switch {
	case errors.Is(err, focus.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	case errors.Is(err, focus.ErrTooManyTimers):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load timer")
		return nil, false
	}
	return timer, true
}

func (s *Server) handleFocusGet(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusStart(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	timer.Start()
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusPause(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	timer.Pause()
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusReset(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	timer.Reset()
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusBreak(w http.ResponseWriter, r *http.Request) {
	duration, err := readMinutes(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	if !timer.TakeBreakNow(duration) {
		writeError(w, http.StatusConflict, "a break can only start while studying")
		return
	}
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusAcknowledge(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	if !timer.AcknowledgeLongBreak() {
		writeError(w, http.StatusConflict, "no long break is pending")
		return
	}
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleFocusGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := readMinutes(r)
	if err != nil || goal < 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	timer.SetStudyGoal(goal)
	writeJSON(w, http.StatusOK, timer.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "stats are disabled")
		return
	}
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	st := s.deps.Stats.For(timer.ID()).Snapshot()
	writeJSON(w, http.StatusOK, struct {
		stats.Stats
		Weekdays []string `json:"weekdays"`
	}{st, stats.Weekdays})
}

// focusStream forwards timer notifications to a websocket writer. Events
// are dropped when the client falls behind.
type focusStream struct {
	events chan FocusEvent
}

func (f *focusStream) push(ev FocusEvent) {
	select {
	case f.events <- ev:
	default:
	}
}

func (f *focusStream) OnStudyTimeMinutesDelta(minutes int) {
	f.push(FocusEvent{Event: "minutes", Minutes: minutes})
}

func (f *focusStream) OnTotalProgressSeconds(int64) {}

func (f *focusStream) OnBlockProgressSeconds(int64) {}

func (f *focusStream) OnModeChange(from, to focus.Mode) {
	f.push(FocusEvent{Event: "mode_change", From: from, To: to})
}

func (f *focusStream) OnFocusScore(score int) {
	f.push(FocusEvent{Event: "focus_score", Score: &score})
}

func (f *focusStream) OnSnapshot(snap focus.Snapshot) {
	f.push(FocusEvent{Event: "snapshot", Snapshot: &snap})
}

// handleFocusEvents streams timer events until the client disconnects
func (s *Server) handleFocusEvents(w http.ResponseWriter, r *http.Request) {
	timer, ok := s.timer(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade focus events connection")
		return
	}
	defer conn.Close()

	stream := &focusStream{events: make(chan FocusEvent, focusEventBuffer)}
	snap := timer.Snapshot()
	stream.push(FocusEvent{Event: "snapshot", Snapshot: &snap})
	unsubscribe := timer.Subscribe(stream)
	defer unsubscribe()

	logger := s.logger.With().Str("timer_id", timer.ID()).Logger()
	logger.Debug().Msg("Focus events client connected")

	// reader only watches for the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev := <-stream.events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("Focus events write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("Focus events client disconnected")
			return
		}
	}
}
