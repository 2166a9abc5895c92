package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/assistant"
	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/conversation"
	"github.com/Dannythecoder88/StudyPal/internal/focus"
	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/settings"
	"github.com/Dannythecoder88/StudyPal/internal/stats"
	"github.com/Dannythecoder88/StudyPal/internal/stt"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
)

// DefaultTimerID is used when a voice session does not name its timer
const DefaultTimerID = "default"

// Assistant answers study questions
type Assistant interface {
	Converse(ctx context.Context, req assistant.Request) (*assistant.Response, error)
}

// Deps are the services the gateway exposes
type Deps struct {
	Config      *config.Config
	Timers      *focus.Registry
	Stats       *stats.Registry
	Settings    *settings.File
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	Assistant   Assistant
	// Local drives turns on this machine's sound card; nil disables it
	Local  *conversation.Orchestrator
	Logger zerolog.Logger
}

// Server serves the HTTP and websocket API
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*VoiceSession
}

// New creates a gateway server
func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "gateway").Logger(),
		sessions: make(map[string]*VoiceSession),
	}
	origins := deps.Config.Origins()
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(origins, r) },
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return s
}

// Routes registers every endpoint on mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/voice", s.handleVoiceWS)

	mux.HandleFunc("GET /api/focus/{id}", s.handleFocusGet)
	mux.HandleFunc("POST /api/focus/{id}/start", s.handleFocusStart)
	mux.HandleFunc("POST /api/focus/{id}/pause", s.handleFocusPause)
	mux.HandleFunc("POST /api/focus/{id}/reset", s.handleFocusReset)
	mux.HandleFunc("POST /api/focus/{id}/break", s.handleFocusBreak)
	mux.HandleFunc("POST /api/focus/{id}/acknowledge", s.handleFocusAcknowledge)
	mux.HandleFunc("POST /api/focus/{id}/goal", s.handleFocusGoal)
	mux.HandleFunc("GET /api/focus/{id}/events", s.handleFocusEvents)

	mux.HandleFunc("GET /api/stats/{id}", s.handleStats)

	mux.HandleFunc("GET /api/voice/settings", s.handleSettingsGet)
	mux.HandleFunc("PUT /api/voice/settings", s.handleSettingsPut)
	mux.HandleFunc("DELETE /api/voice/settings", s.handleSettingsReset)

	mux.HandleFunc("POST /api/assistant", s.handleAssistant)

	if s.deps.Local != nil {
		mux.HandleFunc("GET /api/voice/local", s.handleLocalGet)
		mux.HandleFunc("POST /api/voice/local/start", s.handleLocalStart)
		mux.HandleFunc("POST /api/voice/local/stop", s.handleLocalStop)
		mux.HandleFunc("POST /api/voice/local/force-stop", s.handleLocalForceStop)
	}
}

// Close force stops every voice session
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*VoiceSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	if s.deps.Local != nil {
		s.deps.Local.ForceStop()
	}
}

// SessionCount returns the number of open voice sessions
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) addSession(session *VoiceSession) {
	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()
	observability.RecordSessionStart()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		observability.RecordSessionEnd()
	}
}

// ConverseFor returns the converse function for voice turns tied to
// timerID
func (s *Server) ConverseFor(timerID string) conversation.ConverseFunc {
	return Converser(s.deps.Assistant, s.deps.Stats, timerID)
}

// Converser adapts an assistant to a conversation.ConverseFunc. The study
// context is filled from the stats of timerID when statsRegistry is set.
func Converser(a Assistant, statsRegistry *stats.Registry, timerID string) conversation.ConverseFunc {
	return func(ctx context.Context, message string) (string, error) {
		req := assistant.Request{Message: message, Type: assistant.TypeGeneral}
		if statsRegistry != nil {
			st := statsRegistry.For(timerID).Snapshot()
			req.Context.StudyMinutes = st.TodayMinutes
			req.Context.FocusScore = st.FocusScore
		}
		resp, err := a.Converse(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Response, nil
	}
}

// options returns the turn options from the current voice settings
func (s *Server) options() (conversation.Options, settings.Settings) {
	current := s.deps.Settings.Get()
	return conversation.Options{
		Transcription: current.TranscriptionOptions(),
		Speech:        current.SpeakOptions(),
	}, current
}

func originAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// maxRequestMinutes bounds minutes in request bodies to one year
const maxRequestMinutes = 365 * 24 * 60

var errMinutesRange = fmt.Errorf("minutes must be between 0 and %d", maxRequestMinutes)

// minutesBody is the optional JSON body of break and goal requests
type minutesBody struct {
	Minutes float64 `json:"minutes"`
}

func readMinutes(r *http.Request) (time.Duration, error) {
	var body minutesBody
	if r.ContentLength == 0 {
		return 0, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, err
	}
	if math.IsNaN(body.Minutes) || body.Minutes < 0 || body.Minutes > maxRequestMinutes {
		return 0, errMinutesRange
	}
	return time.Duration(body.Minutes * float64(time.Minute)), nil
}
