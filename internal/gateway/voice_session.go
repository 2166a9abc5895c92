package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/capture"
	"github.com/Dannythecoder88/StudyPal/internal/conversation"
	"github.com/Dannythecoder88/StudyPal/internal/focus"
	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/recorder"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

const volumeInterval = 100 * time.Millisecond

// VoiceSession is one websocket client driving voice turns. The client
// owns the microphone and the speaker; the session owns the turn.
type VoiceSession struct {
	id      string
	conn    *websocket.Conn
	server  *Server
	remote  *capture.RemoteContext
	sink    *remoteSink
	vad     *audio.VAD
	orch    *conversation.Orchestrator
	timerID string
	logger  zerolog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	active  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// newVoiceSession wires a capture context, recorder, detector and player
// around conn
func (s *Server) newVoiceSession(conn *websocket.Conn, timerID string) *VoiceSession {
	cfg := s.deps.Config
	id := uuid.New().String()
	logger := observability.WithCorrelationID(id).With().
		Str("component", "voice_session").
		Str("session_id", id).
		Str("timer_id", timerID).
		Logger()

	vs := &VoiceSession{
		id:      id,
		conn:    conn,
		server:  s,
		timerID: timerID,
		logger:  logger,
		active:  true,
		done:    make(chan struct{}),
	}

	options, current := s.options()
	vs.remote = capture.NewRemoteContext(vs, time.Duration(cfg.CapturePermissionTimeout)*time.Second)
	vs.sink = newRemoteSink(vs.send)

	recConfig := recorder.DefaultConfig()
	if cfg.AudioSampleRate > 0 {
		recConfig.SampleRate = cfg.AudioSampleRate
	}
	if cfg.RecorderTimeslice > 0 {
		recConfig.Timeslice = time.Duration(cfg.RecorderTimeslice) * time.Millisecond
	}
	rec := recorder.New(vs.remote, recConfig, logger)

	vs.vad = audio.NewVAD(current.VADConfig(), logger)
	player := tts.NewPlayer(s.deps.Synthesizer, vs.sink, options.Speech, cfg.MaxSegmentChars, logger)
	vs.orch = conversation.New(rec, vs.vad, player, s.deps.Transcriber, s.ConverseFor(timerID), options, logger)
	vs.orch.Subscribe(conversation.ObserverFuncs{
		Phase: vs.onPhase,
		Transcript: func(turnID, text string) {
			vs.send(ServerMessage{Event: EventTranscript, TurnID: turnID, Text: text})
		},
		Response: func(turnID, text string) {
			vs.send(ServerMessage{Event: EventResponse, TurnID: turnID, Text: text})
		},
	})
	return vs
}

// handleVoiceWS upgrades to a voice session and serves it until the
// client disconnects
func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	timerID := r.URL.Query().Get("timer")
	if timerID == "" {
		timerID = DefaultTimerID
	}
	if !focus.ValidID(timerID) {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidID.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade voice connection")
		return
	}
	defer conn.Close()

	session := s.newVoiceSession(conn, timerID)
	s.addSession(session)
	defer s.removeSession(session.id)

	session.logger.Info().Msg("Voice session connected")
	session.send(ServerMessage{Event: EventConnected, SessionID: session.id})

	session.readLoop()
	session.Close()
	session.logger.Info().Msg("Voice session ended")
}

// RequestCapture implements capture.RemoteTransport
func (vs *VoiceSession) RequestCapture(config capture.Config) error {
	return vs.send(ServerMessage{
		Event: EventCaptureRequest,
		Capture: &CaptureRequest{
			SampleRate:       int(config.SampleRate),
			Channels:         int(config.Channels),
			EchoCancellation: config.EchoCancellation,
			NoiseSuppression: config.NoiseSuppression,
			DeviceID:         config.DeviceID,
		},
	})
}

// ReleaseCapture implements capture.RemoteTransport
func (vs *VoiceSession) ReleaseCapture() error {
	return vs.send(ServerMessage{Event: EventCaptureRelease})
}

// send writes one message; gorilla connections allow a single writer
func (vs *VoiceSession) send(msg ServerMessage) error {
	vs.mu.Lock()
	active := vs.active
	vs.mu.Unlock()
	if !active {
		return errors.New("session is not active")
	}

	vs.writeMu.Lock()
	defer vs.writeMu.Unlock()
	vs.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return vs.conn.WriteJSON(msg)
}

func (vs *VoiceSession) readLoop() {
	for {
		_, message, err := vs.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				vs.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			vs.logger.Error().Err(err).Msg("Failed to parse client message")
			continue
		}
		vs.handle(msg)
	}
}

func (vs *VoiceSession) handle(msg ClientMessage) {
	switch msg.Event {
	case EventStart:
		vs.applySettings()
		vs.goTurn(func() error { return vs.orch.Start(context.Background()) })

	case EventStop:
		vs.goTurn(vs.orch.StopAndConverse)

	case EventForceStop:
		vs.orch.ForceStop()

	case EventCaptureGranted, EventCaptureDenied:
		grant := capture.Grant{Granted: msg.Event == EventCaptureGranted}
		if msg.Capture != nil {
			grant.SampleRate = msg.Capture.SampleRate
			grant.Channels = msg.Capture.Channels
			grant.Device = msg.Capture.Device
			grant.Reason = msg.Capture.Reason
		}
		if !vs.remote.Resolve(grant) {
			vs.logger.Debug().Str("event", msg.Event).Msg("Capture answer with no pending request")
		}

	case EventMedia:
		if msg.Media == nil || msg.Media.Payload == "" {
			vs.logger.Debug().Msg("Media event missing payload")
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			vs.logger.Debug().Err(err).Msg("Failed to decode base64 audio")
			return
		}
		vs.remote.Feed(pcm)

	case EventPlaybackEnded:
		vs.sink.finish(msg.PlaybackID, nil)

	case EventPlaybackError:
		reason := msg.Error
		if reason == "" {
			reason = "client playback failed"
		}
		vs.sink.finish(msg.PlaybackID, errors.New(reason))

	default:
		vs.logger.Debug().Str("event", msg.Event).Msg("Unknown client event")
	}
}

// goTurn runs a blocking turn step off the read loop so capture answers,
// media and force_stop keep flowing
func (vs *VoiceSession) goTurn(fn func() error) {
	vs.spawn(func() {
		if err := fn(); err != nil {
			vs.logger.Debug().Err(err).Msg("Voice turn step failed")
		}
	})
}

// spawn runs fn in a goroutine that Close waits for. Nothing starts once
// the session is closed.
func (vs *VoiceSession) spawn(fn func()) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if !vs.active {
		return
	}
	vs.wg.Add(1)
	go func() {
		defer vs.wg.Done()
		fn()
	}()
}

// applySettings picks up voice settings changed since the last turn
func (vs *VoiceSession) applySettings() {
	options, current := vs.server.options()
	vs.orch.SetOptions(options)
	vs.vad.SetConfig(current.VADConfig())
}

func (vs *VoiceSession) onPhase(snap conversation.Snapshot) {
	msg := ServerMessage{Event: EventPhase, State: &snap}
	vs.send(msg)
	if snap.Error != "" {
		vs.send(ServerMessage{Event: EventError, TurnID: snap.TurnID, Error: snap.Error, Kind: snap.ErrorKind})
	}
	if snap.Phase == conversation.PhaseRecording {
		turnID := snap.TurnID
		vs.spawn(func() { vs.reportVolume(turnID) })
	}
}

// reportVolume streams the input level while turnID is recording
func (vs *VoiceSession) reportVolume(turnID string) {
	ticker := time.NewTicker(volumeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-vs.done:
			return
		case <-ticker.C:
			snap := vs.orch.Snapshot()
			if snap.Phase != conversation.PhaseRecording || snap.TurnID != turnID {
				return
			}
			level := snap.Volume
			if err := vs.send(ServerMessage{Event: EventVolume, TurnID: turnID, Volume: &level}); err != nil {
				return
			}
		}
	}
}

// Close ends the session: the turn is force stopped and outstanding
// playbacks fail. Safe to call more than once.
func (vs *VoiceSession) Close() {
	vs.mu.Lock()
	if !vs.active {
		vs.mu.Unlock()
		return
	}
	vs.active = false
	close(vs.done)
	vs.mu.Unlock()

	vs.orch.ForceStop()
	vs.sink.close()
	vs.remote.Close()
	vs.conn.Close()
	vs.wg.Wait()

	if kind := voiceerr.KindOf(vs.orch.Err()); kind != "" {
		vs.logger.Debug().Str("kind", string(kind)).Msg("Last turn ended with error")
	}
}
