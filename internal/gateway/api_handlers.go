package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Dannythecoder88/StudyPal/internal/assistant"
	"github.com/Dannythecoder88/StudyPal/internal/settings"
)

type settingsResponse struct {
	Settings settings.Settings      `json:"settings"`
	Voices   []settings.VoiceOption `json:"voices"`
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{s.deps.Settings.Get(), settings.VoiceOptions})
}

// handleSettingsPut applies a partial update over the current settings
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	updated := s.deps.Settings.Get()
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.deps.Settings.Update(updated); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to save voice settings")
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	s.logger.Info().Str("voice", updated.Voice).Msg("Voice settings updated")
	writeJSON(w, http.StatusOK, settingsResponse{updated, settings.VoiceOptions})
}

func (s *Server) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Settings.Reset(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reset voice settings")
		writeError(w, http.StatusInternalServerError, "failed to reset settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{s.deps.Settings.Get(), settings.VoiceOptions})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if secs := s.deps.Config.AssistantTimeout; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	resp, err := s.deps.Assistant.Converse(ctx, req)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		s.logger.Error().Err(err).Str("type", string(req.Type)).Msg("Assistant request failed")
		writeError(w, http.StatusBadGateway, "failed to get AI response")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocalGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Local.Snapshot())
}

// handleLocalStart begins a turn on the host microphone. It returns once
// recording has started or failed.
func (s *Server) handleLocalStart(w http.ResponseWriter, r *http.Request) {
	options, _ := s.options()
	s.deps.Local.SetOptions(options)
	if err := s.deps.Local.Start(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, s.deps.Local.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Local.Snapshot())
}

// handleLocalStop ends recording; the rest of the turn runs in the
// background and is visible through handleLocalGet
func (s *Server) handleLocalStop(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.deps.Local.StopAndConverse(); err != nil {
			s.logger.Debug().Err(err).Msg("Local voice turn failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, s.deps.Local.Snapshot())
}

func (s *Server) handleLocalForceStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Local.ForceStop()
	writeJSON(w, http.StatusOK, s.deps.Local.Snapshot())
}
