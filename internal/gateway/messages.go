package gateway

import (
	"github.com/Dannythecoder88/StudyPal/internal/conversation"
	"github.com/Dannythecoder88/StudyPal/internal/focus"
)

// Client to server voice events
const (
	EventStart          = "start"
	EventStop           = "stop"
	EventForceStop      = "force_stop"
	EventCaptureGranted = "capture_granted"
	EventCaptureDenied  = "capture_denied"
	EventMedia          = "media"
	EventPlaybackEnded  = "playback_ended"
	EventPlaybackError  = "playback_error"
)

// Server to client voice events
const (
	EventConnected      = "connected"
	EventPhase          = "phase"
	EventVolume         = "volume"
	EventTranscript     = "transcript"
	EventResponse       = "response"
	EventAudio          = "audio"
	EventAudioStop      = "audio_stop"
	EventAudioRelease   = "audio_release"
	EventCaptureRequest = "capture_request"
	EventCaptureRelease = "capture_release"
	EventError          = "error"
)

// ClientMessage is a message received on the voice websocket
type ClientMessage struct {
	Event      string     `json:"event"`
	Media      *MediaData `json:"media,omitempty"`
	Capture    *GrantData `json:"capture,omitempty"`
	PlaybackID string     `json:"playback_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// MediaData is one base64 encoded PCM16 little-endian frame
type MediaData struct {
	Payload string `json:"payload"`
}

// GrantData answers a capture request
type GrantData struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Device     string `json:"device,omitempty"`
	Reason     string `json:"reason,omitempty"` // NotAllowedError, NotFoundError, ...
}

// CaptureRequest asks the client for its microphone
type CaptureRequest struct {
	SampleRate       int    `json:"sample_rate"`
	Channels         int    `json:"channels"`
	EchoCancellation bool   `json:"echo_cancellation"`
	NoiseSuppression bool   `json:"noise_suppression"`
	DeviceID         string `json:"device_id,omitempty"`
}

// ServerMessage is a message sent on the voice websocket
type ServerMessage struct {
	Event      string                 `json:"event"`
	SessionID  string                 `json:"session_id,omitempty"`
	State      *conversation.Snapshot `json:"state,omitempty"`
	Volume     *float64               `json:"volume,omitempty"`
	TurnID     string                 `json:"turn_id,omitempty"`
	Text       string                 `json:"text,omitempty"`
	PlaybackID string                 `json:"playback_id,omitempty"`
	MimeType   string                 `json:"mime_type,omitempty"`
	Audio      string                 `json:"audio,omitempty"`
	Capture    *CaptureRequest        `json:"capture,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
}

// FocusEvent is a message on the focus events websocket
type FocusEvent struct {
	Event    string          `json:"event"` // snapshot, mode_change, minutes, focus_score
	Snapshot *focus.Snapshot `json:"snapshot,omitempty"`
	From     focus.Mode      `json:"from,omitempty"`
	To       focus.Mode      `json:"to,omitempty"`
	Minutes  int             `json:"minutes,omitempty"`
	Score    *int            `json:"score,omitempty"`
}
