package voiceerr

import (
	"errors"
	"fmt"
)

// Kind classifies a voice pipeline failure
type Kind string

const (
	PermissionDenied    Kind = "permission_denied"    // Microphone access refused
	DeviceUnavailable   Kind = "device_unavailable"   // No capture hardware or unsupported platform API
	NoAudioCaptured     Kind = "no_audio_captured"    // Recorder produced an empty blob
	TranscriptionFailed Kind = "transcription_failed" // Service returned no usable text
	NoResponse          Kind = "no_response"          // Conversation callback returned empty
	PlaybackUnsupported Kind = "playback_unsupported" // No audio output capability
	SynthesisFailed     Kind = "synthesis_failed"     // Speech service error or non-OK response
	PlaybackError       Kind = "playback_error"       // Output failed while actively playing
	EmptyText           Kind = "empty_text"           // Nothing to speak
)

// Error is a classified voice pipeline error
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Message()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so a bare
// &Error{Kind: k} works as a sentinel with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinel returns a comparable error for errors.Is checks
func (k Kind) Sentinel() error {
	return &Error{Kind: k}
}

// Message returns the user-facing text for a kind
func (k Kind) Message() string {
	switch k {
	case PermissionDenied:
		return "microphone access denied"
	case DeviceUnavailable:
		return "audio recording is not supported on this device"
	case NoAudioCaptured:
		return "no audio recorded"
	case TranscriptionFailed:
		return "failed to transcribe audio"
	case NoResponse:
		return "no response from AI"
	case PlaybackUnsupported:
		return "audio playback is not supported"
	case SynthesisFailed:
		return "failed to generate speech"
	case PlaybackError:
		return "failed to play audio"
	case EmptyText:
		return "no text provided"
	default:
		return string(k)
	}
}

// KindOf extracts the kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
