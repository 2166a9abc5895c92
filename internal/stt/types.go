package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// MaxAudioBytes is the largest upload the transcription services accept
const MaxAudioBytes = 25 * 1024 * 1024

// Options controls one transcription
type Options struct {
	Model    string
	Language string
	Prompt   string
	// Translate returns English text regardless of the spoken language
	Translate bool
}

// Result is a completed transcription
type Result struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	Model      string `json:"model"`
	Translated bool   `json:"translated,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Transcriber turns a recorded blob into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, opts Options) (*Result, error)
	Name() string
}

var (
	ErrNoAudio           = errors.New("no audio file provided")
	ErrFileTooLarge      = errors.New("file size exceeds 25MB limit")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// AllowedMimeTypes lists the base types accepted for upload
var AllowedMimeTypes = []string{
	"audio/mp3", "audio/mpeg", "audio/mp4", "audio/mpga",
	"audio/m4a", "audio/wav", "audio/x-wav", "audio/webm", "audio/ogg",
	"audio/flac", "audio/x-flac",
}

// ValidateAudio applies the upload checks: non-empty, at most 25MB, and an
// accepted MIME type. Browser recordings in webm/ogg/opus always pass.
func ValidateAudio(audio []byte, mimeType string) error {
	if len(audio) == 0 {
		return voiceerr.New(voiceerr.TranscriptionFailed, "validate audio", ErrNoAudio)
	}
	if len(audio) > MaxAudioBytes {
		return voiceerr.New(voiceerr.TranscriptionFailed, "validate audio", ErrFileTooLarge)
	}

	fileType := strings.ToLower(mimeType)
	if strings.Contains(fileType, "webm") || strings.Contains(fileType, "ogg") || strings.Contains(fileType, "opus") {
		return nil
	}
	for _, allowed := range AllowedMimeTypes {
		if strings.Contains(fileType, allowed) {
			return nil
		}
	}
	return voiceerr.New(voiceerr.TranscriptionFailed, "validate audio",
		fmt.Errorf("%w: %s. Supported formats: mp3, mp4, mpeg, mpga, m4a, wav, webm, flac", ErrUnsupportedFormat, mimeType))
}

// FileExtension maps a MIME type to the upload filename extension
func FileExtension(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch strings.TrimSpace(base) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mpeg", "audio/mp3", "audio/mpga":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}
