package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/stt"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
)

// ErrUnsupportedFormat is returned for settings files that are neither
// YAML nor TOML
var ErrUnsupportedFormat = errors.New("settings: unsupported file format")

// ErrInvalid is wrapped by Validate failures
var ErrInvalid = errors.New("settings: invalid value")

// VoiceOption describes one selectable voice
type VoiceOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Gender      string `json:"gender"`
}

// VoiceOptions lists the OpenAI voices offered to users
var VoiceOptions = []VoiceOption{
	{ID: "onyx", Name: "Onyx", Description: "Deep, male voice (default)", Gender: "male"},
	{ID: "echo", Name: "Echo", Description: "Clear, male voice", Gender: "male"},
	{ID: "fable", Name: "Fable", Description: "Warm, male voice", Gender: "male"},
	{ID: "alloy", Name: "Alloy", Description: "Neutral, balanced voice", Gender: "neutral"},
	{ID: "nova", Name: "Nova", Description: "Friendly, female voice", Gender: "female"},
	{ID: "shimmer", Name: "Shimmer", Description: "Bright, female voice", Gender: "female"},
}

// Settings are the user's voice preferences. They apply from the next
// conversation turn.
type Settings struct {
	Voice              string  `json:"voice" yaml:"voice" toml:"voice"`
	TTSModel           string  `json:"tts_model" yaml:"tts_model" toml:"tts_model"`
	Speed              float64 `json:"speed,omitempty" yaml:"speed,omitempty" toml:"speed,omitempty"`
	TranscriptionModel string  `json:"transcription_model" yaml:"transcription_model" toml:"transcription_model"`
	Language           string  `json:"language" yaml:"language" toml:"language"`
	Prompt             string  `json:"prompt" yaml:"prompt" toml:"prompt"`
	Translate          bool    `json:"translate" yaml:"translate" toml:"translate"`
	VADThreshold       float64 `json:"vad_threshold" yaml:"vad_threshold" toml:"vad_threshold"`
	SilenceDurationMs  int     `json:"silence_duration_ms" yaml:"silence_duration_ms" toml:"silence_duration_ms"`
	MinSpeechMs        int     `json:"min_speech_ms" yaml:"min_speech_ms" toml:"min_speech_ms"`
}

// Defaults builds settings from the service configuration
func Defaults(cfg *config.Config) Settings {
	return Settings{
		Voice:              cfg.TTSVoice,
		TTSModel:           cfg.TTSModel,
		TranscriptionModel: cfg.TranscriptionModel,
		Language:           cfg.TranscriptionLanguage,
		Prompt:             cfg.TranscriptionPrompt,
		VADThreshold:       cfg.VADSilenceThreshold,
		SilenceDurationMs:  cfg.VADSilenceDuration,
		MinSpeechMs:        cfg.VADMinSpeechDuration,
	}
}

// Validate checks the numeric ranges
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Voice) == "" {
		return fmt.Errorf("%w: voice is required", ErrInvalid)
	}
	if s.VADThreshold <= 0 || s.VADThreshold > 1 {
		return fmt.Errorf("%w: vad_threshold must be in (0, 1], got %v", ErrInvalid, s.VADThreshold)
	}
	if s.SilenceDurationMs <= 0 {
		return fmt.Errorf("%w: silence_duration_ms must be positive", ErrInvalid)
	}
	if s.MinSpeechMs < 0 {
		return fmt.Errorf("%w: min_speech_ms must not be negative", ErrInvalid)
	}
	if s.Speed < 0 || s.Speed > 4 {
		return fmt.Errorf("%w: speed must be between 0.25 and 4", ErrInvalid)
	}
	return nil
}

// SpeakOptions returns the synthesis options for these settings
func (s Settings) SpeakOptions() tts.SpeakOptions {
	return tts.SpeakOptions{Voice: s.Voice, Model: s.TTSModel, Speed: s.Speed}
}

// TranscriptionOptions returns the transcription options for these settings
func (s Settings) TranscriptionOptions() stt.Options {
	return stt.Options{
		Model:     s.TranscriptionModel,
		Language:  s.Language,
		Prompt:    s.Prompt,
		Translate: s.Translate,
	}
}

// VADConfig returns the silence detector settings
func (s Settings) VADConfig() audio.VADConfig {
	vad := audio.DefaultVADConfig()
	vad.SilenceThreshold = s.VADThreshold
	vad.SilenceDuration = time.Duration(s.SilenceDurationMs) * time.Millisecond
	vad.MinSpeechDuration = time.Duration(s.MinSpeechMs) * time.Millisecond
	return vad
}

type format int

const (
	formatYAML format = iota
	formatTOML
)

func formatFor(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// File keeps settings in a YAML or TOML file chosen by extension
type File struct {
	path     string
	format   format
	defaults Settings

	mu      sync.RWMutex
	current Settings
}

// Open loads path over defaults. A missing file yields the defaults.
func Open(path string, defaults Settings) (*File, error) {
	f, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	file := &File{path: path, format: f, defaults: defaults, current: defaults}

	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	loaded := defaults
	switch f {
	case formatYAML:
		err = yaml.Unmarshal(rawData, &loaded)
	case formatTOML:
		_, err = toml.Decode(string(rawData), &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	file.current = loaded
	return file, nil
}

// Get returns the current settings
func (f *File) Get() Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Path returns the backing file
func (f *File) Path() string {
	return f.path
}

// Update validates s, writes it and makes it current
func (f *File) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	var serialized []byte
	var err error
	switch f.format {
	case formatYAML:
		serialized, err = yaml.Marshal(s)
	case formatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(s)
		serialized = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	f.mu.Lock()
	f.current = s
	f.mu.Unlock()
	return nil
}

// Reset restores the defaults
func (f *File) Reset() error {
	return f.Update(f.defaults)
}
