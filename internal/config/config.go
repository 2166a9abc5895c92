package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names accepted by STT_PROVIDER and TTS_PROVIDER
const (
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
	ProviderCartesia = "cartesia"
)

// Config holds all configuration for the StudyPal gateway
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service; empty disables it

	// Public base URL (e.g. https://studypal.example.com). Only used for logging
	// the websocket endpoints; defaults to ws://localhost:PORT.
	PublicURL      string `envconfig:"STUDYPAL_PUBLIC_URL" default:""`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:""` // Comma separated; empty allows any origin

	// Service providers
	STTProvider string `envconfig:"STT_PROVIDER" default:"openai"` // openai, deepgram
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"openai"` // openai, cartesia

	// OpenAI (transcription, speech, assistant)
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	TranscriptionModel    string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionLanguage string `envconfig:"TRANSCRIPTION_LANGUAGE" default:"en"`
	TranscriptionPrompt   string `envconfig:"TRANSCRIPTION_PROMPT" default:"Study conversation. Quick transcription."`
	TTSVoice              string `envconfig:"TTS_VOICE" default:"onyx"`  // alloy, echo, fable, onyx, nova, shimmer
	TTSModel              string `envconfig:"TTS_MODEL" default:"tts-1"` // tts-1, tts-1-hd

	AssistantModel         string `envconfig:"ASSISTANT_MODEL" default:"gpt-4o-mini"`
	AssistantTimeout       int    `envconfig:"ASSISTANT_TIMEOUT" default:"30"` // seconds
	AssistantContentFilter bool   `envconfig:"ASSISTANT_CONTENT_FILTER" default:"true"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaURL     string `envconfig:"CARTESIA_URL" default:"https://api.cartesia.ai/tts/bytes"`
	CartesiaVersion string `envconfig:"CARTESIA_VERSION" default:"2024-06-10"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"a0e99841-438c-4a64-b679-ae501e7d6091"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`

	// Storage
	DatabasePath string `envconfig:"DATABASE_PATH" default:"studypal.db"` // ":memory:" for ephemeral runs
	SettingsPath string `envconfig:"VOICE_SETTINGS_PATH" default:"voice_settings.yaml"`

	// Focus timer configuration
	FocusBlockMinutes     int `envconfig:"FOCUS_BLOCK_MINUTES" default:"30"`
	FocusBreakMinutes     int `envconfig:"FOCUS_BREAK_MINUTES" default:"5"`
	LongBreakMinMinutes   int `envconfig:"LONG_BREAK_MIN_MINUTES" default:"120"`
	LongBreakMaxMinutes   int `envconfig:"LONG_BREAK_MAX_MINUTES" default:"180"`
	MaxCustomBreakMinutes int `envconfig:"MAX_CUSTOM_BREAK_MINUTES" default:"10"`
	FocusMaxTimers        int `envconfig:"FOCUS_MAX_TIMERS" default:"1000"` // Timers kept loaded; 0 is unbounded

	// Audio processing configuration
	AudioSampleRate          int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	RecorderTimeslice        int     `envconfig:"RECORDER_TIMESLICE" default:"1000"`       // Chunk granularity in milliseconds
	VADSilenceThreshold      float64 `envconfig:"VAD_SILENCE_THRESHOLD" default:"0.01"`    // Normalized spectrum level
	VADSilenceDuration       int     `envconfig:"VAD_SILENCE_DURATION" default:"1500"`     // Milliseconds of silence that end speech
	VADMinSpeechDuration     int     `envconfig:"VAD_MIN_SPEECH_DURATION" default:"800"`   // Milliseconds of speech before silence counts
	CapturePermissionTimeout int     `envconfig:"CAPTURE_PERMISSION_TIMEOUT" default:"30"` // Seconds a browser may take to grant the microphone
	LocalAudioEnabled        bool    `envconfig:"LOCAL_AUDIO_ENABLED" default:"false"`     // Drive voice turns from this machine's sound card
	MaxSegmentChars          int     `envconfig:"TTS_MAX_SEGMENT_CHARS" default:"600"`     // Longer responses are split on sentences

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Startup retries (store, local audio)
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider selection and the keys each provider needs. The
// assistant always talks to the OpenAI-compatible endpoint.
func (c *Config) Validate() error {
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch c.STTProvider {
	case ProviderOpenAI:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case ProviderOpenAI:
	case ProviderCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required when TTS_PROVIDER=cartesia")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.LongBreakMinMinutes > c.LongBreakMaxMinutes {
		return fmt.Errorf("LONG_BREAK_MIN_MINUTES (%d) exceeds LONG_BREAK_MAX_MINUTES (%d)",
			c.LongBreakMinMinutes, c.LongBreakMaxMinutes)
	}

	return nil
}

// Origins returns the allowed websocket origins, or nil for any
func (c *Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Millis converts a millisecond setting to a duration
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
