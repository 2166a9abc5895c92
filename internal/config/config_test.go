package config

import (
	"os"
	"testing"
	"time"
)

func clearProviderEnv() {
	for _, key := range []string{
		"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "CARTESIA_API_KEY",
		"STT_PROVIDER", "TTS_PROVIDER", "ALLOWED_ORIGINS",
		"LONG_BREAK_MIN_MINUTES", "LONG_BREAK_MAX_MINUTES",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	clearProviderEnv()
	os.Setenv("OPENAI_API_KEY", "test-openai-key")
	defer os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.OpenAIAPIKey != "test-openai-key" {
		t.Errorf("Expected OpenAIAPIKey 'test-openai-key', got '%s'", cfg.OpenAIAPIKey)
	}
	if cfg.STTProvider != ProviderOpenAI || cfg.TTSProvider != ProviderOpenAI {
		t.Errorf("Expected openai providers, got %s/%s", cfg.STTProvider, cfg.TTSProvider)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	clearProviderEnv()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when OPENAI_API_KEY is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv()
	os.Setenv("OPENAI_API_KEY", "test-openai-key")
	defer os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.TranscriptionModel != "whisper-1" {
		t.Errorf("Expected default TranscriptionModel 'whisper-1', got '%s'", cfg.TranscriptionModel)
	}

	if cfg.TTSVoice != "onyx" || cfg.TTSModel != "tts-1" {
		t.Errorf("Expected default voice onyx/tts-1, got %s/%s", cfg.TTSVoice, cfg.TTSModel)
	}

	if cfg.FocusBlockMinutes != 30 || cfg.FocusBreakMinutes != 5 {
		t.Errorf("Expected 30/5 minute blocks, got %d/%d", cfg.FocusBlockMinutes, cfg.FocusBreakMinutes)
	}

	if cfg.LongBreakMinMinutes != 120 || cfg.LongBreakMaxMinutes != 180 {
		t.Errorf("Expected long break window 120-180, got %d-%d", cfg.LongBreakMinMinutes, cfg.LongBreakMaxMinutes)
	}

	if cfg.VADSilenceThreshold != 0.01 {
		t.Errorf("Expected default VADSilenceThreshold 0.01, got %f", cfg.VADSilenceThreshold)
	}

	if Millis(cfg.VADSilenceDuration) != 1500*time.Millisecond {
		t.Errorf("Expected default VADSilenceDuration 1500ms, got %d", cfg.VADSilenceDuration)
	}

	if cfg.VADMinSpeechDuration != 800 {
		t.Errorf("Expected default VADMinSpeechDuration 800, got %d", cfg.VADMinSpeechDuration)
	}

	if cfg.RecorderTimeslice != 1000 {
		t.Errorf("Expected default RecorderTimeslice 1000, got %d", cfg.RecorderTimeslice)
	}

	if cfg.LocalAudioEnabled {
		t.Error("Expected local audio disabled by default")
	}
}

func TestLoad_ProviderKeys(t *testing.T) {
	clearProviderEnv()
	os.Setenv("OPENAI_API_KEY", "test-openai-key")
	os.Setenv("STT_PROVIDER", "Deepgram")
	defer clearProviderEnv()

	if _, err := Load(); err == nil {
		t.Error("Expected error when deepgram is selected without DEEPGRAM_API_KEY")
	}

	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.STTProvider != ProviderDeepgram {
		t.Errorf("Expected normalized provider 'deepgram', got '%s'", cfg.STTProvider)
	}

	os.Setenv("TTS_PROVIDER", "cartesia")
	if _, err := Load(); err == nil {
		t.Error("Expected error when cartesia is selected without CARTESIA_API_KEY")
	}

	os.Setenv("TTS_PROVIDER", "polly")
	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown TTS provider")
	}
}

func TestLoad_LongBreakWindow(t *testing.T) {
	clearProviderEnv()
	os.Setenv("OPENAI_API_KEY", "test-openai-key")
	os.Setenv("LONG_BREAK_MIN_MINUTES", "200")
	defer clearProviderEnv()

	if _, err := Load(); err == nil {
		t.Error("Expected error when the long break window is inverted")
	}
}

func TestOrigins(t *testing.T) {
	cfg := &Config{AllowedOrigins: " https://a.example.com, ,https://b.example.com "}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example.com" || origins[1] != "https://b.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", origins)
	}

	empty := &Config{}
	if empty.Origins() != nil {
		t.Error("Expected nil origins when unset")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test-value")
	defer os.Unsetenv("TEST_VAR")

	value := GetEnv("TEST_VAR", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_VAR", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
