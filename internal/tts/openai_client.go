package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// Voices and models accepted by the speech endpoint
var (
	OpenAIVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	OpenAIModels = []string{"tts-1", "tts-1-hd"}
)

// OpenAIClient implements Synthesizer using the /audio/speech endpoint
type OpenAIClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// OpenAIRequest represents the request payload for the speech API
type OpenAIRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// NewOpenAIClient creates a new OpenAI speech client
func NewOpenAIClient(cfg *config.Config, logger zerolog.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     cfg.OpenAIAPIKey,
		apiURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/") + "/audio/speech",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With().Str("component", "tts_openai").Logger(),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// ValidateOptions checks voice and model against the supported lists
func ValidateOptions(opts SpeakOptions) error {
	if !contains(OpenAIVoices, opts.Voice) {
		return fmt.Errorf("%w: voice %q, supported voices: %s", ErrInvalidOption, opts.Voice, strings.Join(OpenAIVoices, ", "))
	}
	if !contains(OpenAIModels, opts.Model) {
		return fmt.Errorf("%w: model %q, supported models: %s", ErrInvalidOption, opts.Model, strings.Join(OpenAIModels, ", "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Synthesize converts text to MP3
func (c *OpenAIClient) Synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, voiceerr.New(voiceerr.EmptyText, "synthesize", nil)
	}
	if opts.Voice == "" {
		opts.Voice = "alloy"
	}
	if opts.Model == "" {
		opts.Model = "tts-1"
	}
	if err := ValidateOptions(opts); err != nil {
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize", err)
	}

	reqBody := OpenAIRequest{
		Model:          opts.Model,
		Input:          text,
		Voice:          opts.Voice,
		ResponseFormat: "mp3",
		Speed:          opts.Speed,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return doAudioRequest(c.httpClient, req, "openai", c.logger)
}

// doAudioRequest performs req and returns the audio body of a 200 response
func doAudioRequest(client *http.Client, req *http.Request, provider string, logger zerolog.Logger) ([]byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize", fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize",
			fmt.Errorf("%s API returned status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize", fmt.Errorf("failed to read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize", fmt.Errorf("%s returned empty audio", provider))
	}

	logger.Debug().
		Int("bytes", len(audio)).
		Dur("latency", time.Since(start)).
		Msg("Synthesized speech")
	return audio, nil
}
