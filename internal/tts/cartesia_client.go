package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// CartesiaClient implements Synthesizer using Cartesia's /tts/bytes API
type CartesiaClient struct {
	apiKey     string
	apiURL     string
	version    string
	voiceID    string
	modelID    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoice        `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaOutputFormat requests an encoded container
type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     cfg.CartesiaURL,
		version:    cfg.CartesiaVersion,
		voiceID:    cfg.CartesiaVoiceID,
		modelID:    cfg.CartesiaModelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With().Str("component", "tts_cartesia").Logger(),
	}
}

func (c *CartesiaClient) Name() string { return "cartesia" }

// Synthesize converts text to MP3. OpenAI voice and model names in opts are
// ignored in favour of the configured Cartesia ids.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, voiceerr.New(voiceerr.EmptyText, "synthesize", nil)
	}

	voiceID := c.voiceID
	if opts.Voice != "" && !contains(OpenAIVoices, opts.Voice) {
		voiceID = opts.Voice
	}
	modelID := c.modelID
	if opts.Model != "" && !contains(OpenAIModels, opts.Model) {
		modelID = opts.Model
	}

	reqBody := CartesiaRequest{
		ModelID:    modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: voiceID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    128000,
		},
		Language: "en",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", c.version)

	return doAudioRequest(c.httpClient, req, "cartesia", c.logger)
}
