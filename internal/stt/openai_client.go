package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// translationModel is the only model the translations endpoint serves
const translationModel = "whisper-1"

// OpenAIClient implements Transcriber with the audio transcription and
// translation endpoints
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	defaults   Options
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOpenAIClient creates a transcriber with the configured defaults
func NewOpenAIClient(cfg *config.Config, logger zerolog.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  cfg.OpenAIAPIKey,
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		defaults: Options{
			Model:    cfg.TranscriptionModel,
			Language: cfg.TranscriptionLanguage,
			Prompt:   cfg.TranscriptionPrompt,
		},
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With().Str("component", "stt_openai").Logger(),
	}
}

func (o *OpenAIClient) Name() string { return "openai" }

// Transcribe uploads audio and returns its text. With opts.Translate the
// translations endpoint is used and the model is fixed to whisper-1.
func (o *OpenAIClient) Transcribe(ctx context.Context, audio []byte, mimeType string, opts Options) (*Result, error) {
	if err := ValidateAudio(audio, mimeType); err != nil {
		return nil, err
	}
	if opts.Model == "" {
		opts.Model = o.defaults.Model
	}
	if opts.Language == "" {
		opts.Language = o.defaults.Language
	}
	if opts.Prompt == "" {
		opts.Prompt = o.defaults.Prompt
	}

	endpoint := "/audio/transcriptions"
	if opts.Translate {
		endpoint = "/audio/translations"
		opts.Model = translationModel
		opts.Language = ""
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+FileExtension(mimeType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	writer.WriteField("model", opts.Model)
	writer.WriteField("response_format", "json")
	if opts.Language != "" {
		writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		writer.WriteField("prompt", opts.Prompt)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe",
			fmt.Errorf("openai API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("openai response parse error: %w", err))
	}

	o.logger.Debug().
		Str("model", opts.Model).
		Bool("translate", opts.Translate).
		Int("chars", len(oResp.Text)).
		Dur("latency", time.Since(start)).
		Msg("Transcribed audio")

	return &Result{
		Success:    true,
		Text:       strings.TrimSpace(oResp.Text),
		Model:      opts.Model,
		Translated: opts.Translate,
	}, nil
}
