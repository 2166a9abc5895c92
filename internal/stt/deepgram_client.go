package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// DeepgramClient implements Transcriber with Deepgram's prerecorded API
type DeepgramClient struct {
	dg       *api.Client
	model    string
	language string
	logger   zerolog.Logger
}

// NewDeepgramClient creates a prerecorded transcription client
func NewDeepgramClient(cfg *config.Config, logger zerolog.Logger) *DeepgramClient {
	c := client.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	return &DeepgramClient{
		dg:       api.New(c),
		model:    cfg.DeepgramModel,
		language: cfg.DeepgramLanguage,
		logger:   logger.With().Str("component", "stt_deepgram").Logger(),
	}
}

func (d *DeepgramClient) Name() string { return "deepgram" }

// Transcribe sends the whole blob in one request. Translation is not
// offered by this provider, so opts.Translate is rejected.
func (d *DeepgramClient) Transcribe(ctx context.Context, audio []byte, mimeType string, opts Options) (*Result, error) {
	if err := ValidateAudio(audio, mimeType); err != nil {
		return nil, err
	}
	if opts.Translate {
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("deepgram does not support translation"))
	}

	model := d.model
	if opts.Model != "" && !strings.HasPrefix(opts.Model, "whisper") {
		model = opts.Model
	}
	language := d.language
	if opts.Language != "" {
		language = opts.Language
	}

	start := time.Now()
	res, err := d.dg.FromStream(ctx, bytes.NewReader(audio), &interfaces.PreRecordedTranscriptionOptions{
		Model:       model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("deepgram request failed: %w", err))
	}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", fmt.Errorf("deepgram returned no alternatives"))
	}

	text := strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
	d.logger.Debug().
		Str("model", model).
		Int("chars", len(text)).
		Dur("latency", time.Since(start)).
		Msg("Transcribed audio")

	return &Result{Success: true, Text: text, Model: model}, nil
}
