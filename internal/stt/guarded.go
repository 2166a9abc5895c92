package stt

import (
	"context"
	"errors"

	"github.com/Dannythecoder88/StudyPal/internal/resilience"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// GuardedTranscriber fails fast while the provider's breaker is open.
// Rejected uploads never reach the breaker.
type GuardedTranscriber struct {
	inner   Transcriber
	breaker *resilience.CircuitBreaker
}

func NewGuardedTranscriber(inner Transcriber, breaker *resilience.CircuitBreaker) *GuardedTranscriber {
	return &GuardedTranscriber{inner: inner, breaker: breaker}
}

func (g *GuardedTranscriber) Name() string { return g.inner.Name() }

func (g *GuardedTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string, opts Options) (*Result, error) {
	if err := ValidateAudio(audio, mimeType); err != nil {
		return nil, err
	}
	res, err := resilience.Execute(g.breaker, func() (*Result, error) {
		return g.inner.Transcribe(ctx, audio, mimeType, opts)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", err)
	}
	return res, err
}
