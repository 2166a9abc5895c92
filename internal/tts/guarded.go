package tts

import (
	"context"
	"errors"

	"github.com/Dannythecoder88/StudyPal/internal/resilience"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// GuardedSynthesizer fails fast while the provider's breaker is open
type GuardedSynthesizer struct {
	inner   Synthesizer
	breaker *resilience.CircuitBreaker
}

// NewGuardedSynthesizer wraps inner with breaker
func NewGuardedSynthesizer(inner Synthesizer, breaker *resilience.CircuitBreaker) *GuardedSynthesizer {
	return &GuardedSynthesizer{inner: inner, breaker: breaker}
}

func (g *GuardedSynthesizer) Name() string { return g.inner.Name() }

func (g *GuardedSynthesizer) Synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error) {
	data, err := resilience.Execute(g.breaker, func() ([]byte, error) {
		return g.inner.Synthesize(ctx, text, opts)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, voiceerr.New(voiceerr.SynthesisFailed, "synthesize", err)
	}
	return data, err
}
