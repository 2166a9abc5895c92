package tts

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// DefaultMaxSegmentChars bounds one synthesis request
const DefaultMaxSegmentChars = 600

// Player speaks one utterance at a time through a sink it owns
type Player struct {
	synth      Synthesizer
	sink       Sink
	defaults   SpeakOptions
	maxSegment int
	logger     zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	playback Playback
	speaking bool
	primed   bool
	// opened is set once the sink was primed or played to
	opened bool
}

// NewPlayer creates a player. A nil sink makes the player unsupported.
func NewPlayer(synth Synthesizer, sink Sink, defaults SpeakOptions, maxSegment int, logger zerolog.Logger) *Player {
	if maxSegment <= 0 {
		maxSegment = DefaultMaxSegmentChars
	}
	return &Player{
		synth:      synth,
		sink:       sink,
		defaults:   defaults,
		maxSegment: maxSegment,
		logger:     logger.With().Str("component", "tts_player").Logger(),
	}
}

// IsSupported reports whether audio can be played
func (p *Player) IsSupported() bool {
	return p.sink != nil && p.synth != nil && p.sink.Supported()
}

// IsSpeaking reports whether an utterance is in flight
func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// SetDefaults replaces the voice used when SpeakOptions leave fields empty
func (p *Player) SetDefaults(defaults SpeakOptions) {
	p.mu.Lock()
	p.defaults = defaults
	p.mu.Unlock()
}

// Speak synthesizes and plays text, returning when playback ends. Any
// utterance already in flight is cancelled first. Returns nil when the
// utterance is stopped by Stop or ForceStop.
func (p *Player) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	if !p.IsSupported() {
		return voiceerr.New(voiceerr.PlaybackUnsupported, "speak", nil)
	}
	speakable := Speakable(text)
	if strings.TrimSpace(speakable) == "" {
		return voiceerr.New(voiceerr.EmptyText, "speak", nil)
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	prevCancel, prevPlayback := p.cancel, p.playback
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.playback = nil
	p.speaking = true
	opts = opts.merge(p.defaults)
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevPlayback != nil {
		prevPlayback.Stop()
	}

	defer func() {
		cancel()
		p.mu.Lock()
		if p.gen == gen {
			p.speaking = false
			p.cancel = nil
			p.playback = nil
		}
		p.mu.Unlock()
	}()

	segments := Segment(speakable, p.maxSegment)
	p.logger.Debug().
		Int("chars", len(speakable)).
		Int("segments", len(segments)).
		Str("voice", opts.Voice).
		Msg("Speaking")

	for _, segment := range segments {
		data, err := p.synth.Synthesize(ctx, segment, opts)
		if err != nil {
			if p.stale(gen) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if voiceerr.KindOf(err) == "" {
				err = voiceerr.New(voiceerr.SynthesisFailed, "synthesize", err)
			}
			return err
		}

		if err := p.play(ctx, gen, data); err != nil {
			return err
		}
		if p.stale(gen) {
			return nil
		}
	}
	return nil
}

func (p *Player) play(ctx context.Context, gen uint64, data []byte) error {
	playback, err := p.sink.Play(ctx, data, MimeTypeMP3)
	if err != nil {
		if p.stale(gen) {
			return nil
		}
		if voiceerr.KindOf(err) == "" {
			err = voiceerr.New(voiceerr.PlaybackError, "play", err)
		}
		return err
	}

	p.mu.Lock()
	p.opened = true
	if p.gen != gen {
		p.mu.Unlock()
		playback.Stop()
		return nil
	}
	p.playback = playback
	p.mu.Unlock()

	select {
	case err := <-playback.Done():
		if err == nil || p.stale(gen) {
			return nil
		}
		if voiceerr.KindOf(err) == "" {
			err = voiceerr.New(voiceerr.PlaybackError, "play", err)
		}
		return err
	case <-ctx.Done():
		playback.Stop()
		if p.stale(gen) {
			return nil
		}
		return ctx.Err()
	}
}

func (p *Player) stale(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen != gen
}

// Stop stops and releases the current playback. Safe when idle.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.speaking {
		p.mu.Unlock()
		return
	}
	p.gen++
	cancel, playback := p.cancel, p.playback
	p.cancel = nil
	p.playback = nil
	p.speaking = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if playback != nil {
		playback.Stop()
	}
	p.logger.Debug().Msg("Playback stopped")
}

// ForceStop stops playback, releases the output device if it was opened
// and clears the primed flag so the next utterance primes again
func (p *Player) ForceStop() {
	p.Stop()

	p.mu.Lock()
	opened := p.opened
	p.primed = false
	p.opened = false
	p.mu.Unlock()

	if p.sink != nil && opened {
		if err := p.sink.Release(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to release audio output")
		}
	}
}

// InitializeUserGesture primes the sink. Idempotent.
func (p *Player) InitializeUserGesture(ctx context.Context) error {
	if !p.IsSupported() {
		return voiceerr.New(voiceerr.PlaybackUnsupported, "prime", nil)
	}
	p.mu.Lock()
	if p.primed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.sink.Prime(ctx); err != nil {
		return voiceerr.New(voiceerr.PlaybackUnsupported, "prime", err)
	}

	p.mu.Lock()
	p.primed = true
	p.opened = true
	p.mu.Unlock()
	return nil
}
