package tts

import (
	"context"
	"errors"
)

// MimeTypeMP3 is the encoding every synthesizer returns
const MimeTypeMP3 = "audio/mpeg"

// SpeakOptions selects the voice for one utterance. Empty fields fall back
// to the player's defaults.
type SpeakOptions struct {
	Voice string
	Model string
	Speed float64
}

func (o SpeakOptions) merge(defaults SpeakOptions) SpeakOptions {
	if o.Voice == "" {
		o.Voice = defaults.Voice
	}
	if o.Model == "" {
		o.Model = defaults.Model
	}
	if o.Speed == 0 {
		o.Speed = defaults.Speed
	}
	return o
}

// Synthesizer converts text to MP3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error)
	Name() string
}

// Sink is an audio output the player owns
type Sink interface {
	// Supported reports whether the sink can play audio at all
	Supported() bool
	// Prime unlocks output ahead of the first utterance
	Prime(ctx context.Context) error
	// Play starts playback and returns its handle
	Play(ctx context.Context, audio []byte, mimeType string) (Playback, error)
	// Release frees the output device
	Release() error
}

// Playback is one playing clip
type Playback interface {
	// Done yields nil when playback completes naturally or is stopped, or
	// the error that interrupted it
	Done() <-chan error
	Stop()
}

// ErrInvalidOption is returned for voices or models a provider does not offer
var ErrInvalidOption = errors.New("invalid speech option")
