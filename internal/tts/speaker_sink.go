package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

// speakerRate is the fixed output rate; clips are resampled to it so the
// speaker is initialized once per Prime
const speakerRate = beep.SampleRate(44100)

// SpeakerSink plays MP3 through the local sound card
type SpeakerSink struct {
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	failed      bool
}

// NewSpeakerSink creates a sink for the default output device
func NewSpeakerSink(logger zerolog.Logger) *SpeakerSink {
	return &SpeakerSink{logger: logger.With().Str("component", "speaker_sink").Logger()}
}

func (s *SpeakerSink) Supported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.failed
}

// Prime opens the output device
func (s *SpeakerSink) Prime(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *SpeakerSink) initLocked() error {
	if s.initialized {
		return nil
	}
	if err := speaker.Init(speakerRate, speakerRate.N(time.Second/10)); err != nil {
		s.failed = true
		return fmt.Errorf("init speaker: %w", err)
	}
	s.initialized = true
	s.failed = false
	return nil
}

func (s *SpeakerSink) Play(_ context.Context, audio []byte, mimeType string) (Playback, error) {
	if mimeType != MimeTypeMP3 {
		return nil, fmt.Errorf("speaker sink cannot play %s", mimeType)
	}
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}

	s.mu.Lock()
	err = s.initLocked()
	s.mu.Unlock()
	if err != nil {
		streamer.Close()
		return nil, err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		source = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	p := &speakerPlayback{done: make(chan error, 1), streamer: streamer}
	p.ctrl = &beep.Ctrl{Streamer: beep.Seq(source, beep.Callback(func() {
		p.finish(streamer.Err())
	}))}
	speaker.Play(p.ctrl)
	return p, nil
}

// Release closes the output device. The next Play or Prime reopens it.
func (s *SpeakerSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	s.initialized = false
	return nil
}

type speakerPlayback struct {
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	done     chan error
	once     sync.Once
}

func (p *speakerPlayback) Done() <-chan error {
	return p.done
}

func (p *speakerPlayback) finish(err error) {
	p.once.Do(func() {
		p.done <- err
		go p.streamer.Close()
	})
}

// Stop detaches the stream from the mixer
func (p *speakerPlayback) Stop() {
	speaker.Lock()
	p.ctrl.Streamer = nil
	speaker.Unlock()
	p.finish(nil)
}
