// Package recorder captures one utterance from a capture device into an
// encoded blob while exposing a live stream for level metering.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/capture"
	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// DefaultMimeTypes is the encoding preference order. Browser-only
// containers stay in the list so a negotiated type is reported consistently.
var DefaultMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/flac",
	"audio/wav",
}

// Config controls capture and chunking
type Config struct {
	SampleRate       int
	Timeslice        time.Duration
	MimeTypes        []string
	EchoCancellation bool
	NoiseSuppression bool
	DeviceID         string
	// HistorySize is the number of samples kept for the live stream
	HistorySize int
}

// DefaultConfig returns 16kHz mono capture with 1s chunks
func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.DefaultSampleRate,
		Timeslice:        time.Second,
		MimeTypes:        DefaultMimeTypes,
		EchoCancellation: true,
		NoiseSuppression: true,
		HistorySize:      audio.DefaultSampleRate,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Timeslice <= 0 || c.Timeslice > time.Second {
		c.Timeslice = d.Timeslice
	}
	if len(c.MimeTypes) == 0 {
		c.MimeTypes = d.MimeTypes
	}
	if c.HistorySize <= 0 {
		c.HistorySize = c.SampleRate
	}
	return c
}

// Blob is a finished recording
type Blob struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

type state int

const (
	stateIdle state = iota
	stateRecording
	statePaused
)

// Recorder owns the capture device for the length of one recording
type Recorder struct {
	source capture.Context
	config Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     state
	device    capture.Device
	encoder   audio.Encoder
	history   *audio.History
	pending   []int16
	chunks    int
	elapsed   time.Duration
	resumedAt time.Time
	err       error
}

// New creates a recorder reading from source
func New(source capture.Context, config Config, logger zerolog.Logger) *Recorder {
	return &Recorder{
		source: source,
		config: config.withDefaults(),
		logger: logger.With().Str("component", "recorder").Logger(),
		now:    time.Now,
	}
}

// StartRecording acquires the device and begins buffering. It is a no-op
// while a recording is in progress.
func (r *Recorder) StartRecording(ctx context.Context) error {
	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		return nil
	}
	config := r.config
	r.err = nil
	r.mu.Unlock()

	mimeType, ok := audio.SelectMimeType(config.MimeTypes)
	if !ok {
		return r.fail(voiceerr.New(voiceerr.DeviceUnavailable, "start recording",
			fmt.Errorf("none of %v can be encoded", config.MimeTypes)))
	}
	encoder, err := audio.NewEncoder(mimeType, config.SampleRate)
	if err != nil {
		return r.fail(voiceerr.New(voiceerr.DeviceUnavailable, "start recording", err))
	}

	device, err := r.source.NewCapture(ctx, capture.Config{
		SampleRate:       uint32(config.SampleRate),
		Channels:         1,
		EchoCancellation: config.EchoCancellation,
		NoiseSuppression: config.NoiseSuppression,
		DeviceID:         config.DeviceID,
	})
	if err != nil {
		if voiceerr.KindOf(err) == "" && !errors.Is(err, context.Canceled) {
			err = voiceerr.New(voiceerr.DeviceUnavailable, "start recording", err)
		}
		return r.fail(err)
	}

	r.mu.Lock()
	if r.state != stateIdle {
		// lost a race with another StartRecording
		r.mu.Unlock()
		device.Close()
		return nil
	}
	r.device = device
	r.encoder = encoder
	r.history = audio.NewHistory(config.HistorySize, config.SampleRate)
	r.pending = make([]int16, 0, r.chunkSamples())
	r.chunks = 0
	r.elapsed = 0
	r.resumedAt = r.now()
	r.state = stateRecording
	r.mu.Unlock()

	device.SetCallback(r.onData)
	if err := device.Start(); err != nil {
		r.teardown()
		return r.fail(voiceerr.New(voiceerr.DeviceUnavailable, "start recording", err))
	}

	r.logger.Info().
		Str("mime_type", mimeType).
		Str("device", device.DeviceName()).
		Msg("Recording started")
	return nil
}

func (r *Recorder) fail(err error) error {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.logger.Error().Err(err).Msg("Failed to start recording")
	return err
}

func (r *Recorder) chunkSamples() int {
	return int(int64(r.config.SampleRate) * int64(r.config.Timeslice) / int64(time.Second))
}

func (r *Recorder) onData(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateIdle {
		return
	}
	r.history.Write(samples)
	observability.RecordAudioBytes("in", int64(len(samples)*2))
	if r.state != stateRecording {
		return
	}
	r.pending = append(r.pending, samples...)
	if len(r.pending) >= r.chunkSamples() {
		r.flushLocked()
	}
}

func (r *Recorder) flushLocked() {
	if len(r.pending) == 0 {
		return
	}
	if err := r.encoder.EncodeBlock(r.pending); err != nil {
		r.logger.Warn().Err(err).Int("chunk", r.chunks).Msg("Failed to encode chunk")
	} else {
		r.chunks++
	}
	r.pending = r.pending[:0]
}

// PauseRecording stops buffering and the elapsed counter. The live stream
// keeps flowing.
func (r *Recorder) PauseRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		return
	}
	r.elapsed += r.now().Sub(r.resumedAt)
	r.flushLocked()
	r.state = statePaused
}

// ResumeRecording continues a paused recording
func (r *Recorder) ResumeRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePaused {
		return
	}
	r.resumedAt = r.now()
	r.state = stateRecording
}

// StopRecording releases the device and returns the recording, or nil when
// nothing was captured. Safe from any state.
func (r *Recorder) StopRecording() *Blob {
	r.mu.Lock()
	if r.state == stateIdle {
		r.mu.Unlock()
		return nil
	}
	if r.state == stateRecording {
		r.elapsed += r.now().Sub(r.resumedAt)
	}
	r.flushLocked()
	encoder := r.encoder
	elapsed := r.elapsed
	r.mu.Unlock()

	r.teardown()

	if encoder.TotalSamples() == 0 {
		r.logger.Debug().Msg("Recording stopped with no audio")
		return nil
	}
	if err := encoder.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to finalize recording")
		return nil
	}

	blob := &Blob{
		Data:     encoder.Bytes(),
		MimeType: encoder.MimeType(),
		Duration: time.Duration(audio.Duration(int(encoder.TotalSamples()), r.config.SampleRate)) * time.Millisecond,
	}
	r.logger.Info().
		Int("bytes", len(blob.Data)).
		Dur("duration", blob.Duration).
		Dur("elapsed", elapsed).
		Msg("Recording stopped")
	return blob
}

// teardown releases the device and returns to idle
func (r *Recorder) teardown() {
	r.mu.Lock()
	device := r.device
	r.device = nil
	r.state = stateIdle
	r.pending = nil
	r.mu.Unlock()

	if device != nil {
		device.ClearCallback()
		device.Stop()
		device.Close()
	}
}

// GetMediaStream returns the live stream, or nil when not recording
func (r *Recorder) GetMediaStream() audio.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateIdle || r.history == nil {
		return nil
	}
	return r.history
}

// RecordingTime returns whole seconds recorded, excluding paused time
func (r *Recorder) RecordingTime() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := r.elapsed
	if r.state == stateRecording {
		elapsed += r.now().Sub(r.resumedAt)
	}
	return int(elapsed / time.Second)
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != stateIdle
}

func (r *Recorder) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == statePaused
}

// Error returns the last start failure, cleared by the next StartRecording
func (r *Recorder) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// SetConfig replaces the config used by the next StartRecording
func (r *Recorder) SetConfig(config Config) {
	r.mu.Lock()
	r.config = config.withDefaults()
	r.mu.Unlock()
}
