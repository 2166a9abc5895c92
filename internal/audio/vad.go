package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// VADConfig holds configuration for silence-based end of speech detection
type VADConfig struct {
	SilenceThreshold  float64       // Normalized level (0..1) that counts as speech
	SilenceDuration   time.Duration // Silence needed after speech to end the utterance
	MinSpeechDuration time.Duration // Time since first speech before silence can end it
	FFTSize           int           // Samples analysed per frame
	Smoothing         float64       // Spectrum smoothing constant
	FrameInterval     time.Duration // Sampling cadence
}

// DefaultVADConfig returns the default detection settings
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SilenceThreshold:  0.01,
		SilenceDuration:   1500 * time.Millisecond,
		MinSpeechDuration: 800 * time.Millisecond,
		FFTSize:           256,
		Smoothing:         0.8,
		FrameInterval:     16 * time.Millisecond,
	}
}

func (c VADConfig) withDefaults() VADConfig {
	def := DefaultVADConfig()
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = def.SilenceDuration
	}
	if c.MinSpeechDuration < 0 {
		c.MinSpeechDuration = def.MinSpeechDuration
	}
	if c.FFTSize <= 0 {
		c.FFTSize = def.FFTSize
	}
	if c.Smoothing <= 0 {
		c.Smoothing = def.Smoothing
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = def.FrameInterval
	}
	return c
}

// SpeechEndDetector decides, frame by frame, when an utterance has ended.
// It is driven by the caller's clock and fires at most once.
type SpeechEndDetector struct {
	config      VADConfig
	speaking    bool
	speechStart time.Time
	deadline    time.Time
	fired       bool
}

// NewSpeechEndDetector creates a detector
func NewSpeechEndDetector(config VADConfig) *SpeechEndDetector {
	return &SpeechEndDetector{config: config.withDefaults()}
}

// Process feeds one frame level observed at now and reports whether the
// utterance ended on this frame
func (d *SpeechEndDetector) Process(level float64, now time.Time) bool {
	if d.fired {
		return false
	}

	if level > d.config.SilenceThreshold {
		d.speaking = true
		if d.speechStart.IsZero() {
			d.speechStart = now
		}
		d.deadline = time.Time{}
		return false
	}

	d.speaking = false
	if !d.speechStart.IsZero() && d.deadline.IsZero() &&
		now.Sub(d.speechStart) >= d.config.MinSpeechDuration {
		d.deadline = now.Add(d.config.SilenceDuration)
	}

	if !d.deadline.IsZero() && !now.Before(d.deadline) {
		d.fired = true
		return true
	}
	return false
}

// IsSpeaking reports whether the last frame was above the threshold
func (d *SpeechEndDetector) IsSpeaking() bool {
	return d.speaking
}

// Reset clears all detection state
func (d *SpeechEndDetector) Reset() {
	d.speaking = false
	d.speechStart = time.Time{}
	d.deadline = time.Time{}
	d.fired = false
}

// ErrNoStream is returned by Start without a stream
var ErrNoStream = errors.New("vad: no audio stream")

// VAD samples a live stream and calls back once when the speaker stops
type VAD struct {
	config VADConfig
	logger zerolog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
	level    float64
	speaking bool
}

// NewVAD creates a detector runner
func NewVAD(config VADConfig, logger zerolog.Logger) *VAD {
	return &VAD{
		config: config.withDefaults(),
		logger: logger.With().Str("component", "vad").Logger(),
	}
}

// SetConfig replaces the settings used by the next Start
func (v *VAD) SetConfig(config VADConfig) {
	v.mu.Lock()
	v.config = config.withDefaults()
	v.mu.Unlock()
}

// Start begins sampling stream. Any previous run is stopped first.
// onSpeechEnd runs on its own goroutine, at most once per Start.
func (v *VAD) Start(stream Stream, onSpeechEnd func()) error {
	v.Stop()
	if stream == nil {
		return ErrNoStream
	}

	v.mu.Lock()
	stopCh := make(chan struct{})
	done := make(chan struct{})
	v.stopCh = stopCh
	v.done = done
	config := v.config
	v.mu.Unlock()

	go v.run(stream, config, stopCh, done, onSpeechEnd)
	return nil
}

// Stop cancels sampling and any pending silence deadline. Safe to call
// repeatedly.
func (v *VAD) Stop() {
	v.mu.Lock()
	stopCh, done := v.stopCh, v.done
	v.stopCh = nil
	v.done = nil
	v.level = 0
	v.speaking = false
	v.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
}

// Level returns the most recent normalized volume
func (v *VAD) Level() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

// IsSpeaking reports whether the latest frame was above the threshold
func (v *VAD) IsSpeaking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speaking
}

func (v *VAD) run(stream Stream, config VADConfig, stopCh chan struct{}, done chan struct{}, onSpeechEnd func()) {
	defer close(done)

	analyser := NewAnalyser(config.FFTSize, config.Smoothing)
	detector := NewSpeechEndDetector(config)
	ticker := time.NewTicker(config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			level := analyser.Level(stream.Latest(analyser.FFTSize()))
			ended := detector.Process(level, now)

			v.mu.Lock()
			current := v.stopCh == stopCh
			if !current {
				v.mu.Unlock()
				return
			}
			v.level = level
			v.speaking = detector.IsSpeaking()
			if ended {
				// detach so a later Stop does not wait on this run
				v.stopCh = nil
				v.done = nil
				v.level = 0
			}
			v.mu.Unlock()

			if ended {
				v.logger.Debug().Msg("Speech end detected")
				if onSpeechEnd != nil {
					go onSpeechEnd()
				}
				return
			}
		}
	}
}
