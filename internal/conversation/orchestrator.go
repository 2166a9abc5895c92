package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/stt"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// Options are the per-turn service settings
type Options struct {
	Transcription stt.Options
	Speech        tts.SpeakOptions
}

type observerEntry struct {
	id       int
	observer Observer
}

// Orchestrator drives one voice turn at a time through
// Idle -> Recording -> Processing -> Speaking -> Idle
type Orchestrator struct {
	rec         Recorder
	vad         Detector
	player      Speaker
	transcriber stt.Transcriber
	converse    ConverseFunc
	logger      zerolog.Logger

	mu         sync.Mutex
	phase      Phase
	phaseStart time.Time
	err        error
	gen        uint64
	turnID     string
	cancel     context.CancelFunc
	turnCtx    context.Context
	metrics    *observability.TurnMetrics
	options    Options
	observers  []observerEntry
	nextObsID  int
}

// New creates an idle orchestrator
func New(rec Recorder, vad Detector, player Speaker, transcriber stt.Transcriber, converse ConverseFunc, options Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		rec:         rec,
		vad:         vad,
		player:      player,
		transcriber: transcriber,
		converse:    converse,
		logger:      logger.With().Str("component", "conversation").Logger(),
		phase:       PhaseIdle,
		options:     options,
	}
}

// Subscribe registers o and returns a function that removes it
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.mu.Lock()
	o.nextObsID++
	id := o.nextObsID
	o.observers = append(o.observers, observerEntry{id: id, observer: obs})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, entry := range o.observers {
			if entry.id == id {
				o.observers = append(o.observers[:i], o.observers[i+1:]...)
				return
			}
		}
	}
}

// OnPhase registers fn for phase changes
func (o *Orchestrator) OnPhase(fn func(Snapshot)) func() {
	return o.Subscribe(ObserverFuncs{Phase: fn})
}

// SetOptions replaces the settings used from the next turn on
func (o *Orchestrator) SetOptions(options Options) {
	o.mu.Lock()
	o.options = options
	o.mu.Unlock()
}

// Start begins a turn: primes playback, opens the microphone and arms the
// silence detector. It does nothing unless the orchestrator is idle.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil
	}
	o.gen++
	gen := o.gen
	o.turnID = uuid.New().String()
	o.turnCtx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	turnCtx := o.turnCtx
	o.metrics = observability.NewTurnMetrics(o.turnID)
	o.err = nil
	o.setPhaseLocked(PhaseRecording)
	logger := o.turnLoggerLocked()
	o.mu.Unlock()
	o.notifyPhase()

	observability.RecordTurnStart()
	logger.Info().Msg("Voice turn started")

	if err := o.player.InitializeUserGesture(turnCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to prime playback")
	}

	err := o.rec.StartRecording(turnCtx)
	if !o.recording(gen) {
		// the turn ended while the microphone was being acquired
		if err == nil {
			o.rec.StopRecording()
		}
		return err
	}
	if err != nil {
		return o.fail(gen, err)
	}

	if err := o.vad.Start(o.rec.GetMediaStream(), func() {
		if err := o.process(gen); err != nil {
			logger.Debug().Err(err).Msg("Silence-triggered turn ended with error")
		}
	}); err != nil {
		logger.Warn().Err(err).Msg("Silence detection unavailable, waiting for manual stop")
	}
	if !o.recording(gen) {
		o.vad.Stop()
	}
	return nil
}

// StopAndConverse ends recording and runs the rest of the turn. It blocks
// until the reply has been spoken, the turn fails, or it is force stopped.
func (o *Orchestrator) StopAndConverse() error {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	return o.process(gen)
}

// process runs Processing and Speaking for turn gen. Results that arrive
// after the turn was cancelled are dropped.
func (o *Orchestrator) process(gen uint64) error {
	o.mu.Lock()
	if gen != o.gen || o.phase != PhaseRecording {
		o.mu.Unlock()
		return nil
	}
	o.setPhaseLocked(PhaseProcessing)
	ctx := o.turnCtx
	turnID := o.turnID
	metrics := o.metrics
	options := o.options
	logger := o.turnLoggerLocked()
	o.mu.Unlock()
	o.notifyPhase()

	o.vad.Stop()
	blob := o.rec.StopRecording()
	if blob == nil || len(blob.Data) == 0 {
		return o.fail(gen, voiceerr.New(voiceerr.NoAudioCaptured, "stop recording", nil))
	}
	logger.Debug().
		Str("mime_type", blob.MimeType).
		Int("bytes", len(blob.Data)).
		Dur("duration", blob.Duration).
		Msg("Recording finished")

	metrics.RecordSTTStart()
	result, err := o.transcriber.Transcribe(ctx, blob.Data, blob.MimeType, options.Transcription)
	metrics.RecordSTTEnd(err == nil)
	if o.stale(gen) {
		return nil
	}
	if err != nil {
		return o.fail(gen, classify(voiceerr.TranscriptionFailed, "transcribe", err))
	}
	text := ""
	if result != nil {
		text = strings.TrimSpace(result.Text)
	}
	if text == "" {
		return o.fail(gen, voiceerr.New(voiceerr.TranscriptionFailed, "transcribe", errors.New("no transcription text")))
	}
	o.notifyText(func(t TranscriptObserver) { t.OnTranscript(turnID, text) })

	metrics.RecordAssistantStart()
	reply, err := o.converse(ctx, text)
	reply = strings.TrimSpace(reply)
	metrics.RecordAssistantEnd(err == nil && reply != "")
	if o.stale(gen) {
		return nil
	}
	if err != nil {
		return o.fail(gen, classify(voiceerr.NoResponse, "converse", err))
	}
	if reply == "" {
		return o.fail(gen, voiceerr.New(voiceerr.NoResponse, "converse", nil))
	}
	o.notifyText(func(t TranscriptObserver) { t.OnResponse(turnID, reply) })

	if !o.player.IsSupported() {
		logger.Info().Msg("Playback unsupported, skipping speech")
		o.finish(gen, "completed")
		return nil
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil
	}
	o.setPhaseLocked(PhaseSpeaking)
	o.mu.Unlock()
	o.notifyPhase()

	metrics.RecordTTSStart()
	err = o.player.Speak(ctx, reply, options.Speech)
	metrics.RecordTTSEnd(err == nil)
	if o.stale(gen) {
		return nil
	}
	if err != nil {
		return o.fail(gen, err)
	}
	o.finish(gen, "completed")
	return nil
}

// ForceStop abandons the current turn from any phase and returns to idle.
// It is safe to call repeatedly and on an idle orchestrator.
func (o *Orchestrator) ForceStop() {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("Recovered during force stop")
		}
	}()

	o.mu.Lock()
	o.gen++
	was := o.phase
	cancel := o.cancel
	o.cancel = nil
	metrics := o.metrics
	o.metrics = nil
	o.err = nil
	if was != PhaseIdle {
		o.setPhaseLocked(PhaseIdle)
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.vad.Stop()
	o.rec.StopRecording()
	o.player.ForceStop()

	if was != PhaseIdle {
		if metrics != nil {
			metrics.RecordTurnEnd("cancelled")
		}
		observability.RecordTurnFinish()
		o.logger.Info().Str("from", string(was)).Msg("Voice turn force stopped")
		o.notifyPhase()
	}
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if snap.Phase == PhaseRecording {
		snap.RecordingSeconds = o.rec.RecordingTime()
		snap.Volume = o.vad.Level()
	}
	return snap
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Err returns the error that ended the last turn, if any
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: o.phase, TurnID: o.turnID}
	if o.err != nil {
		snap.Error = o.err.Error()
		snap.ErrorKind = string(voiceerr.KindOf(o.err))
	}
	return snap
}

func (o *Orchestrator) stale(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen != o.gen
}

// recording reports whether turn gen is still live and recording
func (o *Orchestrator) recording(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen && o.phase == PhaseRecording
}

// fail ends turn gen with err. Errors for a superseded turn are discarded.
// Ending a turn advances the generation so late results for it are stale.
func (o *Orchestrator) fail(gen uint64, err error) error {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil
	}
	o.gen++
	o.err = err
	cancel := o.cancel
	o.cancel = nil
	metrics := o.metrics
	o.metrics = nil
	o.setPhaseLocked(PhaseIdle)
	logger := o.turnLoggerLocked()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.vad.Stop()
	o.rec.StopRecording()

	kind := voiceerr.KindOf(err)
	if kind == "" {
		kind = "unknown"
	}
	observability.RecordError(string(kind), "conversation")
	if metrics != nil {
		metrics.RecordTurnEnd("error")
	}
	observability.RecordTurnFinish()
	logger.Error().Err(err).Str("kind", string(kind)).Msg("Voice turn failed")

	o.notifyPhase()
	return err
}

func (o *Orchestrator) finish(gen uint64, outcome string) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.gen++
	cancel := o.cancel
	o.cancel = nil
	metrics := o.metrics
	o.metrics = nil
	o.setPhaseLocked(PhaseIdle)
	logger := o.turnLoggerLocked()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if metrics != nil {
		metrics.RecordTurnEnd(outcome)
	}
	observability.RecordTurnFinish()
	logger.Info().Str("outcome", outcome).Msg("Voice turn finished")
	o.notifyPhase()
}

func (o *Orchestrator) setPhaseLocked(phase Phase) {
	now := time.Now()
	if !o.phaseStart.IsZero() && o.phase != PhaseIdle {
		observability.ObservePhase(string(o.phase), now.Sub(o.phaseStart))
	}
	o.phase = phase
	o.phaseStart = now
}

func (o *Orchestrator) turnLoggerLocked() zerolog.Logger {
	return o.logger.With().Str("turn_id", o.turnID).Logger()
}

func (o *Orchestrator) observerList() []Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := make([]Observer, len(o.observers))
	for i, entry := range o.observers {
		list[i] = entry.observer
	}
	return list
}

func (o *Orchestrator) notifyPhase() {
	snap := o.Snapshot()
	for _, obs := range o.observerList() {
		obs.OnPhase(snap)
	}
}

func (o *Orchestrator) notifyText(fn func(TranscriptObserver)) {
	for _, obs := range o.observerList() {
		if t, ok := obs.(TranscriptObserver); ok {
			fn(t)
		}
	}
}

// classify keeps an existing classification and cancellation, and files
// anything else under kind
func classify(kind voiceerr.Kind, op string, err error) error {
	if voiceerr.KindOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	return voiceerr.New(kind, op, err)
}
