package conversation

import (
	"context"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/recorder"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
)

// Phase is the step of the current voice turn
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseSpeaking   Phase = "speaking"
)

// ConverseFunc sends the transcribed question to the backend and returns
// the reply to speak
type ConverseFunc func(ctx context.Context, message string) (string, error)

// Recorder owns the microphone for the length of a turn
type Recorder interface {
	StartRecording(ctx context.Context) error
	StopRecording() *recorder.Blob
	GetMediaStream() audio.Stream
	RecordingTime() int
}

// Detector signals the end of an utterance
type Detector interface {
	Start(stream audio.Stream, onSpeechEnd func()) error
	Stop()
	Level() float64
}

// Speaker plays the reply
type Speaker interface {
	Speak(ctx context.Context, text string, opts tts.SpeakOptions) error
	ForceStop()
	IsSupported() bool
	InitializeUserGesture(ctx context.Context) error
}

// Snapshot is the observable state of the orchestrator
type Snapshot struct {
	Phase            Phase   `json:"phase"`
	Error            string  `json:"error,omitempty"`
	ErrorKind        string  `json:"error_kind,omitempty"`
	RecordingSeconds int     `json:"recording_seconds"`
	Volume           float64 `json:"volume"`
	TurnID           string  `json:"turn_id,omitempty"`
}

// Observer is notified after every phase change
type Observer interface {
	OnPhase(snap Snapshot)
}

// TranscriptObserver is implemented by observers that want the recognised
// question and the reply of each turn
type TranscriptObserver interface {
	OnTranscript(turnID, text string)
	OnResponse(turnID, text string)
}

// ObserverFuncs adapts plain functions to the observer interfaces.
// Nil fields are skipped.
type ObserverFuncs struct {
	Phase      func(snap Snapshot)
	Transcript func(turnID, text string)
	Response   func(turnID, text string)
}

func (f ObserverFuncs) OnPhase(snap Snapshot) {
	if f.Phase != nil {
		f.Phase(snap)
	}
}

func (f ObserverFuncs) OnTranscript(turnID, text string) {
	if f.Transcript != nil {
		f.Transcript(turnID, text)
	}
}

func (f ObserverFuncs) OnResponse(turnID, text string) {
	if f.Response != nil {
		f.Response(turnID, text)
	}
}
