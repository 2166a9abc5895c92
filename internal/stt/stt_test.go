package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/resilience"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		OpenAIAPIKey:          "test-key",
		OpenAIBaseURL:         url,
		TranscriptionModel:    "whisper-1",
		TranscriptionLanguage: "en",
		TranscriptionPrompt:   "Study conversation. Quick transcription.",
	}
}

func TestValidateAudio(t *testing.T) {
	tests := []struct {
		name     string
		audio    []byte
		mimeType string
		wantErr  error
	}{
		{"empty", nil, "audio/wav", ErrNoAudio},
		{"too large", make([]byte, MaxAudioBytes+1), "audio/wav", ErrFileTooLarge},
		{"unsupported", []byte("x"), "video/avi", ErrUnsupportedFormat},
		{"webm with codecs", []byte("x"), "audio/webm;codecs=opus", nil},
		{"flac", []byte("x"), "audio/flac", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAudio(tt.audio, tt.mimeType)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if voiceerr.KindOf(err) != voiceerr.TranscriptionFailed {
				t.Errorf("Expected TranscriptionFailed kind, got %q", voiceerr.KindOf(err))
			}
		})
	}
}

func TestFileExtension(t *testing.T) {
	cases := map[string]string{
		"audio/wav":              "wav",
		"audio/flac":             "flac",
		"audio/webm;codecs=opus": "webm",
		"audio/mpeg":             "mp3",
		"audio/mp4":              "m4a",
		"audio/ogg":              "ogg",
	}
	for mime, want := range cases {
		if got := FileExtension(mime); got != want {
			t.Errorf("FileExtension(%q): expected %s, got %s", mime, want, got)
		}
	}
}

func TestOpenAIClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Expected /v1/audio/transcriptions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
			return
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("Unexpected form: model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		if r.FormValue("prompt") != "Study conversation. Quick transcription." {
			t.Errorf("Expected default prompt, got %q", r.FormValue("prompt"))
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part: %v", err)
			return
		}
		if header.Filename != "audio.wav" {
			t.Errorf("Expected audio.wav, got %s", header.Filename)
		}
		w.Write([]byte(`{"text":" What is osmosis? "}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL+"/v1"), zerolog.Nop())
	res, err := client.Transcribe(context.Background(), []byte("RIFF"), "audio/wav", Options{})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !res.Success || res.Text != "What is osmosis?" || res.Model != "whisper-1" {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestOpenAIClient_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/translations" {
			t.Errorf("Expected /audio/translations, got %s", r.URL.Path)
		}
		r.ParseMultipartForm(1 << 20)
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("Expected whisper-1, got %q", r.FormValue("model"))
		}
		if r.FormValue("language") != "" {
			t.Errorf("Expected no language for translation, got %q", r.FormValue("language"))
		}
		w.Write([]byte(`{"text":"Good morning"}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL), zerolog.Nop())
	res, err := client.Transcribe(context.Background(), []byte("x"), "audio/webm", Options{Model: "gpt-4o-transcribe", Translate: true})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !res.Translated || res.Model != "whisper-1" {
		t.Errorf("Expected translated whisper-1 result, got %+v", res)
	}
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL), zerolog.Nop())
	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav", Options{})
	if voiceerr.KindOf(err) != voiceerr.TranscriptionFailed {
		t.Errorf("Expected TranscriptionFailed, got %v", err)
	}
}

func TestOpenAIClient_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewOpenAIClient(testConfig(server.URL), zerolog.Nop())
	_, err := client.Transcribe(ctx, []byte("x"), "audio/wav", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDeepgramClient_RejectsTranslate(t *testing.T) {
	client := NewDeepgramClient(&config.Config{DeepgramAPIKey: "k", DeepgramModel: "nova-2"}, zerolog.Nop())
	if client.Name() != "deepgram" {
		t.Errorf("Expected deepgram, got %s", client.Name())
	}
	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav", Options{Translate: true})
	if voiceerr.KindOf(err) != voiceerr.TranscriptionFailed {
		t.Errorf("Expected TranscriptionFailed, got %v", err)
	}
	if _, err := client.Transcribe(context.Background(), nil, "audio/wav", Options{}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Expected ErrNoAudio, got %v", err)
	}
}

type failingTranscriber struct{ calls int }

func (f *failingTranscriber) Name() string { return "failing" }

func (f *failingTranscriber) Transcribe(context.Context, []byte, string, Options) (*Result, error) {
	f.calls++
	return nil, errors.New("upstream down")
}

func TestGuardedTranscriber(t *testing.T) {
	inner := &failingTranscriber{}
	guarded := NewGuardedTranscriber(inner, resilience.NewCircuitBreaker("stt", 1, time.Minute))

	// Invalid input does not trip the breaker
	guarded.Transcribe(context.Background(), nil, "audio/wav", Options{})
	if inner.calls != 0 {
		t.Errorf("Expected no upstream call for empty audio, got %d", inner.calls)
	}

	guarded.Transcribe(context.Background(), []byte("x"), "audio/wav", Options{})
	_, err := guarded.Transcribe(context.Background(), []byte("x"), "audio/wav", Options{})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if voiceerr.KindOf(err) != voiceerr.TranscriptionFailed {
		t.Errorf("Expected TranscriptionFailed, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("Expected one upstream call, got %d", inner.calls)
	}
}
