package recorder

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/capture"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRecorder(config Config) (*Recorder, *capture.FakeContext, *fakeClock) {
	source := capture.NewFakeContext(nil, 16000, false)
	rec := New(source, config, zerolog.Nop())
	clock := &fakeClock{t: time.Unix(1000, 0)}
	rec.now = clock.now
	return rec, source, clock
}

func tone(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16((i % 64) * 200)
	}
	return samples
}

func TestStopRecording_NothingStarted(t *testing.T) {
	rec, _, _ := newTestRecorder(DefaultConfig())

	if blob := rec.StopRecording(); blob != nil {
		t.Errorf("Expected nil blob, got %+v", blob)
	}
	if blob := rec.StopRecording(); blob != nil {
		t.Error("Expected nil blob on repeated stop")
	}
	if rec.GetMediaStream() != nil {
		t.Error("Expected no media stream when idle")
	}
	if rec.IsRecording() {
		t.Error("Expected not recording")
	}
}

func TestRecorder_RecordsWav(t *testing.T) {
	config := DefaultConfig()
	config.MimeTypes = []string{"audio/webm;codecs=opus", "audio/wav"}
	rec, source, clock := newTestRecorder(config)

	if err := rec.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if !rec.IsRecording() {
		t.Fatal("Expected recording")
	}

	device := source.Last()
	device.Push(tone(12000))
	device.Push(tone(12000))
	clock.advance(1500 * time.Millisecond)

	if rec.RecordingTime() != 1 {
		t.Errorf("Expected 1 second, got %d", rec.RecordingTime())
	}
	stream := rec.GetMediaStream()
	if stream == nil || stream.SampleRate() != 16000 {
		t.Fatal("Expected a 16kHz live stream while recording")
	}
	if latest := stream.Latest(4); latest[3] == 0 && latest[2] == 0 {
		t.Error("Expected live stream to carry recent samples")
	}

	blob := rec.StopRecording()
	if blob == nil {
		t.Fatal("Expected a blob")
	}
	if blob.MimeType != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", blob.MimeType)
	}
	if len(blob.Data) != 44+24000*2 {
		t.Errorf("Expected %d bytes, got %d", 44+24000*2, len(blob.Data))
	}
	if blob.Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s of audio, got %v", blob.Duration)
	}
	if !device.Closed() {
		t.Error("Expected device released on stop")
	}
	if rec.GetMediaStream() != nil || rec.IsRecording() {
		t.Error("Expected idle after stop")
	}
}

func TestRecorder_DefaultPrefersFlac(t *testing.T) {
	rec, source, _ := newTestRecorder(DefaultConfig())
	if err := rec.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	source.Last().Push(tone(4000))

	blob := rec.StopRecording()
	if blob == nil {
		t.Fatal("Expected a blob")
	}
	if blob.MimeType != "audio/flac" {
		t.Errorf("Expected audio/flac, got %s", blob.MimeType)
	}
	if !bytes.HasPrefix(blob.Data, []byte("fLaC")) {
		t.Error("Expected FLAC stream")
	}
}

func TestRecorder_PauseDropsAudio(t *testing.T) {
	config := DefaultConfig()
	config.MimeTypes = []string{"audio/wav"}
	rec, source, clock := newTestRecorder(config)
	rec.StartRecording(context.Background())
	device := source.Last()

	device.Push(tone(8000))
	clock.advance(2 * time.Second)
	rec.PauseRecording()
	if !rec.IsPaused() {
		t.Fatal("Expected paused")
	}

	device.Push(tone(8000))
	clock.advance(5 * time.Second)
	if rec.RecordingTime() != 2 {
		t.Errorf("Expected elapsed counter frozen at 2, got %d", rec.RecordingTime())
	}
	if rec.GetMediaStream() == nil {
		t.Error("Expected live stream while paused")
	}

	rec.ResumeRecording()
	rec.ResumeRecording()
	device.Push(tone(1000))
	clock.advance(time.Second)

	blob := rec.StopRecording()
	if blob == nil {
		t.Fatal("Expected a blob")
	}
	if len(blob.Data) != 44+9000*2 {
		t.Errorf("Expected paused audio dropped (%d bytes), got %d", 44+9000*2, len(blob.Data))
	}
}

func TestRecorder_PauseWhenIdleIsNoop(t *testing.T) {
	rec, _, _ := newTestRecorder(DefaultConfig())
	rec.PauseRecording()
	rec.ResumeRecording()
	if rec.IsPaused() || rec.IsRecording() {
		t.Error("Expected idle recorder to ignore pause and resume")
	}
}

func TestRecorder_EmptyRecording(t *testing.T) {
	rec, source, _ := newTestRecorder(DefaultConfig())
	rec.StartRecording(context.Background())

	if blob := rec.StopRecording(); blob != nil {
		t.Errorf("Expected nil blob for silence-free empty capture, got %d bytes", len(blob.Data))
	}
	if !source.Last().Closed() {
		t.Error("Expected device released")
	}
}

func TestRecorder_PermissionDenied(t *testing.T) {
	rec, source, _ := newTestRecorder(DefaultConfig())
	source.Err = voiceerr.New(voiceerr.PermissionDenied, "capture", nil)

	err := rec.StartRecording(context.Background())
	if voiceerr.KindOf(err) != voiceerr.PermissionDenied {
		t.Errorf("Expected PermissionDenied, got %v", err)
	}
	if voiceerr.KindOf(rec.Error()) != voiceerr.PermissionDenied {
		t.Errorf("Expected error recorded, got %v", rec.Error())
	}
	if rec.IsRecording() {
		t.Error("Expected not recording after failure")
	}
}

func TestRecorder_NoSupportedType(t *testing.T) {
	config := DefaultConfig()
	config.MimeTypes = []string{"audio/webm", "audio/mp4"}
	rec, _, _ := newTestRecorder(config)

	if err := rec.StartRecording(context.Background()); voiceerr.KindOf(err) != voiceerr.DeviceUnavailable {
		t.Errorf("Expected DeviceUnavailable, got %v", err)
	}
}

func TestRecorder_StartTwiceIsNoop(t *testing.T) {
	rec, _, _ := newTestRecorder(DefaultConfig())
	rec.StartRecording(context.Background())
	first := rec.GetMediaStream()
	if err := rec.StartRecording(context.Background()); err != nil {
		t.Fatalf("Expected second start to be a no-op, got %v", err)
	}
	if rec.GetMediaStream() != first {
		t.Error("Expected the same stream after a repeated start")
	}
	rec.StopRecording()
}

func TestRecorder_ChunksAtTimeslice(t *testing.T) {
	config := DefaultConfig()
	config.MimeTypes = []string{"audio/wav"}
	config.Timeslice = 250 * time.Millisecond
	rec, source, _ := newTestRecorder(config)
	rec.StartRecording(context.Background())

	device := source.Last()
	for i := 0; i < 10; i++ {
		device.Push(tone(1000))
	}
	rec.mu.Lock()
	chunks, pending := rec.chunks, len(rec.pending)
	rec.mu.Unlock()
	if chunks != 2 || pending != 2000 {
		t.Errorf("Expected 2 chunks and 2000 pending samples, got %d and %d", chunks, pending)
	}
	rec.StopRecording()
}
