package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
)

// remoteSink plays audio by sending it to the websocket client, which
// reports back with playback_ended or playback_error
type remoteSink struct {
	send func(ServerMessage) error

	mu        sync.Mutex
	playbacks map[string]*remotePlayback
	closed    bool
}

func newRemoteSink(send func(ServerMessage) error) *remoteSink {
	return &remoteSink{send: send, playbacks: make(map[string]*remotePlayback)}
}

func (s *remoteSink) Supported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Prime is a no-op; the client unlocks its audio element on the start gesture
func (s *remoteSink) Prime(context.Context) error { return nil }

func (s *remoteSink) Play(_ context.Context, audio []byte, mimeType string) (tts.Playback, error) {
	p := &remotePlayback{
		id:   uuid.New().String(),
		sink: s,
		done: make(chan error, 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("voice session closed")
	}
	s.playbacks[p.id] = p
	s.mu.Unlock()

	err := s.send(ServerMessage{
		Event:      EventAudio,
		PlaybackID: p.id,
		MimeType:   mimeType,
		Audio:      base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		s.forget(p.id)
		return nil, err
	}
	observability.RecordAudioBytes("out", int64(len(audio)))
	return p, nil
}

// Release tells the client to drop its audio output
func (s *remoteSink) Release() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	return s.send(ServerMessage{Event: EventAudioRelease})
}

// finish completes the playback with id. It reports false for unknown ids.
func (s *remoteSink) finish(id string, err error) bool {
	s.mu.Lock()
	p, ok := s.playbacks[id]
	delete(s.playbacks, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.complete(err)
	return true
}

func (s *remoteSink) forget(id string) {
	s.mu.Lock()
	delete(s.playbacks, id)
	s.mu.Unlock()
}

// close ends every outstanding playback with an error
func (s *remoteSink) close() {
	s.mu.Lock()
	s.closed = true
	pending := s.playbacks
	s.playbacks = make(map[string]*remotePlayback)
	s.mu.Unlock()

	for _, p := range pending {
		p.complete(errors.New("voice session closed"))
	}
}

type remotePlayback struct {
	id   string
	sink *remoteSink
	done chan error
	once sync.Once
}

func (p *remotePlayback) Done() <-chan error { return p.done }

func (p *remotePlayback) complete(err error) {
	p.once.Do(func() { p.done <- err })
}

// Stop asks the client to stop this clip and completes it
func (p *remotePlayback) Stop() {
	p.sink.forget(p.id)
	_ = p.sink.send(ServerMessage{Event: EventAudioStop, PlaybackID: p.id})
	p.complete(nil)
}
