package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

type mockTransport struct {
	mu       sync.Mutex
	requests []Config
	releases int
	err      error
	onReq    func()
}

func (m *mockTransport) RequestCapture(config Config) error {
	m.mu.Lock()
	m.requests = append(m.requests, config)
	onReq := m.onReq
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if onReq != nil {
		go onReq()
	}
	return nil
}

func (m *mockTransport) ReleaseCapture() error {
	m.mu.Lock()
	m.releases++
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

func TestRemoteContext_Granted(t *testing.T) {
	transport := &mockTransport{}
	rc := NewRemoteContext(transport, time.Second)
	transport.onReq = func() {
		rc.Resolve(Grant{Granted: true, SampleRate: 48000, Channels: 1, Device: "Built-in Microphone"})
	}

	dev, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1, EchoCancellation: true})
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}
	if dev.DeviceName() != "Built-in Microphone" {
		t.Errorf("Expected device name from grant, got %q", dev.DeviceName())
	}
	if len(transport.requests) != 1 || !transport.requests[0].EchoCancellation {
		t.Errorf("Expected one request with echo cancellation, got %+v", transport.requests)
	}

	var got []int16
	dev.SetCallback(func(samples []int16) { got = append(got, samples...) })

	frame := make([]byte, 960) // 480 samples at 48kHz
	rc.Feed(frame)
	if len(got) != 0 {
		t.Error("Expected no samples before Start")
	}

	if err := dev.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(got) != 160 {
		t.Errorf("Expected the early frame delivered on Start, got %d samples", len(got))
	}
	rc.Feed(frame)
	if len(got) != 320 {
		t.Errorf("Expected 320 resampled samples, got %d", len(got))
	}

	dev.Close()
	dev.Close()
	if transport.releaseCount() != 1 {
		t.Errorf("Expected one release, got %d", transport.releaseCount())
	}
	rc.Feed(frame)
	if len(got) != 320 {
		t.Error("Expected no samples after Close")
	}
	if err := dev.Start(); err == nil {
		t.Error("Expected Start after Close to fail")
	}
}

func TestRemoteDevice_HeldFramesPrecedeLiveFrames(t *testing.T) {
	transport := &mockTransport{}
	rc := NewRemoteContext(transport, time.Second)
	transport.onReq = func() {
		rc.Resolve(Grant{Granted: true, SampleRate: 16000, Channels: 1})
	}

	dev, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}

	var (
		mu      sync.Mutex
		got     []int16
		first   = true
		entered = make(chan struct{})
		proceed = make(chan struct{})
	)
	dev.SetCallback(func(samples []int16) {
		mu.Lock()
		wait := first
		first = false
		mu.Unlock()
		if wait {
			close(entered)
			<-proceed
		}
		mu.Lock()
		got = append(got, samples...)
		mu.Unlock()
	})

	// one sample per frame, value 1 held before Start, value 2 live
	rc.Feed([]byte{1, 0})

	started := make(chan error, 1)
	go func() { started <- dev.Start() }()
	<-entered

	fed := make(chan struct{})
	go func() {
		rc.Feed([]byte{2, 0})
		close(fed)
	}()
	time.Sleep(20 * time.Millisecond)
	close(proceed)

	if err := <-started; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-fed

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected held frame before live frame [1 2], got %v", got)
	}
	dev.Close()
}

func TestRemoteContext_Denied(t *testing.T) {
	transport := &mockTransport{}
	rc := NewRemoteContext(transport, time.Second)
	transport.onReq = func() {
		rc.Resolve(Grant{Granted: false, Reason: "NotAllowedError"})
	}

	_, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, voiceerr.PermissionDenied.Sentinel()) {
		t.Errorf("Expected PermissionDenied, got %v", err)
	}
}

func TestRemoteContext_NoDevice(t *testing.T) {
	transport := &mockTransport{}
	rc := NewRemoteContext(transport, time.Second)
	transport.onReq = func() {
		rc.Resolve(Grant{Granted: false, Reason: "NotFoundError"})
	}

	_, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, voiceerr.DeviceUnavailable.Sentinel()) {
		t.Errorf("Expected DeviceUnavailable, got %v", err)
	}
}

func TestRemoteContext_Timeout(t *testing.T) {
	rc := NewRemoteContext(&mockTransport{}, 20*time.Millisecond)

	_, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if voiceerr.KindOf(err) != voiceerr.DeviceUnavailable {
		t.Errorf("Expected DeviceUnavailable on timeout, got %v", err)
	}
	if rc.Resolve(Grant{Granted: true}) {
		t.Error("Expected late answer to be dropped")
	}
}

func TestRemoteContext_TransportError(t *testing.T) {
	rc := NewRemoteContext(&mockTransport{err: errors.New("connection closed")}, time.Second)

	_, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if voiceerr.KindOf(err) != voiceerr.DeviceUnavailable {
		t.Errorf("Expected DeviceUnavailable, got %v", err)
	}
}

func TestRemoteContext_Cancelled(t *testing.T) {
	rc := NewRemoteContext(&mockTransport{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rc.NewCapture(ctx, Config{SampleRate: 16000, Channels: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRemoteContext_StereoDownmix(t *testing.T) {
	transport := &mockTransport{}
	rc := NewRemoteContext(transport, time.Second)
	transport.onReq = func() {
		rc.Resolve(Grant{Granted: true, SampleRate: 16000, Channels: 2})
	}
	dev, err := rc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}

	var got []int16
	dev.SetCallback(func(samples []int16) { got = append(got, samples...) })
	dev.Start()
	// left 100, right 300
	rc.Feed([]byte{100, 0, 44, 1})
	if len(got) != 1 || got[0] != 200 {
		t.Errorf("Expected [200], got %v", got)
	}
}

func TestFakeDevice_NonRealtime(t *testing.T) {
	samples := make([]int16, 2500)
	fc := NewFakeContext(samples, 16000, false)

	dev, err := fc.NewCapture(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}
	var total, calls int
	dev.SetCallback(func(s []int16) {
		total += len(s)
		calls++
	})
	if err := dev.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if total != 2500 || calls != 3 {
		t.Errorf("Expected 2500 samples in 3 chunks, got %d in %d", total, calls)
	}

	fake := fc.Last()
	fake.Push(make([]int16, 10))
	if total != 2510 {
		t.Errorf("Expected pushed samples to arrive, got %d", total)
	}
	dev.Close()
	if !fake.Closed() || fake.Started() {
		t.Error("Expected device closed and stopped")
	}
	fake.Push(make([]int16, 10))
	if total != 2510 {
		t.Error("Expected no samples after close")
	}
}

func TestFakeContext_Error(t *testing.T) {
	fc := NewFakeContext(nil, 16000, false)
	fc.Err = voiceerr.New(voiceerr.PermissionDenied, "fake", nil)

	if _, err := fc.NewCapture(context.Background(), Config{}); voiceerr.KindOf(err) != voiceerr.PermissionDenied {
		t.Errorf("Expected PermissionDenied, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected voiceerr.Kind
	}{
		{errors.New("Access denied"), voiceerr.PermissionDenied},
		{errors.New("connection refused"), voiceerr.DeviceUnavailable},
		{voiceerr.New(voiceerr.PermissionDenied, "inner", nil), voiceerr.PermissionDenied},
	}
	for _, tt := range tests {
		if got := voiceerr.KindOf(classify("op", tt.err)); got != tt.expected {
			t.Errorf("classify(%v): expected %s, got %s", tt.err, tt.expected, got)
		}
	}
	if classify("op", nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
