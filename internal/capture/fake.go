package capture

import (
	"context"
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext hands out FakeDevices. Set Err to make every NewCapture fail.
type FakeContext struct {
	Samples    []int16
	SampleRate int
	Realtime   bool
	Err        error

	mu      sync.Mutex
	devices []*FakeDevice
}

// NewFakeContext plays samples once and then silence. Without realtime the
// samples are delivered on Start and nothing more follows.
func NewFakeContext(samples []int16, sampleRate int, realtime bool) *FakeContext {
	return &FakeContext{Samples: samples, SampleRate: sampleRate, Realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(ctx context.Context, _ Config) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	d := &FakeDevice{samples: f.Samples, sampleRate: rate, realtime: f.Realtime}
	f.mu.Lock()
	f.devices = append(f.devices, d)
	f.mu.Unlock()
	return d, nil
}

// Last returns the most recently created device
func (f *FakeContext) Last() *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return nil
	}
	return f.devices[len(f.devices)-1]
}

// FakeDevice replays fixed samples. Push delivers extra samples while the
// device is started.
type FakeDevice struct {
	samples    []int16
	sampleRate int
	realtime   bool

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeDevice) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeDevice) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeDevice) DeviceName() string { return "fake" }

// Started reports whether the device is delivering audio
func (f *FakeDevice) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Closed reports whether Close was called
func (f *FakeDevice) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Push delivers samples to the callback if the device is started
func (f *FakeDevice) Push(samples []int16) {
	f.mu.Lock()
	cb, started := f.cb, f.started
	f.mu.Unlock()
	if cb == nil || !started {
		return
	}
	chunk := make([]int16, len(samples))
	copy(chunk, samples)
	cb(chunk)
}

func (f *FakeDevice) Start() error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	if !f.realtime {
		for pos := 0; pos < len(f.samples); pos += fakeFrameSize {
			f.Push(f.samples[pos:min(pos+fakeFrameSize, len(f.samples))])
		}
		close(feedDone)
		return nil
	}

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.sampleRate)
	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]int16, fakeFrameSize)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if pos < len(f.samples) {
				end := min(pos+fakeFrameSize, len(f.samples))
				f.Push(f.samples[pos:end])
				pos = end
			} else {
				f.Push(silence)
			}
			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (f *FakeDevice) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	close(stopCh)
	<-feedDone
}

func (f *FakeDevice) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.cb = nil
	f.mu.Unlock()
}
