package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// DefaultPermissionTimeout bounds how long a browser may take to answer a
// capture request
const DefaultPermissionTimeout = 30 * time.Second

var errPermissionTimeout = errors.New("no answer to capture request")

// RemoteTransport carries capture signalling to the client
type RemoteTransport interface {
	RequestCapture(config Config) error
	ReleaseCapture() error
}

// Grant is the client's answer to a capture request
type Grant struct {
	Granted    bool
	SampleRate int // rate of the PCM the client will send
	Channels   int
	Device     string
	Reason     string // NotAllowedError, NotFoundError, ...
}

// RemoteContext captures audio from a websocket peer. The peer is asked for
// the microphone, answers with a Grant, and then streams PCM16 frames that
// arrive here via Feed.
type RemoteContext struct {
	transport RemoteTransport
	timeout   time.Duration

	mu      sync.Mutex
	pending *remoteRequest
	active  *RemoteDevice
}

type remoteRequest struct {
	config Config
	answer chan remoteAnswer
}

type remoteAnswer struct {
	device *RemoteDevice
	grant  Grant
}

// maxEarlySamples bounds the audio held between a grant and Start
const maxEarlySamples = 2 * 48000

// NewRemoteContext creates a context bound to one peer
func NewRemoteContext(transport RemoteTransport, timeout time.Duration) *RemoteContext {
	if timeout <= 0 {
		timeout = DefaultPermissionTimeout
	}
	return &RemoteContext{transport: transport, timeout: timeout}
}

func (r *RemoteContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "remote", Name: "remote microphone"}}, nil
}

// NewCapture asks the peer for its microphone and waits for the answer
func (r *RemoteContext) NewCapture(ctx context.Context, config Config) (Device, error) {
	req := &remoteRequest{config: config, answer: make(chan remoteAnswer, 1)}
	r.mu.Lock()
	r.pending = req
	r.mu.Unlock()

	// drop reports false when Resolve already claimed the request
	drop := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.pending == req {
			r.pending = nil
			return true
		}
		return false
	}

	if err := r.transport.RequestCapture(config); err != nil {
		drop()
		return nil, voiceerr.New(voiceerr.DeviceUnavailable, "request capture", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var err error
	select {
	case ans := <-req.answer:
		return r.accept(ans)
	case <-timer.C:
		err = voiceerr.New(voiceerr.DeviceUnavailable, "request capture", errPermissionTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if !drop() {
		// answered at the deadline; release what the answer granted
		if ans := <-req.answer; ans.device != nil {
			ans.device.Close()
		}
	}
	return nil, err
}

func (r *RemoteContext) accept(ans remoteAnswer) (Device, error) {
	if ans.device != nil {
		return ans.device, nil
	}
	if ans.grant.Reason == "NotFoundError" || ans.grant.Reason == "NotSupportedError" {
		return nil, voiceerr.New(voiceerr.DeviceUnavailable, "request capture", errors.New(ans.grant.Reason))
	}
	return nil, voiceerr.New(voiceerr.PermissionDenied, "request capture", reasonErr(ans.grant.Reason))
}

// Resolve delivers the peer's answer to the outstanding request. A granted
// device is active on return, so frames fed right after the answer are
// kept. It reports false when no request is waiting.
func (r *RemoteContext) Resolve(grant Grant) bool {
	r.mu.Lock()
	req := r.pending
	r.pending = nil
	if req == nil {
		r.mu.Unlock()
		return false
	}
	ans := remoteAnswer{grant: grant}
	if grant.Granted {
		ans.device = newRemoteDevice(r, req.config, grant)
		r.active = ans.device
	}
	r.mu.Unlock()

	req.answer <- ans
	return true
}

// Feed routes a PCM16 little-endian frame to the active device
func (r *RemoteContext) Feed(pcm []byte) {
	r.mu.Lock()
	d := r.active
	r.mu.Unlock()
	if d != nil {
		d.feed(pcm)
	}
}

// Close releases any active device
func (r *RemoteContext) Close() {
	r.mu.Lock()
	d := r.active
	r.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

func (r *RemoteContext) release(d *RemoteDevice) {
	r.mu.Lock()
	owned := r.active == d
	if owned {
		r.active = nil
	}
	r.mu.Unlock()
	if owned {
		_ = r.transport.ReleaseCapture()
	}
}

func reasonErr(reason string) error {
	if reason == "" {
		return errors.New("denied by user")
	}
	return errors.New(reason)
}

// RemoteDevice is a granted remote microphone. Frames that arrive before
// Start are held and delivered on Start.
type RemoteDevice struct {
	owner      *RemoteContext
	inputRate  int
	outputRate int
	channels   int
	name       string

	// deliverMu orders callbacks so held frames precede live ones
	deliverMu sync.Mutex

	mu       sync.Mutex
	started  bool
	closed   bool
	early    []int16
	callback DataCallback
}

func newRemoteDevice(owner *RemoteContext, config Config, grant Grant) *RemoteDevice {
	rate := grant.SampleRate
	if rate <= 0 {
		rate = int(config.SampleRate)
	}
	channels := grant.Channels
	if channels <= 0 {
		channels = 1
	}
	name := grant.Device
	if name == "" {
		name = "remote microphone"
	}
	return &RemoteDevice{
		owner:      owner,
		inputRate:  rate,
		outputRate: int(config.SampleRate),
		channels:   channels,
		name:       name,
	}
}

func (d *RemoteDevice) feed(pcm []byte) {
	samples := bytesToMono(pcm, d.channels)
	if len(samples) == 0 {
		return
	}
	samples = audio.Resample(samples, d.inputRate, d.outputRate)

	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if !d.started {
		if len(d.early)+len(samples) <= maxEarlySamples {
			d.early = append(d.early, samples...)
		}
		d.mu.Unlock()
		return
	}
	cb := d.callback
	d.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (d *RemoteDevice) Start() error {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return voiceerr.New(voiceerr.DeviceUnavailable, "start capture", errors.New("device closed"))
	}
	d.started = true
	early := d.early
	d.early = nil
	cb := d.callback
	d.mu.Unlock()

	if cb != nil && len(early) > 0 {
		cb(early)
	}
	return nil
}

func (d *RemoteDevice) Stop() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *RemoteDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.started = false
	d.early = nil
	d.callback = nil
	d.mu.Unlock()
	d.owner.release(d)
}

func (d *RemoteDevice) SetCallback(cb DataCallback) {
	d.mu.Lock()
	d.callback = cb
	d.mu.Unlock()
}

func (d *RemoteDevice) ClearCallback() {
	d.mu.Lock()
	d.callback = nil
	d.mu.Unlock()
}

func (d *RemoteDevice) DeviceName() string {
	return d.name
}
