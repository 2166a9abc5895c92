//go:build linux

package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulseContext struct {
	client *pulse.Client
}

// NewContext connects to the PulseAudio (or PipeWire) server
func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("StudyPal"))
	if err != nil {
		return nil, classify("pulse connect", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

// NewCapture resolves the source up front so a missing device is reported
// before recording starts. With echo cancellation requested and no explicit
// device, a module-echo-cancel source is preferred when one is loaded.
func (p *pulseContext) NewCapture(ctx context.Context, config Config) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var source *pulse.Source
	switch {
	case config.DeviceID != "":
		s, err := p.client.SourceByID(config.DeviceID)
		if err != nil {
			return nil, classify("pulse source", err)
		}
		source = s
	case config.EchoCancellation:
		sources, err := p.client.ListSources()
		if err != nil {
			return nil, classify("pulse list sources", err)
		}
		for _, s := range sources {
			if strings.Contains(s.ID(), "echo-cancel") {
				source = s
				break
			}
		}
	}
	if source == nil {
		s, err := p.client.DefaultSource()
		if err != nil {
			return nil, classify("pulse default source", err)
		}
		source = s
	}

	return &pulseCapture{
		client: p.client,
		source: source,
		config: config,
	}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	source   *pulse.Source
	config   Config
	callback atomic.Pointer[DataCallback]

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		cb := c.callback.Load()
		if cb == nil {
			return len(buf), nil
		}
		samples := make([]int16, len(buf))
		copy(samples, buf)
		(*cb)(samples)
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordSource(c.source),
	}
	if !c.config.NoiseSuppression {
		// leave the source at unity so the raw signal reaches the level meter
		opts = append(opts, pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}))
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return classify("pulse record", err)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done

	go func() {
		defer close(done)
		stream.Start()
		<-stop
		stream.Stop()
		stream.Close()
	}()

	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

func (c *pulseCapture) Close() {
	c.ClearCallback()
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	if c.source != nil {
		return c.source.Name()
	}
	return "system default"
}
