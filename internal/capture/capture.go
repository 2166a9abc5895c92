// Package capture provides microphone input backends: PulseAudio on Linux,
// miniaudio elsewhere, a browser reached over the voice websocket, and a
// fake for tests. Every backend delivers mono 16-bit PCM.
package capture

import (
	"context"
	"errors"
	"strings"

	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/voiceerr"
)

// DataCallback receives captured mono samples. The slice is owned by the
// callee.
type DataCallback func(samples []int16)

// Config describes the requested capture stream
type Config struct {
	SampleRate       uint32
	Channels         uint32
	EchoCancellation bool
	NoiseSuppression bool
	DeviceID         string
}

// DeviceInfo identifies a capture device
type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context opens capture devices
type Context interface {
	Devices() ([]DeviceInfo, error)
	// NewCapture acquires a device. It fails with a voiceerr PermissionDenied
	// or DeviceUnavailable error.
	NewCapture(ctx context.Context, config Config) (Device, error)
	Close()
}

// Device is an acquired capture device
type Device interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

var permissionMarkers = []string{"access denied", "permission denied", "not allowed", "notallowederror"}

// classify maps a backend error to the voice error taxonomy
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *voiceerr.Error
	if errors.As(err, &verr) {
		return err
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return voiceerr.New(voiceerr.PermissionDenied, op, err)
		}
	}
	return voiceerr.New(voiceerr.DeviceUnavailable, op, err)
}

func bytesToMono(data []byte, channels int) []int16 {
	samples, err := audio.BytesToSamples(data[:len(data)&^1])
	if err != nil {
		return nil
	}
	return audio.Downmix(samples, channels)
}
