package audio

import (
	"fmt"
	"strings"
)

const (
	DefaultSampleRate = 16000
	BitsPerSample     = 16
)

// Encoder turns mono 16-bit PCM blocks into a container format
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	MimeType() string
	TotalSamples() uint64
}

// EncoderFactory creates an encoder for a sample rate
type EncoderFactory func(sampleRate int) (Encoder, error)

var encoders = map[string]EncoderFactory{
	"audio/flac": func(sampleRate int) (Encoder, error) { return NewFlac(sampleRate) },
	"audio/wav":  func(sampleRate int) (Encoder, error) { return NewWav(sampleRate), nil },
}

func baseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// IsTypeSupported reports whether an encoder exists for mimeType. Codec
// parameters are only accepted when they name the container's own codec.
func IsTypeSupported(mimeType string) bool {
	base := baseType(mimeType)
	if _, ok := encoders[base]; !ok {
		return false
	}
	_, params, hasParams := strings.Cut(mimeType, ";")
	if !hasParams {
		return true
	}
	params = strings.ToLower(strings.ReplaceAll(params, " ", ""))
	switch base {
	case "audio/flac":
		return params == "codecs=flac"
	case "audio/wav":
		return params == "codecs=1"
	}
	return false
}

// SelectMimeType returns the first supported entry of preferences
func SelectMimeType(preferences []string) (string, bool) {
	for _, mimeType := range preferences {
		if IsTypeSupported(mimeType) {
			return mimeType, true
		}
	}
	return "", false
}

// NewEncoder creates an encoder for a supported MIME type
func NewEncoder(mimeType string, sampleRate int) (Encoder, error) {
	if !IsTypeSupported(mimeType) {
		return nil, fmt.Errorf("unsupported audio type %q", mimeType)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return encoders[baseType(mimeType)](sampleRate)
}
