package audio

import (
	"bytes"
	"encoding/binary"
	"sync"
)

const wavHeaderSize = 44

// WavEncoder buffers PCM and writes a canonical RIFF/WAVE file on Close
type WavEncoder struct {
	sampleRate int
	pcm        bytes.Buffer
	out        []byte
	total      uint64
	closed     bool
	mu         sync.Mutex
}

// NewWav creates a mono 16-bit WAV encoder
func NewWav(sampleRate int) *WavEncoder {
	return &WavEncoder{sampleRate: sampleRate}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pcm.Write(SamplesToBytes(block))
	e.total += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	dataSize := e.pcm.Len()
	out := make([]byte, wavHeaderSize, wavHeaderSize+dataSize)
	writeWavHeader(out, e.sampleRate, dataSize)
	e.out = append(out, e.pcm.Bytes()...)
	e.pcm.Reset()
	return nil
}

// Bytes returns the finished file; nil before Close
func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WavEncoder) MimeType() string {
	return "audio/wav"
}

func (e *WavEncoder) TotalSamples() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func writeWavHeader(header []byte, sampleRate, dataSize int) {
	const channels = 1
	blockAlign := channels * BitsPerSample / 8

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], BitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
}
