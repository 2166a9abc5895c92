package audio

import (
	"testing"
)

func TestBytesToSamples(t *testing.T) {
	samples, err := BytesToSamples([]byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80})
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	expected := []int16{1, -1, -32768}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i := range expected {
		if samples[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], samples[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("Expected error for odd length")
	}
}

func TestSamplesToBytes(t *testing.T) {
	data := SamplesToBytes([]int16{1, -1})
	expected := []byte{0x01, 0x00, 0xFF, 0xFF}
	for i := range expected {
		if data[i] != expected[i] {
			t.Errorf("Byte %d: expected %#x, got %#x", i, expected[i], data[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	mono := Downmix([]int16{100, 300, -200, -400}, 2)
	if len(mono) != 2 || mono[0] != 200 || mono[1] != -300 {
		t.Errorf("Expected [200 -300], got %v", mono)
	}
	input := []int16{1, 2, 3}
	if out := Downmix(input, 1); len(out) != 3 {
		t.Errorf("Expected mono passthrough, got %v", out)
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i)
	}

	out := Resample(samples, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("Expected 160 samples, got %d", len(out))
	}
	if out[1] != 3 {
		t.Errorf("Expected every third sample, got %d at index 1", out[1])
	}

	same := Resample(samples, 16000, 16000)
	if len(same) != len(samples) {
		t.Error("Expected identical rates to return input")
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(16000, 16000); d != 1000 {
		t.Errorf("Expected 1000ms, got %d", d)
	}
	if d := Duration(100, 0); d != 0 {
		t.Errorf("Expected 0 for invalid rate, got %d", d)
	}
}
