package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser computes a byte-scaled frequency spectrum of the newest samples,
// with the windowing, smoothing and decibel mapping browsers use for
// level meters
type Analyser struct {
	fftSize     int
	smoothing   float64
	minDecibels float64
	maxDecibels float64

	fft      *fourier.FFT
	window   []float64
	input    []float64
	coeffs   []complex128
	smoothed []float64
	bytes    []byte
}

// NewAnalyser creates an analyser. fftSize must be a power of two; invalid
// values fall back to 256.
func NewAnalyser(fftSize int, smoothing float64) *Analyser {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		fftSize = 256
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = 0.8
	}

	a := &Analyser{
		fftSize:     fftSize,
		smoothing:   smoothing,
		minDecibels: -100,
		maxDecibels: -30,
		fft:         fourier.NewFFT(fftSize),
		window:      blackman(fftSize),
		input:       make([]float64, fftSize),
		smoothed:    make([]float64, fftSize/2),
		bytes:       make([]byte, fftSize/2),
	}
	return a
}

// FFTSize returns the number of samples analysed per frame
func (a *Analyser) FFTSize() int {
	return a.fftSize
}

// ByteFrequencyData analyses samples (the newest FFTSize of them) and
// returns FFTSize/2 bins scaled to 0..255. The slice is reused between calls.
func (a *Analyser) ByteFrequencyData(samples []int16) []byte {
	if len(samples) > a.fftSize {
		samples = samples[len(samples)-a.fftSize:]
	}
	offset := a.fftSize - len(samples)
	for i := 0; i < offset; i++ {
		a.input[i] = 0
	}
	for i, s := range samples {
		a.input[offset+i] = float64(s) / 32768.0 * a.window[offset+i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.input)

	scale := 255.0 / (a.maxDecibels - a.minDecibels)
	for k := range a.smoothed {
		magnitude := cmplx.Abs(a.coeffs[k]) / float64(a.fftSize)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*magnitude

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		value := (db - a.minDecibels) * scale
		switch {
		case value < 0 || math.IsInf(value, -1):
			a.bytes[k] = 0
		case value > 255:
			a.bytes[k] = 255
		default:
			a.bytes[k] = byte(value)
		}
	}
	return a.bytes
}

// Level returns the mean of the byte spectrum normalized to [0,1]
func (a *Analyser) Level(samples []int16) float64 {
	data := a.ByteFrequencyData(samples)
	if len(data) == 0 {
		return 0
	}
	sum := 0
	for _, b := range data {
		sum += int(b)
	}
	return float64(sum) / float64(len(data)) / 255.0
}

// Reset clears the smoothing history
func (a *Analyser) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2

	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
