// Package fbank implements a statistics-pooling speaker embedding over log
// mel filterbank features.
//
// The embedding is the per-channel mean followed by the per-channel standard
// deviation of the log mel energies, L2-normalised. It is a lightweight
// stand-in for a neural speaker encoder with the same input and output
// contract.
package fbank

import (
	"errors"
	"math"
	"math/cmplx"

	"speaker-diarization-service/internal/acoustic"
)

// Kind is the model-file kind accepted by Load.
const Kind = "fbank-stats"

// ErrEmptyInput is returned by Compute for an empty sample slice.
var ErrEmptyInput = errors.New("fbank: empty input")

// Model holds the feature extraction parameters.
type Model struct {
	Kind        string  `yaml:"kind"`
	SampleRate  int     `yaml:"sample_rate"`
	NumMels     int     `yaml:"num_mels"`
	FrameLength int     `yaml:"frame_length"`
	FrameShift  int     `yaml:"frame_shift"`
	PreEmphasis float64 `yaml:"pre_emphasis"`
	EnergyFloor float64 `yaml:"energy_floor"`
}

// DefaultModel returns parameters for 16 kHz audio (25 ms / 10 ms frames).
func DefaultModel() Model {
	return Model{
		Kind:        Kind,
		SampleRate:  16000,
		NumMels:     40,
		FrameLength: 400,
		FrameShift:  160,
		PreEmphasis: 0.97,
		EnergyFloor: 1e-10,
	}
}

// Extractor implements acoustic.Extractor. It reuses its FFT and feature
// buffers between calls and must not be used concurrently.
type Extractor struct {
	model      Model
	fftSize    int
	window     []float64
	filterbank [][]float64
	fftBuf     []complex128
	power      []float64
	signal     []float64
}

// Load reads an embedding model file. Missing fields take their
// DefaultModel values.
func Load(path string) (*Extractor, error) {
	m := DefaultModel()
	if err := acoustic.LoadModelFile(path, Kind, &m); err != nil {
		return nil, err
	}
	return New(m), nil
}

// New creates an Extractor and precomputes its window and filterbank.
func New(m Model) *Extractor {
	d := DefaultModel()
	if m.SampleRate <= 0 {
		m.SampleRate = d.SampleRate
	}
	if m.NumMels <= 0 {
		m.NumMels = d.NumMels
	}
	if m.FrameLength <= 1 {
		m.FrameLength = d.FrameLength
	}
	if m.FrameShift <= 0 {
		m.FrameShift = d.FrameShift
	}
	if m.EnergyFloor <= 0 {
		m.EnergyFloor = d.EnergyFloor
	}

	fftSize := nextPow2(m.FrameLength)
	return &Extractor{
		model:      m,
		fftSize:    fftSize,
		window:     hammingWindow(m.FrameLength),
		filterbank: melFilterbank(m.NumMels, fftSize, m.SampleRate),
		fftBuf:     make([]complex128, fftSize),
		power:      make([]float64, fftSize/2+1),
	}
}

// Dimension returns the embedding length.
func (e *Extractor) Dimension() int {
	return 2 * e.model.NumMels
}

// Compute returns the speaker embedding of samples. Inputs shorter than one
// frame are zero-padded to a single frame.
func (e *Extractor) Compute(samples []int16) ([]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	e.prepareSignal(samples)
	n := len(e.signal)
	numFrames := (n-e.model.FrameLength)/e.model.FrameShift + 1
	numMels := e.model.NumMels

	sum := make([]float64, numMels)
	sumSq := make([]float64, numMels)
	for f := 0; f < numFrames; f++ {
		e.frameEnergies(e.signal[f*e.model.FrameShift:f*e.model.FrameShift+e.model.FrameLength], func(m int, v float64) {
			sum[m] += v
			sumSq[m] += v * v
		})
	}

	emb := make([]float32, 2*numMels)
	for m := 0; m < numMels; m++ {
		mean := sum[m] / float64(numFrames)
		variance := sumSq[m]/float64(numFrames) - mean*mean
		if variance < 0 {
			variance = 0
		}
		emb[m] = float32(mean)
		emb[numMels+m] = float32(math.Sqrt(variance))
	}
	l2Norm(emb)
	return emb, nil
}

// prepareSignal converts samples to floats, applies pre-emphasis and pads to
// at least one frame.
func (e *Extractor) prepareSignal(samples []int16) {
	n := max(len(samples), e.model.FrameLength)
	if cap(e.signal) < n {
		e.signal = make([]float64, n)
	}
	e.signal = e.signal[:n]
	for i := range e.signal {
		if i < len(samples) {
			e.signal[i] = float64(samples[i])
		} else {
			e.signal[i] = 0
		}
	}
	if p := e.model.PreEmphasis; p > 0 {
		for i := len(samples) - 1; i > 0; i-- {
			e.signal[i] -= p * e.signal[i-1]
		}
		e.signal[0] *= 1 - p
	}
}

func (e *Extractor) frameEnergies(frame []float64, emit func(m int, v float64)) {
	for i := range e.fftBuf {
		e.fftBuf[i] = 0
	}
	for i, v := range frame {
		e.fftBuf[i] = complex(v*e.window[i], 0)
	}
	fft(e.fftBuf)
	for k := range e.power {
		r, im := real(e.fftBuf[k]), imag(e.fftBuf[k])
		e.power[k] = r*r + im*im
	}
	for m, weights := range e.filterbank {
		var energy float64
		for k, w := range weights {
			energy += w * e.power[k]
		}
		emit(m, math.Log(max(energy, e.model.EnergyFloor)))
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank returns [numMels][fftSize/2+1] triangular filter weights.
func melFilterbank(numMels, fftSize, sampleRate int) [][]float64 {
	half := fftSize/2 + 1
	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)

	bins := make([]int, numMels+2)
	for i := range bins {
		mel := lo + float64(i)*(hi-lo)/float64(numMels+1)
		bins[i] = min(int(math.Floor(melToHz(mel)*float64(fftSize)/float64(sampleRate))), half-1)
	}

	fb := make([][]float64, numMels)
	for m := range fb {
		fb[m] = make([]float64, half)
		left, center, right := bins[m], bins[m+1], bins[m+2]
		for k := left; k <= center && center > left; k++ {
			fb[m][k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && right > center; k++ {
			fb[m][k] = float64(right-k) / float64(right-center)
		}
	}
	return fb
}

// fft is an in-place radix-2 Cooley-Tukey transform; len(x) must be a power
// of two.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		wn := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := x[start+k]
				t := w * x[start+k+half]
				x[start+k] = u + t
				x[start+k+half] = u - t
				w *= wn
			}
		}
	}
}

func l2Norm(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
