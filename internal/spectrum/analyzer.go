// ABOUTME: Real-time log-frequency spectrum analyzer for PCM blocks
// ABOUTME: Rolling buffer, windowed FFT, log band mapping, smoothing, peak hold
package spectrum

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultFFTSize  = 8192
	DefaultBands    = 120
	DefaultMinFreq  = 20.0
	DefaultMaxFreq  = 20000.0
	DefaultSmooth   = 0.7
	DefaultPeakHold = 1200 * time.Millisecond

	dbFloor     = -200.0
	peakDecayDB = 0.6 // dB per analysis frame once the hold expires
	magEpsilon  = 1e-12
)

// Config holds analyzer construction parameters. Zero values pick the
// defaults above.
type Config struct {
	FFTSize    int
	Bands      int
	MinFreq    float64
	MaxFreq    float64
	Smoothing  float64 // 0..1, higher keeps more of the previous frame
	PeakHold   time.Duration
	SampleRate int
}

// Block is one PCM block copy pushed from the streaming loop.
type Block struct {
	Samples    []int
	Channels   int
	BitDepth   int
	SampleRate int
}

// Analyzer consumes PCM block copies and produces a display-ready
// (smoothed dB, peak dB) pair every time its rolling buffer refills. All
// display arrays are allocated once and mutated in place.
type Analyzer struct {
	mu sync.Mutex

	fftSize    int
	bands      int
	minFreq    float64
	maxFreq    float64
	smoothing  float64
	peakHold   time.Duration
	weighting  bool
	sampleRate int

	buffer  []float64 // rolling time-domain buffer, length fftSize
	fill    int
	fft     *fourier.FFT
	win     []float64 // precomputed Hann coefficients
	scratch []float64
	coeffs  []complex128

	smoothed  []float64
	peaks     []float64
	peakTimes []time.Time

	in  chan Block
	now func() time.Time
}

// New creates an analyzer. The rolling buffer and band arrays are sized
// here and never resized.
func New(cfg Config) *Analyzer {
	if cfg.FFTSize == 0 {
		cfg.FFTSize = DefaultFFTSize
	}
	if cfg.Bands == 0 {
		cfg.Bands = DefaultBands
	}
	if cfg.MinFreq == 0 {
		cfg.MinFreq = DefaultMinFreq
	}
	if cfg.MaxFreq == 0 {
		cfg.MaxFreq = DefaultMaxFreq
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = DefaultSmooth
	}
	if cfg.PeakHold == 0 {
		cfg.PeakHold = DefaultPeakHold
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}

	a := &Analyzer{
		fftSize:    cfg.FFTSize,
		bands:      cfg.Bands,
		minFreq:    math.Max(1.0, cfg.MinFreq),
		maxFreq:    cfg.MaxFreq,
		smoothing:  clamp01(cfg.Smoothing),
		peakHold:   cfg.PeakHold,
		sampleRate: cfg.SampleRate,
		buffer:     make([]float64, cfg.FFTSize),
		fft:        fourier.NewFFT(cfg.FFTSize),
		win:        make([]float64, cfg.FFTSize),
		scratch:    make([]float64, cfg.FFTSize),
		coeffs:     make([]complex128, cfg.FFTSize/2+1),
		smoothed:   make([]float64, cfg.Bands),
		peaks:      make([]float64, cfg.Bands),
		peakTimes:  make([]time.Time, cfg.Bands),
		in:         make(chan Block, 1),
		now:        time.Now,
	}

	for i := range a.win {
		a.win[i] = 1.0
	}
	window.Hann(a.win)

	for i := 0; i < a.bands; i++ {
		a.smoothed[i] = dbFloor
		a.peaks[i] = dbFloor
	}

	return a
}

// Push hands a PCM block copy to the analyzer. It never blocks: the
// mailbox holds a single slot and a busy analyzer simply drops the block,
// so a slow consumer cannot create back-pressure on playback.
func (a *Analyzer) Push(b Block) {
	select {
	case a.in <- b:
	default:
	}
}

// Run consumes pushed blocks until the context is canceled.
func (a *Analyzer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-a.in:
			a.ingest(b)
		}
	}
}

// ingest folds one block into the rolling buffer and runs analysis every
// time the buffer is full.
func (a *Analyzer) ingest(b Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b.SampleRate > 0 {
		a.sampleRate = b.SampleRate
	}

	channels := b.Channels
	if channels < 1 {
		channels = 1
	}
	bitDepth := b.BitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	n := len(b.Samples) / channels
	if n == 0 {
		return
	}

	if n >= a.fftSize {
		// Oversized block: keep only its most recent tail.
		start := (n - a.fftSize) * channels
		for i := 0; i < a.fftSize; i++ {
			a.buffer[i] = float64(b.Samples[start+i*channels]) * scale
		}
		a.fill = a.fftSize
	} else {
		copy(a.buffer, a.buffer[n:])
		base := a.fftSize - n
		for i := 0; i < n; i++ {
			a.buffer[base+i] = float64(b.Samples[i*channels]) * scale
		}
		a.fill += n
		if a.fill > a.fftSize {
			a.fill = a.fftSize
		}
	}

	if a.fill >= a.fftSize {
		a.analyze()
	}
}

// analyze runs the window/FFT/band/smoothing/peak pipeline. Caller holds
// the mutex.
func (a *Analyzer) analyze() {
	for i := range a.scratch {
		a.scratch[i] = a.buffer[i] * a.win[i]
	}
	a.fft.Coefficients(a.coeffs, a.scratch)

	half := float64(a.fftSize) / 2.0
	binHz := float64(a.sampleRate) / float64(a.fftSize)

	// Magnitude spectrum in dB, optionally perceptually weighted.
	db := make([]float64, len(a.coeffs))
	for i, c := range a.coeffs {
		mag := cmplx.Abs(c) / half
		if mag < magEpsilon {
			mag = magEpsilon
		}
		db[i] = 20.0 * math.Log10(mag)
		if a.weighting {
			db[i] += AWeight(float64(i) * binHz)
		}
	}

	bandDB := a.mapToLogBands(db, binHz)

	// EMA smoothing: smoothing near 1 keeps much of the previous frame.
	alpha := 1.0 - a.smoothing
	now := a.now()
	for i := 0; i < a.bands; i++ {
		a.smoothed[i] = (1.0-alpha)*a.smoothed[i] + alpha*bandDB[i]

		v := a.smoothed[i]
		if v > a.peaks[i] {
			a.peaks[i] = v
			a.peakTimes[i] = now
		} else if now.Sub(a.peakTimes[i]) > a.peakHold {
			decayed := a.peaks[i] - peakDecayDB
			if decayed < v {
				decayed = v
			}
			a.peaks[i] = decayed
		}
	}
}

// mapToLogBands aggregates linear FFT bins into log-spaced frequency
// buckets by averaging bin power, falling back to the nearest single bin
// for empty buckets.
func (a *Analyzer) mapToLogBands(db []float64, binHz float64) []float64 {
	edges := logSpace(a.minFreq, a.maxFreq, a.bands+1)
	out := make([]float64, a.bands)

	for i := 0; i < a.bands; i++ {
		low, high := edges[i], edges[i+1]

		lo := int(math.Ceil(low / binHz))
		hi := int(math.Ceil(high / binHz)) // bins with freq in [low, high)
		if lo < 0 {
			lo = 0
		}
		if hi > len(db) {
			hi = len(db)
		}

		var power float64
		count := 0
		for bin := lo; bin < hi; bin++ {
			power += math.Pow(10.0, db[bin]/10.0)
			count++
		}

		if count == 0 {
			center := (low + high) / 2.0
			bin := int(math.Round(center / binHz))
			if bin < 0 {
				bin = 0
			}
			if bin >= len(db) {
				bin = len(db) - 1
			}
			power = math.Pow(10.0, db[bin]/10.0)
			count = 1
		}

		mean := power / float64(count)
		if mean < magEpsilon {
			mean = magEpsilon
		}
		out[i] = 10.0 * math.Log10(mean)
	}

	return out
}

// GetDisplayFrame returns copies of the smoothed dB and peak dB arrays.
func (a *Analyzer) GetDisplayFrame() (smoothed, peaks []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	smoothed = make([]float64, a.bands)
	peaks = make([]float64, a.bands)
	copy(smoothed, a.smoothed)
	copy(peaks, a.peaks)
	return smoothed, peaks
}

// BandFrequencies returns the geometric center frequency of each band.
func (a *Analyzer) BandFrequencies() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	edges := logSpace(a.minFreq, a.maxFreq, a.bands+1)
	out := make([]float64, a.bands)
	for i := 0; i < a.bands; i++ {
		out[i] = math.Sqrt(edges[i] * edges[i+1])
	}
	return out
}

// SetFrequencyRange changes the displayed frequency range.
func (a *Analyzer) SetFrequencyRange(minHz, maxHz float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.minFreq = math.Max(1.0, minHz)
	a.maxFreq = maxHz
}

// SetWeighting toggles the perceptual weighting curve.
func (a *Analyzer) SetWeighting(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weighting = enabled
}

// Weighting reports whether perceptual weighting is applied.
func (a *Analyzer) Weighting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weighting
}

// SetSmoothing sets the EMA smoothing factor, clamped to 0..1.
func (a *Analyzer) SetSmoothing(factor float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothing = clamp01(factor)
}

// SetPeakHold sets how long peaks hold before decaying.
func (a *Analyzer) SetPeakHold(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peakHold = d
}

// SetSampleRate updates the sample rate used to map bins to frequencies.
func (a *Analyzer) SetSampleRate(rate int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rate > 0 {
		a.sampleRate = rate
	}
}

func logSpace(min, max float64, n int) []float64 {
	out := make([]float64, n)
	logMin := math.Log10(min)
	step := (math.Log10(max) - logMin) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10.0, logMin+float64(i)*step)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
