// Package xcorr implements the pairwise correlation engine: normalized
// cross-correlation of trace pairs and assembly of the full coefficient and
// lag matrices over a trace set.
package xcorr

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/sunjingtao1119/GISMO/internal/waveform"
)

// Params configures the pairwise correlator.
type Params struct {
	// MaxLagSeconds bounds the lag search window. Zero means full overlap
	// (every lag from -(N-1) to N-1 samples is searched).
	MaxLagSeconds float64

	// FFTMinLength is the trace length at which the correlator switches from
	// the direct time-domain sum to the frequency-domain implementation. Both
	// paths produce the same correlation sequence; the FFT path is O(N log N)
	// instead of O(N*K).
	FFTMinLength int
}

// DefaultFFTMinLength is the default crossover length for the FFT path.
const DefaultFFTMinLength = 512

// DefaultParams returns the correlator defaults: full-overlap lag search and
// the standard FFT crossover.
func DefaultParams() Params {
	return Params{MaxLagSeconds: 0, FFTMinLength: DefaultFFTMinLength}
}

// Correlator computes the normalized cross-correlation peak for one ordered
// trace pair.
//
// The correlation sequence is cc(k) = sum_n a'[n] * b'[n-k] over the sample
// overlap, where a' and b' are the demeaned traces. Positive k therefore
// means the matched feature on trace a occurs later than on trace b, so the
// returned lag (k / sampleRate, in seconds) follows the LagMatrix sign
// convention: aligning a to b requires adding the lag to a's trigger.
type Correlator struct {
	params Params
}

// NewCorrelator creates a correlator with the given parameters. Zero-value
// fields fall back to defaults.
func NewCorrelator(params Params) *Correlator {
	if params.FFTMinLength <= 0 {
		params.FFTMinLength = DefaultFFTMinLength
	}
	return &Correlator{params: params}
}

// Params returns the correlator parameters.
func (c *Correlator) Params() Params { return c.params }

// Correlate returns the peak normalized cross-correlation coefficient and the
// lag, in seconds, at which the peak occurs. The peak is the lag of maximal
// correlation magnitude; the signed coefficient at that lag is returned.
//
// A zero-variance (flat) trace on either side yields the sentinel (0, 0)
// rather than an error: a degenerate pair must never abort a whole matrix
// build.
func (c *Correlator) Correlate(a, b waveform.Trace) (coeff, lagSeconds float64, err error) {
	if len(a.Samples) != len(b.Samples) {
		return 0, 0, &waveform.InputError{
			Reason: "correlate: traces have different lengths"}
	}
	if a.SampleRate != b.SampleRate {
		return 0, 0, &waveform.InputError{
			Reason: "correlate: traces have different sample rates"}
	}

	n := len(a.Samples)
	da := demean(a.Samples)
	db := demean(b.Samples)

	norm := math.Sqrt(floats.Dot(da, da) * floats.Dot(db, db))
	if norm == 0 || math.IsNaN(norm) {
		return 0, 0, nil
	}

	maxLag := n - 1
	if c.params.MaxLagSeconds > 0 {
		k := int(math.Round(c.params.MaxLagSeconds * a.SampleRate))
		if k < maxLag {
			maxLag = k
		}
		if maxLag < 0 {
			maxLag = 0
		}
	}

	var cc []float64
	if n >= c.params.FFTMinLength {
		cc = crossCorrelateFFT(da, db, maxLag)
	} else {
		cc = crossCorrelateDirect(da, db, maxLag)
	}

	bestK := peakLag(cc, maxLag)
	coeff = cc[bestK+maxLag] / norm
	// Rounding can push a perfect match a few ulps past 1; the coefficient
	// range is part of the matrix contract.
	coeff = math.Max(-1, math.Min(1, coeff))
	lagSeconds = float64(bestK) / a.SampleRate
	return coeff, lagSeconds, nil
}

// demean returns a copy of x with its mean removed.
func demean(x []float64) []float64 {
	mean := floats.Sum(x) / float64(len(x))
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - mean
	}
	return out
}

// crossCorrelateDirect computes cc(k) = sum_n a[n]*b[n-k] for k in
// [-maxLag, maxLag] by direct summation over the valid overlap. The result is
// indexed cc[k+maxLag].
func crossCorrelateDirect(a, b []float64, maxLag int) []float64 {
	n := len(a)
	cc := make([]float64, 2*maxLag+1)
	for k := -maxLag; k <= maxLag; k++ {
		lo, hi := 0, n
		if k > 0 {
			lo = k
		} else {
			hi = n + k
		}
		var sum float64
		for i := lo; i < hi; i++ {
			sum += a[i] * b[i-k]
		}
		cc[k+maxLag] = sum
	}
	return cc
}

// crossCorrelateFFT computes the same cc(k) window via the real FFT: the
// cross-spectrum A * conj(B) of the zero-padded traces inverse-transforms to
// the circular correlation, with negative lags wrapped to the tail.
func crossCorrelateFFT(a, b []float64, maxLag int) []float64 {
	n := len(a)
	padded := nextPow2(2*n - 1)

	aPad := make([]float64, padded)
	bPad := make([]float64, padded)
	copy(aPad, a)
	copy(bPad, b)

	fft := fourier.NewFFT(padded)
	ca := fft.Coefficients(nil, aPad)
	cb := fft.Coefficients(nil, bPad)

	cross := make([]complex128, len(ca))
	for i := range ca {
		cross[i] = ca[i] * cmplx.Conj(cb[i])
	}

	// Sequence(Coefficients(x)) scales by the transform length, so divide.
	full := fft.Sequence(nil, cross)
	scale := 1 / float64(padded)

	cc := make([]float64, 2*maxLag+1)
	for k := -maxLag; k <= maxLag; k++ {
		idx := k
		if k < 0 {
			idx = padded + k
		}
		cc[k+maxLag] = full[idx] * scale
	}
	return cc
}

// peakLag returns the lag k in [-maxLag, maxLag] maximizing |cc(k)|. Ties are
// broken deterministically: the smaller |k| wins, and between k and -k of
// equal magnitude the negative lag wins (it is scanned first).
func peakLag(cc []float64, maxLag int) int {
	bestK := -maxLag
	bestMag := math.Abs(cc[0])
	for k := -maxLag + 1; k <= maxLag; k++ {
		mag := math.Abs(cc[k+maxLag])
		switch {
		case mag > bestMag:
			bestK, bestMag = k, mag
		case mag == bestMag && abs(k) < abs(bestK):
			bestK = k
		}
	}
	return bestK
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
