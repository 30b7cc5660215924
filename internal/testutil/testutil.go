// Package testutil provides shared test helpers and synthetic waveform
// fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/sunjingtao1119/GISMO/internal/waveform"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within tol of want.
func AssertInDelta(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g (±%g)", name, got, want, tol)
	}
}

// RickerPulse generates a Ricker wavelet of n samples with the peak at the
// given sample and the given width in samples. It is the standard synthetic
// source shape for correlation tests.
func RickerPulse(n, center int, width float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		u := float64(i-center) / width
		out[i] = (1 - 2*math.Pi*math.Pi*u*u) * math.Exp(-math.Pi*math.Pi*u*u)
	}
	return out
}

// ShiftedTraceSet builds a TraceSet of len(shifts) traces sharing one pulse
// shape, trace i delayed by shifts[i] whole samples. All traces share the
// sample rate and a common trigger, so the expected lag between traces i and
// j is (shifts[i]-shifts[j])/rate seconds.
func ShiftedTraceSet(t *testing.T, n int, rate float64, shifts []int) *waveform.TraceSet {
	t.Helper()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	traces := make([]waveform.Trace, len(shifts))
	triggers := make([]time.Time, len(shifts))
	for i, shift := range shifts {
		id := waveform.StationID{
			Network: "XX", Station: stationName(i), Location: "00", Channel: "HHZ",
		}
		samples := RickerPulse(n, n/4+shift, 6)
		tr, err := waveform.NewTrace(id, rate, base, samples)
		if err != nil {
			t.Fatalf("failed to build trace %d: %v", i, err)
		}
		traces[i] = tr
		triggers[i] = base
	}
	ts, err := waveform.NewTraceSet(traces, triggers)
	if err != nil {
		t.Fatalf("failed to build trace set: %v", err)
	}
	return ts
}

// FlatTrace returns a zero-variance trace, the degenerate correlator input.
func FlatTrace(t *testing.T, n int, rate float64) waveform.Trace {
	t.Helper()
	id := waveform.StationID{Network: "XX", Station: "FLAT", Location: "00", Channel: "HHZ"}
	tr, err := waveform.NewTrace(id, rate, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		make([]float64, n))
	if err != nil {
		t.Fatalf("failed to build flat trace: %v", err)
	}
	return tr
}

func stationName(i int) string {
	return "ST" + string(rune('A'+i%26)) + string(rune('A'+(i/26)%26))
}
