// Package waveform holds the trace data model consumed by the correlation
// pipeline: sampled seismic traces with station identity, and trace sets
// pairing traces with their trigger instants.
//
// Preprocessing (detrending, tapering, resampling, gap filling, length and
// rate unification) is a collaborator's responsibility. A TraceSet handed to
// the pipeline must already be unified; NewTraceSet verifies this and fails
// fast with an InputError when the precondition is violated.
package waveform

import (
	"fmt"
	"time"
)

// InputError marks a precondition violation in data handed to the pipeline
// (mismatched lengths, missing triggers, unequal sample rates). It is never
// recovered internally; callers must fix the input.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "waveform input: " + e.Reason }

func inputErrorf(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// StationID identifies the recording channel of a trace using the usual
// network/station/location/channel tuple.
type StationID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// String renders the identity as "NET.STA.LOC.CHA".
func (s StationID) String() string {
	return s.Network + "." + s.Station + "." + s.Location + "." + s.Channel
}

// Trace is one sampled time series with station metadata. Traces are treated
// as immutable once constructed: neither the pipeline nor callers may modify
// Samples after a Trace has entered a TraceSet.
type Trace struct {
	ID         StationID
	SampleRate float64 // Hz
	Start      time.Time
	Samples    []float64
}

// NewTrace builds a Trace, copying the sample slice so later mutation of the
// caller's buffer cannot alias into the pipeline.
func NewTrace(id StationID, sampleRate float64, start time.Time, samples []float64) (Trace, error) {
	if sampleRate <= 0 {
		return Trace{}, inputErrorf("trace %s: sample rate must be positive, got %g", id, sampleRate)
	}
	if len(samples) == 0 {
		return Trace{}, inputErrorf("trace %s: no samples", id)
	}
	buf := make([]float64, len(samples))
	copy(buf, samples)
	return Trace{ID: id, SampleRate: sampleRate, Start: start, Samples: buf}, nil
}

// Duration returns the time span covered by the trace samples.
func (t Trace) Duration() time.Duration {
	return time.Duration(float64(len(t.Samples)) / t.SampleRate * float64(time.Second))
}

// TraceSet is an ordered collection of M equal-length, equal-rate traces plus
// a parallel vector of M trigger instants. The trigger is the per-trace
// reference time all lags are measured against.
type TraceSet struct {
	Traces   []Trace
	Triggers []time.Time
}

// NewTraceSet validates the unification preconditions and returns the set.
// All traces must share sample count and sample rate, and the trigger vector
// must be the same length as the trace list.
func NewTraceSet(traces []Trace, triggers []time.Time) (*TraceSet, error) {
	ts := &TraceSet{Traces: traces, Triggers: triggers}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Validate re-checks the TraceSet invariants. Builders call this on entry so
// a set assembled by hand fails fast rather than mid-computation.
func (ts *TraceSet) Validate() error {
	if len(ts.Traces) < 1 {
		return inputErrorf("trace set must hold at least one trace")
	}
	if len(ts.Triggers) != len(ts.Traces) {
		return inputErrorf("trigger count %d does not match trace count %d",
			len(ts.Triggers), len(ts.Traces))
	}
	n := len(ts.Traces[0].Samples)
	rate := ts.Traces[0].SampleRate
	for i, tr := range ts.Traces {
		if len(tr.Samples) != n {
			return inputErrorf("trace %d (%s) has %d samples, want %d",
				i, tr.ID, len(tr.Samples), n)
		}
		if tr.SampleRate != rate {
			return inputErrorf("trace %d (%s) has sample rate %g Hz, want %g Hz",
				i, tr.ID, tr.SampleRate, rate)
		}
	}
	return nil
}

// Len returns M, the number of traces.
func (ts *TraceSet) Len() int { return len(ts.Traces) }

// SampleRate returns the common sample rate in Hz.
func (ts *TraceSet) SampleRate() float64 { return ts.Traces[0].SampleRate }

// NumSamples returns the common per-trace sample count.
func (ts *TraceSet) NumSamples() int { return len(ts.Traces[0].Samples) }
