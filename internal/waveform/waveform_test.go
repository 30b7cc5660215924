package waveform

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testID(station string) StationID {
	return StationID{Network: "XX", Station: station, Location: "00", Channel: "HHZ"}
}

func TestStationID_String(t *testing.T) {
	id := StationID{Network: "UW", Station: "REDM", Location: "01", Channel: "EHZ"}
	if got, want := id.String(), "UW.REDM.01.EHZ"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewTrace_CopiesSamples(t *testing.T) {
	samples := []float64{1, 2, 3}
	tr, err := NewTrace(testID("A"), 100, testStart, samples)
	if err != nil {
		t.Fatalf("NewTrace failed: %v", err)
	}

	samples[0] = 99
	if tr.Samples[0] != 1 {
		t.Errorf("trace samples aliased the caller's buffer: got %g, want 1", tr.Samples[0])
	}
}

func TestNewTrace_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		samples []float64
	}{
		{"zero rate", 0, []float64{1}},
		{"negative rate", -50, []float64{1}},
		{"no samples", 100, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrace(testID("A"), tt.rate, testStart, tt.samples)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Errorf("error %v is not an InputError", err)
			}
		})
	}
}

func mustTrace(t *testing.T, station string, rate float64, samples []float64) Trace {
	t.Helper()
	tr, err := NewTrace(testID(station), rate, testStart, samples)
	if err != nil {
		t.Fatalf("NewTrace failed: %v", err)
	}
	return tr
}

func TestNewTraceSet_Valid(t *testing.T) {
	traces := []Trace{
		mustTrace(t, "A", 100, []float64{1, 2, 3}),
		mustTrace(t, "B", 100, []float64{4, 5, 6}),
	}
	ts, err := NewTraceSet(traces, []time.Time{testStart, testStart})
	if err != nil {
		t.Fatalf("NewTraceSet failed: %v", err)
	}
	if ts.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ts.Len())
	}
	if ts.SampleRate() != 100 {
		t.Errorf("SampleRate() = %g, want 100", ts.SampleRate())
	}
	if ts.NumSamples() != 3 {
		t.Errorf("NumSamples() = %d, want 3", ts.NumSamples())
	}
}

func TestNewTraceSet_PreconditionViolations(t *testing.T) {
	a := mustTrace(t, "A", 100, []float64{1, 2, 3})
	tests := []struct {
		name     string
		traces   []Trace
		triggers []time.Time
	}{
		{"empty", nil, nil},
		{"trigger count mismatch", []Trace{a}, []time.Time{testStart, testStart}},
		{"length mismatch", []Trace{a, mustTrace(t, "B", 100, []float64{1, 2})},
			[]time.Time{testStart, testStart}},
		{"rate mismatch", []Trace{a, mustTrace(t, "B", 50, []float64{1, 2, 3})},
			[]time.Time{testStart, testStart}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTraceSet(tt.traces, tt.triggers)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Errorf("error %v is not an InputError", err)
			}
		})
	}
}

func TestTraceSet_JSONRoundTrip(t *testing.T) {
	traces := []Trace{
		mustTrace(t, "A", 100, []float64{0.5, -1.25, 3}),
		mustTrace(t, "B", 100, []float64{2, 0, -4.5}),
	}
	triggers := []time.Time{testStart, testStart.Add(2 * time.Second)}
	ts, err := NewTraceSet(traces, triggers)
	if err != nil {
		t.Fatalf("NewTraceSet failed: %v", err)
	}

	data, err := MarshalTraceSet(ts)
	if err != nil {
		t.Fatalf("MarshalTraceSet failed: %v", err)
	}
	got, err := ParseTraceSet(data)
	if err != nil {
		t.Fatalf("ParseTraceSet failed: %v", err)
	}

	if diff := cmp.Diff(ts, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTraceSet_RejectsBadInput(t *testing.T) {
	if _, err := ParseTraceSet([]byte("not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
	// Structurally valid JSON with mismatched trace lengths must still fail.
	doc := `{"traces":[
		{"network":"XX","station":"A","location":"00","channel":"HHZ",
		 "sample_rate":100,"start":"2024-03-01T12:00:00Z","trigger":"2024-03-01T12:00:00Z","samples":[1,2,3]},
		{"network":"XX","station":"B","location":"00","channel":"HHZ",
		 "sample_rate":100,"start":"2024-03-01T12:00:00Z","trigger":"2024-03-01T12:00:00Z","samples":[1,2]}]}`
	if _, err := ParseTraceSet([]byte(doc)); err == nil {
		t.Error("expected error for mismatched trace lengths")
	}
}
