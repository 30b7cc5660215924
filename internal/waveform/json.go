package waveform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// traceDoc is the JSON wire form of one trace plus its trigger.
type traceDoc struct {
	Network    string    `json:"network"`
	Station    string    `json:"station"`
	Location   string    `json:"location"`
	Channel    string    `json:"channel"`
	SampleRate float64   `json:"sample_rate"`
	Start      time.Time `json:"start"`
	Trigger    time.Time `json:"trigger"`
	Samples    []float64 `json:"samples"`
}

// traceSetDoc is the JSON wire form of a TraceSet.
type traceSetDoc struct {
	Traces []traceDoc `json:"traces"`
}

// ParseTraceSet decodes a TraceSet from its JSON document form and validates
// the unification preconditions.
func ParseTraceSet(data []byte) (*TraceSet, error) {
	var doc traceSetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse trace set JSON: %w", err)
	}

	traces := make([]Trace, 0, len(doc.Traces))
	triggers := make([]time.Time, 0, len(doc.Traces))
	for _, td := range doc.Traces {
		id := StationID{Network: td.Network, Station: td.Station, Location: td.Location, Channel: td.Channel}
		tr, err := NewTrace(id, td.SampleRate, td.Start, td.Samples)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tr)
		triggers = append(triggers, td.Trigger)
	}
	return NewTraceSet(traces, triggers)
}

// LoadTraceSetFile reads and decodes a trace set JSON file. The path must
// carry a .json extension and the file is capped at 256MB for safety.
func LoadTraceSetFile(path string) (*TraceSet, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("trace set file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat trace set file: %w", err)
	}
	const maxFileSize = 256 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("trace set file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace set file: %w", err)
	}
	return ParseTraceSet(data)
}

// MarshalTraceSet encodes a TraceSet into its JSON document form.
func MarshalTraceSet(ts *TraceSet) ([]byte, error) {
	doc := traceSetDoc{Traces: make([]traceDoc, ts.Len())}
	for i, tr := range ts.Traces {
		doc.Traces[i] = traceDoc{
			Network:    tr.ID.Network,
			Station:    tr.ID.Station,
			Location:   tr.ID.Location,
			Channel:    tr.ID.Channel,
			SampleRate: tr.SampleRate,
			Start:      tr.Start,
			Trigger:    ts.Triggers[i],
			Samples:    tr.Samples,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}
