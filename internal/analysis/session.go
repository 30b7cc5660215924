// Package analysis ties the correlation pipeline together: a Session owns one
// TraceSet snapshot and lazily derives the coefficient/lag matrices, the
// delay-time statistics, the linkage tree and the cluster assignment from it,
// invalidating every derived product whenever the snapshot is replaced.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunjingtao1119/GISMO/internal/delaytime"
	"github.com/sunjingtao1119/GISMO/internal/linkage"
	"github.com/sunjingtao1119/GISMO/internal/waveform"
	"github.com/sunjingtao1119/GISMO/internal/xcorr"
)

// DistanceConvention is the fixed similarity-to-distance rule used by the
// linkage stage. Persisted alongside results so stored trees are rendered
// with the convention they were built under.
const DistanceConvention = "1-coefficient"

// Params captures every configurable knob of one analysis run, for
// reproducibility and persistence.
type Params struct {
	// MaxLagSeconds bounds the pairwise lag search; 0 means full overlap.
	MaxLagSeconds float64
	// FFTMinLength is the correlator's time/frequency-domain crossover.
	FFTMinLength int
	// LinkageRule selects the inter-cluster distance rule.
	LinkageRule linkage.Rule
	// CutThreshold is the dendrogram cut distance for cluster assignment.
	CutThreshold float64
	// Workers sizes the pairwise correlation pool; 0 means one per CPU.
	Workers int
}

// DefaultParams returns the documented defaults: full-overlap lag search and
// average linkage.
func DefaultParams() Params {
	return Params{
		MaxLagSeconds: 0,
		FFTMinLength:  xcorr.DefaultFFTMinLength,
		LinkageRule:   linkage.RuleAverage,
		CutThreshold:  0.2,
		Workers:       0,
	}
}

// Session is the stateful aggregate over one TraceSet snapshot. Derived
// products are computed on demand and cached; SetTraces drops every cached
// product, honoring the cascading invalidation invariant. Replacing or
// dropping individual traces has no incremental path: callers must install
// a fresh TraceSet and let the session rebuild from scratch.
//
// A Session is not safe for concurrent use; the pipeline parallelism lives
// inside the matrix builder.
type Session struct {
	params Params
	traces *waveform.TraceSet
	runID  uuid.UUID

	coeff    xcorr.CoefficientMatrix
	lag      xcorr.LagMatrix
	stats    *delaytime.StatTable
	tree     *linkage.Tree
	clusters linkage.Assignment
}

// NewSession creates an empty session with the given parameters.
func NewSession(params Params) *Session {
	return &Session{params: params}
}

// Params returns the session parameters.
func (s *Session) Params() Params { return s.params }

// RunID identifies the current TraceSet snapshot. A fresh id is assigned on
// every SetTraces, so persisted results are traceable to one snapshot plus
// one parameter set.
func (s *Session) RunID() uuid.UUID { return s.runID }

// SetTraces installs a new TraceSet snapshot and invalidates all derived
// matrices, statistics, trees and assignments.
func (s *Session) SetTraces(ts *waveform.TraceSet) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	s.traces = ts
	s.runID = uuid.New()
	s.coeff, s.lag = nil, nil
	s.stats = nil
	s.tree = nil
	s.clusters = nil
	return nil
}

// Traces returns the current snapshot, or nil if none is installed.
func (s *Session) Traces() *waveform.TraceSet { return s.traces }

// Matrices returns the coefficient and lag matrices, building them on first
// use. A cancelled build leaves the session with no cached matrices.
func (s *Session) Matrices(ctx context.Context) (xcorr.CoefficientMatrix, xcorr.LagMatrix, error) {
	if s.traces == nil {
		return nil, nil, fmt.Errorf("analysis: no trace set installed")
	}
	if s.coeff == nil {
		builder := xcorr.NewMatrixBuilder(xcorr.Params{
			MaxLagSeconds: s.params.MaxLagSeconds,
			FFTMinLength:  s.params.FFTMinLength,
		}, s.params.Workers)
		coeff, lag, err := builder.Build(ctx, s.traces)
		if err != nil {
			return nil, nil, err
		}
		s.coeff, s.lag = coeff, lag
	}
	return s.coeff, s.lag, nil
}

// Stats returns the delay-time statistics table, running the joint inversion
// on first use.
func (s *Session) Stats(ctx context.Context) (*delaytime.StatTable, error) {
	if s.stats == nil {
		coeff, lag, err := s.Matrices(ctx)
		if err != nil {
			return nil, err
		}
		stats, err := delaytime.Invert(lag, coeff)
		if err != nil {
			return nil, err
		}
		s.stats = stats
	}
	return s.stats, nil
}

// Tree returns the linkage merge tree, clustering on first use.
func (s *Session) Tree(ctx context.Context) (*linkage.Tree, error) {
	if s.tree == nil {
		coeff, _, err := s.Matrices(ctx)
		if err != nil {
			return nil, err
		}
		tree, err := linkage.NewBuilder(s.params.LinkageRule).Build(coeff)
		if err != nil {
			return nil, err
		}
		s.tree = tree
	}
	return s.tree, nil
}

// Clusters returns the cluster assignment at the configured cut threshold.
func (s *Session) Clusters(ctx context.Context) (linkage.Assignment, error) {
	if s.clusters == nil {
		tree, err := s.Tree(ctx)
		if err != nil {
			return nil, err
		}
		clusters, err := linkage.Cut(tree, s.params.CutThreshold)
		if err != nil {
			return nil, err
		}
		s.clusters = clusters
	}
	return s.clusters, nil
}

// ClustersAt cuts the tree at an ad hoc threshold without touching the
// cached assignment.
func (s *Session) ClustersAt(ctx context.Context, threshold float64) (linkage.Assignment, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return linkage.Cut(tree, threshold)
}

// AdjustedTriggers returns the trigger vector with the fitted delay
// corrections applied. Sample data is untouched.
func (s *Session) AdjustedTriggers(ctx context.Context) ([]time.Time, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return delaytime.AdjustTriggers(s.traces.Triggers, stats.Delay)
}
