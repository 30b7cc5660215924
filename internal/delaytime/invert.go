// Package delaytime reconciles pairwise lag observations into one globally
// consistent per-trace timing correction, together with per-trace similarity
// statistics, and applies the correction to trigger times.
package delaytime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sunjingtao1119/GISMO/internal/xcorr"
)

// StatTable holds per-trace statistics from the joint inversion. All slices
// have length M, indexed by trace.
type StatTable struct {
	// MeanCoeff is the mean correlation coefficient of trace i against all
	// other traces.
	MeanCoeff []float64
	// SigmaUpper and SigmaLower are the 1-sigma spreads of the coefficients
	// computed separately over values above and below the mean, capturing a
	// skewed distribution that a single symmetric sigma would hide.
	SigmaUpper []float64
	SigmaLower []float64
	// Delay is the least-squares timing correction in seconds. Adding
	// Delay[i] to trigger i best aligns the whole set.
	Delay []float64
	// RMSResidual is the root-mean-square misfit of trace i's row:
	// (Delay[i] - Delay[j]) - lag[i][j] over all j != i.
	RMSResidual []float64
}

// Len returns M.
func (t *StatTable) Len() int { return len(t.Delay) }

// Invert solves the joint delay-time system. Every off-diagonal lag[i][j] is
// an observation of (delay_i - delay_j), giving an over-determined linear
// system across all pairs. That system is rank-deficient by exactly one
// dimension (the global time origin is unobservable), so an explicit
// zero-sum constraint row is appended rather than pinning an arbitrary trace.
// The resulting full-rank system is solved by dense least squares.
func Invert(lag xcorr.LagMatrix, coeff xcorr.CoefficientMatrix) (*StatTable, error) {
	m := lag.Dim()
	if coeff.Dim() != m {
		return nil, fmt.Errorf("delaytime: matrix dimensions differ (%d vs %d)", m, coeff.Dim())
	}
	if m < 1 {
		return nil, fmt.Errorf("delaytime: empty matrices")
	}

	t := &StatTable{
		MeanCoeff:   make([]float64, m),
		SigmaUpper:  make([]float64, m),
		SigmaLower:  make([]float64, m),
		Delay:       make([]float64, m),
		RMSResidual: make([]float64, m),
	}
	if m == 1 {
		return t, nil
	}

	for i := 0; i < m; i++ {
		t.MeanCoeff[i], t.SigmaUpper[i], t.SigmaLower[i] = rowStats(coeff[i], i)
	}

	delays, err := solveDelays(lag, m)
	if err != nil {
		return nil, err
	}
	copy(t.Delay, delays)

	for i := 0; i < m; i++ {
		var sumSq float64
		for j := 0; j < m; j++ {
			if j == i {
				continue
			}
			r := (delays[i] - delays[j]) - lag[i][j]
			sumSq += r * r
		}
		t.RMSResidual[i] = math.Sqrt(sumSq / float64(m-1))
	}
	return t, nil
}

// rowStats computes the mean coefficient of row i excluding the diagonal,
// plus the one-sided sigmas over values above and below that mean. A side
// with no values gets sigma 0.
func rowStats(row []float64, i int) (mean, sigmaUp, sigmaDown float64) {
	vals := make([]float64, 0, len(row)-1)
	for j, v := range row {
		if j != i {
			vals = append(vals, v)
		}
	}
	mean = stat.Mean(vals, nil)

	var upSq, downSq float64
	var nUp, nDown int
	for _, v := range vals {
		d := v - mean
		if d > 0 {
			upSq += d * d
			nUp++
		} else if d < 0 {
			downSq += d * d
			nDown++
		}
	}
	if nUp > 0 {
		sigmaUp = math.Sqrt(upSq / float64(nUp))
	}
	if nDown > 0 {
		sigmaDown = math.Sqrt(downSq / float64(nDown))
	}
	return mean, sigmaUp, sigmaDown
}

// solveDelays builds the (P+1)×M design matrix, one +1/-1 row per upper
// triangle pair plus one all-ones constraint row, and solves it in the least
// squares sense.
func solveDelays(lag xcorr.LagMatrix, m int) ([]float64, error) {
	pairs := m * (m - 1) / 2
	a := mat.NewDense(pairs+1, m, nil)
	b := mat.NewVecDense(pairs+1, nil)

	row := 0
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			a.Set(row, i, 1)
			a.Set(row, j, -1)
			b.SetVec(row, lag[i][j])
			row++
		}
	}
	for j := 0; j < m; j++ {
		a.Set(row, j, 1)
	}
	b.SetVec(row, 0)

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("delay-time least squares failed: %w", err)
	}

	delays := make([]float64, m)
	for i := 0; i < m; i++ {
		delays[i] = x.AtVec(i)
	}
	return delays, nil
}
