package xcorr

import (
	"context"
	"runtime"
	"sync"

	"github.com/sunjingtao1119/GISMO/internal/waveform"
)

// CoefficientMatrix is the M×M symmetric matrix of peak correlation
// coefficients. Values lie in [-1, 1] and the diagonal is exactly 1.
type CoefficientMatrix [][]float64

// Dim returns M.
func (m CoefficientMatrix) Dim() int { return len(m) }

// LagMatrix is the M×M antisymmetric matrix of peak lags in seconds
// (lag[i][j] = -lag[j][i], diagonal exactly 0). lag[i][j] > 0 means the
// matched feature on trace i occurs later than on trace j; aligning i to j
// requires adding lag[i][j] to trigger i.
type LagMatrix [][]float64

// Dim returns M.
func (m LagMatrix) Dim() int { return len(m) }

// MatrixBuilder runs the pairwise correlator over every unordered trace pair
// and assembles the coefficient and lag matrices.
//
// Only the strict upper triangle (i < j) is correlated, M(M-1)/2 calls, on
// a pool of workers writing disjoint scratch cells. The full matrices are
// then derived in a single symmetric/antisymmetric copy pass, so symmetry is
// exact by construction, never approximate.
type MatrixBuilder struct {
	correlator *Correlator
	workers    int
}

// NewMatrixBuilder creates a builder using the given correlator parameters.
// workers <= 0 selects one worker per CPU.
func NewMatrixBuilder(params Params, workers int) *MatrixBuilder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &MatrixBuilder{
		correlator: NewCorrelator(params),
		workers:    workers,
	}
}

// pairResult is one upper-triangle scratch cell.
type pairResult struct {
	coeff float64
	lag   float64
}

// Build correlates every pair in the trace set. The context cancels the
// build cooperatively: remaining pairs are abandoned and the partial result
// is discarded, returning ctx.Err().
func (b *MatrixBuilder) Build(ctx context.Context, ts *waveform.TraceSet) (CoefficientMatrix, LagMatrix, error) {
	if err := ts.Validate(); err != nil {
		return nil, nil, err
	}

	m := ts.Len()
	coeff := newSquare(m)
	lag := newSquare(m)
	for i := 0; i < m; i++ {
		coeff[i][i] = 1
		lag[i][i] = 0
	}
	if m < 2 {
		return CoefficientMatrix(coeff), LagMatrix(lag), nil
	}

	// Upper-triangle pair list; scratch[p] is written by exactly one worker.
	type pair struct{ i, j int }
	pairs := make([]pair, 0, m*(m-1)/2)
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	scratch := make([]pairResult, len(pairs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var errOnce sync.Once
	var buildErr error
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Workers keep draining jobs after an error so the feeder never
			// blocks; only the first error is reported.
			for p := range jobs {
				pr := pairs[p]
				c, l, err := b.correlator.Correlate(ts.Traces[pr.i], ts.Traces[pr.j])
				if err != nil {
					errOnce.Do(func() { buildErr = err })
					continue
				}
				scratch[p] = pairResult{coeff: c, lag: l}
			}
		}()
	}

	var cancelled bool
feed:
	for p := range pairs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case jobs <- p:
		case <-ctx.Done():
			cancelled = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled {
		return nil, nil, ctx.Err()
	}
	if buildErr != nil {
		return nil, nil, buildErr
	}

	// Mirror pass: derive the full matrices from the scratch triangle.
	for p, pr := range pairs {
		r := scratch[p]
		coeff[pr.i][pr.j] = r.coeff
		coeff[pr.j][pr.i] = r.coeff
		lag[pr.i][pr.j] = r.lag
		lag[pr.j][pr.i] = -r.lag
	}
	return CoefficientMatrix(coeff), LagMatrix(lag), nil
}

func newSquare(m int) [][]float64 {
	rows := make([][]float64, m)
	backing := make([]float64, m*m)
	for i := range rows {
		rows[i] = backing[i*m : (i+1)*m]
	}
	return rows
}
