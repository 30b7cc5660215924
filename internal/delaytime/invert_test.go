package delaytime

import (
	"math"
	"testing"
	"time"

	"github.com/sunjingtao1119/GISMO/internal/testutil"
	"github.com/sunjingtao1119/GISMO/internal/xcorr"
)

// consistentMatrices builds a lag matrix that is exactly consistent with the
// given per-trace delays (lag[i][j] = d[i] - d[j]) and an all-ones
// coefficient matrix.
func consistentMatrices(delays []float64) (xcorr.LagMatrix, xcorr.CoefficientMatrix) {
	m := len(delays)
	lag := make([][]float64, m)
	coeff := make([][]float64, m)
	for i := 0; i < m; i++ {
		lag[i] = make([]float64, m)
		coeff[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			lag[i][j] = delays[i] - delays[j]
			coeff[i][j] = 1
		}
	}
	return xcorr.LagMatrix(lag), xcorr.CoefficientMatrix(coeff)
}

func TestInvert_RecoversKnownOffsets(t *testing.T) {
	// True offsets in seconds; the fit is only determined up to a common
	// shift, removed by the zero-sum constraint.
	true_ := []float64{0, 0.02, 0.05, 0.05, -0.03}
	lag, coeff := consistentMatrices(true_)

	table, err := Invert(lag, coeff)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}

	var mean float64
	for _, d := range true_ {
		mean += d
	}
	mean /= float64(len(true_))

	for i, d := range true_ {
		testutil.AssertInDelta(t, "delay", table.Delay[i], d-mean, 1e-10)
		testutil.AssertInDelta(t, "residual", table.RMSResidual[i], 0, 1e-10)
	}

	// Zero-sum constraint holds.
	var sum float64
	for _, d := range table.Delay {
		sum += d
	}
	testutil.AssertInDelta(t, "delay sum", sum, 0, 1e-10)
}

func TestInvert_SingleTrace(t *testing.T) {
	lag := xcorr.LagMatrix{{0}}
	coeff := xcorr.CoefficientMatrix{{1}}
	table, err := Invert(lag, coeff)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if table.Delay[0] != 0 || table.RMSResidual[0] != 0 {
		t.Errorf("single trace stats = (%g, %g), want zeros",
			table.Delay[0], table.RMSResidual[0])
	}
}

func TestInvert_MeanAndAsymmetricSigma(t *testing.T) {
	// Trace 0's off-diagonal coefficients are 0.9, 0.9, 0.3: mean 0.7, one
	// value below (deviation -0.4), two above (deviation +0.2 each).
	coeff := xcorr.CoefficientMatrix{
		{1, 0.9, 0.9, 0.3},
		{0.9, 1, 0.5, 0.5},
		{0.9, 0.5, 1, 0.5},
		{0.3, 0.5, 0.5, 1},
	}
	lag, _ := consistentMatrices([]float64{0, 0, 0, 0})

	table, err := Invert(lag, coeff)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}

	testutil.AssertInDelta(t, "mean", table.MeanCoeff[0], 0.7, 1e-12)
	testutil.AssertInDelta(t, "upper sigma", table.SigmaUpper[0], 0.2, 1e-12)
	testutil.AssertInDelta(t, "lower sigma", table.SigmaLower[0], 0.4, 1e-12)
}

func TestInvert_NoisyObservationsStillCentered(t *testing.T) {
	// Perturb one lag observation; the fit distributes the misfit but the
	// zero-sum constraint must still hold and residuals become nonzero.
	lag, coeff := consistentMatrices([]float64{0.01, -0.01, 0.02})
	lag[0][1] += 0.004
	lag[1][0] -= 0.004

	table, err := Invert(lag, coeff)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}

	var sum float64
	anyResidual := false
	for i := range table.Delay {
		sum += table.Delay[i]
		if table.RMSResidual[i] > 1e-6 {
			anyResidual = true
		}
	}
	testutil.AssertInDelta(t, "delay sum", sum, 0, 1e-10)
	if !anyResidual {
		t.Error("expected nonzero residuals for inconsistent lags")
	}
}

func TestInvert_DimensionMismatch(t *testing.T) {
	lag, _ := consistentMatrices([]float64{0, 0})
	_, coeff := consistentMatrices([]float64{0, 0, 0})
	if _, err := Invert(lag, coeff); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}

func TestAdjustTriggers(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	triggers := []time.Time{base, base.Add(time.Minute)}
	delays := []float64{0.25, -0.5}

	got, err := AdjustTriggers(triggers, delays)
	if err != nil {
		t.Fatalf("AdjustTriggers failed: %v", err)
	}

	want := []time.Time{
		base.Add(250 * time.Millisecond),
		base.Add(time.Minute - 500*time.Millisecond),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("trigger %d = %v, want %v", i, got[i], want[i])
		}
	}

	// Input is untouched.
	if !triggers[0].Equal(base) {
		t.Error("AdjustTriggers mutated its input")
	}
}

func TestAdjustTriggers_LengthMismatch(t *testing.T) {
	if _, err := AdjustTriggers(make([]time.Time, 2), make([]float64, 3)); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestStatTable_RMSDefinition(t *testing.T) {
	// Two traces and a single pair: the fit is exact, delays split the lag
	// symmetrically around zero.
	lag := xcorr.LagMatrix{{0, 0.01}, {-0.01, 0}}
	coeff := xcorr.CoefficientMatrix{{1, 0.8}, {0.8, 1}}
	table, err := Invert(lag, coeff)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	// With one pair the least squares fit is exact: delays ±0.005, residual 0.
	testutil.AssertInDelta(t, "delay[0]", table.Delay[0], 0.005, 1e-10)
	testutil.AssertInDelta(t, "delay[1]", table.Delay[1], -0.005, 1e-10)
	if math.Abs(table.RMSResidual[0]) > 1e-10 {
		t.Errorf("residual = %g, want 0", table.RMSResidual[0])
	}
}
