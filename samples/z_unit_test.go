// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package samples

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

const tol = 1e-10

func zeros(n int) []float64 { return make([]float64, n) }

func newSet(t *testing.T, n int, ll, lp, lq []float64) *Set {
	t.Helper()
	x := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		x.Set(i, 1, float64(-i))
	}
	opts := []Option{}
	if ll != nil {
		opts = append(opts, WithLogLikelihood(ll))
	}
	if lp != nil {
		opts = append(opts, WithLogPrior(lp))
	}
	if lq != nil {
		opts = append(opts, WithLogQ(lq))
	}
	s, err := New(x, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Set 建構
// -----------------------------------------------------------------------------

func TestNewDefaults(t *testing.T) {
	s := newSet(t, 3, nil, nil, nil)
	if s.Len() != 3 || s.Dims() != 2 {
		t.Fatalf("unexpected shape: %d x %d", s.Len(), s.Dims())
	}
	want := []string{"x_0", "x_1"}
	for i, p := range s.Parameters() {
		if p != want[i] {
			t.Fatalf("default parameter names: got %v", s.Parameters())
		}
	}
	if s.CanWeight() {
		t.Fatalf("CanWeight must be false without densities")
	}
}

func TestNewLengthMismatchIsFatal(t *testing.T) {
	x := mat.NewDense(3, 1, nil)
	_, err := New(x, WithLogLikelihood(zeros(2)))
	if err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal usage error, got %v", err)
	}
	_, err = New(x, WithParameters([]string{"a", "b"}))
	if err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal for bad parameter names, got %v", err)
	}
}

func TestNewCopiesInputs(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{1, 2})
	ll := []float64{5, 6}
	s, err := New(x, WithLogLikelihood(ll), WithLogPrior(zeros(2)), WithLogQ(zeros(2)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	x.Set(0, 0, 99)
	ll[0] = 99
	if s.X().At(0, 0) != 1 || s.LogLikelihood()[0] != 5 {
		t.Fatalf("Set must own copies of its arrays")
	}
}

// -----------------------------------------------------------------------------
// ComputeWeights
// -----------------------------------------------------------------------------

func TestComputeWeightsRequiresAllDensities(t *testing.T) {
	s := newSet(t, 3, zeros(3), zeros(3), nil)
	_, err := ComputeWeights(s)
	if err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal usage error, got %v", err)
	}
}

// 5 筆全零密度：log_w 全 0，log Z = 0，Z = 1，ESS = 5
func TestComputeWeightsAllEqual(t *testing.T) {
	s := newSet(t, 5, zeros(5), zeros(5), zeros(5))
	w, err := ComputeWeights(s)
	if err != nil {
		t.Fatalf("ComputeWeights failed: %v", err)
	}
	for i, lw := range w.LogW() {
		if lw != 0 {
			t.Fatalf("log_w[%d] = %v, want 0", i, lw)
		}
	}
	if math.Abs(w.LogEvidence()) > tol {
		t.Fatalf("log evidence = %v, want 0", w.LogEvidence())
	}
	if math.Abs(w.EvidenceValue()-1) > tol {
		t.Fatalf("evidence = %v, want 1", w.EvidenceValue())
	}
	if math.Abs(w.EffectiveSampleSize()-5) > 1e-9 {
		t.Fatalf("ESS = %v, want 5", w.EffectiveSampleSize())
	}
	if math.Abs(w.Efficiency()-1) > 1e-9 {
		t.Fatalf("efficiency = %v, want 1", w.Efficiency())
	}
	if w.EvidenceErr() != 0 {
		t.Fatalf("evidence error = %v, want 0 for equal weights", w.EvidenceErr())
	}
}

// 2 筆，log_w = [0, log 3]：Z = (1+3)/2 = 2，ESS = 16/10 = 1.6
func TestComputeWeightsTwoDraws(t *testing.T) {
	s := newSet(t, 2, []float64{0, math.Log(3)}, zeros(2), zeros(2))
	w, err := ComputeWeights(s)
	if err != nil {
		t.Fatalf("ComputeWeights failed: %v", err)
	}
	if math.Abs(w.EvidenceValue()-2) > tol {
		t.Fatalf("evidence = %v, want 2", w.EvidenceValue())
	}
	if math.Abs(w.EffectiveSampleSize()-1.6) > 1e-9 {
		t.Fatalf("ESS = %v, want 1.6", w.EffectiveSampleSize())
	}
}

func TestWeightRoundTrip(t *testing.T) {
	ll := []float64{-1.5, 0.25, 3, -7}
	lp := []float64{0.5, -2, 1, 0}
	lq := []float64{0.1, 0.2, -0.3, 0.4}
	s := newSet(t, 4, ll, lp, lq)
	w, err := ComputeWeights(s)
	if err != nil {
		t.Fatalf("ComputeWeights failed: %v", err)
	}
	for i := range ll {
		if math.Abs(w.W()[i]-math.Exp(w.LogW()[i])) > tol {
			t.Fatalf("weight[%d] != exp(log_w[%d])", i, i)
		}
	}
	if math.Abs(w.EvidenceValue()-math.Exp(w.LogEvidence())) > tol {
		t.Fatalf("evidence != exp(log_evidence)")
	}
	if w.EvidenceErr() < 0 || w.LogEvidenceErr() < 0 {
		t.Fatalf("errors must be non-negative")
	}
}

// -----------------------------------------------------------------------------
// Rejection
// -----------------------------------------------------------------------------

func TestRejectionAllEqualAcceptsAll(t *testing.T) {
	s := newSet(t, 10, zeros(10), zeros(10), zeros(10))
	w, err := ComputeWeights(s)
	if err != nil {
		t.Fatalf("ComputeWeights failed: %v", err)
	}
	got, err := w.Rejection(core.NewWithSeed(1))
	if err != nil {
		t.Fatalf("Rejection failed: %v", err)
	}
	if got.Len() != 10 {
		t.Fatalf("equal weights must accept all draws, got %d/10", got.Len())
	}
	if got.LogQ() != nil {
		t.Fatalf("rejection output must not carry log_q")
	}
	if got.LogLikelihood() == nil || got.LogPrior() == nil {
		t.Fatalf("rejection output must carry log_likelihood and log_prior")
	}
}

// -----------------------------------------------------------------------------
// Tempered
// -----------------------------------------------------------------------------

func newTempered(t *testing.T, beta float64, lq, lpt []float64) *Tempered {
	t.Helper()
	n := len(lq)
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
	}
	// lpt = log_likelihood + log_prior；全部放在 likelihood、prior 設 0
	ts, err := NewTempered(x, beta,
		WithLogLikelihood(lpt),
		WithLogPrior(zeros(n)),
		WithLogQ(lq),
	)
	if err != nil {
		t.Fatalf("NewTempered failed: %v", err)
	}
	return ts
}

func TestTemperedBetaBounds(t *testing.T) {
	x := mat.NewDense(1, 1, nil)
	_, err := NewTempered(x, 1.5, WithLogLikelihood(zeros(1)), WithLogPrior(zeros(1)), WithLogQ(zeros(1)))
	if err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal for beta > 1, got %v", err)
	}
}

func TestUnnormalizedZeroAtSameBeta(t *testing.T) {
	ts := newTempered(t, 0.4, []float64{1, -2, 3}, []float64{0.5, 0.25, -1})
	for i, lw := range ts.UnnormalizedLogWeights(0.4) {
		if lw != 0 {
			t.Fatalf("weight[%d] = %v, want exactly 0 at same beta", i, lw)
		}
	}
}

// 3 筆由 beta=0 到 beta=1：log_q 全 0、log L + log π = [1,2,3]
// → 未正規化權重恰為 [1,2,3]
func TestTemperedWeightsConcrete(t *testing.T) {
	ts := newTempered(t, 0, zeros(3), []float64{1, 2, 3})
	got := ts.UnnormalizedLogWeights(1)
	want := []float64{1, 2, 3}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("unnormalized weights = %v, want %v", got, want)
		}
	}

	// log evidence ratio = logsumexp([1,2,3]) - log 3
	wantRatio := math.Log(math.Exp(1)+math.Exp(2)+math.Exp(3)) - math.Log(3)
	if r := ts.LogEvidenceRatio(1); math.Abs(r-wantRatio) > tol {
		t.Fatalf("log evidence ratio = %v, want %v", r, wantRatio)
	}

	// LogWeights = 未正規化權重 + ratio（逐元素）
	lw, err := ts.LogWeights(1)
	if err != nil {
		t.Fatalf("LogWeights failed: %v", err)
	}
	for i := range want {
		if math.Abs(lw[i]-(want[i]+wantRatio)) > tol {
			t.Fatalf("log weights = %v, want shifted by ratio", lw)
		}
	}
}

func TestLogWeightsNaNIsDataError(t *testing.T) {
	ts := newTempered(t, 0, zeros(2), []float64{1, math.NaN()})
	_, err := ts.LogWeights(0.5)
	if err == nil || !errs.IsLevel(err, errs.Data) {
		t.Fatalf("expected data error for NaN weights, got %v", err)
	}
}

func TestResampleSameBetaIsIdentityNoop(t *testing.T) {
	ts := newTempered(t, 0.3, zeros(3), []float64{1, 2, 3})
	got, err := ts.Resample(core.NewWithSeed(1), 0.3, 0)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if got != ts {
		t.Fatalf("same-beta resample must return the identical instance")
	}
}

func TestResampleFrequencies(t *testing.T) {
	// 重抽樣機率應正比 [e^1, e^2, e^3]
	ts := newTempered(t, 0, zeros(3), []float64{1, 2, 3})
	got, err := ts.Resample(core.NewWithSeed(2), 1, 60000)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if got.Beta() != 1 {
		t.Fatalf("resampled beta = %v, want 1", got.Beta())
	}
	if got.Len() != 60000 {
		t.Fatalf("resampled count = %d, want 60000", got.Len())
	}

	total := math.Exp(1) + math.Exp(2) + math.Exp(3)
	counts := make([]int, 3)
	for i := 0; i < got.Len(); i++ {
		counts[int(got.X().At(i, 0))]++
	}
	for k := 0; k < 3; k++ {
		want := math.Exp(float64(k+1)) / total
		have := float64(counts[k]) / 60000
		if math.Abs(want-have) > 0.01 {
			t.Fatalf("index %d frequency %v, want ~%v", k, have, want)
		}
	}
}

func TestToStandardCarriesEvidence(t *testing.T) {
	ts := newTempered(t, 1, zeros(2), []float64{1, 2})
	est := &EvidenceEstimate{LogZ: -3.5, LogZErr: 0.1}
	s, err := ts.ToStandard(est)
	if err != nil {
		t.Fatalf("ToStandard failed: %v", err)
	}
	if s.LogQ() != nil {
		t.Fatalf("standard samples must not carry log_q")
	}
	got, ok := s.Evidence()
	if !ok || got.LogZ != -3.5 || got.LogZErr != 0.1 {
		t.Fatalf("evidence estimate not carried: %+v ok=%v", got, ok)
	}
}

// -----------------------------------------------------------------------------
// Columns 匯出視圖
// -----------------------------------------------------------------------------

func TestColumnsExport(t *testing.T) {
	s := newSet(t, 4, zeros(4), zeros(4), zeros(4))
	w, err := ComputeWeights(s)
	if err != nil {
		t.Fatalf("ComputeWeights failed: %v", err)
	}
	cols := w.Columns()
	for _, key := range []string{"x_0", "x_1", "log_likelihood", "log_prior", "log_q", "log_w", "weights"} {
		if _, ok := cols[key]; !ok {
			t.Fatalf("missing column %q", key)
		}
		if len(cols[key]) != 4 {
			t.Fatalf("column %q length %d, want 4", key, len(cols[key]))
		}
	}
	// 匯出必須是複本
	cols["x_0"][0] = 1234
	if s.X().At(0, 0) == 1234 {
		t.Fatalf("Columns must return copies")
	}
}
