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

package flows

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

func TestGaussianSampleMoments(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{4, 1.2, 1.2, 1})
	g, err := NewGaussian([]float64{3, -1}, cov)
	if err != nil {
		t.Fatalf("NewGaussian failed: %v", err)
	}

	c := core.NewWithSeed(7)
	x := g.Sample(c, 50000)
	wantMean := []float64{3, -1}
	for j := 0; j < 2; j++ {
		m := stat.Mean(mat.Col(nil, j, x), nil)
		if math.Abs(m-wantMean[j]) > 0.05 {
			t.Fatalf("column %d mean = %v, want ~%v", j, m, wantMean[j])
		}
	}
	v := stat.Variance(mat.Col(nil, 0, x), nil)
	if math.Abs(v-4) > 0.15 {
		t.Fatalf("column 0 variance = %v, want ~4", v)
	}
}

func TestGaussianLogProbStandardNormal(t *testing.T) {
	cov := mat.NewSymDense(1, []float64{1})
	g, err := NewGaussian([]float64{0}, cov)
	if err != nil {
		t.Fatalf("NewGaussian failed: %v", err)
	}
	x := mat.NewDense(2, 1, []float64{0, 1})
	lp := g.LogProb(x)
	want0 := -0.5 * math.Log(2*math.Pi)
	if math.Abs(lp[0]-want0) > 1e-12 {
		t.Fatalf("logProb(0) = %v, want %v", lp[0], want0)
	}
	if math.Abs(lp[1]-(want0-0.5)) > 1e-12 {
		t.Fatalf("logProb(1) = %v, want %v", lp[1], want0-0.5)
	}
}

func TestGaussianSampleAndLogProbConsistent(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	g, err := NewGaussian([]float64{1, 2}, cov)
	if err != nil {
		t.Fatalf("NewGaussian failed: %v", err)
	}
	x, logQ := g.SampleAndLogProb(core.NewWithSeed(3), 100)
	re := g.LogProb(x)
	for i := range logQ {
		if math.Abs(logQ[i]-re[i]) > 1e-10 {
			t.Fatalf("row %d: sampled log q %v != re-evaluated %v", i, logQ[i], re[i])
		}
	}
}

func TestNewGaussianRejectsSingular(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	_, err := NewGaussian([]float64{0, 0}, cov)
	if err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal for singular covariance, got %v", err)
	}
}

func TestFitGaussianRecoversMean(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 2})
	src, err := NewGaussian([]float64{-2, 5}, cov)
	if err != nil {
		t.Fatalf("NewGaussian failed: %v", err)
	}
	x := src.Sample(core.NewWithSeed(11), 20000)
	g, err := FitGaussian(x)
	if err != nil {
		t.Fatalf("FitGaussian failed: %v", err)
	}
	m := g.Mean()
	if math.Abs(m[0]+2) > 0.05 || math.Abs(m[1]-5) > 0.05 {
		t.Fatalf("fitted mean = %v, want ~[-2 5]", m)
	}
}

func TestWhiteningRoundTrip(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{9, 2, 2, 1})
	g, err := NewGaussian([]float64{10, -4}, cov)
	if err != nil {
		t.Fatalf("NewGaussian failed: %v", err)
	}
	x := g.Sample(core.NewWithSeed(5), 5000)

	w := NewWhitening()
	z, err := w.Fit(x)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// Fit 後的批次近似零均值、單位變異數
	for j := 0; j < 2; j++ {
		col := mat.Col(nil, j, z)
		if m := stat.Mean(col, nil); math.Abs(m) > 1e-9 {
			t.Fatalf("whitened column %d mean = %v, want 0", j, m)
		}
		if v := stat.Variance(col, nil); math.Abs(v-1) > 0.05 {
			t.Fatalf("whitened column %d variance = %v, want ~1", j, v)
		}
	}

	back, logDetJ, err := w.Inverse(z)
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	n, d := x.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if math.Abs(back.At(i, j)-x.At(i, j)) > 1e-8 {
				t.Fatalf("roundtrip mismatch at (%d,%d): %v vs %v", i, j, back.At(i, j), x.At(i, j))
			}
		}
	}

	// log|det J| 恆定且為正（共變異數遠大於單位矩陣）
	for i := 1; i < n; i++ {
		if logDetJ[i] != logDetJ[0] {
			t.Fatalf("jacobian correction must be constant across rows")
		}
	}
	if logDetJ[0] <= 0 {
		t.Fatalf("log|det J| = %v, want > 0 for inflating transform", logDetJ[0])
	}
}

func TestWhiteningForwardMatchesFit(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	w := NewWhitening()
	z1, err := w.Fit(x)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	z2, err := w.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if math.Abs(z1.At(i, 0)-z2.At(i, 0)) > 1e-12 {
			t.Fatalf("Forward after Fit must reproduce the fitted batch")
		}
	}
}

func TestWhiteningBeforeFitIsFatal(t *testing.T) {
	w := NewWhitening()
	if _, err := w.Forward(mat.NewDense(1, 1, nil)); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal before Fit, got %v", err)
	}
	if _, _, err := w.Inverse(mat.NewDense(1, 1, nil)); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal before Fit, got %v", err)
	}
}

func TestWhiteningSingularIsFatal(t *testing.T) {
	// 兩欄完全相同，共變異數奇異
	x := mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})
	w := NewWhitening()
	if _, err := w.Fit(x); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal for singular covariance, got %v", err)
	}
}

func TestIdentityTransform(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	var id Identity
	z, err := id.Fit(x)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	back, logDetJ, err := id.Inverse(z)
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	for _, v := range logDetJ {
		if v != 0 {
			t.Fatalf("identity jacobian must be zero")
		}
	}
	if back.At(1, 1) != 4 {
		t.Fatalf("identity roundtrip mismatch")
	}
	// 回傳值必須是複本
	z.Set(0, 0, 99)
	if x.At(0, 0) == 99 {
		t.Fatalf("identity must copy its input")
	}
}
