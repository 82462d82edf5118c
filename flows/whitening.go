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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/bayeslab/errs"
)

// Whitening 以樣本平均值與共變異數的 Cholesky 因子做仿射白化：
//
//	z = L⁻¹ (x − μ)，x = μ + L z
//
// Fit 之後轉換後的批次近似零均值、單位共變異數，通用 kernel
// 在這個座標系裡的一步就對應物理座標裡方向與尺度都正確的一步。
// 逆向的 Jacobian 修正是常數 log|det L| = Σ log L_ii，每列相同。
type Whitening struct {
	dims   int
	mean   []float64
	lower  *mat.TriDense
	logDet float64
	fitted bool
}

// NewWhitening 建立尚未 Fit 的 Whitening。
func NewWhitening() *Whitening { return &Whitening{} }

// Fit 從一批樣本（n×D）學出 μ 與 L，並回傳白化後的批次。
// 樣本共變異數退化（非正定）時回傳 Fatal 等級錯誤。
func (t *Whitening) Fit(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, errs.Fatalf("flows: need at least 2 samples to fit whitening, got %d", n)
	}

	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, x, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, errs.NewFatal("flows: sample covariance is singular, cannot whiten")
	}

	lower := mat.NewTriDense(d, mat.Lower, nil)
	chol.LTo(lower)

	logDet := 0.0
	for i := 0; i < d; i++ {
		logDet += math.Log(lower.At(i, i))
	}

	t.dims = d
	t.mean = mean
	t.lower = lower
	t.logDet = logDet
	t.fitted = true
	return t.Forward(x)
}

// Forward 把物理座標批次映到白化座標。
func (t *Whitening) Forward(x *mat.Dense) (*mat.Dense, error) {
	if !t.fitted {
		return nil, errs.NewFatal("flows: whitening transform used before Fit")
	}
	n, d := x.Dims()
	if d != t.dims {
		return nil, errs.Fatalf("flows: whitening fitted for dim %d, got %d", t.dims, d)
	}

	// 解 L zᵀ = (x − μ)ᵀ
	centered := mat.NewDense(d, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(j, i, x.At(i, j)-t.mean[j])
		}
	}
	var zt mat.Dense
	if err := zt.Solve(t.lower, centered); err != nil {
		return nil, errs.Wrap(err, "flows: whitening forward solve failed")
	}

	z := mat.NewDense(n, d, nil)
	z.Copy(zt.T())
	return z, nil
}

// Inverse 把白化座標批次映回物理座標，並回傳每列的 log|det J|。
func (t *Whitening) Inverse(z *mat.Dense) (*mat.Dense, []float64, error) {
	if !t.fitted {
		return nil, nil, errs.NewFatal("flows: whitening transform used before Fit")
	}
	n, d := z.Dims()
	if d != t.dims {
		return nil, nil, errs.Fatalf("flows: whitening fitted for dim %d, got %d", t.dims, d)
	}

	// x = μ + L z，逐列即 X = Z Lᵀ + μ
	x := mat.NewDense(n, d, nil)
	x.Mul(z, t.lower.T())
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			row[j] += t.mean[j]
		}
	}

	logDetJ := make([]float64, n)
	for i := range logDetJ {
		logDetJ[i] = t.logDet
	}
	return x, logDetJ, nil
}
