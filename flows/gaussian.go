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
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

// Gaussian 是以多變量常態分布實作的 Flow。
//
// 共變異數在建構時做一次 Cholesky 分解後凍結；抽樣時由呼叫端注入
// 生成器，Gaussian 本身不持有任何隨機狀態。
type Gaussian struct {
	dims int
	mean []float64
	chol mat.Cholesky
}

// NewGaussian 以給定平均值與共變異數建立 Gaussian。
// 共變異數必須對稱正定，否則回傳 Fatal 等級錯誤。
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	d := len(mean)
	if d == 0 || cov.SymmetricDim() != d {
		return nil, errs.Fatalf("flows: mean length %d does not match covariance dim %d", d, cov.SymmetricDim())
	}
	g := &Gaussian{dims: d, mean: append([]float64(nil), mean...)}
	if ok := g.chol.Factorize(cov); !ok {
		return nil, errs.NewFatal("flows: covariance matrix is not positive definite")
	}
	return g, nil
}

// FitGaussian 從一批樣本（n×D）估計平均值與樣本共變異數並建立 Gaussian。
// 樣本數不足或共變異數退化時回傳 Fatal 等級錯誤。
func FitGaussian(x *mat.Dense) (*Gaussian, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, errs.Fatalf("flows: need at least 2 samples to fit a Gaussian, got %d", n)
	}
	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return NewGaussian(mean, cov)
}

// Dims 回傳參數維度。
func (g *Gaussian) Dims() int { return g.dims }

// Mean 回傳平均值的複本。
func (g *Gaussian) Mean() []float64 { return append([]float64(nil), g.mean...) }

func (g *Gaussian) dist(c *core.Core) *distmv.Normal {
	return distmv.NewNormalChol(g.mean, &g.chol, c)
}

// Sample 以 c 抽 n 筆樣本，回傳 n×D 矩陣。
func (g *Gaussian) Sample(c *core.Core, n int) *mat.Dense {
	nd := g.dist(c)
	x := mat.NewDense(n, g.dims, nil)
	for i := 0; i < n; i++ {
		nd.Rand(x.RawRowView(i))
	}
	return x
}

// SampleAndLogProb 抽 n 筆樣本並一併回傳各列的 log 密度。
func (g *Gaussian) SampleAndLogProb(c *core.Core, n int) (*mat.Dense, []float64) {
	nd := g.dist(c)
	x := mat.NewDense(n, g.dims, nil)
	logQ := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		nd.Rand(row)
		logQ[i] = nd.LogProb(row)
	}
	return x, logQ
}

// LogProb 評估各列的 log 密度。
func (g *Gaussian) LogProb(x *mat.Dense) []float64 {
	nd := distmv.NewNormalChol(g.mean, &g.chol, nil)
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = nd.LogProb(x.RawRowView(i))
	}
	return out
}
