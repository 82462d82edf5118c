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

// Package mcmc 提供 MCMC kernel 與取樣驅動器。
//
// 驅動器在白化座標 z 裡跑 kernel、在物理座標 x 裡評估模型密度；
// 兩個座標系之間由 flows.Transform 銜接，目標密度的 Jacobian 修正
// 由 NewTarget 統一處理。kernel 或 transform 的失敗一律原樣上拋，
// 驅動器不做任何重試。
package mcmc

import (
	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
)

// Target 是 kernel 眼中的目標密度：輸入一批取樣座標（n×D），
// 回傳每列一個未正規化 posterior 對數密度。
type Target func(z *mat.Dense) ([]float64, error)

// NewTarget 把預處理轉換與模型密度組成 kernel 用的目標密度：
// 先把 z 逆轉換回物理座標 x（取得 log|det J|），評估
// log_likelihood(x) + log_prior(x)，再加上 Jacobian 修正。
func NewTarget(tr flows.Transform, logLike, logPrior model.Density) Target {
	return func(z *mat.Dense) ([]float64, error) {
		x, logDetJ, err := tr.Inverse(z)
		if err != nil {
			return nil, err
		}
		s, err := samples.New(x)
		if err != nil {
			return nil, err
		}
		ll, err := logLike(s)
		if err != nil {
			return nil, err
		}
		lp, err := logPrior(s)
		if err != nil {
			return nil, err
		}
		n, _ := z.Dims()
		if len(ll) != n || len(lp) != n {
			return nil, errs.Fatalf("mcmc: density evaluator returned %d/%d values for %d draws", len(ll), len(lp), n)
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = ll[i] + lp[i] + logDetJ[i]
		}
		return out, nil
	}
}

// Chain 是 kernel 的輸出：逐步保存的母體快照（step → nwalkers×D）。
type Chain struct {
	steps []*mat.Dense
	dims  int
}

func newChain(nSteps, dims int) *Chain {
	return &Chain{steps: make([]*mat.Dense, 0, nSteps), dims: dims}
}

func (ch *Chain) append(z *mat.Dense) {
	ch.steps = append(ch.steps, mat.DenseCopyOf(z))
}

// Steps 回傳鏈長。
func (ch *Chain) Steps() int { return len(ch.steps) }

// Dims 回傳參數維度。
func (ch *Chain) Dims() int { return ch.dims }

// At 回傳第 i 步的母體快照。
func (ch *Chain) At(i int) *mat.Dense { return ch.steps[i] }

// Last 回傳最後一步的母體。
func (ch *Chain) Last() *mat.Dense {
	return ch.steps[len(ch.steps)-1]
}

// Flatten 丟棄前 discard 步後每 thin 步取一步，將剩餘快照
// 疊成單一 (…×D) 矩陣。thin < 1 視為 1。
// discard 吃掉整條鏈時回傳 Fatal 錯誤而不是空矩陣。
func (ch *Chain) Flatten(discard, thin int) (*mat.Dense, error) {
	if thin < 1 {
		thin = 1
	}
	if discard < 0 {
		discard = 0
	}
	if discard >= len(ch.steps) {
		return nil, errs.Fatalf("mcmc: discard %d leaves no steps in a %d-step chain", discard, len(ch.steps))
	}

	total := 0
	for i := discard; i < len(ch.steps); i += thin {
		n, _ := ch.steps[i].Dims()
		total += n
	}

	out := mat.NewDense(total, ch.dims, nil)
	row := 0
	for i := discard; i < len(ch.steps); i += thin {
		step := ch.steps[i]
		n, _ := step.Dims()
		for j := 0; j < n; j++ {
			out.SetRow(row, step.RawRowView(j))
			row++
		}
	}
	return out, nil
}
