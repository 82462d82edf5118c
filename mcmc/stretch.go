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

package mcmc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

// StretchMove 是 Goodman–Weare 仿射不變 ensemble kernel。
//
// 母體分成兩半交替更新：走子 i 從互補半邊隨機挑一個走子 j，
// 抽伸縮係數 s ~ g(s;a)，提議 y = z_j + s·(z_i − z_j)，
// 以 min(1, s^{D−1}·π(y)/π(z_i)) 接受。仿射不變性讓它對線性
// 變換後的目標表現相同，是 whitening 之外的第二層保險。
type StretchMove struct {
	// A 是伸縮參數，必須 > 1；零值時使用 2。
	A float64
}

func (k StretchMove) scale() float64 {
	if k.A == 0 {
		return 2
	}
	return k.A
}

// Run 從母體 z0（nwalkers×D）跑 nSteps 步，回傳逐步快照。
// 初始母體含非有限目標值、或走子數不足時回傳 Fatal 等級錯誤。
func (k StretchMove) Run(c *core.Core, target Target, z0 *mat.Dense, nSteps int) (*Chain, error) {
	a := k.scale()
	if a <= 1 {
		return nil, errs.Fatalf("mcmc: stretch scale a=%v must be > 1", a)
	}
	nw, d := z0.Dims()
	if nw < 4 {
		return nil, errs.Fatalf("mcmc: stretch move needs at least 4 walkers, got %d", nw)
	}
	if nSteps < 1 {
		return nil, errs.Fatalf("mcmc: nSteps=%d must be >= 1", nSteps)
	}

	z := mat.DenseCopyOf(z0)
	logP, err := target(z)
	if err != nil {
		return nil, err
	}
	for i, lp := range logP {
		if math.IsNaN(lp) || math.IsInf(lp, 1) {
			return nil, errs.Fatalf("mcmc: non-finite target at initial walker %d", i)
		}
	}

	half := nw / 2
	ch := newChain(nSteps, d)
	props := mat.NewDense(nw-half, d, nil)
	stretch := make([]float64, nw)

	for step := 0; step < nSteps; step++ {
		// 先後更新 [0,half) 與 [half,nw) 兩半
		for _, span := range [2][2]int{{0, half}, {half, nw}} {
			lo, hi := span[0], span[1]
			cLo, cHi := half, nw
			if lo == half {
				cLo, cHi = 0, half
			}

			block := props.Slice(0, hi-lo, 0, d).(*mat.Dense)
			for i := lo; i < hi; i++ {
				j := cLo + c.IntN(cHi-cLo)
				// s = ((a−1)u+1)² / a，對應 g(s;a) ∝ 1/√s 在 [1/a, a]
				u := c.Float64()
				s := (a-1)*u + 1
				s = s * s / a
				stretch[i] = s

				zi := z.RawRowView(i)
				zj := z.RawRowView(j)
				row := block.RawRowView(i - lo)
				for t := 0; t < d; t++ {
					row[t] = zj[t] + s*(zi[t]-zj[t])
				}
			}

			propP, err := target(block)
			if err != nil {
				return nil, err
			}
			for i := lo; i < hi; i++ {
				logRatio := float64(d-1)*math.Log(stretch[i]) + propP[i-lo] - logP[i]
				if logRatio >= 0 || math.Log(c.Float64()) < logRatio {
					z.SetRow(i, block.RawRowView(i-lo))
					logP[i] = propP[i-lo]
				}
			}
		}
		ch.append(z)
	}
	return ch, nil
}
