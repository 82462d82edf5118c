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

// TPCN 是預調節 Crank–Nicolson kernel。
//
// 提議 z′ = √(1−ρ²)·z + ρ·ξ，ξ ~ N(0,I)，對標準常態參考測度可逆，
// 接受機率 min(1, exp(L(z′) − L(z) + (‖z′‖² − ‖z‖²)/2))。
// 步長 ρ 以 Robbins–Monro 在 logit 空間朝目標接受率調適，
// 調適軌跡記錄在 History 供診斷。
//
// 它假設目標已經過 whitening：參考測度 N(0,I) 要大致罩住
// posterior 的質量，ρ 的調適才會落在有效範圍內。
type TPCN struct {
	// TargetAcceptance 是調適目標，零值時使用 0.234。
	TargetAcceptance float64

	// StepSize 是初始 ρ ∈ (0,1)，零值時使用 0.5。
	StepSize float64

	// AdaptDecay 是 Robbins–Monro 衰減指數 κ ∈ (0.5,1]，零值時使用 0.66。
	AdaptDecay float64
}

// History 是 kernel 的逐步診斷：每步的接受率與調適後的步長。
type History struct {
	AcceptRate []float64 `json:"accept_rate"`
	StepSize   []float64 `json:"step_size"`
}

func (k TPCN) targetRate() float64 {
	if k.TargetAcceptance == 0 {
		return 0.234
	}
	return k.TargetAcceptance
}

func (k TPCN) initialStep() float64 {
	if k.StepSize == 0 {
		return 0.5
	}
	return k.StepSize
}

func (k TPCN) decay() float64 {
	if k.AdaptDecay == 0 {
		return 0.66
	}
	return k.AdaptDecay
}

// Run 從母體 z0（nchains×D）跑 nSteps 步，回傳逐步快照與調適軌跡。
func (k TPCN) Run(c *core.Core, target Target, z0 *mat.Dense, nSteps int) (*Chain, *History, error) {
	rate := k.targetRate()
	if rate <= 0 || rate >= 1 {
		return nil, nil, errs.Fatalf("mcmc: target acceptance rate %v must be in (0,1)", rate)
	}
	rho := k.initialStep()
	if rho <= 0 || rho >= 1 {
		return nil, nil, errs.Fatalf("mcmc: initial step size %v must be in (0,1)", rho)
	}
	if nSteps < 1 {
		return nil, nil, errs.Fatalf("mcmc: nSteps=%d must be >= 1", nSteps)
	}

	nc, d := z0.Dims()
	z := mat.DenseCopyOf(z0)
	logP, err := target(z)
	if err != nil {
		return nil, nil, err
	}

	ch := newChain(nSteps, d)
	hist := &History{
		AcceptRate: make([]float64, 0, nSteps),
		StepSize:   make([]float64, 0, nSteps),
	}
	prop := mat.NewDense(nc, d, nil)
	logitRho := math.Log(rho / (1 - rho))

	for step := 0; step < nSteps; step++ {
		keep := math.Sqrt(1 - rho*rho)
		for i := 0; i < nc; i++ {
			zi := z.RawRowView(i)
			row := prop.RawRowView(i)
			for t := 0; t < d; t++ {
				row[t] = keep*zi[t] + rho*c.NormFloat64()
			}
		}

		propP, err := target(prop)
		if err != nil {
			return nil, nil, err
		}

		accepted := 0
		for i := 0; i < nc; i++ {
			logRatio := propP[i] - logP[i] + 0.5*(sqNorm(prop.RawRowView(i))-sqNorm(z.RawRowView(i)))
			if logRatio >= 0 || math.Log(c.Float64()) < logRatio {
				z.SetRow(i, prop.RawRowView(i))
				logP[i] = propP[i]
				accepted++
			}
		}
		ch.append(z)

		stepRate := float64(accepted) / float64(nc)
		logitRho += (stepRate - rate) / math.Pow(float64(step+1), k.decay())
		rho = clampRho(1 / (1 + math.Exp(-logitRho)))

		hist.AcceptRate = append(hist.AcceptRate, stepRate)
		hist.StepSize = append(hist.StepSize, rho)
	}
	return ch, hist, nil
}

func sqNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func clampRho(rho float64) float64 {
	const eps = 1e-4
	if rho < eps {
		return eps
	}
	if rho > 1-eps {
		return 1 - eps
	}
	return rho
}
