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
	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

// Ensemble 以 StretchMove 產出 posterior 樣本，並附上獨立批次的
// evidence 估計。
//
// posterior 的「形狀」來自 MCMC 鏈（混合不足時可能有偏），
// evidence 則來自另一批直接從 proposal 抽出的不偏 importance
// sample，兩者各司其職、一起掛在結果上。
//
// Calls 記錄 Sample 被呼叫的次數。
type Ensemble struct {
	Model     *model.Model
	Transform flows.Transform
	Kernel    StretchMove

	// NWalkers 為母體大小，零值時等於要求的樣本數。
	NWalkers int
	// NSteps 為 kernel 步數，零值時使用 500。
	NSteps int
	// Discard 為攤平前丟棄的暖機步數。
	Discard int

	Calls int
}

// Sample 執行 Driver A 流程：proposal 抽初始母體 → Fit 轉換 →
// kernel 跑 NSteps → 攤平、逆轉換 → 附密度與獨立 evidence 估計。
func (e *Ensemble) Sample(c *core.Core, nSamples int) (*samples.Set, error) {
	e.Calls++
	if err := validDriver(e.Model, e.Transform, nSamples); err != nil {
		return nil, err
	}

	nw := e.NWalkers
	if nw == 0 {
		nw = nSamples
	}
	nSteps := e.NSteps
	if nSteps == 0 {
		nSteps = 500
	}

	p0 := e.Model.Proposal.Sample(c, nw)
	z0, err := e.Transform.Fit(p0)
	if err != nil {
		return nil, err
	}

	target := NewTarget(e.Transform, e.Model.LogLikelihood, e.Model.LogPrior)
	ch, err := e.Kernel.Run(c, target, z0, nSteps)
	if err != nil {
		return nil, err
	}

	z, err := ch.Flatten(e.Discard, 1)
	if err != nil {
		return nil, err
	}
	x, _, err := e.Transform.Inverse(z)
	if err != nil {
		return nil, err
	}

	est, err := e.estimateEvidence(c, nSamples)
	if err != nil {
		return nil, err
	}

	return attachDensities(x, e.Model,
		samples.WithParameters(e.Model.Parameters),
		samples.WithEvidence(*est),
	)
}

// estimateEvidence 從 proposal 另抽一批、算重要性權重，取其
// log evidence 與誤差。這批樣本本身不進入結果。
func (e *Ensemble) estimateEvidence(c *core.Core, n int) (*samples.EvidenceEstimate, error) {
	x, logQ := e.Model.Proposal.SampleAndLogProb(c, n)
	s, err := attachDensities(x, e.Model, samples.WithLogQ(logQ))
	if err != nil {
		return nil, err
	}
	w, err := samples.ComputeWeights(s)
	if err != nil {
		return nil, err
	}
	return &samples.EvidenceEstimate{
		LogZ:    w.LogEvidence(),
		LogZErr: w.LogEvidenceErr(),
	}, nil
}

// PCN 以 TPCN 產出 posterior 樣本（Driver B）。
//
// 不重估 evidence，只在結果上附最終樣本的 likelihood / prior
// 對數密度；鏈的擷取方式由 LastStepOnly 或 Burnin/Thin 決定。
// History 保存最近一次 Sample 的調適軌跡。
type PCN struct {
	Model     *model.Model
	Transform flows.Transform
	Kernel    TPCN

	// NSteps 為 kernel 步數，零值時使用 100。
	NSteps int
	// Burnin / Thin 控制攤平擷取；LastStepOnly 時只取最後一步母體。
	Burnin       int
	Thin         int
	LastStepOnly bool

	History *History
	Calls   int
}

// Sample 執行 Driver B 流程。
func (p *PCN) Sample(c *core.Core, nSamples int) (*samples.Set, error) {
	p.Calls++
	if err := validDriver(p.Model, p.Transform, nSamples); err != nil {
		return nil, err
	}

	nSteps := p.NSteps
	if nSteps == 0 {
		nSteps = 100
	}

	p0 := p.Model.Proposal.Sample(c, nSamples)
	z0, err := p.Transform.Fit(p0)
	if err != nil {
		return nil, err
	}

	target := NewTarget(p.Transform, p.Model.LogLikelihood, p.Model.LogPrior)
	ch, hist, err := p.Kernel.Run(c, target, z0, nSteps)
	if err != nil {
		return nil, err
	}
	p.History = hist

	var z *mat.Dense
	if p.LastStepOnly {
		z = ch.Last()
	} else {
		z, err = ch.Flatten(p.Burnin, p.Thin)
		if err != nil {
			return nil, err
		}
	}

	x, _, err := p.Transform.Inverse(z)
	if err != nil {
		return nil, err
	}

	return attachDensities(x, p.Model, samples.WithParameters(p.Model.Parameters))
}

func validDriver(m *model.Model, tr flows.Transform, nSamples int) error {
	if m == nil {
		return errs.NewFatal("mcmc: driver has no model")
	}
	if tr == nil {
		return errs.NewFatal("mcmc: driver has no preconditioning transform")
	}
	if nSamples < 2 {
		return errs.Fatalf("mcmc: nSamples=%d must be >= 2", nSamples)
	}
	return nil
}

// attachDensities 評估 x 上的模型密度並建出帶密度的樣本集。
func attachDensities(x *mat.Dense, m *model.Model, opts ...samples.Option) (*samples.Set, error) {
	bare, err := samples.New(x)
	if err != nil {
		return nil, err
	}
	ll, err := m.LogLikelihood(bare)
	if err != nil {
		return nil, err
	}
	lp, err := m.LogPrior(bare)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		samples.WithLogLikelihood(ll),
		samples.WithLogPrior(lp),
	)
	return samples.New(x, opts...)
}
