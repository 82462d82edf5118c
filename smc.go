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

package bayeslab

import (
	"io"
	"math"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/mcmc"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/sdk/tensor"
	"github.com/zintix-labs/bayeslab/spec"
)

// smc 是 sequential-tempering 驅動器：把粒子族群沿幾何退火階梯
//
//	p_beta(x) ∝ q(x)^(1-beta) · [L(x)·π(x)]^beta
//
// 從 beta=0（proposal）一路推到 beta=1（posterior）。
//
// 每一階做三件事：
//  1. 加權：以階間 importance 權重累積 log evidence 增量。
//  2. 修正：multinomial 重抽樣，控制權重退化。
//  3. 變異：在該階的 tempered 目標上跑 ensemble kernel 幾步，恢復粒子多樣性。
//
// 階梯本身可由設定檔固定（Ladder.Betas），或以 ESS 比例自適應決定下一階
// （對 beta 做二分，找「ESS 恰好掉到 ess_fraction·N」的最大溫度）。
type smc struct {
	m       *model.Model
	betas   []float64 // 固定階梯；nil 表示自適應
	idx     int       // 固定階梯的消耗進度
	essFrac float64
	maxRung int
	kernel  mcmc.StretchMove
	nSteps  int // 每階的 kernel 變異步數
	be      tensor.Backend
	calls   int
}

const (
	defaultESSFraction = 0.5
	defaultMaxRungs    = 100
	defaultMutateSteps = 20
	minBetaStep        = 1e-6
	betaBisectIterates = 60
)

func newSMC(m *model.Model, rs *spec.RunSetting) *smc {
	s := &smc{
		m:       m,
		betas:   rs.Ladder.Betas,
		essFrac: rs.Ladder.ESSFraction,
		maxRung: rs.Ladder.MaxRungs,
		kernel:  mcmc.StretchMove{A: rs.Kernel.StretchA},
		nSteps:  rs.Kernel.NSteps,
		be:      tensor.NewCPU(),
	}
	if s.essFrac <= 0 {
		s.essFrac = defaultESSFraction
	}
	if s.maxRung <= 0 {
		s.maxRung = defaultMaxRungs
	}
	if len(s.betas) > 0 {
		s.maxRung = len(s.betas)
	}
	if s.nSteps <= 0 {
		s.nSteps = defaultMutateSteps
	}
	return s
}

// Run 執行完整階梯並回傳 posterior 樣本集與最後一階的 ESS/efficiency。
//
// evidence 是逐階 log_evidence_ratio 的總和；誤差用逐階相對標準誤
// 的平方和開根號近似（各階增量視為近似獨立）。
func (s *smc) Run(c *core.Core, nSamples int, showpb bool) (*samples.Set, float64, float64, error) {
	s.calls++
	if s.m == nil {
		return nil, 0, 0, errs.NewFatal("smc: model required")
	}
	// ensemble kernel 的互補半群至少要 4 顆粒子
	if nSamples < 4 {
		return nil, 0, 0, errs.NewFatal("smc: n_samples must be >= 4")
	}

	x, lq := s.m.Proposal.SampleAndLogProb(c, nSamples)
	ll, lp, err := s.eval(x)
	if err != nil {
		return nil, 0, 0, err
	}
	t, err := samples.NewTempered(x, 0,
		samples.WithLogLikelihood(ll),
		samples.WithLogPrior(lp),
		samples.WithLogQ(lq),
		samples.WithParameters(s.m.Parameters),
		samples.WithBackend(s.be),
	)
	if err != nil {
		return nil, 0, 0, err
	}

	bar := pb.StartNew(s.maxRung)
	if !showpb {
		bar.SetWriter(io.Discard)
	}

	var (
		logZ    float64
		relVar  float64
		lastESS = float64(nSamples)
	)
	for rung := 0; t.Beta() < 1; rung++ {
		if rung >= s.maxRung {
			bar.Finish()
			return nil, 0, 0, errs.Fatalf("smc: ladder did not reach beta=1 within %d rungs", s.maxRung)
		}

		next := s.nextBeta(t, nSamples)

		// 1. 加權：累積這一階的 evidence 增量
		lw := t.UnnormalizedLogWeights(next)
		logZ += s.be.LogSumExp(lw) - math.Log(float64(nSamples))
		relVar += rungRelVar(lw)
		lastESS = s.essOf(lw)

		// 2. 修正：multinomial 重抽樣到新溫度
		t, err = t.Resample(c, next, nSamples)
		if err != nil {
			bar.Finish()
			return nil, 0, 0, err
		}

		// 3. 變異：在新溫度的 tempered 目標上走 kernel
		chain, err := s.kernel.Run(c, s.target(next), t.X(), s.nSteps)
		if err != nil {
			bar.Finish()
			return nil, 0, 0, err
		}
		t, err = s.retemper(chain.Last(), next)
		if err != nil {
			bar.Finish()
			return nil, 0, 0, err
		}
		bar.Increment()
	}
	bar.Finish()

	est := &samples.EvidenceEstimate{
		LogZ:    logZ,
		LogZErr: math.Sqrt(relVar),
	}
	post, err := t.ToStandard(est)
	if err != nil {
		return nil, 0, 0, err
	}
	return post, lastESS, lastESS / float64(nSamples), nil
}

// nextBeta 決定下一階溫度。
//
// 固定階梯依序消耗設定檔的 betas；自適應模式對 beta 二分，
// 找出「階間權重的 ESS 不低於 ess_fraction·N」的最大溫度。
// ESS 在 beta=目前溫度時恰為 N（權重全為 0），因此二分下界永遠合法。
func (s *smc) nextBeta(t *samples.Tempered, n int) float64 {
	if len(s.betas) > 0 {
		next := s.betas[s.idx]
		s.idx++
		return next
	}

	target := s.essFrac * float64(n)
	if s.essOf(t.UnnormalizedLogWeights(1)) >= target {
		return 1
	}

	lo, hi := t.Beta(), 1.0
	for i := 0; i < betaBisectIterates; i++ {
		mid := (lo + hi) / 2
		if s.essOf(t.UnnormalizedLogWeights(mid)) >= target {
			lo = mid
		} else {
			hi = mid
		}
	}
	// 數值停滯保護：強迫階梯至少前進一小步，讓 maxRung 成為唯一的硬上限
	if lo <= t.Beta() {
		lo = math.Min(1, t.Beta()+minBetaStep)
	}
	return lo
}

// target 回傳 beta 階 tempered 目標的 log 密度（物理座標，無前置變換）。
func (s *smc) target(beta float64) mcmc.Target {
	return func(z *mat.Dense) ([]float64, error) {
		ll, lp, err := s.eval(z)
		if err != nil {
			return nil, err
		}
		lq := s.m.Proposal.LogProb(z)
		out := make([]float64, len(ll))
		for i := range out {
			out[i] = (1-beta)*lq[i] + beta*(ll[i]+lp[i])
		}
		return out, nil
	}
}

// retemper 以變異後的粒子位置重建 beta 階的樣本集（重新評估三組密度）。
func (s *smc) retemper(x *mat.Dense, beta float64) (*samples.Tempered, error) {
	ll, lp, err := s.eval(x)
	if err != nil {
		return nil, err
	}
	lq := s.m.Proposal.LogProb(x)
	return samples.NewTempered(x, beta,
		samples.WithLogLikelihood(ll),
		samples.WithLogPrior(lp),
		samples.WithLogQ(lq),
		samples.WithParameters(s.m.Parameters),
		samples.WithBackend(s.be),
	)
}

// eval 對一批物理座標樣本評估 likelihood 與 prior。
func (s *smc) eval(x *mat.Dense) (ll, lp []float64, err error) {
	set, err := samples.New(x,
		samples.WithParameters(s.m.Parameters),
		samples.WithBackend(s.be),
	)
	if err != nil {
		return nil, nil, err
	}
	n, _ := x.Dims()
	ll, err = s.m.LogLikelihood(set)
	if err != nil {
		return nil, nil, err
	}
	lp, err = s.m.LogPrior(set)
	if err != nil {
		return nil, nil, err
	}
	if len(ll) != n || len(lp) != n {
		return nil, nil, errs.Fatalf("smc: density length mismatch: ll=%d lp=%d n=%d", len(ll), len(lp), n)
	}
	return ll, lp, nil
}

// essOf 計算未正規化 log 權重的 Kish ESS（shift 後的 log 域）。
func (s *smc) essOf(logW []float64) float64 {
	maxW := s.be.Max(logW)
	shifted := make([]float64, len(logW))
	doubled := make([]float64, len(logW))
	for i, lw := range logW {
		shifted[i] = lw - maxW
		doubled[i] = 2 * shifted[i]
	}
	return math.Exp(2*s.be.LogSumExp(shifted) - s.be.LogSumExp(doubled))
}

// rungRelVar 回傳單一階 evidence 增量的相對變異數（標準誤/均值 的平方）。
//
// 權重先減 running max 再 exp；相對量對整體縮放不變，因此 shift 安全。
func rungRelVar(logW []float64) float64 {
	n := len(logW)
	if n < 2 {
		return 0
	}
	maxW := math.Inf(-1)
	for _, lw := range logW {
		if lw > maxW {
			maxW = lw
		}
	}
	var mean float64
	w := make([]float64, n)
	for i, lw := range logW {
		w[i] = math.Exp(lw - maxW)
		mean += w[i]
	}
	mean /= float64(n)
	var sq float64
	for _, wi := range w {
		d := wi - mean
		sq += d * d
	}
	se := math.Sqrt(sq / (float64(n) * float64(n-1)))
	rel := se / mean
	return rel * rel
}
