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

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/sdk/sampler"
)

// Weighted 是完成加權的樣本集：Set 加上一次算齊的衍生欄位。
//
// 衍生欄位只會整組存在（由 ComputeWeights 建構），不存在部分計算的
// 中間狀態；要重新加權就重新建構。
type Weighted struct {
	*Set

	logW []float64
	w    []float64

	evidence       float64
	evidenceErr    float64
	logEvidence    float64
	logEvidenceErr float64
	ess            float64
}

// ComputeWeights 將三組對數密度轉成自正規化 importance 權重與
// evidence 估計，全程 log 空間運算（先減 running max 再 exp）。
//
// 公式：
//
//	log_w[i]  = log_likelihood[i] + log_prior[i] - log_q[i]
//	log_Z     = logsumexp(log_w) - log(N)
//	Z_err     = sqrt( Σ (w_i - Z)^2 / (N(N-1)) )        （樣本平均的標準誤）
//	logZ_err  = |Z_err / Z|                              （一階相對誤差代理）
//	ESS       = exp( 2·logsumexp(s) - logsumexp(2s) )    （s = log_w - max）
//
// 正確性前提（不檢查）：proposal q 的支撐必須涵蓋 posterior 有質量的區域。
// 任一組密度缺漏回傳 Fatal usage error。
func ComputeWeights(s *Set) (*Weighted, error) {
	if s == nil {
		return nil, errs.NewFatal("samples: nil set")
	}
	if !s.CanWeight() {
		return nil, errs.NewFatal("samples: log_likelihood, log_prior and log_q are all required to compute weights")
	}

	be := s.be
	n := s.Len()

	logW := make([]float64, n)
	for i := 0; i < n; i++ {
		logW[i] = s.logLike[i] + s.logPrior[i] - s.logQ[i]
	}

	logEvidence := be.LogSumExp(logW) - math.Log(float64(n))
	w := be.Exp(nil, logW)
	evidence := math.Exp(logEvidence)

	var sq float64
	for _, wi := range w {
		d := wi - evidence
		sq += d * d
	}
	evidenceErr := math.Sqrt(sq / (float64(n) * float64(n-1)))
	logEvidenceErr := math.Abs(evidenceErr / evidence)

	// Kish ESS，於 shift 後的 log 域計算
	maxW := be.Max(logW)
	shifted := make([]float64, n)
	doubled := make([]float64, n)
	for i, lw := range logW {
		shifted[i] = lw - maxW
		doubled[i] = 2 * shifted[i]
	}
	ess := math.Exp(2*be.LogSumExp(shifted) - be.LogSumExp(doubled))

	return &Weighted{
		Set:            s,
		logW:           logW,
		w:              w,
		evidence:       evidence,
		evidenceErr:    evidenceErr,
		logEvidence:    logEvidence,
		logEvidenceErr: logEvidenceErr,
		ess:            ess,
	}, nil
}

// LogW 回傳未正規化的 importance log 權重。唯讀。
func (w *Weighted) LogW() []float64 { return w.logW }

// W 回傳線性空間權重 exp(log_w)。唯讀。
func (w *Weighted) W() []float64 { return w.w }

// LogEvidence 回傳 log Z 的蒙地卡羅估計。
func (w *Weighted) LogEvidence() float64 { return w.logEvidence }

// LogEvidenceErr 回傳 log Z 估計的一階相對誤差。
func (w *Weighted) LogEvidenceErr() float64 { return w.logEvidenceErr }

// EvidenceValue 回傳線性空間的 Z 估計。
func (w *Weighted) EvidenceValue() float64 { return w.evidence }

// EvidenceErr 回傳 Z 估計的標準誤。
func (w *Weighted) EvidenceErr() float64 { return w.evidenceErr }

// EffectiveSampleSize 回傳 Kish 有效樣本數 (Σw)²/Σw²。
func (w *Weighted) EffectiveSampleSize() float64 { return w.ess }

// Efficiency 回傳 ESS / N。
func (w *Weighted) Efficiency() float64 {
	return w.ess / float64(w.Len())
}

// ScaledWeights 回傳 exp(log_w - max(log_w))，最大權重為 1。
// 供繪圖或拒絕抽樣等需要相對權重的消費端使用。
func (w *Weighted) ScaledWeights() []float64 {
	maxW := w.be.Max(w.logW)
	out := make([]float64, len(w.logW))
	for i, lw := range w.logW {
		out[i] = math.Exp(lw - maxW)
	}
	return out
}

// Rejection 以最大權重為包絡做標準拒絕抽樣，把加權樣本轉成未加權的
// posterior 子集：樣本 i 以機率 w_i/max(w) 被接受。
//
// 回傳的 Set 只攜帶被接受列的 x、log_likelihood、log_prior——
// 刻意不傳遞 log_q，因此結果不會再被加權，視為已是未加權 posterior 抽樣。
// 接受數量是隨機的（期望 ≈ N·efficiency），呼叫端必須容忍可變長度。
func (w *Weighted) Rejection(c *core.Core) (*Set, error) {
	maxW := w.be.Max(w.logW)
	shifted := make([]float64, len(w.logW))
	for i, lw := range w.logW {
		shifted[i] = lw - maxW
	}
	accept := sampler.RejectionAccept(c, shifted)

	return New(
		takeRows(w.x, accept),
		WithLogLikelihood(takeVals(w.logLike, accept)),
		WithLogPrior(takeVals(w.logPrior, accept)),
		WithParameters(w.params),
		WithBackend(w.be),
	)
}

// Columns 擴充 Set.Columns，加入 log_w 與 weights 欄位。
func (w *Weighted) Columns() map[string][]float64 {
	out := w.Set.Columns()
	out["log_w"] = w.be.Asarray(w.logW)
	out["weights"] = w.be.Asarray(w.w)
	return out
}
