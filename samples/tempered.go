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

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/sdk/sampler"
)

// Tempered 是退火階梯上一階的樣本集。
//
// 溫度 beta ∈ [0,1] 誘導幾何插值密度
//
//	p_beta(x) ∝ q(x)^(1-beta) · [L(x)·π(x)]^beta
//
// beta=0 退回 proposal，beta=1 即（未正規化的）posterior。
// 每個 Tempered 永遠屬於階梯上的某一階，因此 beta 是必填欄位。
type Tempered struct {
	*Set
	beta float64
}

// NewTempered 建立某一階的樣本集。
//
// 階間權重同時需要 log_q 與 log_likelihood+log_prior，
// 因此三組密度必須齊備；beta 超出 [0,1] 為 Fatal usage error。
func NewTempered(x *mat.Dense, beta float64, opts ...Option) (*Tempered, error) {
	if beta < 0 || beta > 1 {
		return nil, errs.Fatalf("samples: beta %v outside [0,1]", beta)
	}
	s, err := New(x, opts...)
	if err != nil {
		return nil, err
	}
	if !s.CanWeight() {
		return nil, errs.NewFatal("samples: tempered set requires log_likelihood, log_prior and log_q")
	}
	return &Tempered{Set: s, beta: beta}, nil
}

// Beta 回傳此階的溫度。
func (t *Tempered) Beta() float64 { return t.beta }

// UnnormalizedLogWeights 回傳移動到 beta 階所需的增量 importance log 權重
//
//	(beta_now - beta)·log_q + (beta - beta_now)·(log_likelihood + log_prior)
//
// 即 log p_beta(x) - log p_beta_now(x)。beta == beta_now 時全為 0。
func (t *Tempered) UnnormalizedLogWeights(beta float64) []float64 {
	n := t.Len()
	out := make([]float64, n)
	dq := t.beta - beta
	dp := beta - t.beta
	for i := 0; i < n; i++ {
		out[i] = dq*t.logQ[i] + dp*(t.logLike[i]+t.logPrior[i])
	}
	return out
}

// LogEvidenceRatio 估計 Z_beta / Z_beta_now 的 log 值：
//
//	logsumexp(unnormalized_log_weights(beta)) - log(N)
//
// 沿整條階梯把這個比值逐階累加（log 空間相加），
// 在 beta=1 時即得到總 evidence 估計。
func (t *Tempered) LogEvidenceRatio(beta float64) float64 {
	logW := t.UnnormalizedLogWeights(beta)
	return t.be.LogSumExp(logW) - math.Log(float64(t.Len()))
}

// LogWeights 回傳移動到 beta 階的 log 權重，
// 每個元素都加上該步的 log evidence ratio。
//
// 這個加法在下游 resample 的重正規化下不影響任何結果（常數在
// logsumexp 正規化中相消），僅在直接讀取輸出做診斷時可見；
// 此行為刻意保留，消費端依賴未重正規化的值。
//
// 任一權重為 NaN 即回傳 Data error（帶上肇事的 beta 值），
// 表示此溫度步下兩個密度幾乎不重疊——呼叫端應改用更小的步長，
// 而不是原樣重試。
func (t *Tempered) LogWeights(beta float64) ([]float64, error) {
	logW := t.UnnormalizedLogWeights(beta)
	if t.be.HasNaN(logW) {
		return nil, errs.Dataf("samples: log weights contain NaN values for beta=%v", beta)
	}
	ratio := t.be.LogSumExp(logW) - math.Log(float64(t.Len()))
	for i := range logW {
		logW[i] += ratio
	}
	return logW, nil
}

// Resample 執行 SMC 修正步：把本階樣本 multinomial 重抽樣成 beta 階的
// 新樣本集（權重退化的標準對策）。
//
// nSamples <= 0 時抽出與本階相同的 N 筆。
//
// beta == 目前溫度是退化操作：記一筆 warning 後原樣回傳同一個實例
// （不是複本），不視為錯誤。
func (t *Tempered) Resample(c *core.Core, beta float64, nSamples int) (*Tempered, error) {
	if beta == t.beta {
		warn("resampling with the same beta value", "beta", beta)
		return t, nil
	}
	if nSamples <= 0 {
		nSamples = t.Len()
	}

	logW, err := t.LogWeights(beta)
	if err != nil {
		return nil, err
	}
	norm := t.be.LogSumExp(logW)
	probs := make([]float64, len(logW))
	for i, lw := range logW {
		probs[i] = math.Exp(lw - norm)
	}

	idx := sampler.Multinomial(c, probs, nSamples)
	return NewTempered(
		takeRows(t.x, idx),
		beta,
		WithLogLikelihood(takeVals(t.logLike, idx)),
		WithLogPrior(takeVals(t.logPrior, idx)),
		WithLogQ(takeVals(t.logQ, idx)),
		WithParameters(t.params),
		WithBackend(t.be),
	)
}

// ToStandard 把本階轉成一般樣本集，帶上階梯累積的 evidence 估計。
//
// 預期在階梯到達 beta=1 後呼叫：此時重抽樣後的族群已近似未加權
// posterior 抽樣，輸出不附 log_q，因此下游不會再對它計算權重。
func (t *Tempered) ToStandard(est *EvidenceEstimate) (*Set, error) {
	opts := []Option{
		WithLogLikelihood(t.be.Asarray(t.logLike)),
		WithLogPrior(t.be.Asarray(t.logPrior)),
		WithParameters(t.params),
		WithBackend(t.be),
	}
	if est != nil {
		opts = append(opts, WithEvidence(*est))
	}
	return New(t.x, opts...)
}
