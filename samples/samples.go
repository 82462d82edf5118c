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

// Package samples 實作 Bayeslab 的加權樣本資料模型。
//
// 三種型別對應樣本集的三種狀態：
//   - Set：一批參數抽樣（N×D）加上可選的三組 per-draw 對數密度。不可變。
//   - Weighted：由 ComputeWeights 從 Set 建構出的加權變體，衍生欄位
//     （log 權重、evidence、ESS）在建構時一次算齊——不存在「部分計算」狀態。
//   - Tempered：退火階梯上的一階（Set + beta），提供階間增量權重與
//     multinomial 重抽樣。
//
// 所有轉換（加權、拒絕抽樣、重抽樣）都回傳新實例；每個實例獨占自己的
// 陣列，重新索引一律複製選中的列，不跨實例共享底層記憶體。
package samples

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/tensor"
)

// logger 供退化操作警告使用；nil 時使用 slog.Default()。
var logger *slog.Logger

// SetLogger 注入本套件發出退化操作警告所用的 logger。
func SetLogger(l *slog.Logger) { logger = l }

func warn(msg string, args ...any) {
	l := logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn(msg, args...)
}

// EvidenceEstimate 是附掛在樣本集上的邊際概似估計（log 空間）。
//
// 它與 Weighted 內部計算出的 evidence 是兩條路徑：
//   - Weighted 由自身權重算出 evidence（importance sampling 估計）。
//   - EvidenceEstimate 則是外部來源（獨立 IS 批次、SMC 階梯累積）
//     要隨最終 posterior 樣本一起帶走的數字。
type EvidenceEstimate struct {
	LogZ    float64 `json:"log_z"`
	LogZErr float64 `json:"log_z_err"`
}

// Set 儲存一批參數抽樣與對應的 per-draw 對數密度。
//
// 建構後不可變；所有欄位在建構時以 Backend.Asarray 正規化到同一個
// 後端/裝置並複製（呼叫端保留其輸入的所有權）。
type Set struct {
	x        *mat.Dense
	logLike  []float64
	logPrior []float64
	logQ     []float64
	params   []string
	be       tensor.Backend
	evidence *EvidenceEstimate
}

// Option 調整 Set 的建構。
type Option func(*Set)

// WithLogLikelihood 附上每筆抽樣的 log-likelihood。
func WithLogLikelihood(v []float64) Option {
	return func(s *Set) { s.logLike = v }
}

// WithLogPrior 附上每筆抽樣的 log-prior。
func WithLogPrior(v []float64) Option {
	return func(s *Set) { s.logPrior = v }
}

// WithLogQ 附上每筆抽樣的 proposal 對數密度 log q(x)。
func WithLogQ(v []float64) Option {
	return func(s *Set) { s.logQ = v }
}

// WithParameters 指定參數名稱（長度必須等於維度 D）。
func WithParameters(names []string) Option {
	return func(s *Set) { s.params = names }
}

// WithBackend 指定數值後端；未指定時使用 CPU 後端。
func WithBackend(be tensor.Backend) Option {
	return func(s *Set) { s.be = be }
}

// WithEvidence 附上外部來源的 evidence 估計。
func WithEvidence(est EvidenceEstimate) Option {
	return func(s *Set) { s.evidence = &est }
}

// New 建立一個 Set。
//
// 驗證規則（違反即 Fatal usage error）：
//   - x 非 nil 且 N ≥ 1。
//   - 每個有附的對數密度向量長度必須等於 N。
//   - 有指定參數名稱時長度必須等於 D；未指定時補上 x_0..x_{D-1}。
func New(x *mat.Dense, opts ...Option) (*Set, error) {
	if x == nil {
		return nil, errs.NewFatal("samples: x required")
	}
	n, d := x.Dims()
	if n < 1 {
		return nil, errs.NewFatal("samples: empty sample batch")
	}

	s := &Set{}
	for _, opt := range opts {
		opt(s)
	}
	if s.be == nil {
		s.be = tensor.NewCPU()
	}

	for _, v := range [][]float64{s.logLike, s.logPrior, s.logQ} {
		if v != nil && len(v) != n {
			return nil, errs.Fatalf("samples: density length %d != sample count %d", len(v), n)
		}
	}

	if s.params == nil {
		s.params = defaultParams(d)
	} else if len(s.params) != d {
		return nil, errs.Fatalf("samples: %d parameter names for %d dims", len(s.params), d)
	}

	// 獨占所有權：一律複製
	s.x = mat.DenseCopyOf(x)
	s.logLike = s.be.Asarray(s.logLike)
	s.logPrior = s.be.Asarray(s.logPrior)
	s.logQ = s.be.Asarray(s.logQ)
	return s, nil
}

func defaultParams(d int) []string {
	out := make([]string, d)
	for i := range out {
		out[i] = fmt.Sprintf("x_%d", i)
	}
	return out
}

// Len 回傳樣本數 N。
func (s *Set) Len() int {
	n, _ := s.x.Dims()
	return n
}

// Dims 回傳參數維度 D。
func (s *Set) Dims() int {
	_, d := s.x.Dims()
	return d
}

// X 回傳 N×D 樣本陣列。呼叫端視為唯讀；要修改請先複製。
func (s *Set) X() *mat.Dense { return s.x }

// LogLikelihood 回傳 log-likelihood 向量，未附上時為 nil。唯讀。
func (s *Set) LogLikelihood() []float64 { return s.logLike }

// LogPrior 回傳 log-prior 向量，未附上時為 nil。唯讀。
func (s *Set) LogPrior() []float64 { return s.logPrior }

// LogQ 回傳 proposal 對數密度向量，未附上時為 nil。唯讀。
func (s *Set) LogQ() []float64 { return s.logQ }

// Parameters 回傳參數名稱。唯讀。
func (s *Set) Parameters() []string { return s.params }

// Backend 回傳此樣本集實體化所在的數值後端。
func (s *Set) Backend() tensor.Backend { return s.be }

// Evidence 回傳外部附掛的 evidence 估計。
func (s *Set) Evidence() (EvidenceEstimate, bool) {
	if s.evidence == nil {
		return EvidenceEstimate{}, false
	}
	return *s.evidence, true
}

// CanWeight 回傳三組對數密度是否齊備（齊備才能 ComputeWeights）。
func (s *Set) CanWeight() bool {
	return s.logLike != nil && s.logPrior != nil && s.logQ != nil
}

// Columns 回傳以參數名稱為 key 的欄狀匯出視圖，
// 供 recorder / server 等下游持久化與繪圖使用。
// 有附上的對數密度以 log_likelihood / log_prior / log_q 為 key 一併輸出。
// 所有欄位都是複本，修改不影響樣本集。
func (s *Set) Columns() map[string][]float64 {
	n, d := s.x.Dims()
	out := make(map[string][]float64, d+3)
	for j, name := range s.params {
		col := make([]float64, n)
		mat.Col(col, j, s.x)
		out[name] = col
	}
	if s.logLike != nil {
		out["log_likelihood"] = s.be.Asarray(s.logLike)
	}
	if s.logPrior != nil {
		out["log_prior"] = s.be.Asarray(s.logPrior)
	}
	if s.logQ != nil {
		out["log_q"] = s.be.Asarray(s.logQ)
	}
	return out
}

func (s *Set) String() string {
	return fmt.Sprintf("No. samples: %d\nNo. parameters: %d\n", s.Len(), s.Dims())
}

// takeRows 把 x 中 idx 指定的列複製進新的 Dense。
func takeRows(x *mat.Dense, idx []int) *mat.Dense {
	_, d := x.Dims()
	out := mat.NewDense(len(idx), d, nil)
	for i, r := range idx {
		out.SetRow(i, x.RawRowView(r))
	}
	return out
}

// takeVals 依 idx 建立 v 的選取複本；v 為 nil 時回傳 nil。
func takeVals(v []float64, idx []int) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}
