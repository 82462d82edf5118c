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

// Package flows 定義提議分布（proposal）與座標預處理轉換的介面，
// 以及可直接使用的高斯實作。
//
// Flow 是重要性加權的 q(x)：取樣器從它抽初始母體，evidence 估計
// 依賴它的 log_prob。Transform 把物理座標 x 映到取樣器內部座標 z
// （白化後的空間），讓通用 kernel 在任意尺度、任意相關性的
// posterior 上都能有效混合。
package flows

import (
	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/sdk/core"
)

// Flow 是一個可抽樣、可評估密度的提議分布。
// 回傳的矩陣皆為 n×D，一列一筆抽樣；密度為每列一個純量。
type Flow interface {
	// Dims 回傳參數維度 D。
	Dims() int

	// Sample 以 c 抽 n 筆樣本。
	Sample(c *core.Core, n int) *mat.Dense

	// SampleAndLogProb 抽 n 筆樣本並一併回傳各列的 log q。
	SampleAndLogProb(c *core.Core, n int) (*mat.Dense, []float64)

	// LogProb 評估各列的 log q。
	LogProb(x *mat.Dense) []float64
}

// Transform 是物理座標與取樣座標之間的可逆映射。
//
// Fit 從一批初始樣本學出參數並回傳轉換後的批次；Forward / Inverse
// 之後使用已學得的參數。Inverse 額外回傳每列的 log|det J|
// （z→x 方向的 Jacobian 修正），供目標密度換座標使用。
// 所有方法都回傳新矩陣，不修改輸入。
type Transform interface {
	Fit(x *mat.Dense) (*mat.Dense, error)
	Forward(x *mat.Dense) (*mat.Dense, error)
	Inverse(z *mat.Dense) (*mat.Dense, []float64, error)
}

// Identity 是不做任何變換的 Transform，Jacobian 修正恆為零。
// 用在已經標準化的模型，或想直接在物理座標上跑 kernel 的場合。
type Identity struct{}

func (Identity) Fit(x *mat.Dense) (*mat.Dense, error) {
	return mat.DenseCopyOf(x), nil
}

func (Identity) Forward(x *mat.Dense) (*mat.Dense, error) {
	return mat.DenseCopyOf(x), nil
}

func (Identity) Inverse(z *mat.Dense) (*mat.Dense, []float64, error) {
	n, _ := z.Dims()
	return mat.DenseCopyOf(z), make([]float64, n), nil
}
