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

// Package tensor 定義 Bayeslab 數值運算的後端抽象。
//
// samples 等核心套件只面向 Backend 介面發出向量運算，
// 不分支判斷後端身分；要支援新的後端（例如 accelerator 上的陣列），
// 實作一次 Backend 即可，核心程式碼不需要改動。
//
// 約定：
//   - Asarray 負責把輸入搬移到該後端/裝置並複製（呼叫端保留所有權）。
//   - 所有逐元素運算都寫入 dst 並回傳 dst；dst 為 nil 時配置新向量。
//   - 縮減運算（Sum/Max/LogSumExp）回傳純量，空向量的行為遵循 gonum floats
//     （Max panic、LogSumExp 回傳 -Inf）——呼叫端要保證 N ≥ 1。
package tensor

// Device 標示陣列所在裝置。CPU 後端只有一個裝置。
type Device string

const CPU Device = "cpu"

// Backend 是核心數值能力的最小面積：
// 陣列建構、逐元素 exp/log/sqrt/abs、縮減（sum/max/logsumexp）、NaN 偵測。
type Backend interface {
	// Name 回傳後端識別字（僅供診斷輸出，核心不可據此分支）。
	Name() string
	// Device 回傳此後端實體化陣列的裝置。
	Device() Device
	// Asarray 將 v 複製並正規化到此後端/裝置。
	Asarray(v []float64) []float64

	Exp(dst, src []float64) []float64
	Log(dst, src []float64) []float64
	Sqrt(dst, src []float64) []float64
	Abs(dst, src []float64) []float64

	Sum(v []float64) float64
	Max(v []float64) float64
	// LogSumExp 以 shift-by-max 的穩定方式計算 log(Σ exp(v_i))。
	LogSumExp(v []float64) float64
	HasNaN(v []float64) bool
}
