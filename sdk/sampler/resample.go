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

// 本檔案 (resample.go) 提供兩個重抽樣入口：
//   - Multinomial：SMC 修正步使用的有放回分類抽樣（bootstrap resampling）。
//   - RejectionAccept：把加權樣本轉為未加權樣本的拒絕抽樣接受遮罩。
//
// 兩者都只回傳「索引」：選中的列由呼叫端複製到新的樣本集，
// 本套件不觸碰樣本資料本身。

package sampler

import (
	"github.com/zintix-labs/bayeslab/sdk/core"
)

// Multinomial 依機率向量 probs 有放回地抽出 n 個索引。
//
// 實作：建一次 alias table（O(N)），之後每次抽樣 O(1)，
// 整體 O(N + n)。probs 的驗證規則同 BuildAliasTable。
func Multinomial(c *core.Core, probs []float64, n int) []int {
	at := BuildAliasTable(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = at.Pick(c)
	}
	return idx
}

// RejectionAccept 對每個樣本 i 以機率 w_i / max(w) 決定是否接受，
// 回傳被接受樣本的索引（保持原順序）。
//
// 輸入 shiftedLogW 必須已經減去 max(logW)，即 shiftedLogW[i] ≤ 0。
// 判斷式 shifted > log(u) 中的 log(u) 以 -ExpFloat64() 生成，
// 避開 u==0 的邊界；u 永遠落在 (0,1)，因此 shifted==0（最大權重）
// 的樣本必定被接受。
//
// 接受數量是隨機的，期望值約為 N × efficiency；呼叫端必須容忍可變長度。
func RejectionAccept(c *core.Core, shiftedLogW []float64) []int {
	accept := make([]int, 0, len(shiftedLogW))
	for i, lw := range shiftedLogW {
		if lw > -c.ExpFloat64() {
			accept = append(accept, i)
		}
	}
	return accept
}
