// Package sampler 提供 Bayeslab 重抽樣所需的加權抽樣演算法。
//
// 本檔案 (aliastable.go) 實作了 Vose's Alias Method 加權抽樣演算法（浮點版）。
//
// 演算法原理：
//   - 將任意離散分佈轉換為均勻分佈的組合。
//   - 每個槽位 (Bucket) 只存放「自己」和「別名 (Alias)」兩個選項。
//   - 抽樣時先選槽位，再根據機率決定是自己還是別名。
//
// 特性：
//   - 建表時間：O(N)，線性時間。
//   - 抽樣時間：O(1)，穩定且高效。
//   - 空間複雜度：O(N)。
//
// 適用場景：
//   - multinomial resampling：同一組權重要抽出 N 個索引，
//     建一次表之後每次抽樣是 O(1)，整體 O(N)。
//
// 與整數權重版本不同，這裡的輸入是重抽樣用的機率向量（已正規化的
// importance weights）。浮點累積誤差由「將殘餘機率格設為確定命中」吸收：
// small/large 桶耗盡後殘留的格子一律視為 prob=1。
package sampler

import (
	"math"

	"github.com/zintix-labs/bayeslab/sdk/core"
)

// AliasTable 是 Vose Alias Method 的 O(1) 加權抽樣結構。
//
// 結構欄位說明：
// - Prob: 每個槽位「選擇自己」的機率（已乘上槽位數量並裁切到 [0,1]）。
// - Aliases: 別名索引，機率不足時指向補足機率的元素。
// - Size: 槽位數量，即元素數量。
type AliasTable struct {
	Prob    []float64
	Aliases []int
	Size    int
}

// BuildAliasTable 根據機率向量 probs 建立 AliasTable。
//
// 輸入要求：
//   - probs 为非負且總和為正；不需嚴格正規化（內部會除以總和）。
//   - 出現負值、NaN 或全零時 panic——這裡的輸入一定來自
//     已驗證過的權重正規化，走到這種輸入是程式錯誤。
//
// 演算法流程：
//  1. 將每個機率 p 乘以 n 得到 scaled[i]。
//  2. scaled < 1 入 small 桶，否則入 large 桶。
//  3. 從 small、large 各取一個 s, l：l 成為 s 的 alias，
//     並把 l 的 scaled 扣掉補給 s 的部分。
//  4. 重複直到任一桶清空；殘留槽位一律視為確定命中（吸收浮點誤差）。
func BuildAliasTable(probs []float64) *AliasTable {
	n := len(probs)
	if n == 0 {
		return &AliasTable{Prob: []float64{}, Aliases: []int{}, Size: 0}
	}

	total := 0.0
	for _, p := range probs {
		if p < 0 || math.IsNaN(p) {
			panic("AliasTable: negative or NaN probability")
		}
		total += p
	}
	if total <= 0 {
		panic("AliasTable: all probabilities are zero")
	}

	scaled := make([]float64, n)
	aliases := make([]int, n)

	small := make([]int, 0, n)
	large := make([]int, 0, n)

	for i, p := range probs {
		scaled[i] = p / total * float64(n)
		if scaled[i] < 1 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		aliases[s] = l
		scaled[l] = scaled[l] + scaled[s] - 1 // 維持 sum(scaled) = n 的不變性

		if scaled[l] < 1 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}

	// 浮點殘留：理論上 scaled 應恰為 1，直接定為確定命中
	for _, i := range small {
		scaled[i] = 1
		aliases[i] = i
	}
	for _, i := range large {
		scaled[i] = 1
		aliases[i] = i
	}

	return &AliasTable{
		Prob:    scaled,
		Aliases: aliases,
		Size:    n,
	}
}

// Pick 從 AliasTable 中抽取一個索引，若表為空則回傳 -1。
//
// 抽樣步驟：先以 IntN(Size) 均勻選槽位，再以 Float64() 與 Prob[idx]
// 比較決定自己或別名。
func (at *AliasTable) Pick(c *core.Core) int {
	if at.Size == 0 {
		return -1
	}
	idx := c.IntN(at.Size)
	if c.Float64() < at.Prob[idx] {
		return idx
	}
	return at.Aliases[idx]
}
