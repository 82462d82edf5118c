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

// Package core 提供 Bayeslab 所有隨機取樣的亂數核心。
//
// 設計原則（與取樣正確性直接相關）：
//   - 所有會消耗亂數的操作（rejection sampling、multinomial resampling、
//     kernel 提案）都必須接受呼叫端注入的 *Core，不存在 process 全域亂數狀態。
//   - 未指定 seed 時由呼叫端用 NewDefault()（crypto 種子）顯式建立，而不是在
//     深層程式碼裡偷偷 fallback，確保重現性由最外層控制。
//   - Core 同時滿足 math/rand/v2 的 Source 介面（Uint64），因此 gonum 的
//     distuv/distmv 分佈可以直接以 Core 作為亂數來源。
package core

import (
	"crypto/rand"
	"math"
	"math/big"
)

// PRNG 定義 Core 所需的亂數來源，需同時支援取樣與狀態保存/還原。
type PRNG interface {
	RAND
	Restorable
}

// Restorable 定義可快照與還原的狀態介面。
type Restorable interface {
	// Snapshot 回傳可用於還原的序列化狀態。
	Snapshot() ([]byte, error)
	// Restore 依序列化狀態還原 PRNG 內部狀態。
	Restore([]byte) error
}

// RAND 定義核心亂數取樣能力。
//
// 要求 Uint64 / Float64 / UintN / IntN 四個方法而不是只要求 Uint64，
// 是為了讓每個 PRNG 實作用最合適的 bounded 生成與浮點精度策略
// （例如 53-bit mantissa 的 Float64、乘法高位拒絕採樣的 IntN）。
type RAND interface {
	// Uint64 回傳非負 uint64 亂數。
	Uint64() uint64
	// Float64 回傳 [0,1) 的浮點亂數。
	Float64() float64
	// UintN 回傳 [0,max) 的 uint 亂數，若 max == 0 回傳 0。
	UintN(uint) uint
	// IntN 回傳 [0,max) 的 int 亂數，若 max <= 0 回傳 -1。
	IntN(int) int
}

// PRNGFactory 以指定 seed 建立新的 PRNG。
//
// 合約：在同一個實作與同一個版本下，New(seed) 必須是決定性的——
// 相同的 seed 必須產生相同的初始內部狀態與輸出序列。
// Bayeslab 的 Runner/SMC 皆由 baseSeed 以固定算法派生子 seed，
// 因此內部永遠不需要「不帶 seed 的 New()」。
type PRNGFactory interface {
	New(int64) PRNG
}

// DefaultPRNG 實作預設的 PRNGFactory，回傳 PCG64。
type DefaultPRNG struct{}

// New 滿足合約
func (d *DefaultPRNG) New(seed int64) PRNG {
	return newPCG64WithSeed(seed)
}

func Default() *DefaultPRNG {
	return &DefaultPRNG{}
}

// Core 封裝 PRNG，並提供常用取樣與工具方法。
type Core struct {
	PRNG
}

// New 允許使用外部自實現的 PRNG 建立 Core。
func New(rng PRNG) *Core {
	return &Core{rng}
}

// NewDefault 以 crypto/rand 產生的種子建立 Core。
// 這是「未指定 seed」情境的唯一入口：隨機性仍是顯式建構出來的物件，
// 不是隱藏的全域狀態。
func NewDefault() *Core {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return New(newPCG64WithSeed(seed.Int64()))
}

// NewWithSeed 以指定 seed 建立 Core（PCG64）。
func NewWithSeed(seed int64) *Core {
	return New(newPCG64WithSeed(seed))
}

// ExpFloat64 回傳標準指數分佈（rate=1）亂數，即 -ln(U)。
//
// rejection sampling 需要 log(u)、Efraimidis-Spirakis 抽樣需要 -ln(U)/w，
// 兩者都直接用這個方法，避免先取 U 再取 log 時 U==0 的邊界。
func (c *Core) ExpFloat64() float64 {
	for {
		u := c.Float64()
		if u > 0 {
			return -math.Log(u)
		}
	}
}

// NormFloat64 回傳標準常態分佈亂數（Marsaglia polar method）。
//
// 每次呼叫丟棄配對的第二個值，換取無狀態（Snapshot/Restore 不需要
// 保存暫存的 spare 值）。kernel 的提案是向量化批次呼叫，這個成本可忽略。
func (c *Core) NormFloat64() float64 {
	for {
		u := 2*c.Float64() - 1
		v := 2*c.Float64() - 1
		s := u*u + v*v
		if s >= 1 || s == 0 {
			continue
		}
		return u * math.Sqrt(-2*math.Log(s)/s)
	}
}

// Pick 從列表中隨機選取一個元素，若列表為空回傳 -1
// 熱路徑中只使用哨兵值回傳
func (c *Core) Pick(src []int) int {
	if len(src) == 0 {
		return -1
	}
	idx := c.IntN(len(src))
	return src[idx]
}

// ShuffleInts 使用 Fisher-Yates 演算法對 []int 進行就地隨機重排。
// O(N) 時間、零配置，且所有 N! 種排列出現機率嚴格相等。
func (c *Core) ShuffleInts(src []int) {
	if len(src) <= 1 {
		return
	}

	for i := len(src) - 1; i > 0; i-- {
		j := c.IntN(i + 1)
		src[i], src[j] = src[j], src[i]
	}
}
