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

package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NewCPU 回傳以 gonum floats 實作的 CPU 後端。
// 實作是無狀態的，同一個值可以被任意多個樣本集共享。
func NewCPU() Backend {
	return cpuBackend{}
}

type cpuBackend struct{}

func (cpuBackend) Name() string   { return "cpu" }
func (cpuBackend) Device() Device { return CPU }

func (cpuBackend) Asarray(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func (cpuBackend) Exp(dst, src []float64) []float64 {
	dst = ensure(dst, len(src))
	for i, v := range src {
		dst[i] = math.Exp(v)
	}
	return dst
}

func (cpuBackend) Log(dst, src []float64) []float64 {
	dst = ensure(dst, len(src))
	for i, v := range src {
		dst[i] = math.Log(v)
	}
	return dst
}

func (cpuBackend) Sqrt(dst, src []float64) []float64 {
	dst = ensure(dst, len(src))
	for i, v := range src {
		dst[i] = math.Sqrt(v)
	}
	return dst
}

func (cpuBackend) Abs(dst, src []float64) []float64 {
	dst = ensure(dst, len(src))
	for i, v := range src {
		dst[i] = math.Abs(v)
	}
	return dst
}

func (cpuBackend) Sum(v []float64) float64 { return floats.Sum(v) }
func (cpuBackend) Max(v []float64) float64 { return floats.Max(v) }

func (cpuBackend) LogSumExp(v []float64) float64 { return floats.LogSumExp(v) }

func (cpuBackend) HasNaN(v []float64) bool { return floats.HasNaN(v) }

func ensure(dst []float64, n int) []float64 {
	if dst == nil {
		return make([]float64, n)
	}
	if len(dst) != n {
		panic("tensor: dst length mismatch")
	}
	return dst
}
