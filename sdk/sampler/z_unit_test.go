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

package sampler

import (
	"math"
	"testing"

	"github.com/zintix-labs/bayeslab/sdk/core"
)

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// assertPanic 驗證函數是否如預期觸發 panic
func assertPanic(t *testing.T, f func(), msg string) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for %s, but got none", msg)
		}
	}()
	f()
}

// checkDistribution 驗證抽樣結果的分佈是否符合預期機率
func checkDistribution(t *testing.T, name string, probs []float64, samples []int, tolerance float64) {
	t.Helper()
	total := 0.0
	for _, p := range probs {
		total += p
	}
	if total == 0 {
		return
	}

	counts := make(map[int]int)
	for _, idx := range samples {
		counts[idx]++
	}

	totalSamples := len(samples)
	for i, p := range probs {
		if p == 0 {
			if counts[i] > 0 {
				t.Errorf("[%s] expected 0 samples for index %d (prob 0), got %d", name, i, counts[i])
			}
			continue
		}
		expectedProb := p / total
		actualProb := float64(counts[i]) / float64(totalSamples)
		diff := math.Abs(expectedProb - actualProb)

		if diff > tolerance {
			t.Errorf("[%s] index %d: expected prob %.3f, got %.3f (diff %.3f > tol %.3f)",
				name, i, expectedProb, actualProb, diff, tolerance)
		}
	}
}

// -----------------------------------------------------------------------------
// Tests for AliasTable
// -----------------------------------------------------------------------------

func TestAliasTableDistribution(t *testing.T) {
	c := core.New(core.Default().New(1))
	probs := []float64{0.1, 0.2, 0.3, 0.4}
	at := BuildAliasTable(probs)

	trials := 100000
	samples := make([]int, trials)
	for i := range samples {
		samples[i] = at.Pick(c)
	}
	checkDistribution(t, "alias-basic", probs, samples, 0.01)
}

func TestAliasTableUnnormalizedInput(t *testing.T) {
	// 不要求輸入正規化：內部除以總和
	c := core.New(core.Default().New(2))
	probs := []float64{1, 3}
	at := BuildAliasTable(probs)

	trials := 50000
	hit := 0
	for i := 0; i < trials; i++ {
		if at.Pick(c) == 1 {
			hit++
		}
	}
	rate := float64(hit) / float64(trials)
	if rate < 0.73 || rate > 0.77 {
		t.Errorf("expected ~0.75 for weight 3/4, got %.4f", rate)
	}
}

func TestAliasTableZeroWeightNeverPicked(t *testing.T) {
	c := core.New(core.Default().New(3))
	probs := []float64{0, 0.5, 0.5}
	at := BuildAliasTable(probs)
	for i := 0; i < 10000; i++ {
		if at.Pick(c) == 0 {
			t.Fatalf("zero-probability index picked")
		}
	}
}

func TestAliasTableInvalidInput(t *testing.T) {
	assertPanic(t, func() { BuildAliasTable([]float64{0.5, -0.1}) }, "negative probability")
	assertPanic(t, func() { BuildAliasTable([]float64{0, 0}) }, "all zero")
	assertPanic(t, func() { BuildAliasTable([]float64{math.NaN(), 1}) }, "NaN probability")
}

func TestAliasTableEmpty(t *testing.T) {
	c := core.New(core.Default().New(4))
	at := BuildAliasTable(nil)
	if got := at.Pick(c); got != -1 {
		t.Fatalf("expected -1 for empty table, got %d", got)
	}
}

// -----------------------------------------------------------------------------
// Tests for Multinomial
// -----------------------------------------------------------------------------

func TestMultinomialDistribution(t *testing.T) {
	c := core.New(core.Default().New(5))
	// tempering 3 樣本情境：機率正比 [e^1, e^2, e^3]
	probs := []float64{math.Exp(1), math.Exp(2), math.Exp(3)}
	idx := Multinomial(c, probs, 100000)
	if len(idx) != 100000 {
		t.Fatalf("unexpected sample count: %d", len(idx))
	}
	checkDistribution(t, "multinomial-exp", probs, idx, 0.01)
}

func TestMultinomialDeterministic(t *testing.T) {
	probs := []float64{0.2, 0.8}
	a := Multinomial(core.New(core.Default().New(6)), probs, 100)
	b := Multinomial(core.New(core.Default().New(6)), probs, 100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed must give same indices (pos %d)", i)
		}
	}
}

// -----------------------------------------------------------------------------
// Tests for RejectionAccept
// -----------------------------------------------------------------------------

func TestRejectionAcceptAllEqual(t *testing.T) {
	// 權重全等 → shifted 全為 0 → 全數接受
	c := core.New(core.Default().New(7))
	shifted := make([]float64, 64)
	accept := RejectionAccept(c, shifted)
	if len(accept) != 64 {
		t.Fatalf("expected all accepted, got %d/64", len(accept))
	}
	for i, idx := range accept {
		if idx != i {
			t.Fatalf("accept order must be preserved")
		}
	}
}

func TestRejectionAcceptRate(t *testing.T) {
	// 兩組權重 1 : e^-1 → 第二組接受率應約 1/e
	c := core.New(core.Default().New(8))
	const n = 50000
	shifted := make([]float64, n)
	for i := n / 2; i < n; i++ {
		shifted[i] = -1
	}
	accept := RejectionAccept(c, shifted)
	low := 0
	for _, idx := range accept {
		if idx >= n/2 {
			low++
		}
	}
	rate := float64(low) / float64(n/2)
	want := math.Exp(-1)
	if math.Abs(rate-want) > 0.02 {
		t.Fatalf("acceptance rate for logw=-1: want ~%.3f got %.3f", want, rate)
	}
}
