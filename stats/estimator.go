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

package stats

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// ** 結構宣告 **
// ============================================================

// 重複執行（不同 seed）之間的 evidence 散布評估
type EstimatorRuns struct {
	LogZ       SpreadStat
	ESS        SpreadStat
	Efficiency SpreadStat
	Runs       int
}

// SpreadStat 描述一個量在重複執行間的分布
type SpreadStat struct {
	Median PointStat
	P10    PointStat
	P90    PointStat
}

// ============================================================
// ** 對外 : 重複執行評估 **
// ============================================================

// EstimatorRunSpread 重複執行評估
//
// 同一設定以不同 seed 重複執行後，描述 log evidence 與取樣效率
// 在執行之間的散布。單次執行的誤差條是估計式給的；這裡的散布
// 是實際跑出來的，兩者對不上就表示誤差條低估了。
func EstimatorRunSpread(reports []*Report) *EstimatorRuns {
	n := len(reports)
	out := &EstimatorRuns{Runs: n}
	if n == 0 {
		return out
	}

	logZ := make([]float64, 0, n)
	ess := make([]float64, n)
	eff := make([]float64, n)
	for i, r := range reports {
		if r.Summary.HasLogZ {
			logZ = append(logZ, r.Summary.LogZ)
		}
		ess[i] = r.Summary.ESS
		eff[i] = r.Summary.Efficiency
	}

	out.LogZ = spreadStat(logZ)
	out.ESS = spreadStat(ess)
	out.Efficiency = spreadStat(eff)
	return out
}

func spreadStat(data []float64) SpreadStat {
	medLo, medHi := quantileCI(data, 0.5, 0.95)
	p10Lo, p10Hi := quantileCI(data, 0.10, 0.95)
	p90Lo, p90Hi := quantileCI(data, 0.90, 0.95)
	return SpreadStat{
		Median: PointStat{Hat: quantilePoint(data, 0.5), CI: CI{Lo: medLo, Hi: medHi}},
		P10:    PointStat{Hat: quantilePoint(data, 0.10), CI: CI{Lo: p10Lo, Hi: p10Hi}},
		P90:    PointStat{Hat: quantilePoint(data, 0.90), CI: CI{Lo: p90Lo, Hi: p90Hi}},
	}
}

// ============================================================
// ** 內部統計函數 **
// ============================================================

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	// Beta PPF 映射，處理邊界
	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// 問題：給定樣本 data 與門檻 x0，估計 p = P(X ≤ x0) 的點估計與 CI 區間
// 回傳 (pHat, CI)
func PercentileCIForValue(data []float64, x0 float64, confidence float64) (pHat float64, ci CI) {
	n := len(data)
	if n == 0 {
		return 0, CI{Lo: 0, Hi: 0}
	}
	// k = 數到 <= x0 的個數
	k := 0
	for _, v := range data {
		if v <= x0 {
			k++
		}
	}
	return proportionCICP(k, n, confidence)
}

// 想估「第 q 分位」的上下界。做法：把 order statistic 的秩視為二項→Beta 反推 p 範圍，再把 p 轉回樣本索引。
// 回傳 (loValue, hiValue)
func quantileCI(data []float64, q, confidence float64) (float64, float64) {
	n := len(data)
	if n == 0 {
		return 0, 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)

	alpha := 1 - confidence
	k := int(q * float64(n))
	if k < 1 {
		k = 1
	} else if k > n-1 {
		k = n - 1
	}

	// 以 CP 思想反推 p 範圍
	bLo := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
	bHi := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
	pLo := bLo.Quantile(alpha / 2)
	pHi := bHi.Quantile(1 - alpha/2)

	li := int(pLo * float64(n))
	ui := int(pHi * float64(n))
	if ui > 0 {
		ui -= 1
	}
	if li < 0 {
		li = 0
	}
	if li > n-1 {
		li = n - 1
	}
	if ui < 0 {
		ui = 0
	}
	if ui > n-1 {
		ui = n - 1
	}
	return cp[li], cp[ui]
}

// quantilePoint returns the empirical quantile point estimate at q.
func quantilePoint(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)
	// 最近秩法
	idx := int(q * float64(n))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return cp[idx]
}

// ============================================================
// ** 輸出函數 **
// ============================================================

func (est *EstimatorRuns) Out() {
	fmt.Println("=== Run-to-run spread ===")
	keys := []string{
		"Log Evidence (median)",
		"Log Evidence (p10)",
		"Log Evidence (p90)",
		"ESS (median)",
		"Efficiency (median)",
	}
	msg := map[string]string{
		"Log Evidence (median)": fmtHatCI(est.LogZ.Median.Hat, est.LogZ.Median.CI),
		"Log Evidence (p10)":    fmtHatCI(est.LogZ.P10.Hat, est.LogZ.P10.CI),
		"Log Evidence (p90)":    fmtHatCI(est.LogZ.P90.Hat, est.LogZ.P90.CI),
		"ESS (median)":          fmtHatCI(est.ESS.Median.Hat, est.ESS.Median.CI),
		"Efficiency (median)":   fmtHatCI(est.Efficiency.Median.Hat, est.Efficiency.Median.CI),
	}
	printTable("Run-to-run spread", keys, msg)
	fmt.Printf("runs: %d\n", est.Runs)
}

func printTable(title string, keys []string, msg map[string]string) {
	fmt.Println(title)
	maxKeyLen := 0
	for _, k := range keys {
		if len(k) > maxKeyLen {
			maxKeyLen = len(k)
		}
	}
	for _, k := range keys {
		fmt.Printf("  %-*s : %s\n", maxKeyLen, k, msg[k])
	}
}

func fmtHatCI(hat float64, ci CI) string {
	return fmt.Sprintf("%.4f [%.4f, %.4f]", hat, ci.Lo, ci.Hi)
}
