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

package bayeslab

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/mcmc"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/spec"
	"github.com/zintix-labs/bayeslab/stats"
)

// Runner 封裝一個「可對外提供 Run」的推論任務。
//
// 你可以把 Runner 視為一份 RunSetting 的「外殼（shell）」：
//   - 對外：提供 Run 入口（HTTP/CLI 通常只操作 Runner）。
//   - 對內：持有 RNG（Core）與真正執行推論的模型（model.Model）。
//
// 並發語意：
//   - Runner 不是 lock-free 結構；同一個 Runner 不應被多 goroutine 同時 Run。
//   - 若要併發重複推論，用 Repeat：它會以派生 seed 建立多個 Runner 分散到不同 worker。
type Runner struct {
	runName   string           // 推論名稱（來自 RunSetting.RunName，主要用於觀測/日誌）
	runID     spec.RID         // 推論 ID（Catalog 內唯一；用於路由與查表）
	rs        *spec.RunSetting // 完整設定（kernel 調校、ladder、模型參數）
	m         *model.Model     // 模型（proposal + likelihood + prior）
	reg       *model.Registry  // 保留 registry 以便 Repeat 重建模型
	cf        core.PRNGFactory // 亂數工廠（Repeat 的 worker core 由此產生）
	core      *core.Core       // RNG 核心（推論主線；熱路徑會頻繁取樣）
	mu        sync.Mutex       // 防併發鎖：保護 core 與 history
	initseed  int64            // 出生 seed（便於追溯/重現）
	seedmaker *seedMaker       // Repeat 用的子 seed 派生器
	history   *mcmc.History    // 最近一次 pcn 執行的 kernel 診斷（其他方法為 nil）
}

func newRunner(rs *spec.RunSetting, reg *model.Registry, cf core.PRNGFactory) (*Runner, error) {
	seed, err := cryptoSeed()
	if err != nil {
		return nil, err
	}
	return newRunnerWithSeed(rs, reg, cf, seed)
}

// newRunnerWithSeed 以指定 seed 建立 Runner。
//
// 這是最常用的「可重現」入口：同一份 RunSetting + 同一個 seed，應能得到一致的隨機序列。
//
// 建立流程（概念）：
//  1. registry 依 ModelKey + Model 參數建出模型（builder 失敗直接回傳）。
//  2. core.New(cf.New(seed)) 建出 RNG 核心。
//  3. seedMaker 以同一個 seed 初始化，供 Repeat 派生子 seed。
func newRunnerWithSeed(rs *spec.RunSetting, reg *model.Registry, cf core.PRNGFactory, seed int64) (*Runner, error) {
	m, err := reg.Build(string(rs.ModelKey), rs.Model)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		runName:   rs.RunName,
		runID:     rs.RunID,
		rs:        rs,
		m:         m,
		reg:       reg,
		cf:        cf,
		core:      core.New(cf.New(seed)),
		initseed:  seed,
		seedmaker: newSeedMaker(seed),
	}
	return r, nil
}

// RunName 回傳此推論的名稱。
func (r *Runner) RunName() string { return r.runName }

// RunID 回傳此推論的 ID。
func (r *Runner) RunID() spec.RID { return r.runID }

// InitSeed 回傳出生 seed。
func (r *Runner) InitSeed() int64 { return r.initseed }

// Model 回傳此推論使用的模型。
func (r *Runner) Model() *model.Model { return r.m }

// History 回傳最近一次 pcn 執行的 kernel 診斷；其他方法回傳 nil。
func (r *Runner) History() *mcmc.History {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history
}

// Run 為主要公開入口：依 RunSetting.Method 分派取樣路徑，回傳完整報表與用時。
//
// 報表內含 posterior 樣本集（Report.Posterior()），可再交給 recorder 匯出。
// showpb 只影響 smc 路徑（逐階進度條）；ensemble/pcn 的 kernel 迴圈不對外回報進度。
func (r *Runner) Run(showpb bool) (*stats.Report, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	post, ess, eff, calls, err := r.sample(r.core, showpb)
	if err != nil {
		return nil, 0, err
	}
	used := time.Since(start)

	report := stats.NewReport(r.rs, post)
	report.SetSampling(ess, eff, calls)
	report.Done()
	return report, used, nil
}

// sample 依 method 分派；回傳 posterior、ESS/efficiency（僅 smc 有值）與 model 呼叫次數。
func (r *Runner) sample(c *core.Core, showpb bool) (post *samples.Set, ess, eff float64, calls int, err error) {
	k := r.rs.Kernel
	switch r.rs.Method {
	case spec.MethodEnsemble:
		d := &mcmc.Ensemble{
			Model:     r.m,
			Transform: flows.NewWhitening(),
			Kernel:    mcmc.StretchMove{A: k.StretchA},
			NWalkers:  k.NWalkers,
			NSteps:    k.NSteps,
			Discard:   k.Discard,
		}
		post, err = d.Sample(c, r.rs.NSamples)
		r.history = nil
		return post, 0, 0, d.Calls, err

	case spec.MethodPCN:
		d := &mcmc.PCN{
			Model:     r.m,
			Transform: flows.NewWhitening(),
			Kernel: mcmc.TPCN{
				TargetAcceptance: k.TargetAcceptance,
				StepSize:         k.StepSize,
			},
			NSteps:       k.NSteps,
			Burnin:       k.Burnin,
			Thin:         k.Thin,
			LastStepOnly: k.LastStepOnly,
		}
		post, err = d.Sample(c, r.rs.NSamples)
		r.history = d.History
		return post, 0, 0, d.Calls, err

	case spec.MethodSMC:
		d := newSMC(r.m, r.rs)
		post, ess, eff, err = d.Run(c, r.rs.NSamples, showpb)
		r.history = nil
		return post, ess, eff, d.calls, err

	default:
		return nil, 0, 0, 0, errs.Fatalf("runner: unknown method %q", r.rs.Method)
	}
}

// Repeat 以派生 seed 重複執行同一份設定 runs 次，分散到 mp 個 worker，
// 回傳逐次報表與 run-to-run 散布（stats.EstimatorRunSpread）。
//
// 單次執行的誤差條是估計式給的；這裡的散布是實際跑出來的，兩者互為對照。
func (r *Runner) Repeat(runs int, mp int, showpb bool) (*stats.EstimatorRuns, time.Duration, error) {
	if runs < 2 {
		return nil, 0, errs.NewWarn("runs must > 1")
	}
	if mp <= 0 {
		return nil, 0, errs.NewWarn("workers must > 0")
	}
	if mp > runs {
		mp = runs
	}

	reports := make([]*stats.Report, runs)
	fails := make([]error, runs)

	jobs := make(chan int, runs)
	for i := 0; i < runs; i++ {
		jobs <- i
	}
	close(jobs)

	wg := new(sync.WaitGroup)
	wg.Add(mp)
	bar := pb.StartNew(runs)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	for w := 0; w < mp; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				sub, err := newRunnerWithSeed(r.rs, r.reg, r.cf, r.seedmaker.next())
				if err != nil {
					fails[i] = err
					bar.Increment()
					continue
				}
				rep, _, err := sub.Run(false)
				if err != nil {
					fails[i] = err
					bar.Increment()
					continue
				}
				reports[i] = rep
				bar.Increment()
			}
		}()
	}
	wg.Wait()
	used := time.Since(bar.StartTime())
	bar.Finish()

	for _, err := range fails {
		if err != nil {
			return nil, 0, err
		}
	}

	est := stats.EstimatorRunSpread(reports)
	return est, used, nil
}

const mask63 = uint64(1<<63) - 1

type seedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// state 走全週期（不重複），再用可逆 mix63 打散
//
// 注意：此方法可能在併發環境下被多 goroutines 同時呼叫（例如 Repeat 的 workers）。
// 因此 state 的推進必須是原子的：
//   - 使用 CAS（Compare-And-Swap）迴圈確保每次呼叫都會取得唯一的下一個 state。
//   - 回傳值使用推進後的 state 經 mix63 打散後的結果。
func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()                                            // always masked
		next := (old*6364136223846793005 + 1442695040888963407) & mask63 // full-period LCG mod 2^63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next)) // 一定非負
		}
	}
}

// mix63：只用「可逆」的 bit 操作 + 乘奇數（mod 2^63）
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63 // 乘奇數 ⇒ mod 2^63 可逆
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
