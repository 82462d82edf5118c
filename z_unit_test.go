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

package bayeslab_test

import (
	"math"
	"testing"
	"testing/fstest"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/sdk/core"
)

// 共軛測試模型：prior = likelihood = N(0,1)，
// posterior = N(0, 1/2)，解析 evidence = 1/sqrt(4π)。
var analyticLogZ = -0.5 * math.Log(4*math.Pi)

func stdNormalDensity(s *samples.Set) ([]float64, error) {
	x := s.X()
	n, d := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			v := x.At(i, j)
			out[i] += -0.5*v*v - 0.5*math.Log(2*math.Pi)
		}
	}
	return out, nil
}

func testModels(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	err := reg.Register("conjugate_normal", func(cfg map[string]any) (*model.Model, error) {
		proposal, err := flows.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
		if err != nil {
			return nil, err
		}
		m := &model.Model{
			Parameters:    []string{"theta"},
			Proposal:      proposal,
			LogLikelihood: stdNormalDensity,
			LogPrior:      stdNormalDensity,
		}
		m.SetAnalyticLogZ(analyticLogZ)
		return m, nil
	})
	if err != nil {
		t.Fatalf("register model failed: %v", err)
	}
	return reg
}

const ensembleYAML = `run_name: conjugate ensemble
run_id: conj_ens
model_key: conjugate_normal
method: ensemble
n_samples: 200
kernel:
  n_walkers: 40
  n_steps: 150
  discard: 100
`

const pcnYAML = `run_name: conjugate pcn
run_id: conj_pcn
model_key: conjugate_normal
method: pcn
n_samples: 100
kernel:
  n_steps: 120
  last_step_only: true
`

const smcYAML = `run_name: conjugate smc
run_id: conj_smc
model_key: conjugate_normal
method: smc
n_samples: 600
kernel:
  n_steps: 10
ladder:
  ess_fraction: 0.5
  max_rungs: 30
`

func testConfigs() fstest.MapFS {
	return fstest.MapFS{
		"conj_ens.yaml": {Data: []byte(ensembleYAML)},
		"conj_pcn.yaml": {Data: []byte(pcnYAML)},
		"conj_smc.yaml": {Data: []byte(smcYAML)},
	}
}

func testLab(t *testing.T) *bayeslab.Bayeslab {
	t.Helper()
	lab, err := bayeslab.NewAuto(core.Default(),
		bayeslab.Configs(testConfigs()),
		bayeslab.Models(testModels(t)))
	if err != nil {
		t.Fatalf("NewAuto failed: %v", err)
	}
	return lab
}

func TestNewAutoAndSummary(t *testing.T) {
	lab := testLab(t)

	if len(lab.IDs()) != 3 {
		t.Fatalf("ids = %v, want 3 entries", lab.IDs())
	}
	if _, ok := lab.EntryById("conj_smc"); !ok {
		t.Fatalf("conj_smc not registered")
	}
	if _, ok := lab.EntryByName("Conjugate Ensemble"); !ok {
		t.Fatalf("name lookup must be case-insensitive")
	}

	sum, err := lab.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(sum) != 3 {
		t.Fatalf("summary len = %d", len(sum))
	}
	for _, s := range sum {
		if s.Model != "conjugate_normal" {
			t.Fatalf("summary model = %s", s.Model)
		}
	}
}

func TestRegisterAllRejectsUnknownModel(t *testing.T) {
	bad := fstest.MapFS{
		"bad.yaml": {Data: []byte(`run_name: bad
run_id: bad_run
model_key: no_such_model
method: ensemble
n_samples: 10
`)},
	}
	_, err := bayeslab.NewAuto(core.Default(),
		bayeslab.Configs(bad),
		bayeslab.Models(testModels(t)))
	if err == nil {
		t.Fatalf("unknown model key must fail registration")
	}
}

func TestRunnerEnsembleConjugate(t *testing.T) {
	lab := testLab(t)
	r, err := lab.NewRunnerWithSeed("conj_ens", 20250831)
	if err != nil {
		t.Fatalf("NewRunnerWithSeed failed: %v", err)
	}

	rep, used, err := r.Run(false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if used <= 0 {
		t.Fatalf("used = %v", used)
	}
	if !rep.Summary.HasLogZ {
		t.Fatalf("ensemble must attach an evidence estimate")
	}
	if math.Abs(rep.Summary.LogZ-analyticLogZ) > 0.15 {
		t.Fatalf("log evidence = %v, want ~%v", rep.Summary.LogZ, analyticLogZ)
	}
	if rep.Summary.Calls != 1 {
		t.Fatalf("calls = %d, want 1", rep.Summary.Calls)
	}

	theta := rep.Posterior().Columns()["theta"]
	var mean, sq float64
	for _, v := range theta {
		mean += v
	}
	mean /= float64(len(theta))
	for _, v := range theta {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(theta)-1)
	if math.Abs(mean) > 0.1 {
		t.Fatalf("posterior mean = %v, want ~0", mean)
	}
	// ~2000 筆自相關抽樣的變異數估計散佈不小，容忍度要留足
	if math.Abs(variance-0.5) > 0.15 {
		t.Fatalf("posterior variance = %v, want ~0.5", variance)
	}
}

func TestRunnerPCNConjugate(t *testing.T) {
	lab := testLab(t)
	r, err := lab.NewRunnerWithSeed("conj_pcn", 7)
	if err != nil {
		t.Fatalf("NewRunnerWithSeed failed: %v", err)
	}

	rep, _, err := r.Run(false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Summary.HasLogZ {
		t.Fatalf("pcn must not attach an evidence estimate")
	}
	if rep.Posterior().Len() != 100 {
		t.Fatalf("last-step population = %d, want 100", rep.Posterior().Len())
	}
	if r.History() == nil {
		t.Fatalf("pcn must expose kernel history")
	}
}

func TestRunnerSMCRecoversEvidence(t *testing.T) {
	lab := testLab(t)
	r, err := lab.NewRunnerWithSeed("conj_smc", 99)
	if err != nil {
		t.Fatalf("NewRunnerWithSeed failed: %v", err)
	}

	rep, _, err := r.Run(false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rep.Summary.HasLogZ {
		t.Fatalf("smc must attach an evidence estimate")
	}
	if math.Abs(rep.Summary.LogZ-analyticLogZ) > 0.2 {
		t.Fatalf("log evidence = %v, want ~%v", rep.Summary.LogZ, analyticLogZ)
	}
	if rep.Summary.ESS <= 0 || rep.Summary.Efficiency <= 0 {
		t.Fatalf("smc must report final-rung ess/efficiency, got %v/%v",
			rep.Summary.ESS, rep.Summary.Efficiency)
	}
	if rep.Posterior().LogQ() != nil {
		t.Fatalf("finalized smc samples must not carry log_q")
	}
}

func TestRunnerRepeatSpread(t *testing.T) {
	lab := testLab(t)
	r, err := lab.NewRunnerWithSeed("conj_ens", 11)
	if err != nil {
		t.Fatalf("NewRunnerWithSeed failed: %v", err)
	}

	est, _, err := r.Repeat(4, 2, false)
	if err != nil {
		t.Fatalf("Repeat failed: %v", err)
	}
	if est.Runs != 4 {
		t.Fatalf("runs = %d, want 4", est.Runs)
	}
	if math.Abs(est.LogZ.Median.Hat-analyticLogZ) > 0.2 {
		t.Fatalf("median log evidence = %v, want ~%v", est.LogZ.Median.Hat, analyticLogZ)
	}
}

func TestNewRunnerByYAMLValidates(t *testing.T) {
	lab := testLab(t)

	// 已登錄的設定可以直接用原始 YAML 起 Runner
	if _, err := lab.NewRunnerByYAML([]byte(ensembleYAML), 3); err != nil {
		t.Fatalf("NewRunnerByYAML failed: %v", err)
	}

	// 未登錄的 run_id 必須擋下
	unknown := []byte(`run_name: rogue
run_id: rogue_run
model_key: conjugate_normal
method: ensemble
n_samples: 10
`)
	if _, err := lab.NewRunnerByYAML(unknown, 3); err == nil {
		t.Fatalf("unregistered run id must fail")
	}
}
