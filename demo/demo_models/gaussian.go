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

// Package demo_models 提供內建示範模型，配合 demo_configs 的設定使用。
package demo_models

import (
	"log"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
)

// Models 彙整本套件所有示範模型，交給 bayeslab.Models(...) 使用。
var Models = model.NewRegistry()

// ============================================================
// ** 註冊 **
// ============================================================

func init() {
	key := "demo_gaussian"
	if err := Models.Register(key, buildGaussian); err != nil {
		log.Fatalf("%s register failed: %v", key, err)
	}
}

// ============================================================
// ** 此模型 Fixed 設定宣告 **
// ============================================================

// 相關多維高斯：likelihood = N(mean, cov)、prior = N(0, prior_scale²·I)。
//
// 兩個高斯相乘的 normalizing constant 有解析解
// Z = N(mean; 0, cov + prior_scale²·I)，因此這個模型可用來驗證
// evidence 估計的正確性。
type gaussianFixed struct {
	Mean       []float64 `yaml:"mean"`
	Cov        []float64 `yaml:"cov"` // row-major d×d，取上三角
	PriorScale float64   `yaml:"prior_scale"`
}

// ============================================================
// ** 模型建構 **
// ============================================================

func buildGaussian(cfg map[string]any) (*model.Model, error) {
	fixed := new(gaussianFixed)
	if err := spec.DecodeModel(cfg, fixed); err != nil {
		return nil, err
	}
	d := len(fixed.Mean)
	if d == 0 {
		return nil, errs.NewFatal("demo_gaussian: mean is required")
	}
	if len(fixed.Cov) != d*d {
		return nil, errs.NewFatal("demo_gaussian: cov must be d*d row-major")
	}
	if fixed.PriorScale <= 0 {
		return nil, errs.NewFatal("demo_gaussian: prior_scale must be > 0")
	}

	like, err := flows.NewGaussian(fixed.Mean, mat.NewSymDense(d, fixed.Cov))
	if err != nil {
		return nil, err
	}
	zeros := make([]float64, d)
	prior, err := flows.NewGaussian(zeros, scaledEye(d, fixed.PriorScale*fixed.PriorScale))
	if err != nil {
		return nil, err
	}

	// evidence = N(mean; 0, cov + prior_scale²·I)
	evCov := mat.NewSymDense(d, fixed.Cov)
	for i := 0; i < d; i++ {
		evCov.SetSym(i, i, evCov.At(i, i)+fixed.PriorScale*fixed.PriorScale)
	}
	evDist, err := flows.NewGaussian(zeros, evCov)
	if err != nil {
		return nil, err
	}
	logZ := evDist.LogProb(mat.NewDense(1, d, fixed.Mean))[0]

	m := &model.Model{
		Parameters:    paramNames(d),
		Proposal:      prior, // prior 即 proposal：覆蓋整個 posterior 支撐
		LogLikelihood: func(s *samples.Set) ([]float64, error) { return like.LogProb(s.X()), nil },
		LogPrior:      func(s *samples.Set) ([]float64, error) { return prior.LogProb(s.X()), nil },
	}
	m.SetAnalyticLogZ(logZ)
	return m, nil
}

// ============================================================
// ** 輔助函數 **
// ============================================================

func scaledEye(d int, v float64) *mat.SymDense {
	s := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		s.SetSym(i, i, v)
	}
	return s
}

func paramNames(d int) []string {
	names := make([]string, d)
	for i := range names {
		names[i] = "theta_" + strconv.Itoa(i)
	}
	return names
}
