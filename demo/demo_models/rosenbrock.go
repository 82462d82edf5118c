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

package demo_models

import (
	"log"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
)

// ============================================================
// ** 註冊 **
// ============================================================

func init() {
	key := "demo_rosenbrock"
	if err := Models.Register(key, buildRosenbrock); err != nil {
		log.Fatalf("%s register failed: %v", key, err)
	}
}

// ============================================================
// ** 此模型 Fixed 設定宣告 **
// ============================================================

// 二維 Rosenbrock（banana）likelihood：
//
//	logL(x, y) = -[ (a - x)² + b·(y - x²)² ] / scale
//
// 沒有解析 evidence，拿來示範彎曲、強相關 posterior 下
// ensemble / SMC 的行為差異。
type rosenbrockFixed struct {
	A          float64 `yaml:"a"`
	B          float64 `yaml:"b"`
	Scale      float64 `yaml:"scale"`
	PriorScale float64 `yaml:"prior_scale"`
}

// ============================================================
// ** 模型建構 **
// ============================================================

func buildRosenbrock(cfg map[string]any) (*model.Model, error) {
	fixed := &rosenbrockFixed{A: 1, B: 100, Scale: 20, PriorScale: 5}
	if err := spec.DecodeModel(cfg, fixed); err != nil {
		return nil, err
	}
	if fixed.Scale <= 0 || fixed.PriorScale <= 0 {
		return nil, errs.NewFatal("demo_rosenbrock: scale and prior_scale must be > 0")
	}

	v := fixed.PriorScale * fixed.PriorScale
	prior, err := flows.NewGaussian([]float64{0, 0}, scaledEye(2, v))
	if err != nil {
		return nil, err
	}

	a, b, scale := fixed.A, fixed.B, fixed.Scale
	logLike := func(s *samples.Set) ([]float64, error) {
		x := s.X()
		n, d := x.Dims()
		if d != 2 {
			return nil, errs.NewFatal("demo_rosenbrock: model is 2-dimensional")
		}
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			u, w := x.At(i, 0), x.At(i, 1)
			du := a - u
			dw := w - u*u
			out[i] = -(du*du + b*dw*dw) / scale
		}
		return out, nil
	}

	return &model.Model{
		Parameters:    []string{"x", "y"},
		Proposal:      prior,
		LogLikelihood: logLike,
		LogPrior:      func(s *samples.Set) ([]float64, error) { return prior.LogProb(s.X()), nil },
	}, nil
}
