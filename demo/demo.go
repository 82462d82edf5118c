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

package demo

import (
	"github.com/zintix-labs/bayeslab"
	"github.com/zintix-labs/bayeslab/catalog"
	"github.com/zintix-labs/bayeslab/demo/demo_configs"
	"github.com/zintix-labs/bayeslab/demo/demo_models"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/server/logger"
	"github.com/zintix-labs/bayeslab/server/svrcfg"
)

func New() (*catalog.Catalog, error) {
	return catalog.New(demo_configs.FS)
}

func NewServerConfig() (*svrcfg.SvrCfg, error) {
	lab, err := NewBayeslab()
	if err != nil {
		return nil, errs.NewFatal("new bayeslab failed:" + err.Error())
	}
	scfg := &svrcfg.SvrCfg{
		Log:      logger.NewDefaultAsyncLogger(logger.ModeDev),
		RunLimit: 1,
		Bayeslab: lab,
	}
	return scfg, nil
}

func NewBayeslab() (*bayeslab.Bayeslab, error) {
	return bayeslab.NewAuto(
		core.Default(),
		bayeslab.Configs(demo_configs.FS),
		bayeslab.Models(demo_models.Models),
	)
}
