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

// Package model defines the inference-model contract and its registry.
//
// A Model bundles the collaborators a run needs: a proposal flow with
// support covering the posterior, and batch log-density evaluators for
// likelihood and prior. Builders are registered by key and looked up
// from run settings at assembly time.
package model

import (
	"fmt"
	"sort"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/samples"
)

// Density evaluates a batch log-density, one scalar per draw.
// Implementations must not mutate the set and must not retry on failure.
type Density func(s *samples.Set) ([]float64, error)

// Model is a fully-built inference problem.
//
// LogEvidence is optional: models with an analytic marginal likelihood
// (used for validation runs) may report it via AnalyticLogZ with ok=true.
type Model struct {
	Parameters    []string
	Proposal      flows.Flow
	LogLikelihood Density
	LogPrior      Density

	analyticLogZ    float64
	hasAnalyticLogZ bool
}

// Dims returns the parameter dimensionality.
func (m *Model) Dims() int { return len(m.Parameters) }

// SetAnalyticLogZ marks the model as having a known marginal likelihood.
func (m *Model) SetAnalyticLogZ(logZ float64) {
	m.analyticLogZ = logZ
	m.hasAnalyticLogZ = true
}

// AnalyticLogZ reports the known marginal likelihood, if any.
func (m *Model) AnalyticLogZ() (float64, bool) {
	return m.analyticLogZ, m.hasAnalyticLogZ
}

// Builder builds a Model from the run setting's free-form model block.
type Builder func(cfg map[string]any) (*Model, error)

// Registry maps model keys to builders.
//
// Because function values are not comparable in Go (except to nil),
// duplicate keys are treated as an error unconditionally. This keeps
// behavior deterministic and avoids “last one wins” surprises.
type Registry struct {
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder, 16),
	}
}

func (r *Registry) Register(key string, b Builder) error {
	if key == "" {
		return errs.NewFatal("model: empty model key")
	}
	if b == nil {
		return errs.NewFatal(fmt.Sprintf("model: nil builder for key %s", key))
	}
	if _, ok := r.builders[key]; ok {
		return errs.NewFatal(fmt.Sprintf("model: duplicate model key %s", key))
	}
	r.builders[key] = b
	return nil
}

func (r *Registry) IsExist(key string) bool {
	_, ok := r.builders[key]
	return ok
}

func (r *Registry) Build(key string, cfg map[string]any) (*Model, error) {
	b, ok := r.builders[key]
	if !ok {
		return nil, errs.NewFatal(fmt.Sprintf("model: key is not registered: %s", key))
	}
	m, err := b(cfg)
	if err != nil {
		return nil, err
	}
	if err := validModel(key, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.builders))
	for k := range r.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeRegistry merges multiple registries into a new one.
// Duplicate keys across registries are an error.
func MergeRegistry(regs ...*Registry) (*Registry, error) {
	merged := NewRegistry()

	origin := make(map[string]int, 16)

	for i, r := range regs {
		if r == nil {
			continue
		}
		for key, builder := range r.builders {
			if _, ok := merged.builders[key]; ok {
				prev := origin[key]
				return nil, errs.NewFatal(fmt.Sprintf("model: duplicate key %s (registry #%d and #%d)", key, prev, i))
			}
			merged.builders[key] = builder
			origin[key] = i
		}
	}

	return merged, nil
}

func validModel(key string, m *Model) error {
	if m == nil {
		return errs.NewFatal(fmt.Sprintf("model: builder for %s returned nil model", key))
	}
	if len(m.Parameters) == 0 {
		return errs.NewFatal(fmt.Sprintf("model: %s has no parameters", key))
	}
	if m.Proposal == nil {
		return errs.NewFatal(fmt.Sprintf("model: %s has no proposal flow", key))
	}
	if m.Proposal.Dims() != len(m.Parameters) {
		return errs.NewFatal(fmt.Sprintf("model: %s proposal dim %d does not match %d parameters",
			key, m.Proposal.Dims(), len(m.Parameters)))
	}
	if m.LogLikelihood == nil || m.LogPrior == nil {
		return errs.NewFatal(fmt.Sprintf("model: %s is missing a density evaluator", key))
	}
	return nil
}
