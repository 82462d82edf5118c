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

package model

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/flows"
	"github.com/zintix-labs/bayeslab/samples"
)

func testBuilder(dims int) Builder {
	return func(cfg map[string]any) (*Model, error) {
		cov := mat.NewSymDense(dims, nil)
		for i := 0; i < dims; i++ {
			cov.SetSym(i, i, 1)
		}
		q, err := flows.NewGaussian(make([]float64, dims), cov)
		if err != nil {
			return nil, err
		}
		zero := func(s *samples.Set) ([]float64, error) {
			return make([]float64, s.Len()), nil
		}
		params := make([]string, dims)
		for i := range params {
			params[i] = "p_" + string(rune('a'+i))
		}
		return &Model{
			Parameters:    params,
			Proposal:      q,
			LogLikelihood: zero,
			LogPrior:      zero,
		}, nil
	}
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("toy", testBuilder(2)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.IsExist("toy") {
		t.Fatalf("IsExist must report registered key")
	}
	m, err := r.Build("toy", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Dims() != 2 {
		t.Fatalf("dims = %d, want 2", m.Dims())
	}
}

func TestRegistryDuplicateIsFatal(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("toy", testBuilder(1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("toy", testBuilder(1)); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal on duplicate key, got %v", err)
	}
}

func TestRegistryUnknownKeyIsFatal(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Build("missing", nil); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal on unknown key, got %v", err)
	}
}

func TestBuildValidatesModel(t *testing.T) {
	r := NewRegistry()
	bad := func(cfg map[string]any) (*Model, error) {
		m, _ := testBuilder(2)(cfg)
		m.Proposal = nil
		return m, nil
	}
	if err := r.Register("bad", bad); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Build("bad", nil); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal for model without proposal, got %v", err)
	}
}

func TestMergeRegistry(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	if err := a.Register("one", testBuilder(1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := b.Register("two", testBuilder(2)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	merged, err := MergeRegistry(a, nil, b)
	if err != nil {
		t.Fatalf("MergeRegistry failed: %v", err)
	}
	keys := merged.Keys()
	if len(keys) != 2 || keys[0] != "one" || keys[1] != "two" {
		t.Fatalf("merged keys = %v", keys)
	}

	dup := NewRegistry()
	if err := dup.Register("one", testBuilder(1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := MergeRegistry(a, dup); err == nil || !errs.IsLevel(err, errs.Fatal) {
		t.Fatalf("expected fatal on cross-registry duplicate, got %v", err)
	}
}
