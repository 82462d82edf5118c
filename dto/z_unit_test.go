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

package dto_test

import (
	"encoding/json"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/dto"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
	"github.com/zintix-labs/bayeslab/stats"
)

func testReport(t *testing.T) *stats.Report {
	t.Helper()

	vals := []float64{-1.2, -0.4, 0.1, 0.7, 1.5}
	n := len(vals)
	ll := make([]float64, n)
	lp := make([]float64, n)
	for i, v := range vals {
		ll[i] = -v * v
		lp[i] = v / 2
	}
	post, err := samples.New(
		mat.NewDense(n, 1, vals),
		samples.WithParameters([]string{"theta"}),
		samples.WithLogLikelihood(ll),
		samples.WithLogPrior(lp),
	)
	if err != nil {
		t.Fatalf("build samples: %v", err)
	}

	rs := &spec.RunSetting{
		RunName:  "demo",
		RunID:    spec.RID("demo_1"),
		ModelKey: spec.ModelKey("conjugate_normal"),
		Method:   spec.MethodEnsemble,
		NSamples: n,
		Seed:     42,
	}
	rep := stats.NewReport(rs, post)
	rep.Done()
	return rep
}

func TestNewRunResponseWithoutDraws(t *testing.T) {
	rep := testReport(t)

	resp, err := dto.NewRunResponse(rep, 1500*time.Millisecond, false)
	if err != nil {
		t.Fatalf("NewRunResponse: %v", err)
	}
	if resp.UsedMs != 1500 {
		t.Fatalf("UsedMs = %d, want 1500", resp.UsedMs)
	}
	if resp.DrawsZstdB64U != "" {
		t.Fatal("draws should be empty when include_draws is off")
	}

	// 回應要能直接走 JSON，且省略 draws 欄位
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["draws_zstd_b64u"]; ok {
		t.Fatal("draws_zstd_b64u should be omitted")
	}
}

func TestNewRunResponseNilReport(t *testing.T) {
	if _, err := dto.NewRunResponse(nil, 0, false); err == nil {
		t.Fatal("nil report should fail")
	}
}

func TestDrawsRoundTrip(t *testing.T) {
	rep := testReport(t)

	resp, err := dto.NewRunResponse(rep, time.Second, true)
	if err != nil {
		t.Fatalf("NewRunResponse: %v", err)
	}
	if resp.DrawsZstdB64U == "" {
		t.Fatal("draws should be attached")
	}

	rec, err := dto.DecodeDraws(resp.DrawsZstdB64U)
	if err != nil {
		t.Fatalf("DecodeDraws: %v", err)
	}
	if rec.Len() != rep.Posterior().Len() {
		t.Fatalf("draws len = %d, want %d", rec.Len(), rep.Posterior().Len())
	}
	cols := rec.Columns()
	if _, ok := cols["theta"]; !ok {
		t.Fatal("theta column missing after round trip")
	}
}

func TestDecodeDrawsRejectsBadInput(t *testing.T) {
	if _, err := dto.DecodeDraws(""); err == nil {
		t.Fatal("empty input should fail")
	}
	if _, err := dto.DecodeDraws("%%%not-base64url%%%"); err == nil {
		t.Fatal("garbage input should fail")
	}
}
