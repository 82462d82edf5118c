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

package stats_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
	"github.com/zintix-labs/bayeslab/stats"
)

// buildReport constructs a Report over a single-parameter posterior
// holding the given draws, with an evidence estimate attached.
func buildReport(t *testing.T, draws []float64, logZ float64) *stats.Report {
	t.Helper()
	x := mat.NewDense(len(draws), 1, draws)
	post, err := samples.New(x,
		samples.WithParameters([]string{"theta"}),
		samples.WithEvidence(samples.EvidenceEstimate{LogZ: logZ, LogZErr: 0.01}),
	)
	if err != nil {
		t.Fatalf("samples.New failed: %v", err)
	}
	rs := &spec.RunSetting{
		RunName:  "test run",
		RunID:    "test_run",
		ModelKey: "toy",
		Method:   spec.MethodEnsemble,
		NSamples: len(draws),
	}
	r := stats.NewReport(rs, post)
	r.Done()
	return r
}

func TestReportCoreMetrics(t *testing.T) {
	// 0.00 .. 0.99 的均勻格點
	draws := make([]float64, 100)
	for i := range draws {
		draws[i] = float64(i) / 100
	}
	rep := buildReport(t, draws, -1.5)

	if !rep.Summary.HasLogZ || rep.Summary.LogZ != -1.5 {
		t.Fatalf("evidence not carried: %+v", rep.Summary)
	}
	if rep.Summary.Draws != 100 {
		t.Fatalf("draws = %d, want 100", rep.Summary.Draws)
	}

	if len(rep.Params) != 1 {
		t.Fatalf("params = %d, want 1", len(rep.Params))
	}
	p := rep.Params[0]
	if p.Name != "theta" {
		t.Fatalf("param name = %s", p.Name)
	}
	if math.Abs(p.Mean-0.495) > 1e-9 {
		t.Fatalf("mean = %v, want 0.495", p.Mean)
	}
	if math.Abs(p.Median.Hat-0.5) > 0.05 {
		t.Fatalf("median = %v, want ~0.5", p.Median.Hat)
	}
	if p.Median.CI.Lo > p.Median.Hat || p.Median.CI.Hi < p.Median.Hat {
		t.Fatalf("median CI [%v,%v] must bracket the point estimate %v", p.Median.CI.Lo, p.Median.CI.Hi, p.Median.Hat)
	}
	if math.Abs(p.P95.Hat-0.95) > 0.05 {
		t.Fatalf("p95 = %v, want ~0.95", p.P95.Hat)
	}

	// 直方圖計數總和 = 樣本數
	total := 0
	for _, c := range p.Hist.Counts {
		total += c
	}
	if total != 100 {
		t.Fatalf("histogram total %d != draws 100", total)
	}

	rep.Done() // idempotent
	if rep.Params[0].Mean != p.Mean {
		t.Fatalf("mean changed after second Done")
	}
}

func TestReportJSONRender(t *testing.T) {
	rep := buildReport(t, []float64{1, 2, 3, 4}, 0.5)
	var buf bytes.Buffer
	if err := rep.WriteWith(&buf, &stats.JsonReportRender{}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := decoded["Summary"]; !ok {
		t.Fatalf("json missing Summary")
	}
	if _, ok := decoded["Params"]; !ok {
		t.Fatalf("json missing Params")
	}
}

func TestReportYAMLRender(t *testing.T) {
	rep := buildReport(t, []float64{1, 2, 3, 4}, 0.5)
	var buf bytes.Buffer
	if err := rep.WriteWith(&buf, &stats.YAMLReportRender{}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("yaml output empty")
	}
}

func TestEstimatorRunSpread(t *testing.T) {
	// logZ 從 -0.99 到 0 的 100 份報告
	reports := make([]*stats.Report, 0, 100)
	for i := 0; i < 100; i++ {
		reports = append(reports, buildReport(t, []float64{0, 1}, -float64(i)/100))
	}

	est := stats.EstimatorRunSpread(reports)
	if est.Runs != 100 {
		t.Fatalf("runs = %d, want 100", est.Runs)
	}
	if math.Abs(est.LogZ.Median.Hat+0.5) > 0.05 {
		t.Fatalf("median logZ expected ~-0.5, got %.3f", est.LogZ.Median.Hat)
	}
	if math.Abs(est.LogZ.P10.Hat+0.9) > 0.05 {
		t.Fatalf("p10 logZ expected ~-0.9, got %.3f", est.LogZ.P10.Hat)
	}
	if est.LogZ.Median.CI.Lo > est.LogZ.Median.CI.Hi {
		t.Fatalf("inverted CI: %+v", est.LogZ.Median.CI)
	}
}

func TestPercentileCIForValue(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i) / 100
	}
	hat, ci := stats.PercentileCIForValue(data, 0.30, 0.95)
	if math.Abs(hat-0.31) > 1e-9 {
		t.Fatalf("P(X<=0.3) = %v, want 0.31", hat)
	}
	if ci.Lo >= hat || ci.Hi <= hat {
		t.Fatalf("CI [%v,%v] must bracket %v", ci.Lo, ci.Hi, hat)
	}
}

func TestHistogramDegenerate(t *testing.T) {
	h := stats.NewHistogram([]float64{2, 2, 2}, 10)
	if len(h.Counts) != 1 || h.Counts[0] != 3 {
		t.Fatalf("constant data must collapse to one bin: %+v", h)
	}
}
