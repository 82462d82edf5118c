package spec

import (
	"testing"

	"github.com/zintix-labs/bayeslab/errs"
)

const validYAML = `
run_name: demo gaussian
run_id: demo_gaussian
model_key: gaussian_analytic
method: ensemble
n_samples: 1000
seed: 42
kernel:
  n_walkers: 64
  n_steps: 400
  discard: 100
model:
  dims: 2
  rho: 0.8
`

func TestGetRunSettingByYAML(t *testing.T) {
	rs, err := GetRunSettingByYAML([]byte(validYAML))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rs.RunID != "demo_gaussian" || rs.Method != MethodEnsemble {
		t.Fatalf("unexpected setting: %+v", rs)
	}
	if rs.Kernel.NWalkers != 64 || rs.Kernel.Discard != 100 {
		t.Fatalf("kernel setting lost: %+v", rs.Kernel)
	}
	if rs.Model["rho"] != 0.8 {
		t.Fatalf("model block lost: %+v", rs.Model)
	}
}

func TestGetRunSettingByJSON(t *testing.T) {
	data := []byte(`{"run_name":"x","run_id":"x1","model_key":"m","method":"pcn","n_samples":10}`)
	rs, err := GetRunSettingByJSON(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rs.Method != MethodPCN {
		t.Fatalf("method = %v", rs.Method)
	}
}

func TestValidRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name string
		mut  func(rs *RunSetting)
	}{
		{"empty run_id", func(rs *RunSetting) { rs.RunID = "" }},
		{"empty model_key", func(rs *RunSetting) { rs.ModelKey = "" }},
		{"unknown method", func(rs *RunSetting) { rs.Method = "metropolis" }},
		{"too few samples", func(rs *RunSetting) { rs.NSamples = 1 }},
		{"negative kernel", func(rs *RunSetting) { rs.Kernel.NSteps = -1 }},
		{"bad stretch_a", func(rs *RunSetting) { rs.Kernel.StretchA = 0.9 }},
		{"bad acceptance", func(rs *RunSetting) { rs.Kernel.TargetAcceptance = 1.5 }},
	}
	for _, tc := range cases {
		rs := &RunSetting{
			RunName:  "t",
			RunID:    "t",
			ModelKey: "m",
			Method:   MethodEnsemble,
			NSamples: 100,
		}
		tc.mut(rs)
		if err := rs.valid(); err == nil || !errs.IsLevel(err, errs.Fatal) {
			t.Fatalf("%s: expected fatal, got %v", tc.name, err)
		}
	}
}

func TestValidLadder(t *testing.T) {
	rs := &RunSetting{
		RunName:  "t",
		RunID:    "t",
		ModelKey: "m",
		Method:   MethodSMC,
		NSamples: 100,
	}

	// 自適應預設可直接通過
	if err := rs.valid(); err != nil {
		t.Fatalf("adaptive ladder defaults must be valid: %v", err)
	}

	rs.Ladder.Betas = []float64{0.1, 0.5, 1}
	if err := rs.valid(); err != nil {
		t.Fatalf("monotone ladder must be valid: %v", err)
	}

	rs.Ladder.Betas = []float64{0.5, 0.1, 1}
	if err := rs.valid(); err == nil {
		t.Fatalf("non-monotone ladder must fail")
	}

	rs.Ladder.Betas = []float64{0.5, 0.9}
	if err := rs.valid(); err == nil {
		t.Fatalf("ladder not ending at 1 must fail")
	}

	rs.Ladder.Betas = nil
	rs.Ladder.ESSFraction = 1.2
	if err := rs.valid(); err == nil {
		t.Fatalf("ess_fraction > 1 must fail")
	}
}

func TestDecodeModelStrict(t *testing.T) {
	type gaussCfg struct {
		Dims int     `yaml:"dims"`
		Rho  float64 `yaml:"rho"`
	}

	var cfg gaussCfg
	if err := DecodeModel(map[string]any{"dims": 2, "rho": 0.8}, &cfg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cfg.Dims != 2 || cfg.Rho != 0.8 {
		t.Fatalf("decoded cfg = %+v", cfg)
	}

	// 多出來的欄位要報錯
	if err := DecodeModel(map[string]any{"dims": 2, "rhoo": 0.8}, &cfg); err == nil {
		t.Fatalf("unknown field must fail")
	}
}
