package spec

import (
	"fmt"

	"github.com/zintix-labs/bayeslab/errs"
)

// RID 是單一推論設定的識別碼。
type RID string

// MethodKey 指定 Runner 要用哪條取樣路徑。
type MethodKey string

const (
	MethodEnsemble MethodKey = "ensemble"
	MethodPCN      MethodKey = "pcn"
	MethodSMC      MethodKey = "smc"
)

// ModelKey 對應 model.Registry 裡註冊的模型建構器。
type ModelKey string

// RunSetting 包含啟動一個推論 Runner 所需的所有高階設定。
type RunSetting struct {
	RunName  string         `yaml:"run_name"   json:"run_name"`
	RunID    RID            `yaml:"run_id"     json:"run_id"`
	ModelKey ModelKey       `yaml:"model_key"  json:"model_key"`
	Method   MethodKey      `yaml:"method"     json:"method"`
	NSamples int            `yaml:"n_samples"  json:"n_samples"`
	Seed     int64          `yaml:"seed"       json:"seed"`
	Kernel   KernelSetting  `yaml:"kernel"     json:"kernel"`
	Ladder   LadderSetting  `yaml:"ladder"     json:"ladder"`
	Model    map[string]any `yaml:"model"      json:"model"`
}

// KernelSetting 是 kernel 層的調校參數；零值由各 kernel 自行補預設。
type KernelSetting struct {
	NWalkers         int     `yaml:"n_walkers"          json:"n_walkers"`
	NSteps           int     `yaml:"n_steps"            json:"n_steps"`
	Discard          int     `yaml:"discard"            json:"discard"`
	Burnin           int     `yaml:"burnin"             json:"burnin"`
	Thin             int     `yaml:"thin"               json:"thin"`
	LastStepOnly     bool    `yaml:"last_step_only"     json:"last_step_only"`
	StretchA         float64 `yaml:"stretch_a"          json:"stretch_a"`
	TargetAcceptance float64 `yaml:"target_acceptance"  json:"target_acceptance"`
	StepSize         float64 `yaml:"step_size"          json:"step_size"`
}

// LadderSetting 控制 smc 方法的退火階梯。
// Betas 非空時走固定階梯；否則用 ESSFraction 自適應決定下一階。
type LadderSetting struct {
	Betas       []float64 `yaml:"betas"         json:"betas"`
	ESSFraction float64   `yaml:"ess_fraction"  json:"ess_fraction"`
	MaxRungs    int       `yaml:"max_rungs"     json:"max_rungs"`
}

// init
func (rs *RunSetting) init() error {
	return rs.valid()
}

// valid 執行最基本的設定檔檢查，如需更多驗證可在此擴充。
func (rs *RunSetting) valid() error {

	if rs.RunID == "" {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:empty run_id", rs.RunName))
	}
	if rs.ModelKey == "" {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:empty model_key", rs.RunName))
	}

	switch rs.Method {
	case MethodEnsemble, MethodPCN, MethodSMC:
	default:
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:unknown method %q", rs.RunName, rs.Method))
	}

	if rs.NSamples < 2 {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:n_samples must be >= 2", rs.RunName))
	}

	// kernel 調校值若有填就必須合法
	k := rs.Kernel
	if k.NWalkers < 0 || k.NSteps < 0 || k.Discard < 0 || k.Burnin < 0 || k.Thin < 0 {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:negative kernel setting", rs.RunName))
	}
	if k.StretchA != 0 && k.StretchA <= 1 {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:stretch_a must be > 1", rs.RunName))
	}
	if k.TargetAcceptance != 0 && (k.TargetAcceptance <= 0 || k.TargetAcceptance >= 1) {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:target_acceptance out of (0,1)", rs.RunName))
	}
	if k.StepSize != 0 && (k.StepSize <= 0 || k.StepSize >= 1) {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:step_size out of (0,1)", rs.RunName))
	}

	return rs.Ladder.valid(rs)
}

func (ls *LadderSetting) valid(rs *RunSetting) error {
	if rs.Method != MethodSMC {
		return nil
	}

	if len(ls.Betas) > 0 {
		// 固定階梯：嚴格遞增、起於 >0、終於 1
		prev := 0.0
		for _, b := range ls.Betas {
			if b <= prev || b > 1 {
				return errs.NewFatal(fmt.Sprintf("run_name: %s err:ladder betas must be strictly increasing in (0,1]", rs.RunName))
			}
			prev = b
		}
		if ls.Betas[len(ls.Betas)-1] != 1 {
			return errs.NewFatal(fmt.Sprintf("run_name: %s err:ladder must end at beta=1", rs.RunName))
		}
		return nil
	}

	if ls.ESSFraction != 0 && (ls.ESSFraction <= 0 || ls.ESSFraction >= 1) {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:ess_fraction out of (0,1)", rs.RunName))
	}
	if ls.MaxRungs < 0 {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:negative max_rungs", rs.RunName))
	}
	return nil
}
