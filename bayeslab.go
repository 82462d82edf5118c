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

// Package bayeslab 提供 Bayeslab 引擎的「組裝入口（assembler）」與「運行入口（runtime entry）」。
//
// 你可以把 Bayeslab 視為一個「可被後端/CLI 使用的 runtime」，它負責把下列三個必需的地基組裝在一起，並提供建立 Runner 的入口：
//  1. Catalog：推論設定目錄（Single Source of Truth / SSOT），定義有哪些推論任務、各自對應的設定檔名稱（ConfigName）。
//  2. model.Registry：模型註冊表，提供「如何依據設定（ModelKey）建出 likelihood/prior/proposal」的 builders。
//  3. PRNGFactory：亂數核心工廠，保證可重現（reproducible）。
//
// 設計重點：
//   - Bayeslab 本身不綁定任何「檔案路徑」概念：設定檔來源一律以 fs.FS 的形式注入。
//   - Bayeslab 會持有一份 Catalog（你要跑哪一批推論/設定檔）與一份 model.Registry（你支援哪些模型）。
//   - Runner 是對外提供 Run 的最小單位；模型開發者主要操作的是 model/flows/samples 內的型別。
//
// 典型使用情境：
//   - 後端服務（HTTP）：由 Bayeslab 建立 Runner，Runner 對外提供 Run。
//   - CLI（cmd/run）：由 Bayeslab 建立 Runner 做一次或多次重複推論。
package bayeslab

import (
	"crypto/rand"
	"fmt"
	"io/fs"
	"math"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/zintix-labs/bayeslab/catalog"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/model"
	"github.com/zintix-labs/bayeslab/sdk/core"
	"github.com/zintix-labs/bayeslab/spec"
)

// Configs 用來把一或多個設定檔來源（fs.FS）打包成 New() 需要的參數。
//
// 為什麼是 fs.FS：
//   - 你可以用 go:embed 把 configs 直接編進 binary（部署最穩定，不依賴工作目錄）。
//   - 也可以用 os.DirFS 在本機開發時讀取目錄。
//
// Bayeslab 不解析「路徑」：它只依賴 fs.FS + ConfigName（檔名）來取得設定內容。
func Configs(cfgs ...fs.FS) []fs.FS {
	return cfgs
}

// Models 用來把一或多個模型註冊表（model.Registry）打包成 New() 需要的參數。
//
// 一個 Registry 代表「一個模型模組」提供的 builders 集合。
// New() 會把多個 registries 合併成單一 registry；若出現重複 ModelKey，會以 error 直接失敗。
func Models(regs ...*model.Registry) []*model.Registry {
	return regs
}

// Bayeslab 是「組裝器（assembler）」與「運行入口（runtime entry）」。
//
// 使用流程通常分成兩階段：
//   - 註冊/組裝階段（registration/build）：建立 catalog、合併 registries、檢查重複與缺漏。
//   - 執行階段（runtime）：依據 RunID 產生 Runner，並在 Runner 上執行 Run。
//
// 重要設計原則：
//   - Catalog 的 ID 唯一性只保證在「同一個 Bayeslab instance」內。
//   - 你要跑哪一批推論、哪一套設定檔、哪一批模型，必須由 New() 的參數明確決定。
//   - runtime 一旦開始（例如已建立 Runner 並對外服務），不建議再變更 Catalog/Registry。
type Bayeslab struct {
	cat *catalog.Catalog
	reg *model.Registry
	cf  core.PRNGFactory
	sum []catalog.Summary
}

// New 建立一個 Bayeslab instance。
//
// 這是「組裝階段（registration/build）」的入口：
//   - 會建立 Catalog（通常同時做檔名存在性/重複性檢查，避免 runtime 才爆）。
//   - 會合併多個 model.Registry 成為單一 registry（重複 ModelKey 直接視為錯誤）。
//   - 會保存 PRNGFactory，確保由這個 Bayeslab 建出來的 Runner 在 RNG 行為上具有一致性。
//
// 參數要求（是合約的一部分）：
//   - cf 不能為 nil：沒有 RNG 工廠就無法建立可重現的核心。
//   - cfgs 至少一個：沒有設定檔來源，Catalog 無法解析 RunSetting。
//   - models 至少一個：沒有模型 builders，就算解析出設定也無法建出可執行的推論。
func New(cf core.PRNGFactory, cfgs []fs.FS, models []*model.Registry) (*Bayeslab, error) {
	if cf == nil {
		return nil, errs.NewFatal("prng factory required")
	}
	if len(cfgs) == 0 {
		return nil, errs.NewFatal("configs required")
	}
	if len(models) == 0 {
		return nil, errs.NewFatal("model registry required")
	}
	cata, err := catalog.New(cfgs...)
	if err != nil {
		return nil, err
	}
	reg, err := model.MergeRegistry(models...)
	if err != nil {
		return nil, err
	}
	lab := &Bayeslab{
		cat: cata,
		reg: reg,
		cf:  cf,
	}
	return lab, nil
}

// NewAuto 建立一個直接進入執行階段的 Bayeslab instance。
//
// 等同 New + RegisterAll + Freeze。
func NewAuto(cf core.PRNGFactory, cfgs []fs.FS, models []*model.Registry) (*Bayeslab, error) {
	lab, err := New(cf, cfgs, models)
	if err != nil {
		return nil, err
	}
	if err := lab.RegisterAll(); err != nil {
		return nil, err
	}
	lab.Freeze()
	return lab, nil
}

func (b *Bayeslab) Register(ents ...catalog.Entry) error {
	return b.cat.Register(ents...)
}

// RegisterAll
//
// 會掃描 catalog 持有的設定檔來源（fs.FS），把所有可辨識的設定檔（.yaml/.yml/.json）嘗試解析成
// *spec.RunSetting，並用設定檔內宣告的 RunID/RunName 產生對應的 catalog.Entry 來批次註冊。
//
// 行為特性（重要）：
//  1. Fail-fast：任何一個檔案讀取/解析/基本檢查失敗，都會立刻回傳 error（不會忽略、也不會繼續掃完）。
//  2. 原子性：只有當「全部檔案」都成功解析並通過基本檢查時，才會呼叫 Register(...) 一次性寫入。
//     因此不會出現只註冊了一半、導致 catalog 處於半完成狀態的情況。
//  3. 穩定性：fs.WalkDir 依檔名排序處理，確保行為 determinism（方便重現與除錯）。
//
// 注意：
//   - RegisterAll 只負責「把設定檔宣告的推論資訊放進 Catalog」。
//
// 模型（Builder / Registry）是否支援該 ModelKey，在這裡一併檢查（缺 builder 的設定檔直接失敗）。
func (b *Bayeslab) RegisterAll() error {
	cfgs := b.cat.Cfg()
	sources := cfgs.Sources()
	if len(sources) == 0 {
		return errs.NewFatal("configs required")
	}

	entries := make([]catalog.Entry, 0, 64)
	seenID := map[spec.RID]string{}
	seenName := map[string]string{}

	for _, src := range sources {
		walkErr := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == "." {
					return nil
				}
				return errs.NewFatal(fmt.Sprintf("configs must be flat (no subdir): %q", path))
			}

			base := filepath.Base(path)
			if strings.Contains(path, "/") && path != base {
				return errs.NewFatal(fmt.Sprintf("configs must be flat (nested path): %q", path))
			}
			if strings.HasPrefix(base, ".") {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(base))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				return nil
			}

			raw, rerr := fs.ReadFile(src, path)
			if rerr != nil {
				return errs.NewFatal(fmt.Sprintf("read config failed: %s", base))
			}

			var (
				rs   *spec.RunSetting
				gerr error
			)
			switch ext {
			case ".yaml", ".yml":
				rs, gerr = spec.GetRunSettingByYAML(raw)
			case ".json":
				rs, gerr = spec.GetRunSettingByJSON(raw)
			default:
				return errs.NewFatal(fmt.Sprintf("unsupported config format: %q", base))
			}
			if gerr != nil {
				return errs.NewFatal(fmt.Sprintf("parse runsetting failed: %s", base))
			}

			name := strings.TrimSpace(rs.RunName)
			if name == "" {
				return errs.NewFatal(fmt.Sprintf("run name required: %s", base))
			}

			id := rs.RunID
			if prev, ok := seenID[id]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate run id: %s (config=%s and %s)", id, prev, base))
			}
			if _, ok := b.cat.GetByID(id); ok {
				return errs.NewFatal(fmt.Sprintf("run id already registered: %s (config=%s)", id, base))
			}
			seenID[id] = base

			nameKey := strings.ToLower(name)
			if prev, ok := seenName[nameKey]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate run name: %s (config=%s and %s)", nameKey, prev, base))
			}
			if _, ok := b.cat.GetByName(name); ok {
				return errs.NewFatal(fmt.Sprintf("run name already registered: %s (config=%s)", name, base))
			}
			seenName[nameKey] = base

			if rs.ModelKey == "" {
				return errs.NewFatal(fmt.Sprintf("model key required: %s", base))
			}
			if !b.reg.IsExist(string(rs.ModelKey)) {
				return errs.NewFatal(fmt.Sprintf("model not registered: model_key=%s (config=%s)", rs.ModelKey, base))
			}

			entries = append(entries, catalog.Entry{
				RID:        id,
				Name:       name,
				ConfigName: base,
			})
			return nil
		})
		if walkErr != nil {
			return walkErr
		}
	}

	if len(entries) == 0 {
		return errs.NewFatal("no config files found to register")
	}

	return b.cat.Register(entries...)
}

func (b *Bayeslab) Freeze() {
	b.cat.Freeze()
}

func (b *Bayeslab) EntryById(id spec.RID) (catalog.Entry, bool) {
	return b.cat.GetByID(id)
}

func (b *Bayeslab) EntryByName(name string) (catalog.Entry, bool) {
	return b.cat.GetByName(name)
}

func (b *Bayeslab) IDs() []spec.RID {
	return b.cat.IDs()
}

func (b *Bayeslab) All() []catalog.Entry {
	return b.cat.All()
}

func (b *Bayeslab) Summary() ([]catalog.Summary, error) {
	if !b.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	if b.sum != nil {
		return b.sum, nil
	}
	ids := b.cat.IDs()
	cs := make([]catalog.Summary, 0, len(ids))
	for _, id := range ids {
		rs, err := b.cat.RunSettingById(id)
		if err != nil {
			return nil, errs.NewFatal("parse run setting failed")
		}
		s := catalog.Summary{
			RID:      id,
			Name:     rs.RunName,
			Model:    rs.ModelKey,
			Method:   rs.Method,
			NSamples: rs.NSamples,
		}
		cs = append(cs, s)
	}
	b.sum = cs
	return b.sum, nil
}

// NewRunner 依據 Catalog 內的 RunID 建立一個 Runner。
//
// 行為：
//  1. 由 Catalog 取得對應的 RunSetting（通常來自 fs.FS 內的 YAML/JSON）。
//  2. 透過 model.Registry 依據 RunSetting 內的 ModelKey + Model 參數建出模型。
//  3. 以 PRNGFactory 產生 RNG 核心。seed 取設定檔的 Seed；Seed 為 0 時由 crypto/rand 產生。
//
// 注意：實際使用的 seed 會被記錄在 Runner 內（initseed），用於追溯/重現。
func (b *Bayeslab) NewRunner(id spec.RID) (*Runner, error) {
	if !b.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	rs, err := b.cat.RunSettingById(id)
	if err != nil {
		return nil, err
	}
	if rs.Seed != 0 {
		return newRunnerWithSeed(rs, b.reg, b.cf, rs.Seed)
	}
	return newRunner(rs, b.reg, b.cf)
}

// NewRunnerWithSeed 與 NewRunner 相同，但由呼叫端指定初始 seed（覆蓋設定檔的 Seed）。
//
// 使用情境：
//   - 可重現的測試：同一份設定 + 同一個 seed，應產生一致的隨機序列。
//   - 重複推論（Repeat）：以不同 seed 衡量 run-to-run 散布。
func (b *Bayeslab) NewRunnerWithSeed(id spec.RID, seed int64) (*Runner, error) {
	if !b.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	rs, err := b.cat.RunSettingById(id)
	if err != nil {
		return nil, err
	}
	return newRunnerWithSeed(rs, b.reg, b.cf, seed)
}

func (b *Bayeslab) NewRunnerByJSON(raw []byte, seed int64) (*Runner, error) {
	if !b.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	rs, err := spec.GetRunSettingByJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := b.validCfg(rs); err != nil {
		return nil, err
	}
	return newRunnerWithSeed(rs, b.reg, b.cf, seed)
}

func (b *Bayeslab) NewRunnerByYAML(raw []byte, seed int64) (*Runner, error) {
	if !b.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	rs, err := spec.GetRunSettingByYAML(raw)
	if err != nil {
		return nil, err
	}
	if err := b.validCfg(rs); err != nil {
		return nil, err
	}
	return newRunnerWithSeed(rs, b.reg, b.cf, seed)
}

func (b *Bayeslab) validCfg(rs *spec.RunSetting) error {
	ent, ok := b.cat.GetByID(rs.RunID)
	if !ok {
		return errs.NewWarn("run id dose not exist")
	}
	ent2, ok := b.cat.GetByName(rs.RunName)
	if !ok {
		return errs.NewWarn("run name dose not exist")
	}
	if ent.RID != ent2.RID {
		return errs.NewWarn("run id is not matched run name")
	}
	if !b.reg.IsExist(string(rs.ModelKey)) {
		return errs.NewWarn("model dose not exist")
	}
	return nil
}

// cryptoSeed 以 crypto/rand 產生非負 seed。
//
// 在對外服務情境避免可預測 RNG，同時保留可追溯性（seed 會被記錄在 Runner.initseed）。
func cryptoSeed() (int64, error) {
	seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, errs.Wrap(err, "new crypto seed error in go std lib")
	}
	return seed.Int64(), nil
}
