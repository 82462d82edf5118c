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

// Package dto 定義 server 對外的 wire 型別。
//
// 核心型別（stats.Report、catalog.Summary）本身已帶 JSON tag，
// dto 只負責把它們包進請求/回應信封，並處理「抽樣資料匯出」這類
// 僅存在於傳輸層的表示（base64url + zstd 欄位流）。
package dto

import (
	"bytes"
	"time"

	"github.com/zintix-labs/bayeslab/catalog"
	"github.com/zintix-labs/bayeslab/corefmt"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/recorder"
	"github.com/zintix-labs/bayeslab/spec"
	"github.com/zintix-labs/bayeslab/stats"
)

// RunRequest 以 run_id 執行一個已登錄的推論。
//
// Seed 省略時由 server 以 crypto/rand 決定（回應內不回傳 seed；
// 需要完整重現的呼叫端應自帶 seed）。
type RunRequest struct {
	RID          spec.RID `json:"rid"`
	Seed         *int64   `json:"seed,omitempty"`
	IncludeDraws bool     `json:"include_draws,omitempty"`
}

// RunByCfgRequest 以原始設定內容執行推論。
//
// Cfg 是一整份 RunSetting 的 YAML 或 JSON（依 Format 指定，省略視為 json）；
// 設定內容仍必須對應 catalog 內已登錄的 run_id/run_name。
type RunByCfgRequest struct {
	Cfg          []byte `json:"cfg"`
	Format       string `json:"format,omitempty"` // "json"（預設）或 "yaml"
	Seed         *int64 `json:"seed,omitempty"`
	IncludeDraws bool   `json:"include_draws,omitempty"`
}

// RunResponse 是一次推論的完整回應。
//
// DrawsZstdB64U 僅在請求帶 include_draws 時出現：內容是 recorder 的
// zstd 欄位流（見 recorder.WriteZstd）再做 base64url，方便塞在 JSON 裡。
type RunResponse struct {
	Report        *stats.Report `json:"report"`
	UsedMs        int64         `json:"used_ms"`
	DrawsZstdB64U string        `json:"draws_zstd_b64u,omitempty"`
}

// NewRunResponse 把一次推論結果組成回應信封。
//
// includeDraws 為 true 時會把 posterior 全量錄進 recorder 並壓縮；
// 這是回應體積的主要來源，呼叫端應只在需要原始樣本時開啟。
func NewRunResponse(rep *stats.Report, used time.Duration, includeDraws bool) (*RunResponse, error) {
	if rep == nil {
		return nil, errs.NewWarn("report is nil")
	}
	resp := &RunResponse{
		Report: rep,
		UsedMs: used.Milliseconds(),
	}
	if !includeDraws {
		return resp, nil
	}

	rec := recorder.NewDrawRecorder(rep.Summary.RunName, rep.Summary.RunID)
	if err := rec.Record(rep.Posterior()); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := rec.WriteZstd(&buf); err != nil {
		return nil, err
	}
	resp.DrawsZstdB64U = corefmt.EncodeBase64URL(buf.Bytes())
	return resp, nil
}

// DecodeDraws 還原 RunResponse 內的抽樣資料（與 NewRunResponse 對偶）。
func DecodeDraws(b64u string) (*recorder.DrawRecorder, error) {
	if b64u == "" {
		return nil, errs.NewWarn("no draws attached")
	}
	raw, err := corefmt.DecodeBase64URL(b64u)
	if err != nil {
		return nil, errs.Wrap(err, "decode draws failed")
	}
	return recorder.ReadZstd(bytes.NewReader(raw))
}

// CatalogResponse 列出所有已登錄推論的摘要。
// catalog.Summary 已是 wire-friendly（純值欄位 + json tag），直接透出。
type CatalogResponse struct {
	Runs []catalog.Summary `json:"runs"`
}
