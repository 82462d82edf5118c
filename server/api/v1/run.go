package v1

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/zintix-labs/bayeslab"
	"github.com/zintix-labs/bayeslab/dto"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/server/httperr"
	"github.com/zintix-labs/bayeslab/server/svrcfg"
	"github.com/zintix-labs/bayeslab/spec"
)

// RunHandler 包裝「以 catalog 設定執行一次推論」的 HTTP 入口。
//
// 推論是 CPU-bound 的長呼叫，因此用帶容量的 semaphore 限制同時執行數
// （容量來自 SvrCfg.RunLimit）；滿載時直接回 429，不排隊。
type RunHandler struct {
	Bayeslab *bayeslab.Bayeslab
	sem      chan struct{}
}

func NewRunHandler(sCfg *svrcfg.SvrCfg) (*RunHandler, error) {
	if sCfg == nil || sCfg.Bayeslab == nil {
		return nil, errs.NewFatal("bayeslab is required")
	}
	return &RunHandler{
		Bayeslab: sCfg.Bayeslab,
		sem:      make(chan struct{}, sCfg.RunLimit),
	}, nil
}

func (rh *RunHandler) acquire() bool {
	select {
	case rh.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (rh *RunHandler) release() { <-rh.sem }

func (rh *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	req := new(dto.RunRequest)
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Method == http.MethodGet {
		// rid
		if s := r.URL.Query().Get("rid"); s != "" {
			req.RID = spec.RID(s)
		} else {
			// 直接空值
			httperr.Errs(w, errs.NewWarn("rid is required"))
			return
		}

		// seed
		if s := r.URL.Query().Get("seed"); s != "" {
			u, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("seed must be int64"))
				return
			}
			v := u
			req.Seed = &v
		}

		// draws
		if s := r.URL.Query().Get("draws"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("draws must be bool"))
				return
			}
			req.IncludeDraws = b
		}
	}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			httperr.Errs(w, errs.NewWarn("invalid json:"+err.Error()))
			return
		}
	}
	// 業務檢驗
	if _, ok := rh.Bayeslab.EntryById(req.RID); !ok {
		httperr.Errs(w, errs.NewWarn("rid not found"))
		return
	}
	if err := fillSeed(&req.Seed); err != nil {
		httperr.Errs(w, err)
		return
	}

	if !rh.acquire() {
		http.Error(w, "too many concurrent runs", http.StatusTooManyRequests)
		return
	}
	defer rh.release()

	runner, err := rh.Bayeslab.NewRunnerWithSeed(req.RID, *req.Seed)
	if err != nil {
		// 這裡的錯誤是來自bayeslab 尊重錯誤分級
		httperr.Errs(w, errs.Wrap(err, fmt.Sprintf("build runner err: %s", req.RID)))
		return
	}
	rep, used, err := runner.Run(false)
	if err != nil {
		// 這裡的錯誤來自runner 尊重錯誤分級
		httperr.Errs(w, errs.Wrap(err, "run err"))
		return
	}
	resp, err := dto.NewRunResponse(rep, used, req.IncludeDraws)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// RunByCfg 傳入 RunSetting 原始內容（YAML 或 JSON）直接執行推論。
func (rh *RunHandler) RunByCfg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 1. decode request
	req := new(dto.RunByCfgRequest)
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20) // 5MB
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httperr.Errs(w, errs.Wrap(err, "json decode failed"))
		return
	}
	if len(req.Cfg) == 0 {
		httperr.Errs(w, errs.NewWarn("cfg is required"))
		return
	}
	if err := fillSeed(&req.Seed); err != nil {
		httperr.Errs(w, err)
		return
	}

	if !rh.acquire() {
		http.Error(w, "too many concurrent runs", http.StatusTooManyRequests)
		return
	}
	defer rh.release()

	// 2. build runner（設定仍須對應已登錄的 run_id/run_name）
	var (
		runner *bayeslab.Runner
		err    error
	)
	switch req.Format {
	case "", "json":
		runner, err = rh.Bayeslab.NewRunnerByJSON(req.Cfg, *req.Seed)
	case "yaml":
		runner, err = rh.Bayeslab.NewRunnerByYAML(req.Cfg, *req.Seed)
	default:
		httperr.Errs(w, errs.NewWarn("format must be json or yaml"))
		return
	}
	if err != nil {
		httperr.Errs(w, err)
		return
	}

	rep, used, err := runner.Run(false)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	resp, err := dto.NewRunResponse(rep, used, req.IncludeDraws)
	if err != nil {
		httperr.Errs(w, err)
		return
	}

	// 3. 回傳Json
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func fillSeed(seed **int64) error {
	if *seed != nil {
		return nil
	}
	rnd, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return errs.NewWarn("seed generate failed")
	}
	v := rnd.Int64()
	*seed = &v
	return nil
}
