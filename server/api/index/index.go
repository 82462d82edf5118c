package index

import (
	"encoding/json"
	"net/http"
)

// IndexHandlerFn 回傳服務識別與可用的 API 入口，方便健康檢查與人工探索。
func IndexHandlerFn(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service": "bayeslab",
		"endpoints": []string{
			"GET  /v1/catalog",
			"GET  /v1/run?rid=<run_id>&seed=<int64>",
			"POST /v1/run",
			"POST /v1/runbycfg",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
