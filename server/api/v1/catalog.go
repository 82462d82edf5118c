package v1

import (
	"encoding/json"
	"net/http"

	"github.com/zintix-labs/bayeslab"
	"github.com/zintix-labs/bayeslab/dto"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/server/httperr"
)

// CatalogHandlerFn 列出所有已登錄 run 的摘要（rid/name/model/method/n_samples）。
func CatalogHandlerFn(lab *bayeslab.Bayeslab) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sums, err := lab.Summary()
		if err != nil {
			httperr.Errs(w, errs.Wrap(err, "catalog summary err"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&dto.CatalogResponse{Runs: sums})
	}
}
