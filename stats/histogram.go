package stats

import (
	"fmt"
	"math"
)

// Histogram 是單一參數邊際的等寬分箱。
//
// 給繪圖與 server 端 DTO 用的輕量摘要；分位數與 CI 另由
// estimator 計算，這裡只負責落點計數。
type Histogram struct {
	Edges  []float64 `json:"Edges"`  // len = bins+1
	Counts []int     `json:"Counts"` // len = bins
	Labels []string  `json:"Labels"` // len = bins
}

// NewHistogram 對 data 建 bins 個等寬箱。
// 全部同值時退化為單箱。
func NewHistogram(data []float64, bins int) *Histogram {
	if bins < 1 {
		bins = 1
	}
	if len(data) == 0 {
		return &Histogram{Edges: []float64{0, 0}, Counts: make([]int, 1), Labels: []string{"[0,0]"}}
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		bins = 1
	}

	h := &Histogram{
		Edges:  make([]float64, bins+1),
		Counts: make([]int, bins),
		Labels: make([]string, bins),
	}
	width := (hi - lo) / float64(bins)
	for i := 0; i <= bins; i++ {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi
	for i := 0; i < bins; i++ {
		h.Labels[i] = fmt.Sprintf("[%.3g,%.3g)", h.Edges[i], h.Edges[i+1])
	}

	for _, v := range data {
		h.Counts[h.index(v, lo, width, bins)]++
	}
	return h
}

func (h *Histogram) index(v, lo, width float64, bins int) int {
	if width == 0 {
		return 0
	}
	idx := int(math.Floor((v - lo) / width))
	if idx < 0 {
		idx = 0
	}
	if idx > bins-1 {
		idx = bins - 1
	}
	return idx
}
