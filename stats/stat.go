package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
)

var lang language.Tag = language.English

// 信賴區間
type CI struct {
	Lo float64 `json:"Lo"`
	Hi float64 `json:"Hi"`
}

// PointStat 點估計 回傳 估計值 以及信賴區間
type PointStat struct {
	Hat float64 `json:"Hat"`
	CI  CI      `json:"CI"`
}

// Report 推論統計報告
type Report struct {
	Summary *SummaryReport `json:"Summary"`
	Params  []*ParamReport `json:"Params"`

	posterior *samples.Set
	isDone    bool
}

type SummaryReport struct {
	RunName    string         `json:"RunName"`
	RunID      spec.RID       `json:"RunId"`
	Model      spec.ModelKey  `json:"Model"`
	Method     spec.MethodKey `json:"Method"`
	Seed       int64          `json:"Seed"`
	Draws      int            `json:"Draws"`
	LogZ       float64        `json:"LogZ"`
	LogZErr    float64        `json:"LogZErr"`
	HasLogZ    bool           `json:"HasLogZ"`
	ESS        float64        `json:"ESS,omitzero"`
	Efficiency float64        `json:"Efficiency,omitzero"`
	Calls      int            `json:"Calls"`
}

// ParamReport 單一參數的邊際統計
type ParamReport struct {
	Name   string     `json:"Name"`
	Mean   float64    `json:"Mean"`
	Std    float64    `json:"Std"`
	Median PointStat  `json:"Median"`
	P05    PointStat  `json:"P05"`
	P95    PointStat  `json:"P95"`
	Hist   *Histogram `json:"Hist,omitempty"`
}

// ============================================================
// ** 公開方法 **
// ============================================================

// NewReport 由設定與 posterior 樣本建立報告。
// 邊際統計延後到 Done() 一次計算。
func NewReport(rs *spec.RunSetting, post *samples.Set) *Report {
	r := &Report{
		Summary: &SummaryReport{
			RunName: rs.RunName,
			RunID:   rs.RunID,
			Model:   rs.ModelKey,
			Method:  rs.Method,
			Seed:    rs.Seed,
			Draws:   post.Len(),
		},
		posterior: post,
	}
	if est, ok := post.Evidence(); ok {
		r.Summary.LogZ = est.LogZ
		r.Summary.LogZErr = est.LogZErr
		r.Summary.HasLogZ = true
	}
	return r
}

// SetSampling 填入取樣層的診斷數字（重要性抽樣的 ESS/效率、呼叫次數）。
func (r *Report) SetSampling(ess, efficiency float64, calls int) {
	r.Summary.ESS = ess
	r.Summary.Efficiency = efficiency
	r.Summary.Calls = calls
}

// Done 將樣本彙整為最終統計結果並鎖定 isDone 標記。
//
// 推論過程只收集樣本本身，邊際統計（平均值、標準差、分位數與其
// 信賴區間）留到這裡一次性計算。
func (r *Report) Done() {
	if r.isDone {
		return
	}

	params := r.posterior.Parameters()
	r.Params = make([]*ParamReport, len(params))
	for j, name := range params {
		col := mat.Col(nil, j, r.posterior.X())
		r.Params[j] = estimateParam(name, col)
	}

	r.isDone = true
}

// Posterior 回傳報告所附的 posterior 樣本。
func (r *Report) Posterior() *samples.Set { return r.posterior }

func (r *Report) WriteWith(w io.Writer, rep ReportRender) error {
	r.Done()
	return rep.Write(w, r)
}

func (r *Report) StdOut(ut time.Duration) {
	r.Done()
	formatDuration(ut, r.Summary.Draws)
	sk, sm := r.fmtBasic()
	str := fmtTable(r.Summary.RunName, sk, sm)
	fmt.Println(str)
	for _, p := range r.Params {
		fmt.Println(p.fmtLine())
	}
}

// ============================================================
// ** 內部方法 **
// ============================================================

func formatDuration(d time.Duration, draws int) {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	dps := int(float64(draws) / sec)
	if sec < 60.0 {
		p.Printf("used: %.2f seconds\ndps : %d draws/sec\n", sec, dps)
		return
	}
	s := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		s = s % 60
		p.Printf("used: %dm %ds\ndps : %d draws/sec\n", m, s, dps)
		return
	}
	p.Printf("used: %dh:%dm:%ds\ndps : %d draws/sec\n", h, m, s, dps)
}

// StdOut

func (r *Report) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	s := r.Summary
	basic := map[string]string{
		"Run Name":     p.Sprintf("%s", s.RunName),
		"Run ID":       fmt.Sprintf("%s", s.RunID),
		"Model":        fmt.Sprintf("%s", s.Model),
		"Method":       fmt.Sprintf("%s", s.Method),
		"Seed":         p.Sprintf("%d", s.Seed),
		"Total Draws":  p.Sprintf("%d", s.Draws),
		"Log Evidence": fmtLogZ(s),
		"ESS":          p.Sprintf("%.1f", s.ESS),
		"Efficiency":   p.Sprintf("%.2f %%", 100.0*s.Efficiency),
		"Calls":        p.Sprintf("%d", s.Calls),
	}
	keys := []string{"Run Name", "Run ID", "Model", "Method", "Seed", "Total Draws", "Log Evidence", "ESS", "Efficiency", "Calls"}
	return keys, basic
}

func fmtLogZ(s *SummaryReport) string {
	if !s.HasLogZ {
		return "n/a"
	}
	return fmt.Sprintf("%.4f ± %.4f", s.LogZ, s.LogZErr)
}

func (pr *ParamReport) fmtLine() string {
	return fmt.Sprintf("%-12s : mean %.4f  std %.4f  median %.4f [%.4f, %.4f]  p05 %.4f  p95 %.4f",
		pr.Name, pr.Mean, pr.Std,
		pr.Median.Hat, pr.Median.CI.Lo, pr.Median.CI.Hi,
		pr.P05.Hat, pr.P95.Hat)
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := 0
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider

	return fmtStr
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}

func estimateParam(name string, col []float64) *ParamReport {
	mean, std := stat.MeanStdDev(col, nil)
	if math.IsNaN(std) {
		std = 0
	}

	medLo, medHi := quantileCI(col, 0.5, 0.95)
	p05Lo, p05Hi := quantileCI(col, 0.05, 0.95)
	p95Lo, p95Hi := quantileCI(col, 0.95, 0.95)

	return &ParamReport{
		Name:   name,
		Mean:   mean,
		Std:    std,
		Median: PointStat{Hat: quantilePoint(col, 0.5), CI: CI{Lo: medLo, Hi: medHi}},
		P05:    PointStat{Hat: quantilePoint(col, 0.05), CI: CI{Lo: p05Lo, Hi: p05Hi}},
		P95:    PointStat{Hat: quantilePoint(col, 0.95), CI: CI{Lo: p95Lo, Hi: p95Hi}},
		Hist:   NewHistogram(col, 10),
	}
}
