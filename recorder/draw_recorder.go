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

package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/zintix-labs/bayeslab/corefmt"
	"github.com/zintix-labs/bayeslab/errs"
	"github.com/zintix-labs/bayeslab/samples"
	"github.com/zintix-labs/bayeslab/spec"
)

// 單一欄位 frame 的大小上限（8 bytes × 最多 2^24 筆抽樣）
const maxColumnBytes = 8 << 24

// DrawRecorder 抽樣紀錄員
//
// DrawRecorder 收集一次推論的 posterior 抽樣與對數密度，
// 提供表格視圖，並可序列化成 zstd 壓縮的欄位串流。
type DrawRecorder struct {
	RunName string
	RunID   spec.RID
	Params  []string

	cols map[string][]float64
	n    int
}

// header 是 zstd 串流的第一個 frame，描述欄位順序與筆數。
type header struct {
	RunName string   `json:"run_name"`
	RunID   spec.RID `json:"run_id"`
	Params  []string `json:"params"`
	Columns []string `json:"columns"`
	N       int      `json:"n"`
}

func NewDrawRecorder(name string, id spec.RID) *DrawRecorder {
	return &DrawRecorder{
		RunName: name,
		RunID:   id,
		cols:    map[string][]float64{},
	}
}

// Record 把一個樣本集的所有欄位（參數欄與密度欄）收進紀錄。
// 與既有欄位形狀不一致時回傳 Fatal 等級錯誤。
func (r *DrawRecorder) Record(s *samples.Set) error {
	cols := s.Columns()
	if r.n == 0 && len(r.cols) == 0 {
		r.Params = s.Parameters()
		for k, v := range cols {
			r.cols[k] = append([]float64(nil), v...)
		}
		r.n = s.Len()
		return nil
	}

	if len(cols) != len(r.cols) {
		return errs.Fatalf("recorder: column set changed, had %d got %d", len(r.cols), len(cols))
	}
	for k, v := range cols {
		prev, ok := r.cols[k]
		if !ok {
			return errs.Fatalf("recorder: unexpected column %q", k)
		}
		r.cols[k] = append(prev, v...)
	}
	r.n += s.Len()
	return nil
}

// Len 回傳已收集的抽樣筆數。
func (r *DrawRecorder) Len() int { return r.n }

// Columns 回傳表格視圖的複本。
func (r *DrawRecorder) Columns() map[string][]float64 {
	out := make(map[string][]float64, len(r.cols))
	for k, v := range r.cols {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// columnOrder 回傳穩定的欄位順序：參數欄在前，其餘按名稱。
func (r *DrawRecorder) columnOrder() []string {
	order := make([]string, 0, len(r.cols))
	seen := map[string]struct{}{}
	for _, p := range r.Params {
		if _, ok := r.cols[p]; ok {
			order = append(order, p)
			seen[p] = struct{}{}
		}
	}
	rest := make([]string, 0, len(r.cols))
	for k := range r.cols {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// WriteZstd 把紀錄寫成 zstd 壓縮串流：
// header frame（JSON）後接每欄一個 float64 frame，順序依 header.Columns。
func (r *DrawRecorder) WriteZstd(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errs.Wrap(err, "recorder: can not create zstd writer")
	}

	order := r.columnOrder()
	hdr := header{
		RunName: r.RunName,
		RunID:   r.RunID,
		Params:  r.Params,
		Columns: order,
		N:       r.n,
	}
	hb, err := json.Marshal(&hdr)
	if err != nil {
		zw.Close()
		return errs.Wrap(err, "recorder: can not marshal header")
	}
	if err := corefmt.WriteBlobFrame(zw, hb); err != nil {
		zw.Close()
		return errs.Wrap(err, "recorder: can not write header frame")
	}

	for _, name := range order {
		if err := corefmt.WriteBlobFrame(zw, corefmt.EncodeFloat64s(r.cols[name])); err != nil {
			zw.Close()
			return errs.Wrap(err, fmt.Sprintf("recorder: can not write column %q", name))
		}
	}

	return zw.Close()
}

// ReadZstd 讀回 WriteZstd 寫出的串流。
func ReadZstd(rd io.Reader) (*DrawRecorder, error) {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return nil, errs.Wrap(err, "recorder: can not create zstd reader")
	}
	defer zr.Close()

	br := bufio.NewReader(zr)

	hb, err := corefmt.ReadBlobFrame(br, 1<<20)
	if err != nil {
		return nil, errs.Wrap(err, "recorder: can not read header frame")
	}
	var hdr header
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return nil, errs.Wrap(err, "recorder: invalid header frame")
	}

	out := NewDrawRecorder(hdr.RunName, hdr.RunID)
	out.Params = hdr.Params
	out.n = hdr.N
	for _, name := range hdr.Columns {
		payload, err := corefmt.ReadBlobFrame(br, maxColumnBytes)
		if err != nil {
			return nil, errs.Wrap(err, fmt.Sprintf("recorder: can not read column %q", name))
		}
		vals, err := corefmt.DecodeFloat64s(payload)
		if err != nil {
			return nil, err
		}
		if len(vals) != hdr.N {
			return nil, errs.Fatalf("recorder: column %q has %d values, header says %d", name, len(vals), hdr.N)
		}
		out.cols[name] = vals
	}
	return out, nil
}

// MergeDrawRecorder 合併多份同一設定的紀錄。
func MergeDrawRecorder(rs []*DrawRecorder) (*DrawRecorder, error) {
	if len(rs) == 0 {
		return nil, errs.NewFatal("recorder: nothing to merge")
	}
	r0 := rs[0]
	out := NewDrawRecorder(r0.RunName, r0.RunID)
	out.Params = append([]string(nil), r0.Params...)

	for _, v := range rs {
		if v.RunID != r0.RunID {
			return nil, errs.NewFatal("merge draw record err : different run id")
		}
		if len(v.cols) != len(r0.cols) {
			return nil, errs.NewFatal("merge draw record err : different columns")
		}
		for k, col := range v.cols {
			if _, ok := r0.cols[k]; !ok {
				return nil, errs.NewFatal("merge draw record err : different columns")
			}
			out.cols[k] = append(out.cols[k], col...)
		}
		out.n += v.n
	}
	return out, nil
}
