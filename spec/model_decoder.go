package spec

import (
	"bytes"

	"github.com/zintix-labs/bayeslab/errs"
	"gopkg.in/yaml.v3"
)

// DecodeModel 會把 RunSetting.Model 由 map[string]any 轉成你要的型別 T。
// T 應該是 struct，例如 MyModelConfig。
func DecodeModel[T any](cfg map[string]any, out *T) error {
	// 先把 map[string]any -> YAML bytes
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(err, "spec.model_decoder : marshal failed")
	}
	// 再把 YAML bytes -> 自定義的型別
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true) // 嚴格檢查：多寫/拼錯欄位就報錯
	if err = dec.Decode(out); err != nil {
		return errs.Wrap(err, "spec.model_decoder : decode failed")
	}
	return nil
}
