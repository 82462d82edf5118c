package catalog

import (
	"testing"
	"testing/fstest"

	"github.com/zintix-labs/bayeslab/spec"
)

const runYAML = `
run_name: demo gaussian
run_id: demo_gaussian
model_key: gaussian_analytic
method: smc
n_samples: 500
ladder:
  ess_fraction: 0.5
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"demo_gaussian.yaml": &fstest.MapFile{Data: []byte(runYAML)},
		"other.yaml":         &fstest.MapFile{Data: []byte("run_id: other")},
		"notes.txt":          &fstest.MapFile{Data: []byte("ignored")},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	c, err := New(testFS())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = c.Register(Entry{RID: "demo_gaussian", Name: "Demo Gaussian", ConfigName: "demo_gaussian.yaml"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := c.GetByID("demo_gaussian"); !ok {
		t.Fatalf("GetByID missed registered entry")
	}
	// 名稱查詢大小寫與空白不敏感
	ent, ok := c.GetByName("  DEMO gaussian ")
	if !ok {
		t.Fatalf("GetByName must normalize case and spacing")
	}
	if ent.RID != "demo_gaussian" {
		t.Fatalf("GetByName returned wrong entry: %+v", ent)
	}

	rs, err := c.RunSettingById("demo_gaussian")
	if err != nil {
		t.Fatalf("RunSettingById failed: %v", err)
	}
	if rs.Method != spec.MethodSMC || rs.NSamples != 500 {
		t.Fatalf("decoded setting = %+v", rs)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	c, err := New(testFS())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	base := Entry{RID: "a", Name: "a", ConfigName: "demo_gaussian.yaml"}
	if err := c.Register(base); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := c.Register(Entry{RID: "a", Name: "b", ConfigName: "other.yaml"}); err != ErrDupID {
		t.Fatalf("expected ErrDupID, got %v", err)
	}
	if err := c.Register(Entry{RID: "b", Name: "a", ConfigName: "other.yaml"}); err != ErrDupName {
		t.Fatalf("expected ErrDupName, got %v", err)
	}
	if err := c.Register(Entry{RID: "b", Name: "b", ConfigName: "demo_gaussian.yaml"}); err == nil {
		t.Fatalf("duplicate config name must fail")
	}
}

func TestRegisterValidatesConfigName(t *testing.T) {
	c, err := New(testFS())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	bad := []string{"", "a/b.yaml", ".yaml", "notes.txt", "missing.yaml"}
	for _, name := range bad {
		if err := c.Register(Entry{RID: "x", Name: "x", ConfigName: name}); err == nil {
			t.Fatalf("config name %q must be rejected", name)
		}
	}
}

func TestFreezeBlocksRegister(t *testing.T) {
	c, err := New(testFS())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Freeze()
	if !c.IsFrozen() {
		t.Fatalf("IsFrozen must report frozen state")
	}
	if err := c.Register(Entry{RID: "a", Name: "a", ConfigName: "other.yaml"}); err == nil {
		t.Fatalf("frozen catalog must refuse registration")
	}
}

func TestMultiFSRejectsSubdirsAndCrossDuplicates(t *testing.T) {
	nested := fstest.MapFS{
		"sub/run.yaml": &fstest.MapFile{Data: []byte("x")},
	}
	if _, err := New(nested); err == nil {
		t.Fatalf("nested config FS must fail")
	}

	a := fstest.MapFS{"run.yaml": &fstest.MapFile{Data: []byte("x")}}
	b := fstest.MapFS{"run.yaml": &fstest.MapFile{Data: []byte("y")}}
	if _, err := New(a, b); err == nil {
		t.Fatalf("duplicate config across sources must fail")
	}
}

func TestAllIsSorted(t *testing.T) {
	c, err := New(testFS())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = c.Register(
		Entry{RID: "zz", Name: "zz", ConfigName: "other.yaml"},
		Entry{RID: "aa", Name: "aa", ConfigName: "demo_gaussian.yaml"},
	)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	all := c.All()
	if len(all) != 2 || all[0].RID != "aa" || all[1].RID != "zz" {
		t.Fatalf("All must be sorted by id: %+v", all)
	}
}
