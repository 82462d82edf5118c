package main

import (
	"crypto/rand"
	"flag"
	"log"
	"math"
	"math/big"

	"github.com/zintix-labs/bayeslab/demo"
	"github.com/zintix-labs/bayeslab/spec"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cfg *config = new(config)

type config struct {
	name      string
	id        string
	repeat    int
	worker    int
	seed      int64
	pprofmode string
}

func bindVar() {
	// 綁定 Flag 到本地變數的指標 (&)
	flag.StringVar(&cfg.id, "run", "", "target run id")
	flag.IntVar(&cfg.repeat, "repeat", 1, "independent repetitions with different seeds")
	flag.IntVar(&cfg.worker, "worker", 1, "number of workers for repetitions")
	flag.Int64Var(&cfg.seed, "seed", -1, "int64 seed for random number generator")
	flag.StringVar(&cfg.pprofmode, "p", "", "pprof: '', cpu, heap, allocs")

	flag.Parse()

	// given seed illeagel -> default seed
	if cfg.seed < 1 {
		seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			log.Fatal(err)
		}
		cfg.seed = seed.Int64()
	}
}

// 這裡解析並分支要執行的推論
func executeRunner() {
	cfg.valid() // 基本檢查

	lab, err := demo.NewBayeslab()
	if err != nil {
		log.Fatal(err)
	}
	r, err := lab.NewRunnerWithSeed(spec.RID(cfg.id), cfg.seed)
	if err != nil {
		log.Fatal(err)
	}
	ent, _ := lab.EntryById(spec.RID(cfg.id))
	cfg.name = ent.Name
	// 至此確保可執行
	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)

	if cfg.repeat == 1 { // 單次推論
		p.Printf("%s[RUN:%s] [SEED:%d]%s\n", green, cfg.name, cfg.seed, reset)
		rep, used, err := r.Run(true)
		if err != nil {
			log.Fatal(err)
		}
		rep.StdOut(used)
	} else { // 重複推論 評估 estimator 散布
		p.Printf("%s[WORKERS:%d] [RUN:%s] [REPEAT:%d]%s\n", green, cfg.worker, cfg.name, cfg.repeat, reset)
		est, used, err := r.Repeat(cfg.repeat, cfg.worker, true)
		if err != nil {
			log.Fatal(err)
		}
		p.Printf("repeat finished in %v\n", used)
		est.Out()
	}
}

func (cfg *config) valid() {
	p := message.NewPrinter(language.English)

	// 目標檢查
	if cfg.id == "" {
		log.Fatal("value err : run id is required")
	}

	// 工作協程檢查(併發數)
	if cfg.worker < 1 {
		log.Fatal("value err : workers must > 0")
	}

	// 重複次數檢查
	if cfg.repeat < 1 {
		log.Fatal("value err : repeat must > 0")
	}

	// 重複太多次 resize
	// 散布統計到幾百次已經穩定，再多只是燒 CPU
	if cfg.repeat > 1000 {
		p.Printf("too much repetitions: %d resized to 1000\n", cfg.repeat)
		cfg.repeat = 1000
	}
}
