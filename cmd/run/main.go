package main

import "github.com/zintix-labs/bayeslab/sdk/perf"

// makefile runner
func main() {
	bindVar()
	perf.RunPProf(executeRunner, cfg.pprofmode)
}
