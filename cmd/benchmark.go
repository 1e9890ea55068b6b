package cmd

import (
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/test"
)

type benchmarkCommandState struct {
	Input    string `help:"Input file path or wildcard pattern of raw instrument data. Empty to generate SATPAR records."`
	Pattern  string `help:"Regular expression of records, for chunker benchmark"`
	Fragment int    `help:"Maximum length of fragments fed to chunker"`
	Repeat   int    `help:"Repeat times"`
	Config   string `help:"Configuration file path, for agent benchmark. The first input must use raw framing."`
}

var benchCmd = benchmarkCommandState{
	Input:    "",
	Pattern:  test.SampleRecordPattern,
	Fragment: 1500,
	Repeat:   100,
	Config:   "testdata/config_benchmark.yml",
}

func (cmd *benchmarkCommandState) runBenchmarkChunkerCommand(_ []string) {
	test.RunBenchmarkChunker(cmd.Input, cmd.Pattern, cmd.Repeat, cmd.Fragment)
}

func (cmd *benchmarkCommandState) runBenchmarkAgentCommand(_ []string) {
	defs.EnableTestMode()
	test.RunBenchmarkAgent(cmd.Input, cmd.Repeat, cmd.Config)
}
