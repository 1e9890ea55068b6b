// Package cmd provides list of commands including playback, dumping and self-benchmarks
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "mi-agent receives instrument streams, chunks them into records and forwards them to storage or fluentd", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("run ...", "Run agent", &runCmd, runCmd.run)
	config.AddCmdWithArgs("playback <file>...", "Chunk recorded port agent datalogs or raw files, print or save the chunks", &playbackCmd, playbackCmd.run)
	config.AddCmdWithArgs("dump <file>...", "Print the chunks in chunk files", &dumpCmd, dumpCmd.run)
	config.AddCmdWithArgs("benchmark <type> ...", "Run benchmark of specified type", &benchCmd, nil)
	config.AddCmdWithArgs("benchmark chunker ...", "Benchmark standalone chunk buffer with regex sieve", nil, benchCmd.runBenchmarkChunkerCommand)
	config.AddCmdWithArgs("benchmark agent ...", "Benchmark agent with raw input as configured", nil, benchCmd.runBenchmarkAgentCommand)
}

// Execute parses the command line and runs the specified command
func Execute() {
	// trigger init

	config.Execute()
}
