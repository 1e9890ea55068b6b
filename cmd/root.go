package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/relex/gotils/logger"
)

type rootCommandState struct {
	CPUProfile string `name:"cpuprofile" help:"Write CPU profile to file."`
	MemProfile string `name:"memprofile" help:"Write memory profile to file."`
	Trace      string `help:"Write trace to file."`

	cpuProfileFile *os.File
	memProfileFile *os.File
	traceFile      *os.File
}

var rootCmd rootCommandState

func (cmd *rootCommandState) preRun() {
	cmd.cpuProfileFile = createProfileFile("CPU profile", cmd.CPUProfile)
	if cmd.cpuProfileFile != nil {
		if err := pprof.StartCPUProfile(cmd.cpuProfileFile); err != nil {
			logger.Fatalf("failed to start CPU profiling: %s", err.Error())
		}
	}

	cmd.memProfileFile = createProfileFile("memory profile", cmd.MemProfile)

	cmd.traceFile = createProfileFile("trace", cmd.Trace)
	if cmd.traceFile != nil {
		if err := trace.Start(cmd.traceFile); err != nil {
			logger.Fatalf("failed to start tracing: %s", err.Error())
		}
	}
}

func (cmd *rootCommandState) postRun() {
	if cmd.cpuProfileFile != nil {
		pprof.StopCPUProfile()
		cmd.cpuProfileFile.Close()
	}

	if cmd.memProfileFile != nil {
		runtime.GC()
		if err := pprof.WriteHeapProfile(cmd.memProfileFile); err != nil {
			logger.Errorf("failed to write memory profile: %s", err.Error())
		}
		cmd.memProfileFile.Close()
	}

	if cmd.traceFile != nil {
		trace.Stop()
		cmd.traceFile.Close()
	}
}

// createProfileFile creates the output file of a profiling kind, or returns nil if path is empty
func createProfileFile(kind string, path string) *os.File {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Fatalf("failed to create %s %s: %s", kind, path, err.Error())
	}
	logger.Infof("start %s %s", kind, path)
	return f
}
