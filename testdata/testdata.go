// Package testdata provides access to sample configurations for testing and benchmarks
package testdata

import (
	"path/filepath"
	"runtime"
)

var absoluteDirPath string

func init() {
	_, thisFile, _, _ := runtime.Caller(0)
	absoluteDirPath = filepath.Dir(thisFile)
}

// GetConfigPath returns the path of the sample configuration for production-like setup
func GetConfigPath() string {
	return filepath.Join(absoluteDirPath, "config_sample.yml")
}

// GetBenchmarkConfigPath returns the path of the configuration for agent benchmark, with raw input on a random port
func GetBenchmarkConfigPath() string {
	return filepath.Join(absoluteDirPath, "config_benchmark.yml")
}
