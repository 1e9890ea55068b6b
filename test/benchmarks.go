// Package test provides self-benchmarks of the chunker and the whole agent
package test

import (
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/chunker"
	"github.com/ooici/mi-agent/run"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/logger"
)

// BenchmarkResult contains the outcome of a benchmark
type BenchmarkResult struct {
	NumChunks     int   // extracted chunks
	NumInputBytes int64 // input length in total
	Cost          CostReport
}

type benchmarkMetric struct {
	fmt string
	val float64
}

// RunBenchmarkChunker benchmarks a standalone ChunkBuffer with regex sieve
//
// The input is generated if inputPath is empty, and is fed in fragments of random lengths up to maxFragmentSize
func RunBenchmarkChunker(inputPath string, pattern string, repeat int, maxFragmentSize int) BenchmarkResult {
	var inputData []byte
	if inputPath == "" {
		inputData, _ = generateInput(10000, 1)
	} else {
		inputData = loadInput(inputPath)
	}
	sieve, err := chunker.CompileRegexSieve(pattern)
	if err != nil {
		logger.Fatal("invalid pattern: ", err)
	}

	mfactory := base.NewMetricFactory("benchchunker_", nil, nil)
	buffer := chunker.NewChunkBuffer(logger.Root(), sieve, 0, base.NewChunkBufferCounter(mfactory))
	fragments := fragment(inputData, maxFragmentSize, 1)

	numChunks := 0
	costTracker := StartCostTracking()
	for i := 0; i < repeat; i++ {
		timestamp := time.Now()
		for _, f := range fragments {
			buffer.AddChunk(f, timestamp)
			for {
				if _, ok := buffer.GetNextData(); !ok {
					break
				}
				numChunks++
			}
		}
	}
	result := BenchmarkResult{
		NumChunks:     numChunks,
		NumInputBytes: int64(len(inputData)) * int64(repeat),
		Cost:          costTracker.Report(),
	}

	reportBenchmarkResult("BenchmarkChunker", result, mfactory)
	return result
}

// RunBenchmarkAgent benchmarks a fully configured agent by sending input to the first input, which must be of raw framing
func RunBenchmarkAgent(inputPath string, repeat int, configFile string) BenchmarkResult {
	loader, loaderErr := run.NewLoaderFromConfigFile(configFile, "benchagent_")
	if loaderErr != nil {
		logger.Panic(loaderErr)
	}
	distributor, distErr := loader.LaunchDistributor(logger.Root())
	if distErr != nil {
		logger.Panic(distErr)
	}
	inputs, inputErr := loader.LaunchInputs(distributor)
	if inputErr != nil {
		logger.Panic(inputErr)
	}

	var inputData []byte
	if inputPath == "" {
		inputData, _ = generateInput(10000, 1)
	} else {
		inputData = loadInput(inputPath)
	}
	costTracker := StartCostTracking()
	runBenchmarkInputSender(inputs.Addresses[0], inputData, repeat)
	time.Sleep(1 * time.Second)

	logger.Info("stopping...")
	inputs.Shutdown()
	distributor.Shutdown()

	result := BenchmarkResult{
		NumChunks:     int(util.SumMetricValues(loader.MetricFactory.AddOrGetCounterVec("chunker_chunks_total", "", nil, nil))),
		NumInputBytes: int64(len(inputData)) * int64(repeat),
		Cost:          costTracker.Report(),
	}
	reportBenchmarkResult("BenchmarkAgent", result, loader.MetricFactory)
	return result
}

func runBenchmarkInputSender(agentAddress string, inputData []byte, repeat int) {
	const maxFrameSize = 1 * 1024 * 1024

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	conn, err := net.Dial("tcp", agentAddress)
	if err != nil {
		logger.Fatal("connect: ", err.Error())
	}

	numSent := int64(0)
	if len(inputData) >= maxFrameSize {
		for i := 0; i < repeat; i++ {
			n, err := conn.Write(inputData)
			if err != nil {
				logger.Fatal("error sending: ", err.Error())
			}
			numSent += int64(n)
		}
	} else {
		normalFrameRepeat := maxFrameSize / len(inputData)
		normalFrame := make([]byte, 0, len(inputData)*normalFrameRepeat)
		for i := 0; i < normalFrameRepeat; i++ {
			normalFrame = append(normalFrame, inputData...)
		}

		lastFrame := normalFrame[:len(inputData)*(repeat%normalFrameRepeat)]
		for i := 0; i < repeat/normalFrameRepeat; i++ {
			n, err := conn.Write(normalFrame)
			if err != nil {
				logger.Fatal("error sending: ", err.Error())
			}
			numSent += int64(n)
		}
		if n, err := conn.Write(lastFrame); err != nil {
			logger.Fatal("error sending last: ", err.Error())
		} else {
			numSent += int64(n)
		}
	}

	if err := conn.Close(); err != nil {
		logger.Fatal("close: ", err.Error())
	}
	logger.Infof("writer sent %d bytes", numSent)
}

func reportBenchmarkResult(title string, result BenchmarkResult, mfactory *base.MetricFactory) {
	report := result.Cost
	metrics := []benchmarkMetric{
		{fmt: "%.0f chunk/sec", val: float64(result.NumChunks) / report.RealTime.Seconds()},
		{fmt: "%.0f MB/sec", val: float64(result.NumInputBytes) / 1048576 / report.RealTime.Seconds()},
		{fmt: "%0.2f alloc/chunk", val: float64(report.NumHeapAllocs) / float64(result.NumChunks)},
		{fmt: "%0.2f%% user", val: 100.0 * report.UserTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% sys", val: 100.0 * report.SystemTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% gc", val: 100.0 * report.GCCPUFraction},
		{fmt: "%.02f sec", val: report.RealTime.Seconds()},
	}
	truncated := util.SumMetricValues(mfactory.AddOrGetCounterVec("chunker_truncated_bytes_total", "", nil, nil))
	if truncated > 0 {
		logger.Warnf("%.0f bytes truncated due to buffer limit", truncated)
	}
	metrics = append(metrics, benchmarkMetric{fmt: "%.0f MB in", val: float64(result.NumInputBytes) / 1048576})
	printBenchmarkMetrics(title, metrics)
}

func printBenchmarkMetrics(title string, metrics []benchmarkMetric) {
	sb := make([]byte, 0, 200)
	sb = append(sb, fmt.Sprintf("%s:", title)...)
	for _, m := range metrics {
		sb = append(sb, fmt.Sprintf("\t"+m.fmt, m.val)...)
	}
	fmt.Println(string(sb))
}
