package test

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/logger"
)

// SampleRecordPattern matches the records generated by generateInput
const SampleRecordPattern = `SATPAR\d{4},[^\r\n]*\r\n`

// generateInput generates a stream of SATPAR records with noise in between, and returns it with the count of records
func generateInput(numRecords int, seed int64) ([]byte, int) {
	rnd := rand.New(rand.NewSource(seed))
	data := make([]byte, 0, numRecords*48)
	for i := 0; i < numRecords; i++ {
		if rnd.Intn(10) == 0 {
			data = append(data, "noise\r\n"...)
		}
		data = append(data, fmt.Sprintf("SATPAR%04d,%.2f,%010d,%03d\r\n", i%10000, rnd.Float64()*100, rnd.Int31(), rnd.Intn(1000))...)
	}
	return data, numRecords
}

// loadInput loads raw instrument data from files, to be sent as-is to an input of raw framing or fed to chunker
func loadInput(inputPath string) []byte {
	pathList, gerr := util.ListFiles(inputPath)
	if gerr != nil {
		logger.Fatal(gerr)
	} else if len(pathList) == 0 {
		logger.Fatal("no input files")
	}
	data := make([]byte, 0)
	for _, path := range pathList {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Fatalf("error reading %s: %v", path, err)
		}
		data = append(data, content...)
		logger.Infof("loaded %s: %d bytes", path, len(content))
	}
	return data
}

// fragment splits data into pieces of random lengths in [1, maxSize], as they could be received from network
func fragment(data []byte, maxSize int, seed int64) [][]byte {
	rnd := rand.New(rand.NewSource(seed))
	fragments := make([][]byte, 0, len(data)/maxSize*2+1)
	for len(data) > 0 {
		n := rnd.Intn(maxSize) + 1
		if n > len(data) {
			n = len(data)
		}
		fragments = append(fragments, data[:n])
		data = data[n:]
	}
	return fragments
}
