package shared

import (
	"fmt"
	"sync"
	"time"
)

// ChunkIDGenerator generates unique and ordered IDs for output messages or files
type ChunkIDGenerator struct {
	mutex     sync.Mutex
	epochNano int64
	sequence  int32
	suffix    string
}

// NewChunkIDGenerator creates a ChunkIDGenerator with a suffix to be appended to all IDs, e.g. file extension
func NewChunkIDGenerator(suffix string) *ChunkIDGenerator {
	return &ChunkIDGenerator{
		mutex:     sync.Mutex{},
		epochNano: 0,
		sequence:  0,
		suffix:    suffix,
	}
}

// Generate returns the next chunk ID, which consists of a nanosecond timestamp and a sequence number
//
// The sequence number is incremented by one every time until the time is changed
func (generator *ChunkIDGenerator) Generate() string {
	generator.mutex.Lock()
	nextTimestamp := time.Now().UnixNano()
	if nextTimestamp > generator.epochNano {
		generator.epochNano = nextTimestamp
		generator.sequence = 0
	} else {
		generator.sequence++
	}
	epoch := generator.epochNano
	nextSequence := generator.sequence
	generator.mutex.Unlock()
	return fmt.Sprintf("%019d-%08d%s", epoch, nextSequence, generator.suffix)
}
