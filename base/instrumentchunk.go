package base

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// InstrumentChunk is a complete instrument record extracted from a stream, ready for outputs
type InstrumentChunk struct {
	Instrument string    // Reference designator or name of the instrument
	Client     string    // Address of the connection or file path of the source
	Timestamp  time.Time // Arrival time of the first byte, zero if unknown
	Data       []byte    // Raw record; shared by all outputs and must not be modified
}

func (chunk InstrumentChunk) String() string {
	return fmt.Sprintf("%s@%s(%d bytes) from %s", chunk.Instrument, chunk.Timestamp.UTC().Format(time.RFC3339Nano),
		len(chunk.Data), chunk.Client)
}

// ChunkBatch is a group of chunks passed together through channels
//
// Batches are immutable once sent and may be shared by multiple outputs.
type ChunkBatch struct {
	Chunks   []InstrumentChunk
	NumBytes int // Total length of Data in all chunks
}

// NewChunkBatch creates a ChunkBatch with NumBytes calculated
func NewChunkBatch(chunks []InstrumentChunk) ChunkBatch {
	return ChunkBatch{
		Chunks:   chunks,
		NumBytes: lo.SumBy(chunks, func(c InstrumentChunk) int { return len(c.Data) }),
	}
}

func (batch ChunkBatch) String() string {
	return fmt.Sprintf("batch(%d chunks, %d bytes)", len(batch.Chunks), batch.NumBytes)
}
