package base

import (
	"fmt"
)

// OutputMessage represents a chunk batch serialized and ready for transport as its own unit
type OutputMessage struct {
	ID       string     // Unique ID of this message, used for acknowledgement by upstream
	Data     []byte     // Actual data of this message, encoded from Batch
	Batch    ChunkBatch // Original batch to report as consumed or dropped
	Attempts int        // Numbers of times sent to upstream
}

func (msg OutputMessage) String() string {
	return fmt.Sprintf("id=%s len=%d chunks=%d attempts=%d", msg.ID, len(msg.Data), len(msg.Batch.Chunks), msg.Attempts)
}
