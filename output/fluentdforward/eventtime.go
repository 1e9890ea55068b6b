package fluentdforward

import (
	"time"

	"github.com/ooici/mi-agent/output/fastmsgpack"
)

// EncodeEventTime encodes a time as fluentd EventTime (ext type 0); zero time becomes the epoch
func EncodeEventTime(buffer []byte, start int, value time.Time) int {
	if value.IsZero() {
		return fastmsgpack.EncodeExt8(buffer, start, 0, 0, 0)
	}
	return fastmsgpack.EncodeExt8(buffer, start, 0, uint32(value.Unix()), uint32(value.Nanosecond()))
}
