package portagent

import (
	"io"
	"time"
)

// Writer writes port agent packets to a stream
type Writer struct {
	output io.Writer
	buffer []byte
}

// NewWriter creates a Writer
func NewWriter(output io.Writer) *Writer {
	return &Writer{
		output: output,
		buffer: make([]byte, 0, 4096),
	}
}

// Write encodes and writes one packet
func (w *Writer) Write(pkt Packet) error {
	buf, err := pkt.AppendTo(w.buffer[:0])
	if err != nil {
		return err
	}
	w.buffer = buf
	_, err = w.output.Write(buf)
	return err
}

// WritePayload writes the payload as one or more packets of the given type and timestamp, split by MaxPayloadSize
func (w *Writer) WritePayload(typ PacketType, timestamp time.Time, payload []byte) error {
	for {
		part := payload
		if len(part) > MaxPayloadSize {
			part = part[:MaxPayloadSize]
		}
		if err := w.Write(Packet{Type: typ, Timestamp: timestamp, Payload: part}); err != nil {
			return err
		}
		payload = payload[len(part):]
		if len(payload) == 0 {
			return nil
		}
	}
}
