package portagent

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Reader reads port agent packets from a stream
//
// Garbage between packets is skipped by searching for the next sync bytes. Read errors from the underlying reader,
// e.g. timeout, leave any partially read packet in buffer to be completed by the next call.
type Reader struct {
	input   *bufio.Reader
	skipped int
}

// NewReader creates a Reader with at least the given buffer size
func NewReader(input io.Reader, bufferSize int) *Reader {
	if bufferSize < MaxPacketSize {
		bufferSize = MaxPacketSize
	}
	return &Reader{
		input:   bufio.NewReaderSize(input, bufferSize),
		skipped: 0,
	}
}

// Read reads the next packet
//
// The returned error may be:
//   - ErrChecksum along with the packet read; the packet has been consumed
//   - ErrPacketSize with an empty packet; the bad header has been skipped
//   - io.EOF if the stream ends at a packet boundary, or io.ErrUnexpectedEOF if it ends in the middle of a packet
//   - any other error from the underlying reader
//
// The payload of returned packet is owned by caller.
func (r *Reader) Read() (Packet, error) {
	for {
		hdrBuf, err := r.peek(HeaderSize)
		if err != nil {
			return Packet{}, err
		}
		if !isSync(hdrBuf) {
			r.skip(hdrBuf)
			continue
		}
		pktBuf := hdrBuf
		if hdr := parseHeader(hdrBuf); hdr.size > HeaderSize {
			if pktBuf, err = r.peek(hdr.size); err != nil {
				return Packet{}, err
			}
		}
		pkt, size, err := Decode(pktBuf)
		if size == 0 {
			// bad header, resync after its sync bytes
			r.discard(len(SyncBytes))
			r.skipped += len(SyncBytes)
			return Packet{}, err
		}
		pkt.Payload = append([]byte(nil), pkt.Payload...)
		r.discard(size)
		return pkt, err
	}
}

// TakeSkipped returns the numbers of garbage bytes skipped since last call
func (r *Reader) TakeSkipped() int {
	n := r.skipped
	r.skipped = 0
	return n
}

// Buffered returns the numbers of bytes read but not yet consumed as packets
func (r *Reader) Buffered() int {
	return r.input.Buffered()
}

func (r *Reader) peek(n int) ([]byte, error) {
	buf, err := r.input.Peek(n)
	if err == nil {
		return buf, nil
	}
	if errors.Is(err, io.EOF) && len(buf) > 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, err
}

// skip discards bytes up to the next possible start of sync bytes
func (r *Reader) skip(hdrBuf []byte) {
	n := len(hdrBuf)
	if idx := bytes.IndexByte(hdrBuf[1:], SyncBytes[0]); idx >= 0 {
		n = idx + 1
	}
	r.discard(n)
	r.skipped += n
}

func (r *Reader) discard(n int) {
	if _, err := r.input.Discard(n); err != nil {
		// only possible if n is more than buffered, i.e. a bug
		panic(fmt.Sprintf("failed to discard %d bytes: %v", n, err))
	}
}
