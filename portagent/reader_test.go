package portagent

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, packets ...Packet) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, pkt := range packets {
		require.NoError(t, w.Write(pkt))
	}
	return buf.Bytes()
}

func TestReaderSequence(t *testing.T) {
	input := encodeAll(t,
		Packet{Type: DataFromInstrument, Timestamp: sampleTime, Payload: []byte("first")},
		Packet{Type: Heartbeat, Timestamp: sampleTime.Add(time.Second)},
		Packet{Type: PortAgentConfig, Timestamp: sampleTime.Add(2 * time.Second), Payload: []byte("cfg")},
	)
	r := NewReader(bytes.NewReader(input), 0)

	pkt, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, DataFromInstrument, pkt.Type)
	assert.Equal(t, "first", string(pkt.Payload))

	pkt, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, Heartbeat, pkt.Type)
	assert.Empty(t, pkt.Payload)
	assert.Equal(t, sampleTime.Add(time.Second), pkt.Timestamp)

	pkt, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, PortAgentConfig, pkt.Type)
	assert.Equal(t, "cfg", string(pkt.Payload))

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, r.TakeSkipped())
}

func TestReaderResync(t *testing.T) {
	var input []byte
	input = append(input, "garbage\xA3\x9D"...)
	input = append(input, encodeAll(t, Packet{Type: DataFromInstrument, Timestamp: sampleTime, Payload: []byte("one")})...)
	input = append(input, 0xA3, 0x00)
	input = append(input, encodeAll(t, Packet{Type: DataFromInstrument, Timestamp: sampleTime, Payload: []byte("two")})...)
	r := NewReader(bytes.NewReader(input), 0)

	pkt, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "one", string(pkt.Payload))
	assert.Equal(t, 9, r.TakeSkipped())

	pkt, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, "two", string(pkt.Payload))
	assert.Equal(t, 2, r.TakeSkipped())
}

func TestReaderBadPackets(t *testing.T) {
	corrupted := append([]byte(nil), samplePacket...)
	corrupted[16] = 'z'
	badSize := append([]byte(nil), samplePacket...)
	badSize[5] = 0x02

	var input []byte
	input = append(input, corrupted...)
	input = append(input, badSize...)
	input = append(input, samplePacket...)
	r := NewReader(bytes.NewReader(input), 0)

	pkt, err := r.Read()
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, "zbc", string(pkt.Payload))

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrPacketSize)

	pkt, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(pkt.Payload))
	assert.Equal(t, len(badSize), r.TakeSkipped())
}

func TestReaderZeroSizeHeader(t *testing.T) {
	zeroSize := append([]byte(nil), samplePacket...)
	zeroSize[offsetSize] = 0
	zeroSize[offsetSize+1] = 0

	r := NewReader(bytes.NewReader(append(zeroSize, samplePacket...)), 0)

	_, err := r.Read()
	assert.ErrorIs(t, err, ErrPacketSize)
	assert.Equal(t, len(SyncBytes), r.TakeSkipped())

	pkt, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(pkt.Payload))
	assert.Equal(t, len(zeroSize)-len(SyncBytes), r.TakeSkipped())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader(bytes.NewReader(samplePacket[:len(samplePacket)-1]), 0)
	_, err := r.Read()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

// timeoutReader returns a timeout error after each chunk of data
type timeoutReader struct {
	chunks [][]byte
	ready  bool
}

var errTestTimeout = errors.New("timeout")

func (tr *timeoutReader) Read(p []byte) (int, error) {
	if len(tr.chunks) == 0 {
		return 0, io.EOF
	}
	if !tr.ready {
		tr.ready = true
		return 0, errTestTimeout
	}
	tr.ready = false
	n := copy(p, tr.chunks[0])
	tr.chunks = tr.chunks[1:]
	return n, nil
}

func TestReaderResumeAfterError(t *testing.T) {
	tr := &timeoutReader{chunks: [][]byte{samplePacket[:5], samplePacket[5:17], samplePacket[17:]}}
	r := NewReader(tr, 0)

	var pkt Packet
	var err error
	numTimeouts := 0
	for {
		pkt, err = r.Read()
		if !errors.Is(err, errTestTimeout) {
			break
		}
		numTimeouts++
	}
	require.NoError(t, err)
	assert.Equal(t, "abc", string(pkt.Payload))
	assert.Equal(t, 3, numTimeouts)
}

func TestWriterSplitPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte{'x'}, MaxPayloadSize+10)
	require.NoError(t, w.WritePayload(DataFromDriver, sampleTime, payload))
	assert.Equal(t, len(payload)+2*HeaderSize, buf.Len())

	r := NewReader(&buf, 0)
	first, err := r.Read()
	require.NoError(t, err)
	assert.Len(t, first.Payload, MaxPayloadSize)
	second, err := r.Read()
	require.NoError(t, err)
	assert.Len(t, second.Payload, 10)
	assert.Equal(t, DataFromDriver, second.Type)
}
