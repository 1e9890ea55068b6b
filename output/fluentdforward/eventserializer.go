package fluentdforward

import (
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/output/fastmsgpack"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// record keys in each forwarded event
const (
	keyInstrument  = "instrument"
	keyClient      = "client"
	keyData        = "data"
	keyEnvironment = "environment"
)

type msgpackBlock []byte

// eventSerializer serializes instrument chunks into fluentd's MessagePackEventStream
//
// Each event is [EventTime, {instrument, client, data, environment?}], with data as msgpack binary
type eventSerializer struct {
	serializedKeys   [3]msgpackBlock // instrument, client, data
	serializedEnvMap msgpackBlock    // pre-serialized "environment" key and map, empty if none
	buffer           []byte          // reused, grown on demand
}

func newEventSerializer(environment map[string]string) *eventSerializer {
	return &eventSerializer{
		serializedKeys: [3]msgpackBlock{
			preSerializeString(keyInstrument),
			preSerializeString(keyClient),
			preSerializeString(keyData),
		},
		serializedEnvMap: preSerializeEnvironment(environment),
		buffer:           make([]byte, 0, 64*1024),
	}
}

// SerializeChunks serializes chunks into a stream of events, returned as a slice of internal buffer valid until next call
func (ser *eventSerializer) SerializeChunks(chunks []base.InstrumentChunk) []byte {
	maxLen := 0
	for _, chunk := range chunks {
		maxLen += ser.maxEventLength(chunk)
	}
	if cap(ser.buffer) < maxLen {
		ser.buffer = make([]byte, 0, maxLen)
	}
	buffer := ser.buffer[:maxLen]

	position := 0
	for _, chunk := range chunks {
		position = ser.encodeEvent(chunk, buffer, position)
	}
	return buffer[:position]
}

func (ser *eventSerializer) maxEventLength(chunk base.InstrumentChunk) int {
	return fastmsgpack.SizeOfCollectionHeader*2 + fastmsgpack.SizeOfExt8 +
		len(ser.serializedKeys[0]) + fastmsgpack.SizeOfString(chunk.Instrument) +
		len(ser.serializedKeys[1]) + fastmsgpack.SizeOfString(chunk.Client) +
		len(ser.serializedKeys[2]) + fastmsgpack.SizeOfBinary(chunk.Data) +
		len(ser.serializedEnvMap)
}

func (ser *eventSerializer) encodeEvent(chunk base.InstrumentChunk, buffer []byte, start int) int {
	position := fastmsgpack.EncodeArrayLen(buffer, start, 2)
	// [0]: timestamp
	position = EncodeEventTime(buffer, position, chunk.Timestamp)
	// [1]: record
	if len(ser.serializedEnvMap) > 0 {
		position = fastmsgpack.EncodeMapLen(buffer, position, 4)
	} else {
		position = fastmsgpack.EncodeMapLen(buffer, position, 3)
	}
	position += copy(buffer[position:], ser.serializedKeys[0])
	position = fastmsgpack.EncodeString(buffer, position, chunk.Instrument)
	position += copy(buffer[position:], ser.serializedKeys[1])
	position = fastmsgpack.EncodeString(buffer, position, chunk.Client)
	position += copy(buffer[position:], ser.serializedKeys[2])
	position = fastmsgpack.EncodeBinary(buffer, position, chunk.Data)
	position += copy(buffer[position:], ser.serializedEnvMap)
	return position
}

func preSerializeString(str string) msgpackBlock {
	buf := make(msgpackBlock, fastmsgpack.SizeOfString(str))
	return buf[:fastmsgpack.EncodeString(buf, 0, str)]
}

func preSerializeEnvironment(environment map[string]string) msgpackBlock {
	if len(environment) == 0 {
		return nil
	}
	keys := maps.Keys(environment)
	slices.Sort(keys)

	size := fastmsgpack.SizeOfString(keyEnvironment) + fastmsgpack.SizeOfCollectionHeader
	for _, k := range keys {
		size += fastmsgpack.SizeOfString(k) + fastmsgpack.SizeOfString(environment[k])
	}
	buf := make(msgpackBlock, size)
	position := fastmsgpack.EncodeString(buf, 0, keyEnvironment)
	position = fastmsgpack.EncodeMapLen(buf, position, len(keys))
	for _, k := range keys {
		position = fastmsgpack.EncodeString(buf, position, k)
		position = fastmsgpack.EncodeString(buf, position, environment[k])
	}
	return buf[:position]
}
