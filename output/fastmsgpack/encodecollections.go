package fastmsgpack

import (
	"github.com/vmihailenco/msgpack/v4/codes"
)

// EncodeArrayLen encodes the header of array in the smallest form
func EncodeArrayLen(buffer []byte, start int, arrayLen int) int {
	switch {
	case arrayLen <= 15:
		buffer[start] = byte(codes.FixedArrayLow) | byte(arrayLen)
		return start + 1
	case arrayLen <= 65535:
		buffer[start] = byte(codes.Array16)
		return putUint16(buffer, start+1, uint16(arrayLen))
	default:
		buffer[start] = byte(codes.Array32)
		return putUint32(buffer, start+1, uint32(arrayLen))
	}
}

// EncodeMapLen encodes the header of map in the smallest form
func EncodeMapLen(buffer []byte, start int, mapLen int) int {
	switch {
	case mapLen <= 15:
		buffer[start] = byte(codes.FixedMapLow) | byte(mapLen)
		return start + 1
	case mapLen <= 65535:
		buffer[start] = byte(codes.Map16)
		return putUint16(buffer, start+1, uint16(mapLen))
	default:
		buffer[start] = byte(codes.Map32)
		return putUint32(buffer, start+1, uint32(mapLen))
	}
}

// EncodeString encodes string in the smallest form
func EncodeString(buffer []byte, start int, str string) int {
	var pos int
	switch n := len(str); {
	case n <= 31:
		buffer[start] = byte(codes.FixedStrLow) | byte(n)
		pos = start + 1
	case n <= 255:
		buffer[start] = byte(codes.Str8)
		buffer[start+1] = byte(n)
		pos = start + 2
	case n <= 65535:
		buffer[start] = byte(codes.Str16)
		pos = putUint16(buffer, start+1, uint16(n))
	default:
		buffer[start] = byte(codes.Str32)
		pos = putUint32(buffer, start+1, uint32(n))
	}
	return pos + copy(buffer[pos:], str)
}

// EncodeBinary encodes bytes as msgpack "bin" in the smallest form
func EncodeBinary(buffer []byte, start int, data []byte) int {
	var pos int
	switch n := len(data); {
	case n <= 255:
		buffer[start] = byte(codes.Bin8)
		buffer[start+1] = byte(n)
		pos = start + 2
	case n <= 65535:
		buffer[start] = byte(codes.Bin16)
		pos = putUint16(buffer, start+1, uint16(n))
	default:
		buffer[start] = byte(codes.Bin32)
		pos = putUint32(buffer, start+1, uint32(n))
	}
	return pos + copy(buffer[pos:], data)
}

// EncodeExt8 encodes an extension type of exactly 8 bytes as two big-endian uint32
func EncodeExt8(buffer []byte, start int, typeID int8, high uint32, low uint32) int {
	buffer[start] = byte(codes.FixExt8)
	buffer[start+1] = byte(typeID)
	pos := putUint32(buffer, start+2, high)
	return putUint32(buffer, pos, low)
}

// SizeOfString returns the max encoded length of string
func SizeOfString(str string) int {
	return 5 + len(str)
}

// SizeOfBinary returns the max encoded length of binary
func SizeOfBinary(data []byte) int {
	return 5 + len(data)
}

// SizeOfExt8 is the encoded length of EncodeExt8
const SizeOfExt8 = 10

// SizeOfCollectionHeader is the max encoded length of array or map header
const SizeOfCollectionHeader = 5
