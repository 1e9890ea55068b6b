package fastmsgpack

import (
	"encoding/binary"
)

// putUint16 writes n at start in big endian and returns the next position
func putUint16(buffer []byte, start int, n uint16) int {
	binary.BigEndian.PutUint16(buffer[start:], n)
	return start + 2
}

// putUint32 writes n at start in big endian and returns the next position
func putUint32(buffer []byte, start int, n uint32) int {
	binary.BigEndian.PutUint32(buffer[start:], n)
	return start + 4
}
