// Package fastmsgpack offers a subset of msgpack serialization operated on fixed length []byte with no heap allocation
// and no IO abstraction.
//
// The caller is responsible to reserve enough space in the buffer, e.g. by summing up SizeOf* functions.
//
// The calls should only be used for hot paths, e.g. serialization of individual instrument chunks, and NOT to be used
// in tests to verify anything.
package fastmsgpack
