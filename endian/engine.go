// Package endian provides the byte-order engine used by the axon page format.
//
// The page format is host-order by design (pages are memory-mapped and never
// move between machines of different endianness), so almost every caller wants
// Native(). The EndianEngine interface combines encoding/binary's ByteOrder
// and AppendByteOrder so codecs can both write in place and append.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
// binary.LittleEndian and binary.BigEndian both satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

var native EndianEngine = probe()

// probe determines the host byte order from a fixed integer value.
func probe() EndianEngine {
	// 0x0100 is 256. A little-endian host stores the LSB (0x00) first,
	// a big-endian host stores the MSB (0x01) first.
	var v uint16 = 0x0100
	if (*[2]byte)(unsafe.Pointer(&v))[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Native returns the host-order engine. The returned engine is immutable and
// safe for concurrent use.
func Native() EndianEngine {
	return native
}

// IsLittleEndian reports whether the host is little-endian.
func IsLittleEndian() bool {
	return native == EndianEngine(binary.LittleEndian)
}
