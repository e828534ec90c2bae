package chunk

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Chunk Format Constants
// ---------------------------------------------------------------------------

// Signature is the leading byte sequence of every precompiled chunk.
const Signature = "\x1bLua"

// Version numbers of the chunk format. The header stores them as a single
// byte, major*16 + minor.
const (
	VersionMajor = 5
	VersionMinor = 2
	Version      = VersionMajor*16 + VersionMinor
)

// Format is the official format identifier.
const Format = 0

// Tail is appended to the header so loaders can detect chunks that went
// through a text-mode conversion.
const Tail = "\x19\x93\r\n\x1a\n"

// Sizes declared in the header, in bytes.
const (
	SizeInt         = 4
	SizeSizeT       = 4
	SizeInstruction = 4
	SizeNumber      = 8
)

// HeaderSize is the length of the preamble.
// signature(4) + version(1) + format(1) + endian(1) + sizes(4) + integral(1) + tail(6) = 18
const HeaderSize = len(Signature) + 2 + 6 + len(Tail)

// byteOrder is the host byte order; every multi-byte scalar in a chunk uses it.
var byteOrder = binary.NativeEndian

// endianMarker is 1 on little-endian hosts, 0 on big-endian ones.
var endianMarker = func() byte {
	var probe [2]byte
	byteOrder.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return 1
	}
	return 0
}()

// BuildHeader returns the fixed chunk preamble for this host.
func BuildHeader() []byte {
	h := make([]byte, 0, HeaderSize)
	h = append(h, Signature...)
	h = append(h,
		Version,
		Format,
		endianMarker,
		SizeInt,
		SizeSizeT,
		SizeInstruction,
		SizeNumber,
		0, // number type is not integral
	)
	h = append(h, Tail...)
	return h
}
