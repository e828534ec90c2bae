// Package chunk writes compiled function prototypes as precompiled Lua 5.2
// chunks and reads them back.
//
// A chunk is an 18-byte header followed by the main prototype, which
// recursively contains its nested prototypes:
//
//	header    signature "\x1bLua", version 0x52, format 0, endianness,
//	          sizes of int, size_t, instruction and number, integral flag,
//	          tail "\x19\x93\r\n\x1a\n"
//	function  lineDefined, lastLineDefined int32
//	          numParams, isVarArg, maxStackSize byte
//	          code      count + uint32 words
//	          constants count + (tag byte, payload)
//	          protos    count + function...
//	          upvalues  count + (instack byte, index byte)
//	          source    string
//	          lineinfo  count + int32
//	          locvars   count + (name string, startpc int32, endpc int32)
//	          upvalue names count + string
//
// Multi-byte scalars use the host byte order. Strings are written as a
// uint32 length that includes a trailing NUL, then the bytes and the NUL; an
// absent string is a zero length.
//
// Dump streams the chunk block by block into a Writer and tracks a sticky
// Status: after the first failed block nothing more is written.
package chunk
