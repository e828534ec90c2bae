package server

import "github.com/chazu/luadump/protofile"

// Procedure paths of the dump service.
const (
	ServiceName      = "luadump.v1.DumpService"
	DumpProcedure    = "/" + ServiceName + "/Dump"
	InspectProcedure = "/" + ServiceName + "/Inspect"
)

// DumpRequest asks the service to serialize a prototype tree.
type DumpRequest struct {
	Name      string          `cbor:"1,keyasint,omitempty"`
	Prototype *protofile.File `cbor:"2,keyasint"`
	Strip     bool            `cbor:"3,keyasint,omitempty"`
	Store     bool            `cbor:"4,keyasint,omitempty"` // also save to the chunk store
}

// DumpResponse carries the produced chunk.
type DumpResponse struct {
	Chunk      []byte `cbor:"1,keyasint"`
	Hash       string `cbor:"2,keyasint"`
	Prototypes int    `cbor:"3,keyasint"`
	Stored     bool   `cbor:"4,keyasint,omitempty"`
}

// InspectRequest asks for a listing of a chunk, given either inline or by
// store hash.
type InspectRequest struct {
	Chunk []byte `cbor:"1,keyasint,omitempty"`
	Hash  string `cbor:"2,keyasint,omitempty"`
	Full  bool   `cbor:"3,keyasint,omitempty"`
}

// InspectResponse is the listing plus a few facts about the chunk.
type InspectResponse struct {
	Listing    string `cbor:"1,keyasint"`
	Prototypes int    `cbor:"2,keyasint"`
	Stripped   bool   `cbor:"3,keyasint"`
	Size       int    `cbor:"4,keyasint"`
}
