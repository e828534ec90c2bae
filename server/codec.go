package server

import (
	"github.com/chazu/luadump/protofile"
)

// CodecName is the content subtype of the service: application/cbor for
// Connect, application/grpc+cbor for gRPC.
const CodecName = "cbor"

// cborCodec satisfies both connect.Codec and grpc's encoding.Codec. It uses
// the prototype file modes, so requests carry trees as deep and as large as
// a prototype file can.
type cborCodec struct{}

func newCodec() cborCodec {
	return cborCodec{}
}

func (cborCodec) Name() string { return CodecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	return protofile.EncMode().Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return protofile.DecodeError(protofile.DecMode().Unmarshal(data, v))
}
