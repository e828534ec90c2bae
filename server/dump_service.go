package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/luadump/chunk"
	"github.com/chazu/luadump/store"
)

// DumpService implements the Dump and Inspect procedures.
type DumpService struct {
	store *store.Store // optional
}

// NewDumpService creates the service. st may be nil, in which case
// requests that need the store fail with FailedPrecondition.
func NewDumpService(st *store.Store) *DumpService {
	return &DumpService{store: st}
}

// Dump converts the request's prototype file and serializes it.
func (s *DumpService) Dump(ctx context.Context, req *connect.Request[DumpRequest]) (*connect.Response[DumpResponse], error) {
	msg := req.Msg
	if msg.Prototype == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("prototype is required"))
	}
	if msg.Store && msg.Name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required to store a chunk"))
	}
	if msg.Store && s.store == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no chunk store configured"))
	}

	p, err := msg.Prototype.Prototype()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	data, err := chunk.Marshal(p, msg.Strip)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &DumpResponse{
		Chunk:      data,
		Hash:       store.Hash(data),
		Prototypes: chunk.Count(p),
	}
	if msg.Store {
		if _, err := s.store.Put(ctx, msg.Name, msg.Strip, data); err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		resp.Stored = true
	}

	log.Debugf("dump %q: %d prototypes, %d bytes, strip=%t", msg.Name, resp.Prototypes, len(data), msg.Strip)
	return connect.NewResponse(resp), nil
}

// Inspect returns a listing of a chunk.
func (s *DumpService) Inspect(ctx context.Context, req *connect.Request[InspectRequest]) (*connect.Response[InspectResponse], error) {
	msg := req.Msg
	data := msg.Chunk

	switch {
	case msg.Hash != "" && len(data) > 0:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("give either chunk or hash, not both"))
	case msg.Hash != "":
		if s.store == nil {
			return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no chunk store configured"))
		}
		var err error
		data, err = s.store.Get(ctx, msg.Hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	case len(data) == 0:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("chunk or hash is required"))
	}

	p, err := chunk.Undump(data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	return connect.NewResponse(&InspectResponse{
		Listing:    chunk.List(p, msg.Full),
		Prototypes: chunk.Count(p),
		Stripped:   isStripped(p),
		Size:       len(data),
	}), nil
}

// isStripped reports whether no prototype in the tree carries debug data.
func isStripped(p *chunk.Prototype) bool {
	stripped := true
	chunk.Walk(p, func(fn *chunk.Prototype, _ int) {
		if fn.Source != nil || len(fn.LineInfo) > 0 || len(fn.LocVars) > 0 {
			stripped = false
		}
	})
	return stripped
}
