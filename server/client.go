package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chazu/luadump/chunk"
	"github.com/chazu/luadump/protofile"
)

// ---------------------------------------------------------------------------
// Connect client
// ---------------------------------------------------------------------------

// Client calls the dump service over Connect.
type Client struct {
	dump    *connect.Client[DumpRequest, DumpResponse]
	inspect *connect.Client[InspectRequest, InspectResponse]
}

// NewClient creates a Connect client for the service at baseURL. Pass
// connect.WithGRPC() to use the gRPC protocol over an HTTP/2 client.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(newCodec())}, opts...)
	return &Client{
		dump:    connect.NewClient[DumpRequest, DumpResponse](httpClient, baseURL+DumpProcedure, opts...),
		inspect: connect.NewClient[InspectRequest, InspectResponse](httpClient, baseURL+InspectProcedure, opts...),
	}
}

// Dump sends a raw dump request.
func (c *Client) Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error) {
	resp, err := c.dump.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// DumpPrototype dumps p remotely and returns the chunk bytes.
func (c *Client) DumpPrototype(ctx context.Context, p *chunk.Prototype, strip bool) ([]byte, error) {
	resp, err := c.Dump(ctx, &DumpRequest{Prototype: protofile.FromPrototype(p), Strip: strip})
	if err != nil {
		return nil, err
	}
	return resp.Chunk, nil
}

// Inspect sends a raw inspect request.
func (c *Client) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	resp, err := c.inspect.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ---------------------------------------------------------------------------
// gRPC client
// ---------------------------------------------------------------------------

// GRPCClient calls the dump service with grpc-go.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target ("host:port") over cleartext HTTP/2.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(newCodec())),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Dump sends a dump request.
func (c *GRPCClient) Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error) {
	resp := new(DumpResponse)
	if err := c.conn.Invoke(ctx, DumpProcedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Inspect sends an inspect request.
func (c *GRPCClient) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	resp := new(InspectResponse)
	if err := c.conn.Invoke(ctx, InspectProcedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
