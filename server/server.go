// Package server exposes chunk dumping as a network service. The same
// handlers speak Connect (HTTP/1.1 or HTTP/2) and gRPC, with CBOR messages.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chazu/luadump/store"
)

var log = commonlog.GetLogger("luadump.server")

// DumpServer serves the dump service on one port.
type DumpServer struct {
	service *DumpService
	mux     *http.ServeMux
}

// ServerOption configures a DumpServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store *store.Store
}

// WithStore lets Dump persist chunks and Inspect read them by hash.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// New creates a DumpServer.
func New(opts ...ServerOption) *DumpServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &DumpServer{
		service: NewDumpService(cfg.store),
		mux:     http.NewServeMux(),
	}

	codec := connect.WithCodec(newCodec())
	s.mux.Handle(DumpProcedure, connect.NewUnaryHandler(DumpProcedure, s.service.Dump, codec))
	s.mux.Handle(InspectProcedure, connect.NewUnaryHandler(InspectProcedure, s.service.Inspect, codec))
	return s
}

// Handler returns the HTTP handler. It accepts cleartext HTTP/2 so gRPC
// clients can connect without TLS.
func (s *DumpServer) Handler() http.Handler {
	return h2c.NewHandler(s.mux, &http2.Server{})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *DumpServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("dump service listening on %s", addr)
		log.Infof("  Connect: http://%s%s", addr, DumpProcedure)
		log.Infof("  gRPC:    grpc://%s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
