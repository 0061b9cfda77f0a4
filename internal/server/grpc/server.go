package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	logpkg "github.com/rzbill/courier/pkg/log"
)

type Options struct {
	// Health reports backend health; nil means always serving.
	Health func(context.Context) error
	Logger logpkg.Logger
	Server []grpc.ServerOption
}

// Server owns the gRPC server instance.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	check  func(context.Context) error
	log    logpkg.Logger
	lis    net.Listener
}

// New constructs a gRPC server and registers the broker and health services.
func New(b Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	s := &Server{
		health: health.NewServer(),
		check:  opts.Health,
		log:    opts.Logger.With(logpkg.Component("grpc")),
	}
	so := append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.logCalls)}, opts.Server...)
	s.grpc = grpc.NewServer(so...)
	s.grpc.RegisterService(&serviceDesc, &brokerSvc{backend: b})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.refreshHealth(context.Background())
	return s
}

// Serve serves on an existing listener until it fails or the server stops.
func (s *Server) Serve(l net.Listener) error {
	s.lis = l
	return s.grpc.Serve(l)
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	go s.watchHealth(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Debug("rpc failed",
			logpkg.Str("method", info.FullMethod),
			logpkg.Str("code", status.Code(err).String()),
			logpkg.Dur("took", time.Since(start)),
			logpkg.Err(err))
		return resp, err
	}
	s.log.Debug("rpc", logpkg.Str("method", info.FullMethod), logpkg.Dur("took", time.Since(start)))
	return resp, err
}
