package grpcpool

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/pool"
)

// Server exposes a pool.Builder over the pool gRPC service. Each Open builds
// a pool and hands back an opaque handle.
type Server struct {
	UnimplementedPoolServer
	Builder pool.Builder
	Logger  *slog.Logger

	mu    sync.Mutex
	pools map[string]pool.Pool
}

func (s *Server) Open(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Builder == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing pool builder")
	}
	txns, err := genesis.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := s.Builder.Build(ctx, txns)
	if err != nil {
		return nil, mapErr(err)
	}

	handle := uuid.NewString()
	s.mu.Lock()
	if s.pools == nil {
		s.pools = make(map[string]pool.Pool)
	}
	s.pools[handle] = p
	s.mu.Unlock()

	s.logger().Debug("pool opened", "handle", handle, "validators", len(txns.Validators()))
	return wrapperspb.String(handle), nil
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	p, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Submit(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	if res.Failed() {
		return nil, status.Error(codes.FailedPrecondition, res.Failure)
	}
	return wrapperspb.String(res.Reply), nil
}

func (s *Server) Close(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	s.mu.Lock()
	p, ok := s.pools[in.GetValue()]
	delete(s.pools, in.GetValue())
	s.mu.Unlock()
	if !ok {
		return wrapperspb.Bool(false), nil
	}
	if err := p.Close(); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bool(true), nil
}

// Shutdown closes every open pool.
func (s *Server) Shutdown() {
	s.mu.Lock()
	pools := s.pools
	s.pools = nil
	s.mu.Unlock()
	for h, p := range pools {
		if err := p.Close(); err != nil {
			s.logger().Warn("pool close failed", "handle", h, "error", err)
		}
	}
}

func (s *Server) lookup(ctx context.Context) (pool.Pool, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(handleKey)
	if len(vals) != 1 || vals[0] == "" {
		return nil, status.Error(codes.InvalidArgument, "missing pool handle")
	}
	s.mu.Lock()
	p, ok := s.pools[vals[0]]
	s.mu.Unlock()
	if !ok {
		return nil, status.Error(codes.NotFound, "unknown pool handle")
	}
	return p, nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// mapErr converts a builder or pool error into a status. Transport failures
// become Unavailable so the client reports them as transport errors too.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case forgeerr.HasCode(err, forgeerr.Timeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case forgeerr.IsKind(err, forgeerr.KindTransport):
		return status.Error(codes.Unavailable, err.Error())
	case forgeerr.IsKind(err, forgeerr.KindConfig), forgeerr.IsKind(err, forgeerr.KindInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
