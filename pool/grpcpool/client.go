package grpcpool

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/pool"
)

type DialOptions struct {
	// Timeout bounds the Open call when non-zero.
	Timeout time.Duration

	// RPCTimeout applies per Submit when non-zero. The caller's context
	// deadline still applies.
	RPCTimeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options (custom dialers, credentials).
	Extra []grpc.DialOption
}

// Builder implements pool.Builder against a pool gateway at Target.
type Builder struct {
	Target  string
	Options DialOptions
}

func NewBuilder(target string, opts DialOptions) *Builder {
	return &Builder{Target: target, Options: opts}
}

func (b *Builder) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if b.Options.MaxMsgBytes > 0 {
		opts = append(opts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(b.Options.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(b.Options.MaxMsgBytes),
			),
		)
	}
	return append(opts, b.Options.Extra...)
}

// Build opens a pool on the gateway from txns.
func (b *Builder) Build(ctx context.Context, txns genesis.Transactions) (pool.Pool, error) {
	cc, err := grpc.NewClient(b.Target, b.dialOptions()...)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindConfig, forgeerr.PoolBuild, "invalid pool target", err)
	}

	if b.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Options.Timeout)
		defer cancel()
	}

	client := NewPoolClient(cc)
	reply, err := client.Open(ctx, wrapperspb.Bytes(txns.Bytes()))
	if err != nil {
		_ = cc.Close()
		return nil, mapRPC(err, "failed to open pool")
	}
	return &Pool{cc: cc, client: client, handle: reply.GetValue(), timeout: b.Options.RPCTimeout}, nil
}

// Pool is a pool opened on a gateway.
type Pool struct {
	cc      *grpc.ClientConn
	client  PoolClient
	handle  string
	timeout time.Duration
}

// Handle returns the gateway-assigned handle.
func (p *Pool) Handle() string { return p.handle }

func (p *Pool) Submit(ctx context.Context, body []byte) (pool.Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, handleKey, p.handle)

	reply, err := p.client.Submit(ctx, wrapperspb.Bytes(body))
	if err != nil {
		if failure, ok := ledgerFailure(err); ok {
			return pool.Result{Failure: failure}, nil
		}
		return pool.Result{}, mapRPC(err, "pool request failed")
	}
	return pool.Result{Reply: reply.GetValue()}, nil
}

// Close releases the handle on the gateway and closes the connection. The
// connection is closed even when the gateway cannot be reached.
func (p *Pool) Close() error {
	if p == nil || p.cc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var rpcErr error
	if _, err := p.client.Close(ctx, wrapperspb.String(p.handle)); err != nil {
		rpcErr = mapRPC(err, "failed to release pool handle")
	}
	return errors.Join(rpcErr, p.cc.Close())
}
