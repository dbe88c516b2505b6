package grpcpool

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/pool/pooltest"
	"indyforge.dev/forge/txn"
)

func startGateway(t *testing.T, ledger *pooltest.Ledger) *Builder {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	gw := &Server{Builder: ledger}
	RegisterPoolServer(srv, gw)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() {
		gw.Shutdown()
		srv.Stop()
	})

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	return NewBuilder("passthrough:///bufnet", DialOptions{
		Timeout:    2 * time.Second,
		RPCTimeout: 2 * time.Second,
		Extra:      []grpc.DialOption{grpc.WithContextDialer(dialer)},
	})
}

func TestGRPCPool_SubmitRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := pooltest.New()
	id, err := did.Create([]byte("000000000000000000000000Trustee1"), did.V1)
	if err != nil {
		t.Fatalf("did.Create: %v", err)
	}
	ledger.Register(id.DID(), id.Verkey())

	p, err := startGateway(t, ledger).Build(ctx, pooltest.Transactions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()
	if p.(*Pool).Handle() == "" {
		t.Fatalf("expected a pool handle")
	}

	read, _ := txn.NewBuilder().BuildGetTxn(txn.DomainLedger, 1).JSON()
	res, err := p.Submit(ctx, read)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Failed() || res.Reply == "" {
		t.Fatalf("expected a reply, got %+v", res)
	}

	req, err := txn.NewBuilder().BuildNym(id.DID(), id.DID(), id.Verkey(), "", txn.Trustee)
	if err != nil {
		t.Fatalf("BuildNym: %v", err)
	}
	req.SetMultiSignature(id.DID(), id.Sign(req.SignatureInput()))
	body, _ := req.JSON()
	res, err = p.Submit(ctx, body)
	if err != nil {
		t.Fatalf("Submit signed: %v", err)
	}
	if res.Failed() {
		t.Fatalf("signed NYM refused: %s", res.Failure)
	}
	if got := len(ledger.Submissions()); got != 2 {
		t.Fatalf("ledger saw %d submissions, want 2", got)
	}
}

func TestGRPCPool_LedgerFailureIsNotTransportError(t *testing.T) {
	ctx := context.Background()
	ledger := pooltest.New()
	p, err := startGateway(t, ledger).Build(ctx, pooltest.Transactions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()

	ledger.SetReject("client request invalid")
	read, _ := txn.NewBuilder().BuildGetTxn(txn.DomainLedger, 1).JSON()
	res, err := p.Submit(ctx, read)
	if err != nil {
		t.Fatalf("Submit: unexpected transport error %v", err)
	}
	if res.Failure != "client request invalid" {
		t.Fatalf("Failure = %q", res.Failure)
	}

	ledger.SetReject("")
	ledger.SetUnreachable(true)
	_, err = p.Submit(ctx, read)
	if !forgeerr.IsKind(err, forgeerr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGRPCPool_BuildFailures(t *testing.T) {
	ctx := context.Background()
	ledger := pooltest.New()
	b := startGateway(t, ledger)

	_, err := b.Build(ctx, pooltest.Transactions()[3:])
	if !forgeerr.HasCode(err, forgeerr.PoolBuild) {
		t.Fatalf("expected PoolBuild for a pool without validators, got %v", err)
	}

	ledger.SetBuildDelay(time.Second)
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = b.Build(short, pooltest.Transactions())
	if !forgeerr.HasCode(err, forgeerr.Timeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestGRPCPool_UnknownHandle(t *testing.T) {
	ctx := context.Background()
	ledger := pooltest.New()
	p, err := startGateway(t, ledger).Build(ctx, pooltest.Transactions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	gp := p.(*Pool)
	if _, err := gp.client.Close(ctx, wrapperspb.String(gp.handle)); err != nil {
		t.Fatalf("Close rpc: %v", err)
	}
	read, _ := txn.NewBuilder().BuildGetTxn(txn.DomainLedger, 1).JSON()
	_, err = p.Submit(ctx, read)
	if !forgeerr.HasCode(err, forgeerr.Unreachable) {
		t.Fatalf("expected Unreachable for a released handle, got %v", err)
	}
	_ = p.Close()
}

func TestGRPCPool_CloseReportsUnreachableGateway(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	_ = lis.Close()
	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	p := &Pool{cc: cc, client: NewPoolClient(cc), handle: "gone"}

	err = p.Close()
	if !forgeerr.HasCode(err, forgeerr.Unreachable) {
		t.Fatalf("expected Unreachable from Close, got %v", err)
	}
}
