// Package pooltest provides an in-memory ledger implementing pool.Builder
// and pool.Pool for tests.
package pooltest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/pool"
	"indyforge.dev/forge/txn"
)

// Genesis is a four-node pool, three of them validators.
const Genesis = `{"reqSignature":{},"txn":{"data":{"data":{"alias":"Node1","client_ip":"127.0.0.1","client_port":9702,"node_ip":"127.0.0.1","node_port":9701,"services":["VALIDATOR"]},"dest":"Gw6pDLhcBcoQesN72qfotTgFa7cbuqZpkX3Xo6pLhPhv"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f"},"type":"0"},"txnMetadata":{"seqNo":1},"ver":"1"}
{"reqSignature":{},"txn":{"data":{"data":{"alias":"Node2","client_ip":"127.0.0.1","client_port":9704,"node_ip":"127.0.0.1","node_port":9703,"services":["VALIDATOR"]},"dest":"8ECVSk179mjsjKRLWiQtssMLgp6EPhWXtaYyStWPSGAb"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f"},"type":"0"},"txnMetadata":{"seqNo":2},"ver":"1"}
{"reqSignature":{},"txn":{"data":{"data":{"alias":"Node3","client_ip":"127.0.0.1","client_port":9706,"node_ip":"127.0.0.1","node_port":9705,"services":["VALIDATOR"]},"dest":"DKVxG2fXXTU8yT5N7hGEbXB3dfdAnYv1JczDUHpmDxya"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f"},"type":"0"},"txnMetadata":{"seqNo":3},"ver":"1"}
{"reqSignature":{},"txn":{"data":{"data":{"alias":"Node4","client_ip":"127.0.0.1","client_port":9708,"node_ip":"127.0.0.1","node_port":9707,"services":[]},"dest":"4PS3EDQ3dW1tci1Bp6543CfuuebjFrg36kLAUcskGfaA"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f"},"type":"0"},"txnMetadata":{"seqNo":4},"ver":"1"}
`

// Transactions parses Genesis. It panics on error.
func Transactions() genesis.Transactions {
	txns, err := genesis.Parse([]byte(Genesis))
	if err != nil {
		panic(err)
	}
	return txns
}

// Ledger is a fake validator pool. Write requests must carry valid
// multi-signatures from DIDs the ledger knows: registered up front with
// Register or created by an earlier NYM.
type Ledger struct {
	mu          sync.Mutex
	verkeys     map[string]string
	submissions [][]byte
	reject      string
	unreachable bool
	buildErr    error
	buildDelay  time.Duration
	builds      int
	seqNo       int
}

func New() *Ledger { return &Ledger{verkeys: make(map[string]string)} }

// Register makes did known with verkey.
func (l *Ledger) Register(did, verkey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verkeys[did] = verkey
}

// Verkey returns the verkey the ledger holds for did.
func (l *Ledger) Verkey(did string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.verkeys[did]
	return v, ok
}

// SetReject makes every request fail at ledger level with reason. An empty
// reason clears it.
func (l *Ledger) SetReject(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reject = reason
}

// SetUnreachable makes Submit fail with a transport error.
func (l *Ledger) SetUnreachable(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreachable = v
}

// SetBuildError makes Build fail with err.
func (l *Ledger) SetBuildError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buildErr = err
}

// SetBuildDelay makes Build wait for d (or for ctx) before returning.
func (l *Ledger) SetBuildDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buildDelay = d
}

// Builds returns how many pools were built.
func (l *Ledger) Builds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.builds
}

// Submissions returns copies of every request body received.
func (l *Ledger) Submissions() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.submissions))
	for i, b := range l.submissions {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

func (l *Ledger) Build(ctx context.Context, txns genesis.Transactions) (pool.Pool, error) {
	l.mu.Lock()
	delay, buildErr := l.buildDelay, l.buildErr
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, "pool build interrupted", ctx.Err())
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if buildErr != nil {
		return nil, buildErr
	}
	if len(txns.Validators()) == 0 {
		return nil, forgeerr.New(forgeerr.KindConfig, forgeerr.PoolBuild, "genesis lists no validators")
	}

	l.mu.Lock()
	l.builds++
	l.mu.Unlock()
	return &handle{ledger: l}, nil
}

type handle struct {
	ledger *Ledger

	mu     sync.Mutex
	closed bool
}

func (h *handle) Submit(ctx context.Context, body []byte) (pool.Result, error) {
	if err := ctx.Err(); err != nil {
		return pool.Result{}, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, "request cancelled", err)
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return pool.Result{}, forgeerr.New(forgeerr.KindTransport, forgeerr.Unreachable, "pool closed")
	}
	return h.ledger.handle(body)
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (l *Ledger) handle(body []byte) (pool.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unreachable {
		return pool.Result{}, forgeerr.New(forgeerr.KindTransport, forgeerr.Unreachable, "no reply from validators")
	}
	l.submissions = append(l.submissions, append([]byte(nil), body...))
	if l.reject != "" {
		return pool.Result{Failure: l.reject}, nil
	}

	req, err := txn.ParseRequest(body)
	if err != nil {
		return pool.Result{Failure: "client request invalid: " + err.Error()}, nil
	}

	switch req.Type() {
	case txn.TypeGetTxn, txn.TypeGetNym, txn.TypeGetSchema, txn.TypeGetAttr:
		return l.reply(req, map[string]any{"seqNo": l.seqNo})
	}

	if reason := l.checkSignatures(req); reason != "" {
		return pool.Result{Failure: reason}, nil
	}
	op := req.Operation()
	if req.Type() == txn.TypeNym {
		dest, _ := op["dest"].(string)
		verkey, _ := op["verkey"].(string)
		if dest != "" && !strings.HasPrefix(verkey, "~") && did.ValidateVerkey(verkey) == nil {
			l.verkeys[dest] = verkey
		}
	}
	l.seqNo++
	return l.reply(req, map[string]any{
		"txn":         map[string]any{"type": req.Type(), "data": op},
		"txnMetadata": map[string]any{"seqNo": l.seqNo},
	})
}

// checkSignatures returns a refusal reason, or "" when the request is
// properly multi-signed by its submitter.
func (l *Ledger) checkSignatures(req *txn.Request) string {
	if !req.HasSignatures() {
		if req.HasLegacySignature() {
			return "legacy single signature not accepted by this pool"
		}
		return "MissingSignature()"
	}
	input := req.SignatureInput()
	sigs := req.Signatures()
	if _, ok := sigs[req.Identifier()]; !ok {
		return fmt.Sprintf("submitter %s did not sign", req.Identifier())
	}
	for signer, encoded := range sigs {
		verkey, ok := l.verkeys[signer]
		if !ok {
			return fmt.Sprintf("CouldNotAuthenticate: unknown signer %s", signer)
		}
		sig, err := base58.Decode(encoded)
		if err != nil || !did.Verify(verkey, input, sig) {
			return fmt.Sprintf("InsufficientCorrectSignatures: bad signature from %s", signer)
		}
	}
	return ""
}

func (l *Ledger) reply(req *txn.Request, result map[string]any) (pool.Result, error) {
	result["type"] = req.Type()
	result["identifier"] = req.Identifier()
	result["reqId"] = json.Number(req.ReqID())
	b, err := json.Marshal(map[string]any{"op": "REPLY", "result": result})
	if err != nil {
		return pool.Result{}, err
	}
	return pool.Result{Reply: string(b)}, nil
}
