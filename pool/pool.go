// Package pool defines the contract between the ledger connection and a
// validator-pool client.
//
// The consensus wire protocol itself lives behind Builder. This module ships
// a gRPC client for a pool gateway (package grpcpool) and an in-memory ledger
// for tests (package pooltest).
package pool

import (
	"context"

	"indyforge.dev/forge/genesis"
)

// Result is the ledger's answer to one request. Exactly one of Reply and
// Failure is set.
type Result struct {
	// Reply is the raw reply envelope.
	Reply string
	// Failure is the ledger-reported reason the request was refused.
	Failure string
}

// Failed reports whether the ledger refused the request.
func (r Result) Failed() bool { return r.Failure != "" }

// Pool is a connected validator pool.
//
// Submit returns an error only for transport failures; ledger-level refusals
// are reported through Result.
type Pool interface {
	Submit(ctx context.Context, body []byte) (Result, error)
	Close() error
}

// Builder opens a pool from its bootstrap transactions.
type Builder interface {
	Build(ctx context.Context, txns genesis.Transactions) (Pool, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, txns genesis.Transactions) (Pool, error)

func (f BuilderFunc) Build(ctx context.Context, txns genesis.Transactions) (Pool, error) {
	return f(ctx, txns)
}
