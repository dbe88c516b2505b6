// Package did derives self-certifying ledger identifiers from Ed25519 keys.
//
// Contents
//
//   - Identity creation from an optional 32-byte seed (Create)
//   - DID derivation for both version schemes (DeriveDID):
//     V1 takes the first 16 bytes of the public key, V2 the first 16 bytes of
//     SHA-256(public key); both are base58 encoded
//   - The V2 DID/verkey consistency check (VerifyDIDVerkey)
//   - DID-value syntax checks for user-supplied identifiers (Validate,
//     ValidateVerkey)
//   - Ed25519 signing and verification (Identity.Sign, Verify)
//
// # Notes
//
// An Identity never exposes its private key. Its String and LogValue forms
// carry the DID only, so identities may be passed to loggers freely.
package did
