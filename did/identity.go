package did

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"indyforge.dev/forge/forgeerr"
)

// SeedSize is the required length of a caller-supplied seed.
const SeedSize = ed25519.SeedSize

// Identity is an in-memory DID with its signing key.
//
// It is immutable apart from Destroy. Sign is safe for concurrent use.
type Identity struct {
	did     string
	verkey  string
	version Version

	mu   sync.RWMutex
	priv ed25519.PrivateKey
}

// Create derives an identity. A nil seed generates a random key pair;
// otherwise seed must be exactly SeedSize bytes.
func Create(seed []byte, version Version) (*Identity, error) {
	return create(seed, version, rand.Reader)
}

func create(seed []byte, version Version, random io.Reader) (*Identity, error) {
	if err := version.validate(); err != nil {
		return nil, err
	}

	var priv ed25519.PrivateKey
	if seed != nil {
		if len(seed) != SeedSize {
			return nil, forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSeedLength,
				fmt.Sprintf("seed must be %d bytes, got %d", SeedSize, len(seed)))
		}
		priv = ed25519.NewKeyFromSeed(seed)
	} else {
		var err error
		_, priv, err = ed25519.GenerateKey(random)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.KindDerivation, forgeerr.KeyGeneration, "failed to generate random key", err)
		}
	}

	pub := priv.Public().(ed25519.PublicKey)
	verkey := EncodeVerkey(pub)
	did, err := DeriveDID(pub, version)
	if err != nil {
		wipe(priv)
		return nil, err
	}
	if version == V2 {
		if err := VerifyDIDVerkey(did, verkey); err != nil {
			wipe(priv)
			return nil, err
		}
	}

	return &Identity{did: did, verkey: verkey, version: version, priv: priv}, nil
}

func (i *Identity) DID() string      { return i.did }
func (i *Identity) Verkey() string   { return i.verkey }
func (i *Identity) Version() Version { return i.version }

// PublicKey returns a copy of the raw Ed25519 public key.
func (i *Identity) PublicKey() ed25519.PublicKey {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.priv == nil {
		return nil
	}
	pub := i.priv.Public().(ed25519.PublicKey)
	out := make(ed25519.PublicKey, len(pub))
	copy(out, pub)
	return out
}

// Sign returns the Ed25519 signature of msg. It returns nil once the
// identity has been destroyed.
func (i *Identity) Sign(msg []byte) []byte {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.priv == nil {
		return nil
	}
	return ed25519.Sign(i.priv, msg)
}

// Destroy wipes the private key. It is idempotent.
func (i *Identity) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	wipe(i.priv)
	i.priv = nil
}

// Destroyed reports whether Destroy has been called.
func (i *Identity) Destroyed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.priv == nil
}

func (i *Identity) String() string { return i.did }

// LogValue implements slog.LogValuer.
func (i *Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("did", i.did),
		slog.String("version", i.version.String()),
	)
}

// Verify reports whether sig is a valid signature of msg under the base58
// verkey.
func Verify(verkey string, msg, sig []byte) bool {
	pub, err := decodeVerkey(verkey)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
