package did

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"indyforge.dev/forge/forgeerr"
)

// Version selects the DID derivation scheme.
type Version int

const (
	// V1 is the legacy did:sov scheme.
	V1 Version = 1
	// V2 is the did:indy scheme.
	V2 Version = 2

	DefaultVersion = V2
)

// ParseVersion converts a numeric version tag.
func ParseVersion(n int) (Version, error) {
	v := Version(n)
	if err := v.validate(); err != nil {
		return 0, err
	}
	return v, nil
}

func (v Version) validate() error {
	if v != V1 && v != V2 {
		return forgeerr.New(forgeerr.KindInput, forgeerr.InvalidVersion,
			fmt.Sprintf("invalid DID version %d: must be 1 or 2", int(v)))
	}
	return nil
}

func (v Version) String() string {
	switch v {
	case V1:
		return "sov"
	case V2:
		return "indy"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// EncodeVerkey returns the base58 verkey for a raw public key.
func EncodeVerkey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DeriveDID returns the DID for pub under version v.
func DeriveDID(pub ed25519.PublicKey, v Version) (string, error) {
	if err := v.validate(); err != nil {
		return "", err
	}
	if len(pub) != ed25519.PublicKeySize {
		return "", forgeerr.New(forgeerr.KindInput, forgeerr.InvalidVerkey,
			fmt.Sprintf("invalid public key length: expected %d, got %d", ed25519.PublicKeySize, len(pub)))
	}
	if v == V1 {
		return base58.Encode(pub[:16]), nil
	}
	sum := sha256.Sum256(pub)
	return base58.Encode(sum[:16]), nil
}

// VerifyDIDVerkey checks that did is the V2 derivation of verkey.
func VerifyDIDVerkey(did, verkey string) error {
	raw, err := base58.Decode(verkey)
	if err != nil {
		return forgeerr.Wrap(forgeerr.KindInput, forgeerr.InvalidVerkey, "verkey is not valid base58", err)
	}
	sum := sha256.Sum256(raw)
	if did != base58.Encode(sum[:16]) {
		return forgeerr.New(forgeerr.KindDerivation, forgeerr.DidVerkeyMismatch,
			"DID-verkey mismatch: DID does not match first 16 bytes of SHA256(verkey)")
	}
	return nil
}
