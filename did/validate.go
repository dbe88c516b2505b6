package did

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"indyforge.dev/forge/forgeerr"
)

// Validate checks DID-value syntax.
//
// Unqualified values must be base58 and decode to 16 or 32 bytes.
// Qualified values take the form did:<method>:[<namespace>:]<id>, where the
// method is lowercase alphanumeric and <id> obeys the unqualified rule.
func Validate(value string) error {
	return validateValue(value, forgeerr.InvalidDIDValue, "DID")
}

// ValidateVerkey checks a verkey with the same DID-value rules the ledger
// request builder applies. The abbreviated "~" form is accepted.
func ValidateVerkey(verkey string) error {
	return validateValue(strings.TrimPrefix(verkey, "~"), forgeerr.InvalidVerkey, "verkey")
}

func validateValue(value string, code forgeerr.Code, what string) error {
	if value == "" {
		return forgeerr.New(forgeerr.KindInput, code, what+" is empty")
	}
	id := value
	if strings.HasPrefix(value, "did:") {
		parts := strings.Split(value, ":")
		if len(parts) < 3 || !isMethod(parts[1]) {
			return forgeerr.New(forgeerr.KindInput, code, fmt.Sprintf("invalid qualified %s %q", what, value))
		}
		id = parts[len(parts)-1]
	}
	raw, err := base58.Decode(id)
	if err != nil {
		return forgeerr.Wrap(forgeerr.KindInput, code, fmt.Sprintf("invalid %s %q: not base58", what, value), err)
	}
	if len(raw) != 16 && len(raw) != 32 {
		return forgeerr.New(forgeerr.KindInput, code, fmt.Sprintf(
			"%s %q has unexpected length %d: the 16- or 32-byte number upon which a DID is based should be 22/23 or 44/45 bytes when encoded as base58",
			what, value, len(raw)))
	}
	return nil
}

func isMethod(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func decodeVerkey(verkey string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(verkey)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verkey must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
