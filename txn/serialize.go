package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// serializeForSignature renders a request in the ledger's signature input
// form. Keys are sorted; objects become key:value pairs joined by '|', arrays
// are joined by ','. The top-level signature, signatures and fees fields are
// not signed. For attribute requests the raw, hash and enc values are replaced
// by the hex SHA-256 of their string value.
func serializeForSignature(msg map[string]any) string {
	var b strings.Builder
	writeValue(&b, msg, true, operationType(msg))
	return b.String()
}

func operationType(msg map[string]any) string {
	op, ok := msg[fieldOperation].(map[string]any)
	if !ok {
		return ""
	}
	t, _ := op[fieldType].(string)
	return t
}

func writeValue(b *strings.Builder, v any, top bool, txnType string) {
	switch x := v.(type) {
	case nil:
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case json.Number:
		b.WriteString(x.String())
	case string:
		b.WriteString(x)
	case []any:
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e, false, txnType)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			if top && (k == fieldSignature || k == fieldSignatures || k == fieldFees) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(k)
			b.WriteByte(':')
			val := x[k]
			if hashedAttribute(txnType, k) {
				s, _ := val.(string)
				sum := sha256.Sum256([]byte(s))
				val = hex.EncodeToString(sum[:])
			}
			writeValue(b, val, false, txnType)
		}
	default:
		fmt.Fprint(b, x)
	}
}

func hashedAttribute(txnType, key string) bool {
	if txnType != TypeAttrib && txnType != TypeGetAttr {
		return false
	}
	return key == "raw" || key == "hash" || key == "enc"
}
