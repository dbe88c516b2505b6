package txn

// Ledger transaction type codes.
const (
	TypeNode      = "0"
	TypeNym       = "1"
	TypeGetTxn    = "3"
	TypeAttrib    = "100"
	TypeSchema    = "101"
	TypeGetAttr   = "104"
	TypeGetNym    = "105"
	TypeGetSchema = "107"
)

// ProtocolVersion is the request protocol version this package emits.
const ProtocolVersion = 2

// Ledger ids for GET_TXN.
const (
	PoolLedger   = 0
	DomainLedger = 1
	ConfigLedger = 2
)

// LibindyDID is the placeholder identifier used for unauthenticated reads.
const LibindyDID = "LibindyDid111111111111"

const (
	fieldIdentifier      = "identifier"
	fieldOperation       = "operation"
	fieldReqID           = "reqId"
	fieldProtocolVersion = "protocolVersion"
	fieldSignature       = "signature"
	fieldSignatures      = "signatures"
	fieldFees            = "fees"
	fieldType            = "type"
)

// TypeName returns a human label for a type code, or the code itself.
func TypeName(code string) string {
	switch code {
	case TypeNode:
		return "NODE"
	case TypeNym:
		return "NYM"
	case TypeGetTxn:
		return "GET_TXN"
	case TypeAttrib:
		return "ATTRIB"
	case TypeSchema:
		return "SCHEMA"
	case TypeGetAttr:
		return "GET_ATTR"
	case TypeGetNym:
		return "GET_NYM"
	case TypeGetSchema:
		return "GET_SCHEMA"
	default:
		return code
	}
}
