// Package forgeerr defines the structured error type shared by every forge
// package.
//
// Callers should branch on Kind or Code rather than matching error strings.
// Error() text is meant for humans and may change between versions.
package forgeerr

import "errors"

// Kind is a stable failure category.
type Kind string

const (
	KindInput      Kind = "Input"
	KindDerivation Kind = "Derivation"
	KindTransport  Kind = "Transport"
	KindConfig     Kind = "Config"
	KindSubmission Kind = "Submission"
	KindState      Kind = "State"
)

// Code names one specific failure. Codes never change meaning once published.
type Code string

const (
	InvalidSeedLength     Code = "InvalidSeedLength"
	InvalidVersion        Code = "InvalidVersion"
	InvalidDIDValue       Code = "InvalidDIDValue"
	InvalidVerkey         Code = "InvalidVerkey"
	InvalidSchemaVersion  Code = "InvalidSchemaVersion"
	EmptyAttributes       Code = "EmptyAttributes"
	InvalidSchema         Code = "InvalidSchema"
	InvalidRole           Code = "InvalidRole"
	MalformedRequest      Code = "MalformedRequest"
	InvalidSource         Code = "InvalidSource"
	DidVerkeyMismatch     Code = "DidVerkeyMismatch"
	KeyGeneration         Code = "KeyGeneration"
	Timeout               Code = "Timeout"
	HTTPStatus            Code = "HTTPStatus"
	Unreachable           Code = "Unreachable"
	FileRead              Code = "FileRead"
	ParseError            Code = "ParseError"
	EmptyContent          Code = "EmptyContent"
	TooLarge              Code = "TooLarge"
	PoolBuild             Code = "PoolBuild"
	LedgerRejected        Code = "LedgerRejected"
	AlreadySigned         Code = "AlreadySigned"
	LegacySignatureFormat Code = "LegacySignatureFormat"
	AlreadyConnecting     Code = "AlreadyConnecting"
	NotConnected          Code = "NotConnected"
	NoGenesisSource       Code = "NoGenesisSource"
	NoIdentity            Code = "NoIdentity"
	ConnectionLost        Code = "ConnectionLost"
	RetryRequired         Code = "RetryRequired"
	InvalidConfig         Code = "InvalidConfig"
	InvalidCID            Code = "InvalidCID"
	NotArchived           Code = "NotArchived"
)

// Error is the module's structured error type.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns an error without an underlying cause.
func New(kind Kind, code Code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap returns an error carrying cause. A nil cause behaves like New.
func Wrap(kind Kind, code Code, msg string, cause error) error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// HasCode reports whether err is (or wraps) an *Error with the given Code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// CodeOf returns the Code of the outermost *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// Retryable reports whether repeating the operation may succeed without
// changing its inputs.
func Retryable(err error) bool {
	return IsKind(err, KindTransport) || HasCode(err, ConnectionLost)
}
