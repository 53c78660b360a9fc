package errors

import (
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeBadRequest    ErrorCode = "COMMON_002"
	ErrCodeNotFound      ErrorCode = "COMMON_005"
	ErrCodeConflict      ErrorCode = "COMMON_006"
	ErrCodeValidation    ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeCacheError    ErrorCode = "COMMON_013"
	ErrCodeStorageError  ErrorCode = "COMMON_014"
	ErrCodeMessaging     ErrorCode = "COMMON_015"
)

// Aliases used by call sites that predate the prefixed names.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Molecule / fingerprint error codes
const (
	// ErrCodeInvalidInput is raised when a molecule is blank and no
	// precomputed hash list was supplied in its place.
	ErrCodeInvalidInput               ErrorCode = "MOL_001"
	ErrCodeFingerprintKindUnsupported ErrorCode = "MOL_002"
	ErrCodeFoldingInvalid             ErrorCode = "MOL_003"
	ErrCodeMoleculeInvalidFormat      ErrorCode = "MOL_004"
)

// Bayesian model error codes
const (
	// ErrCodeModelFormat marks a serialized model that cannot be decoded.
	ErrCodeModelFormat      ErrorCode = "BAY_001"
	ErrCodeTrainingEmpty    ErrorCode = "BAY_002"
	ErrCodeModelNotBuilt    ErrorCode = "BAY_003"
	ErrCodeValidationFailed ErrorCode = "BAY_004"
	ErrCodeModelNotFound    ErrorCode = "BAY_005"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:      "internal error",
	ErrCodeBadRequest:    "bad request",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "invalid state",
	ErrCodeValidation:    "validation failed",
	ErrCodeSerialization: "serialization failed",
	ErrCodeCacheError:    "cache error",
	ErrCodeStorageError:  "object storage error",
	ErrCodeMessaging:     "message publication failed",

	ErrCodeInvalidInput:               "molecule is empty and no hashes were supplied",
	ErrCodeFingerprintKindUnsupported: "unsupported fingerprint kind",
	ErrCodeFoldingInvalid:             "folding must be zero or a power of two",
	ErrCodeMoleculeInvalidFormat:      "malformed molecule record",

	ErrCodeModelFormat:      "malformed Bayesian model text",
	ErrCodeTrainingEmpty:    "no training examples",
	ErrCodeModelNotBuilt:    "model has not been built",
	ErrCodeValidationFailed: "cross-validation failed",
	ErrCodeModelNotFound:    "model not found",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode ("MOL", "BAY", ...).
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
