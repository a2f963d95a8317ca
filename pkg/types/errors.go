package types

import "errors"

// Sentinel errors for the taxonomy in the sync engine's error handling
// design. Callers use errors.Is against these, never string matching.
var (
	// Authentication
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// Encryption
	ErrNotUnlocked       = errors.New("encryption not unlocked")
	ErrWrongPassword     = errors.New("wrong password")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// Sync
	ErrVersionConflict    = errors.New("version conflict")
	ErrSyncTransient      = errors.New("transient sync error")
	ErrPermanentUpload    = errors.New("permanent upload failure")
	ErrUserDecisionRequired = errors.New("conflict needs user decision")
	ErrSyncInProgress     = errors.New("reconciliation already in progress")

	// Corruption
	ErrIndexCorrupt  = errors.New("local index corrupt")
	ErrKeyCorrupt    = errors.New("wrapped master key corrupt")
	ErrManifestInvalid = errors.New("invalid manifest")

	// Not found
	ErrMappingNotFound = errors.New("mapping not found")
	ErrNoteNotFound     = errors.New("note not found")
)

// ErrorKind classifies an error for metrics and logging, independent of
// the specific sentinel. It is the "kind" vocabulary from the error
// handling design, used as a counter label.
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindEncryption     ErrorKind = "encryption"
	ErrorKindVersionConflict ErrorKind = "version_conflict"
	ErrorKindTransient      ErrorKind = "transient"
	ErrorKindPermanentUpload ErrorKind = "permanent_upload"
	ErrorKindCorruption     ErrorKind = "corruption"
	ErrorKindUserDecision   ErrorKind = "user_decision"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// ClassifyError maps an error produced anywhere in the engine to a kind,
// for structured logging and the per-kind error counter.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrTokenRefreshFailed):
		return ErrorKindAuthentication
	case errors.Is(err, ErrNotUnlocked), errors.Is(err, ErrWrongPassword), errors.Is(err, ErrInvalidCiphertext):
		return ErrorKindEncryption
	case errors.Is(err, ErrVersionConflict):
		return ErrorKindVersionConflict
	case errors.Is(err, ErrSyncTransient):
		return ErrorKindTransient
	case errors.Is(err, ErrPermanentUpload):
		return ErrorKindPermanentUpload
	case errors.Is(err, ErrIndexCorrupt), errors.Is(err, ErrKeyCorrupt), errors.Is(err, ErrManifestInvalid):
		return ErrorKindCorruption
	case errors.Is(err, ErrUserDecisionRequired):
		return ErrorKindUserDecision
	default:
		return ErrorKindUnknown
	}
}
