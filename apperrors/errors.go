package apperrors

import "errors"

var (
	// ErrSessionNotFound is returned when an upload session does not exist
	// or was already finalized.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrTargetNotFound is returned when a delivery target session id is not
	// present in the client registry.
	ErrTargetNotFound = errors.New("target session not found")

	ErrMissingUploadID = errors.New("missing upload id")
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// ErrChunkMismatch is returned when a chunk re-declares a different
	// total, chunk size or file size than the one already recorded for its
	// upload id. Accepting the new values would corrupt positional writes.
	ErrChunkMismatch = errors.New("chunk metadata mismatch")

	// ErrTokenInvalid covers expired tokens and tokens bound to a different
	// file. Callers that need to distinguish a missing token entirely should
	// check for the empty string before validating.
	ErrTokenInvalid = errors.New("access token invalid or expired")

	ErrFileNotFound = errors.New("file not found")
	ErrUnsafeName   = errors.New("unsafe file name")
	ErrInvalidURL   = errors.New("invalid video url")
)
