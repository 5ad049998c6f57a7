// Package errors provides structured error handling for the game runtime.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotLoaded     Code = "SESSION_NOT_LOADED"
	CodeSessionEmptyGameID   Code = "SESSION_EMPTY_GAME_ID"
	CodeSessionAlreadyExists Code = "SESSION_ALREADY_EXISTS"

	// Grant errors
	CodePlayNotGranted Code = "PLAY_NOT_GRANTED"
	CodePlayNotJoined  Code = "PLAY_NOT_JOINED"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// Engine errors
	CodeEventInvalid   Code = "EVENT_INVALID"
	CodeEngineRejected Code = "ENGINE_REJECTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeSessionEmptyGameID,
		CodeEventInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSessionNotLoaded,
		CodePlayNotJoined:
		return codes.FailedPrecondition

	// PermissionDenied - caller has no seat at the table
	case CodePlayNotGranted:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeSessionAlreadyExists:
		return codes.AlreadyExists

	// Unavailable - the backing store is unreachable; retryable
	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// Retryable reports whether the caller may retry the failed operation
// unchanged. Registration and persistence against the document store are
// idempotent, so store outages are the only retryable class.
func (c Code) Retryable() bool {
	return c.GRPCCode() == codes.Unavailable
}
