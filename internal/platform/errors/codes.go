// Package errors provides structured error handling with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Quest errors
	CodeQuestEventTypeInvalid       Code = "QUEST_EVENT_TYPE_INVALID"
	CodeQuestCadenceInvalid         Code = "QUEST_CADENCE_INVALID"
	CodeQuestRelationshipIDRequired Code = "QUEST_RELATIONSHIP_ID_REQUIRED"
	CodeQuestTemplateNotConfigured  Code = "QUEST_TEMPLATE_NOT_CONFIGURED"
	CodeQuestRecordExpired          Code = "QUEST_RECORD_EXPIRED"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeUnavailable Code = "STORAGE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeQuestEventTypeInvalid,
		CodeQuestCadenceInvalid,
		CodeQuestRelationshipIDRequired:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodeQuestRecordExpired:
		return codes.FailedPrecondition

	// Internal - deployment/configuration faults, never a caller problem
	case CodeQuestTemplateNotConfigured:
		return codes.Internal

	case CodeNotFound:
		return codes.NotFound

	case CodeConflict:
		return codes.Aborted

	case CodeUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
