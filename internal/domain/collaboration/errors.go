package collaboration

import "fmt"

// Code classifies a domain failure.
type Code string

const (
	CodeForbidden         Code = "FORBIDDEN"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeContractNotSigned Code = "CONTRACT_NOT_SIGNED"
	CodeNotActive         Code = "NOT_ACTIVE"
	CodeDuplicateProposal Code = "DUPLICATE_PROPOSAL"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidActor      Code = "INVALID_ACTOR"
	CodeValidation        Code = "VALIDATION_ERROR"
)

// Error is a typed domain failure. errors.Is matches on Code, so callers compare
// against the Err* values regardless of the message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "you are not a participant of this collaboration"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "this status change is not allowed"}
	ErrContractNotSigned = &Error{Code: CodeContractNotSigned, Message: "contract must be signed by both parties before activation"}
	ErrNotActive         = &Error{Code: CodeNotActive, Message: "collaboration is not active"}
	ErrDuplicateProposal = &Error{Code: CodeDuplicateProposal, Message: "a collaboration is already open on this post"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "collaboration not found"}
	ErrInvalidActor      = &Error{Code: CodeInvalidActor, Message: "you cannot collaborate on your own post"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "invalid input"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(CodeValidation, format, args...)
}
