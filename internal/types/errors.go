package types

import "errors"

// Sentinel errors for oasconform operations.
var (
	// ErrSpecResolution indicates an OpenAPI document or one of its fragments
	// could not be resolved. All spec failures wrap it.
	ErrSpecResolution = errors.New("spec resolution failed")

	// ErrSpecValidation indicates the document failed structural or OpenAPI
	// conformance checks.
	ErrSpecValidation = errors.New("error validating API spec")

	// ErrSpecDereference indicates $ref resolution failed or hit a cycle.
	ErrSpecDereference = errors.New("error dereferencing API spec")

	// ErrCircularRef indicates a schema reaches itself through $ref.
	ErrCircularRef = errors.New("circular reference")

	// ErrSpecNotFound indicates a path, operation, response or content type
	// is absent from the document.
	ErrSpecNotFound = errors.New("not found in the specification")

	// ErrValidationProcessing indicates the validator itself could not run
	// (unknown schema id, undecodable payload).
	ErrValidationProcessing = errors.New("error processing payload")

	// ErrRuleEvaluation indicates a condition could not be evaluated.
	ErrRuleEvaluation = errors.New("rule evaluation failed")

	// ErrInvalidRule indicates a rule references repeating structures that
	// do not nest.
	ErrInvalidRule = errors.New("rule loops are not nested")

	// ErrTooManyContexts indicates loop expansion exceeded MaxContexts.
	ErrTooManyContexts = errors.New("rule expands to too many contexts")

	// ErrUnknownOperator indicates a condition uses an operator outside the closed set.
	ErrUnknownOperator = errors.New("unsupported operator")

	// ErrQueueIO indicates a queue store failure.
	ErrQueueIO = errors.New("queue I/O failed")

	// ErrStoreIO indicates a record store failure.
	ErrStoreIO = errors.New("store I/O failed")

	// ErrNotFound indicates a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRequest indicates an ingestion request failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// specError carries a user-facing message while matching both
// ErrSpecResolution and a specific kind under errors.Is.
type specError struct {
	kind  error
	msg   string
	cause error
}

func (e *specError) Error() string { return e.msg }

func (e *specError) Unwrap() error { return e.cause }

func (e *specError) Is(target error) bool {
	return target == ErrSpecResolution || target == e.kind
}

// NewSpecError builds a spec resolution error of the given kind.
func NewSpecError(kind error, msg string) error {
	return &specError{kind: kind, msg: msg}
}

// WrapSpecError is NewSpecError that also unwraps to cause.
func WrapSpecError(kind error, msg string, cause error) error {
	return &specError{kind: kind, msg: msg, cause: cause}
}
