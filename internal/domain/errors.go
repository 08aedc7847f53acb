package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeGeneration       = "GENERATION_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidSourceType    = NewDomainError(ErrCodeValidation, "invalid context source type")
	ErrInvalidEntityType    = NewDomainError(ErrCodeValidation, "entity type outside the valid set")
	ErrInvalidPredicate     = NewDomainError(ErrCodeValidation, "relationship predicate outside the valid set")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrEntityNotFound       = NewDomainError(ErrCodeNotFound, "entity not found")
	ErrRelationshipNotFound = NewDomainError(ErrCodeNotFound, "relationship not found")
	ErrContextItemNotFound  = NewDomainError(ErrCodeNotFound, "context item not found")
	ErrTaskNotFound         = NewDomainError(ErrCodeNotFound, "task not found")
	ErrProfileNotFound      = NewDomainError(ErrCodeNotFound, "user profile not found")
)

// Already exists errors
var (
	ErrEnrichmentAlreadyApplied = NewDomainError(ErrCodeAlreadyExists, "enrichment already applied for this task and context")
)

// Generation errors
var (
	ErrGenerationTimeout    = NewDomainError(ErrCodeGeneration, "generation call exceeded its deadline")
	ErrGenerationMalformed  = NewDomainError(ErrCodeGeneration, "generation output failed schema validation")
	ErrGenerationExhausted  = NewDomainError(ErrCodeGeneration, "all generation backends failed")
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeGeneration, "embedding service unavailable")
)

// Operation errors
var (
	ErrContextItemImmutable = NewDomainError(ErrCodeInvalidOperation, "context items cannot be modified after creation")
)
