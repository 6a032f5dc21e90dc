// Package errors provides the error taxonomy shared by the psalter engine.
//
// Every error type matches exactly one sentinel through errors.Is, even when it
// wraps an underlying cause, so callers can branch on the category without
// caring about the concrete type:
//
//	InvalidRequestError    -> ErrInvalidRequest
//	SourceUnavailableError -> ErrSourceUnavailable
//	VerseNotFoundError     -> ErrVerseNotFound
//	ContractViolationError -> ErrContractViolation
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure categories.
var (
	// ErrInvalidRequest indicates malformed or out-of-range input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSourceUnavailable indicates the source document could not be fetched.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrVerseNotFound indicates the document was fetched but lacks the verse.
	ErrVerseNotFound = errors.New("verse not found")
	// ErrContractViolation indicates an internal bug caught by the envelope validator.
	ErrContractViolation = errors.New("contract violation")
)

// InvalidRequestError describes input that cannot be turned into a lookup.
type InvalidRequestError struct {
	Field   string // Offending field (e.g. "psalm", "verse")
	Message string // Human-readable reason
}

func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// SourceUnavailableError represents a transport or status failure while
// fetching a psalm's overview document.
type SourceUnavailableError struct {
	Psalm      int    // Psalm whose document was requested
	URL        string // Document location, if known
	StatusCode int    // HTTP status, 0 for transport errors
	Err        error  // Underlying error, if any
}

func (e *SourceUnavailableError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("source unavailable for psalm %d: %s returned status %d", e.Psalm, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("source unavailable for psalm %d: %v", e.Psalm, e.Err)
	default:
		return fmt.Sprintf("source unavailable for psalm %d", e.Psalm)
	}
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// VerseNotFoundError means the source resolved but the verse is absent.
// Verse is zero when the whole psalm yielded no verses.
type VerseNotFoundError struct {
	Psalm    int
	Verse    int
	MaxVerse int // Highest verse discovered, 0 if none
}

func (e *VerseNotFoundError) Error() string {
	switch {
	case e.Verse == 0:
		return fmt.Sprintf("no verses discovered for psalm %d", e.Psalm)
	case e.MaxVerse > 0:
		return fmt.Sprintf("psalm %d has no verse %d (highest verse is %d)", e.Psalm, e.Verse, e.MaxVerse)
	default:
		return fmt.Sprintf("psalm %d has no verse %d", e.Psalm, e.Verse)
	}
}

func (e *VerseNotFoundError) Is(target error) bool { return target == ErrVerseNotFound }

// ContractViolationError is raised by the envelope validator. It is never
// converted into a user-facing response.
type ContractViolationError struct {
	Field   string // Dotted path of the offending member (e.g. "request.verses")
	Message string
}

func (e *ContractViolationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("contract violation at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("contract violation: %s", e.Message)
}

func (e *ContractViolationError) Is(target error) bool { return target == ErrContractViolation }

// NewInvalidRequest creates an InvalidRequestError
func NewInvalidRequest(field, message string) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Message: message}
}

// NewSourceUnavailable creates a SourceUnavailableError
func NewSourceUnavailable(psalm int, url string, statusCode int, err error) *SourceUnavailableError {
	return &SourceUnavailableError{
		Psalm:      psalm,
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewVerseNotFound creates a VerseNotFoundError
func NewVerseNotFound(psalm, verse, maxVerse int) *VerseNotFoundError {
	return &VerseNotFoundError{Psalm: psalm, Verse: verse, MaxVerse: maxVerse}
}

// NewContractViolation creates a ContractViolationError
func NewContractViolation(field, message string) *ContractViolationError {
	return &ContractViolationError{Field: field, Message: message}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
