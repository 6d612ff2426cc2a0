package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// errNoteNotFound covers both a nonexistent note and a note the caller lacks
// the required capability for. The two are deliberately indistinguishable so
// callers cannot probe for existence.
func errNoteNotFound() *DomainError {
	return domainError(http.StatusBadRequest, "NOT_FOUND", "Note not found")
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusBadRequest, "CONFLICT", message)
}
