package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies graph validation failures. All graph errors are
// fatal: they abort planning before any provider call is made.
type ErrorCode string

const (
	// CodeDuplicateIdentifier indicates a resource ID was declared twice.
	CodeDuplicateIdentifier ErrorCode = "DUPLICATE_IDENTIFIER"

	// CodeUnknownDependency indicates a dependency reference that no
	// declared resource satisfies.
	CodeUnknownDependency ErrorCode = "UNKNOWN_DEPENDENCY"

	// CodeCyclicDependency indicates the dependency relation contains a cycle.
	CodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
)

// Error is a graph validation error with the resources involved.
type Error struct {
	// Code is the error classification.
	Code ErrorCode `json:"code"`

	// ResourceID is the resource that triggered the error, if applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Reference is the offending dependency reference, if applicable.
	Reference string `json:"reference,omitempty"`

	// Cycle lists the identifiers participating in a dependency cycle.
	Cycle []string `json:"cycle,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeDuplicateIdentifier:
		return fmt.Sprintf("[%s] resource %q declared more than once", e.Code, e.ResourceID)
	case CodeUnknownDependency:
		return fmt.Sprintf("[%s] resource %q depends on undeclared resource %q", e.Code, e.ResourceID, e.Reference)
	case CodeCyclicDependency:
		return fmt.Sprintf("[%s] dependency cycle: %s", e.Code, strings.Join(e.Cycle, " -> "))
	default:
		return fmt.Sprintf("[%s] graph error", e.Code)
	}
}

// Is implements error equality for errors.Is by matching the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsCode reports whether err is a graph error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
