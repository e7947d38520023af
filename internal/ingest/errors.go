package ingest

import (
	"fmt"
)

// ErrorKind classifies why a message could not be applied.
type ErrorKind int

const (
	KindMissingSegment ErrorKind = iota + 1
	KindMissingField
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingSegment:
		return "MissingRequiredSegment"
	case KindMissingField:
		return "MissingRequiredField"
	case KindTransient:
		return "TransientPersistenceError"
	}
	return "HandlingError"
}

// HandlingError is returned by handlers and turned into a negative
// acknowledgement by the Processor.
type HandlingError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *HandlingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *HandlingError) Unwrap() error { return e.Err }

// Reason is the free text written to MSA-3. Store internals are left out.
func (e *HandlingError) Reason() string {
	switch e.Kind {
	case KindTransient:
		return e.Kind.String() + ": " + e.Detail + ", please retry"
	default:
		return e.Kind.String() + ": " + e.Detail
	}
}

func missingSegment(tag string) error {
	return &HandlingError{Kind: KindMissingSegment, Detail: tag}
}

func missingField(field string) error {
	return &HandlingError{Kind: KindMissingField, Detail: field}
}

func transient(detail string, err error) error {
	return &HandlingError{Kind: KindTransient, Detail: detail, Err: err}
}
