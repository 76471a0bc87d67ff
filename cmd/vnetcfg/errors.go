package main

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	KindInvalidFormat               = "InvalidFormat"
	KindInvalidArgument             = "InvalidArgument"
	KindOutOfRange                  = "OutOfRange"
	KindDuplicateEntity             = "DuplicateEntity"
	KindNotFound                    = "NotFound"
	KindReferencedEntity            = "ReferencedEntity"
	KindUnsupportedCapability       = "UnsupportedCapability"
	KindMutuallyExclusiveParameters = "MutuallyExclusiveParameters"
	KindMissingDependentParameters  = "MissingDependentParameters"
)

type OpError struct {
	Kind    string
	Message string
}

func (e *OpError) Error() string { return e.Message }

func opErrorf(kind, format string, args ...any) error {
	return &OpError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errorKind(err error) string {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func statusForError(err error) int {
	switch errorKind(err) {
	case KindInvalidFormat, KindInvalidArgument, KindOutOfRange,
		KindMutuallyExclusiveParameters, KindMissingDependentParameters:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateEntity, KindReferencedEntity:
		return http.StatusConflict
	case KindUnsupportedCapability:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
