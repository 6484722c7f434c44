package services

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindNotFound      ErrorKind = "NotFound"
	KindAlreadyExists ErrorKind = "AlreadyExists"
	KindAlreadyMember ErrorKind = "AlreadyMember"
	KindNotMember     ErrorKind = "NotMember"
	KindUnauthorized  ErrorKind = "Unauthorized"
	KindForbidden     ErrorKind = "Forbidden"
	KindValidation    ErrorKind = "ValidationError"
	KindConflict      ErrorKind = "Conflict"
	KindInternal      ErrorKind = "Internal"
)

type ServiceError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrNotFound(msg string) error {
	return ServiceError{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

func ErrAlreadyExists(msg string) error {
	return ServiceError{Kind: KindAlreadyExists, Status: http.StatusConflict, Message: msg}
}

func ErrAlreadyMember(msg string) error {
	return ServiceError{Kind: KindAlreadyMember, Status: http.StatusConflict, Message: msg}
}

func ErrNotMember(msg string) error {
	return ServiceError{Kind: KindNotMember, Status: http.StatusBadRequest, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

func ErrValidation(msg string) error {
	return ServiceError{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

// IsKind reports whether err, or anything it wraps, is a ServiceError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var serr ServiceError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
