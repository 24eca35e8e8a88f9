package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failure once, at the gateway boundary.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindServer       Kind = "server"
	KindDomain       Kind = "domain"
)

const (
	msgNetwork        = "Network error: Unable to connect to server"
	msgServer         = "Server error: Please try again later"
	msgSessionExpired = "Session expired: please log in again"
)

var (
	// ErrSessionExpired matches any authorization failure. By the time it is
	// returned the session has already been torn down.
	ErrSessionExpired = errors.New(msgSessionExpired)
	ErrNetwork        = errors.New(msgNetwork)
	ErrServer         = errors.New(msgServer)
)

// Error is a classified failure. Message is what a user should see.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Method  string
	Path    string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSessionExpired:
		return e.Kind == KindUnauthorized
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// KindOf returns the classification of err, or "" when err was not produced
// by the gateway (or one of its validation helpers).
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return 0
}

// Invalid builds a validation failure raised before any dispatch.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Domain builds a business-rule failure detected on the client.
func Domain(msg string) *Error {
	return &Error{Kind: KindDomain, Message: msg}
}
