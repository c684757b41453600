package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Delivery taxonomy. Only ErrAuthentication closes a connection,
// every other kind is reported back as an error frame.
var (
	ErrAuthentication = fmt.Errorf("authentication failed")
	ErrAuthorization  = fmt.Errorf("not a participant of the conversation")
	ErrValidation     = fmt.Errorf("invalid event")
	ErrPersistence    = fmt.Errorf("storage failure")
	ErrPublish        = fmt.Errorf("publish failure")
	ErrDelivery       = fmt.Errorf("local delivery failure")
	ErrNotification   = fmt.Errorf("push notification failure")
)

var (
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
	ErrNotGroup             = fmt.Errorf("not a group chat")
	ErrUnknownConnection    = fmt.Errorf("unknown connection")
	ErrSinkClosed           = fmt.Errorf("sink is closed")
	ErrSlowConsumer         = fmt.Errorf("sink buffer is full")
	ErrBusClosed            = fmt.Errorf("bus is closed")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrEmptyWords           = fmt.Errorf("no words have been found")
	ErrRateLimited          = fmt.Errorf("too many requests")
)

// Code maps an error to the code carried by error frames.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrInvalidCredentials):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrAuthorization):
		return "FORBIDDEN"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotGroup), errors.Is(err, ErrUserNotFound):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrUserAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_FAILED"
	case errors.Is(err, ErrPublish):
		return "PUBLISH_FAILED"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps an error to the status returned by the REST api.
// A missing resource is only a 404 on REST, frames report it as INVALID_ARGUMENT.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrConversationNotFound) {
		return http.StatusNotFound
	}
	switch Code(err) {
	case "":
		return http.StatusOK
	case "UNAUTHENTICATED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "ALREADY_EXISTS":
		return http.StatusConflict
	case "PERSISTENCE_FAILED", "PUBLISH_FAILED":
		return http.StatusServiceUnavailable
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClosesConnection reports whether err must terminate the transport it came from.
func ClosesConnection(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
