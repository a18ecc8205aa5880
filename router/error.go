package router

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeBadRequest      ErrorType = "bad_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"
	ErrorTypeInternal        ErrorType = "internal"
)

// Error is the structured failure written at the router boundary. Handlers
// return one to pick a client-facing status; any other error becomes a
// generic internal error.
type Error struct {
	Type   ErrorType `json:"type"`
	Status int       `json:"status"`
	Msg    string    `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Msg)
}

func BadRequest(msg string) *Error {
	return &Error{Type: ErrorTypeBadRequest, Status: http.StatusBadRequest, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Type: ErrorTypeNotFound, Status: http.StatusNotFound, Msg: msg}
}

func PayloadTooLarge(msg string) *Error {
	return &Error{Type: ErrorTypePayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Msg: msg}
}

func internalError() *Error {
	return &Error{
		Type:   ErrorTypeInternal,
		Status: http.StatusInternalServerError,
		Msg:    http.StatusText(http.StatusInternalServerError),
	}
}
