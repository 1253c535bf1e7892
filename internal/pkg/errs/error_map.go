/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: Validation Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Malformed JSON payload."},
	ErrPersonInvalid:        {Code: ErrPersonInvalid, Message: "Client id and name are required."},

	// 2xxx: Session and Roster Errors
	ErrInvalidSessionState: {Code: ErrInvalidSessionState, Message: "Operation not allowed while %s.", Status: http.StatusConflict},
	ErrPersonNotFound:      {Code: ErrPersonNotFound, Message: "Person not found.", Status: http.StatusNotFound},
	ErrRegistrationTimeout: {Code: ErrRegistrationTimeout, Message: "Registration was not confirmed within %s.", Status: http.StatusGatewayTimeout},

	// 3xxx: Transport and Security Errors
	ErrTransportClosed:   {Code: ErrTransportClosed, Message: "Connection is closed.", Status: http.StatusServiceUnavailable},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnauthorized:      {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
