/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific validation, session-state
and transport errors both inside the roster core and in messages sent to clients.
*/
package errs

// 1xxx: Validation Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates that a request body or wire payload is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrPersonInvalid indicates that a person record was constructed without a client id or name.
	ErrPersonInvalid = 1101
)

// 2xxx: Session and Roster Errors
const (
	// ErrInvalidSessionState indicates an operation was attempted in the wrong session state,
	// e.g. a second login while a login is still pending.
	ErrInvalidSessionState = 2101

	// ErrPersonNotFound indicates that no person is indexed under the requested id.
	ErrPersonNotFound = 2102

	// ErrRegistrationTimeout indicates that the server never confirmed a pending registration.
	ErrRegistrationTimeout = 2103
)

// 3xxx: Transport and Security Errors
const (
	// ErrTransportClosed indicates that a message could not be sent because the transport is closed.
	ErrTransportClosed = 3001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 3002

	// ErrUnauthorized indicates that the request carried no valid identity token.
	ErrUnauthorized = 3003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000
)
