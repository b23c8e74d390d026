package provider

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Error is an OAuth error response from the provider's token endpoint,
// e.g. invalid_grant when a refresh token has been revoked. Transport
// failures are returned as plain wrapped errors, not *Error, so callers
// can tell a provider rejection from an unreachable provider.
type Error struct {
	Code        string // OAuth error code (invalid_grant, invalid_client, ...)
	Description string // Human-readable detail, may be empty
	StatusCode  int    // HTTP status of the provider response
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider error %q (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("provider error %q: %s (status %d)", e.Code, e.Description, e.StatusCode)
}

// Message renders the error the way it should surface to end users:
// the description when the provider sent one, the bare code otherwise.
func (e *Error) Message() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// asProviderError converts oauth2 token-endpoint failures into *Error.
// Anything that is not an OAuth error response passes through unchanged.
func asProviderError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return err
	}

	code := retrieveErr.ErrorCode
	if code == "" {
		code = "invalid_response"
	}
	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	return &Error{
		Code:        code,
		Description: retrieveErr.ErrorDescription,
		StatusCode:  status,
	}
}
