package httpapi

import (
	"errors"
	"net/http"

	"github.com/lanreach/lanreach/auth"
)

// codedError is the interface used for custom HTTP error handling: every
// domain failure carries both a human message, the short wire tag from
// spec.md §7, and the HTTP status that tag maps to.
type codedError interface {
	error
	Code() int
	Tag() string
}

var _ codedError = (*codedErrorImpl)(nil)

type codedErrorImpl struct {
	tag     string
	message string
	code    int
}

func (e *codedErrorImpl) Error() string { return e.message }
func (e *codedErrorImpl) Code() int     { return e.code }
func (e *codedErrorImpl) Tag() string   { return e.tag }

// newCodedError builds a codedError for one of the fixed wire tags.
func newCodedError(tag, message string, code int) *codedErrorImpl {
	return &codedErrorImpl{tag: tag, message: message, code: code}
}

// Error tags and their HTTP statuses (spec.md §7).
const (
	tagUnauthenticated    = "unauthenticated"
	tagAuthFailed         = "auth_failed"
	tagTokenExpired       = "token_expired"
	tagForbidden          = "forbidden"
	tagIPBlacklisted      = "ip_blacklisted"
	tagCommandNotAllowed  = "command_not_allowed"
	tagBadRequest         = "bad_request"
	tagNotFound           = "not_found"
	tagInternal           = "internal"
)

func errUnauthenticated() *codedErrorImpl {
	return newCodedError(tagUnauthenticated, "no bearer token supplied", http.StatusUnauthorized)
}

func errAuthFailed() *codedErrorImpl {
	return newCodedError(tagAuthFailed, "authentication failed", http.StatusUnauthorized)
}

func errTokenExpired() *codedErrorImpl {
	return newCodedError(tagTokenExpired, "session token has expired", http.StatusUnauthorized)
}

func errIPBlacklisted() *codedErrorImpl {
	return newCodedError(tagIPBlacklisted, "peer address is blacklisted", http.StatusForbidden)
}

func errCommandNotAllowed() *codedErrorImpl {
	return newCodedError(tagCommandNotAllowed, "command is not permitted by the whitelist", http.StatusForbidden)
}

func errBadRequest(message string) *codedErrorImpl {
	return newCodedError(tagBadRequest, message, http.StatusBadRequest)
}

func errNotFound() *codedErrorImpl {
	return newCodedError(tagNotFound, "unknown route", http.StatusNotFound)
}

func errInternal(message string) *codedErrorImpl {
	return newCodedError(tagInternal, message, http.StatusInternalServerError)
}

// translateAuthError maps the auth package's sentinel errors onto the wire
// error tags (spec.md §4.3 "Failures").
func translateAuthError(err error) *codedErrorImpl {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return errUnauthenticated()
	case errors.Is(err, auth.ErrTokenExpired):
		return errTokenExpired()
	case errors.Is(err, auth.ErrAuthFailed):
		return errAuthFailed()
	default:
		return errInternal(err.Error())
	}
}
